package core

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Swind/go-task-bench/core"

// Engine dispatches batches onto registered strategies and compares them.
type Engine struct {
	mu         sync.RWMutex
	strategies map[StrategyKind]ExecutionStrategy
	order      []StrategyKind

	cfg    *StrategyConfig
	logger Logger
}

// NewEngine registers strategies in the given order. cfg supplies the logger and
// the batch size limit.
func NewEngine(cfg *StrategyConfig, strategies ...ExecutionStrategy) *Engine {
	cfg = normalizeStrategyConfig(cfg)
	e := &Engine{
		strategies: make(map[StrategyKind]ExecutionStrategy),
		cfg:        cfg,
		logger:     cfg.Logger,
	}
	for _, s := range strategies {
		e.Register(s)
	}
	return e
}

// Register adds or replaces the strategy for s.Kind().
func (e *Engine) Register(s ExecutionStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.strategies[s.Kind()]; !ok {
		e.order = append(e.order, s.Kind())
	}
	e.strategies[s.Kind()] = s
}

// Kinds lists registered strategies in registration order.
func (e *Engine) Kinds() []StrategyKind {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.order)
}

// Strategy returns the registered strategy for kind.
func (e *Engine) Strategy(kind StrategyKind) (ExecutionStrategy, error) {
	e.mu.RLock()
	s, ok := e.strategies[kind]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", ErrStrategyUnavailable, kind)
	}
	return s, nil
}

// RunSingle runs one batch of the generic workload.
func (e *Engine) RunSingle(ctx context.Context, kind StrategyKind, size int) (BatchResult, error) {
	return e.RunWorkload(ctx, kind, size, WorkloadGeneric)
}

// RunWorkload runs one batch of w on the strategy registered for kind.
func (e *Engine) RunWorkload(ctx context.Context, kind StrategyKind, size int, w Workload) (BatchResult, error) {
	if err := e.cfg.checkBatchSize(size); err != nil {
		return BatchResult{}, err
	}
	s, err := e.Strategy(kind)
	if err != nil {
		e.logger.Error("strategy unavailable", F("strategy", kind), F("error", err))
		return BatchResult{}, err
	}
	return e.run(ctx, s, size, w)
}

// Compare runs the generic workload on each kind, one strategy after another.
// An empty kinds list means every registered strategy.
func (e *Engine) Compare(ctx context.Context, kinds []StrategyKind, size int) (map[StrategyKind]BatchResult, error) {
	return e.CompareWorkload(ctx, kinds, size, WorkloadGeneric)
}

// CompareWorkload is Compare with an explicit workload. Strategy N+1 starts only
// after strategy N's batch has fully settled. All kinds are resolved before any
// batch starts, so an unknown kind performs no work.
func (e *Engine) CompareWorkload(ctx context.Context, kinds []StrategyKind, size int, w Workload) (map[StrategyKind]BatchResult, error) {
	if err := e.cfg.checkBatchSize(size); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = e.Kinds()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.compare",
		trace.WithAttributes(
			attribute.Int("batch.size", size),
			attribute.Int("strategies.count", len(kinds)),
		))
	defer span.End()

	selected := make([]ExecutionStrategy, 0, len(kinds))
	seen := make(map[StrategyKind]bool, len(kinds))
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		s, err := e.Strategy(kind)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("strategy unavailable", F("strategy", kind), F("error", err))
			return nil, err
		}
		selected = append(selected, s)
	}

	results := make(map[StrategyKind]BatchResult, len(selected))
	for _, s := range selected {
		res, err := e.run(ctx, s, size, w)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		results[s.Kind()] = res
	}
	return results, nil
}

func (e *Engine) run(ctx context.Context, s ExecutionStrategy, size int, w Workload) (BatchResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.run",
		trace.WithAttributes(
			attribute.String("strategy", string(s.Kind())),
			attribute.String("workload", w.Name),
			attribute.Int("batch.size", size),
		))
	defer span.End()

	e.logger.Debug("dispatching batch",
		F("strategy", s.Kind()),
		F("workload", w.Name),
		F("size", size))

	res, err := s.Run(ctx, size, w)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("batch could not run",
			F("strategy", s.Kind()),
			F("size", size),
			F("error", err))
		return BatchResult{}, err
	}

	span.SetAttributes(
		attribute.String("run.id", res.RunID),
		attribute.Int("tasks.succeeded", res.Succeeded),
		attribute.Int("tasks.failed", res.Failed),
		attribute.Int64("elapsed.ms", res.ElapsedMillis()),
	)
	e.logger.Info("batch settled",
		F("strategy", s.Kind()),
		F("run_id", res.RunID),
		F("succeeded", res.Succeeded),
		F("failed", res.Failed),
		F("elapsed_ms", res.ElapsedMillis()))
	return res, nil
}
