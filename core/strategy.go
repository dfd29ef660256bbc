package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StrategyKind names a concurrency discipline.
type StrategyKind string

const (
	StrategyPerTaskWorker    StrategyKind = "per_task_worker"
	StrategyBoundedPool      StrategyKind = "bounded_pool"
	StrategyStreamDispatcher StrategyKind = "stream_dispatcher"
)

// ParseStrategyKind accepts the canonical names plus a few short aliases.
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StrategyPerTaskWorker), "per-task", "lightweight", "virtual":
		return StrategyPerTaskWorker, nil
	case string(StrategyBoundedPool), "pool", "bounded", "platform":
		return StrategyBoundedPool, nil
	case string(StrategyStreamDispatcher), "stream", "reactive":
		return StrategyStreamDispatcher, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", ErrStrategyUnavailable, s)
	}
}

// ExecutionStrategy runs a batch of TaskUnits under one concurrency discipline.
type ExecutionStrategy interface {
	Kind() StrategyKind

	// Run executes size units of w and returns once every unit has settled.
	// Per-task failures are counted in the result; the error is reserved for
	// ErrInvalidBatchSize and ErrStrategyUnavailable.
	Run(ctx context.Context, size int, w Workload) (BatchResult, error)
}

// BatchResult is the immutable record of one settled batch.
type BatchResult struct {
	RunID     string              `json:"runId"`
	Strategy  StrategyKind        `json:"strategy"`
	Workload  string              `json:"workload"`
	Requested int                 `json:"requested"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Failures  map[FailureKind]int `json:"failures,omitempty"`
	Recovered int                 `json:"recovered,omitempty"`
	Elapsed   time.Duration       `json:"elapsedNanos"`
	Workers   []WorkerDescriptor  `json:"workers"`
	Cancelled bool                `json:"cancelled"`
}

// ElapsedMillis is Elapsed truncated to whole milliseconds.
func (r BatchResult) ElapsedMillis() int64 { return r.Elapsed.Milliseconds() }

// TasksPerSecond is requested*1000/elapsedMillis, or 0 when elapsedMillis is 0.
func (r BatchResult) TasksPerSecond() float64 {
	return tasksPerSecond(int64(r.Requested), r.ElapsedMillis())
}

// LightweightWorkers counts descriptors that came from lightweight workers.
func (r BatchResult) LightweightWorkers() int {
	n := 0
	for _, w := range r.Workers {
		if w.Lightweight {
			n++
		}
	}
	return n
}

func (r BatchResult) String() string {
	return fmt.Sprintf("%s - Processed %d tasks in %d ms (succeeded=%d failed=%d)",
		r.Strategy, r.Requested, r.ElapsedMillis(), r.Succeeded, r.Failed)
}

func tasksPerSecond(requested, elapsedMillis int64) float64 {
	if elapsedMillis == 0 {
		return 0
	}
	return float64(requested) * 1000 / float64(elapsedMillis)
}

// =============================================================================
// StrategyConfig: collaborators shared by every strategy
// =============================================================================

// DefaultMaxBatchSize bounds a batch when StrategyConfig.MaxBatchSize is unset.
const DefaultMaxBatchSize = 100_000

// StrategyConfig holds the collaborators strategies report to.
// All fields are optional; missing ones fall back to no-op defaults.
type StrategyConfig struct {
	Counters     *DispatchCounters
	Metrics      Metrics
	PanicHandler PanicHandler
	Logger       Logger

	// MaxBatchSize is the largest accepted batch; <= 0 means DefaultMaxBatchSize.
	MaxBatchSize int
}

// DefaultStrategyConfig returns a config with fresh counters and no-op reporting.
func DefaultStrategyConfig() *StrategyConfig {
	return normalizeStrategyConfig(nil)
}

func normalizeStrategyConfig(cfg *StrategyConfig) *StrategyConfig {
	out := &StrategyConfig{}
	if cfg != nil {
		*out = *cfg
	}
	if out.Counters == nil {
		out.Counters = NewDispatchCounters()
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{}
	}
	if out.Logger == nil {
		out.Logger = NewNoOpLogger()
	}
	if out.MaxBatchSize <= 0 {
		out.MaxBatchSize = DefaultMaxBatchSize
	}
	return out
}

// checkBatchSize rejects sizes outside [0, MaxBatchSize] before any work is dispatched.
func (c *StrategyConfig) checkBatchSize(size int) error {
	if size < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
	}
	if size > c.MaxBatchSize {
		return fmt.Errorf("%w: %d exceeds the limit of %d", ErrInvalidBatchSize, size, c.MaxBatchSize)
	}
	return nil
}

// execute runs unit on the current worker and records counters. TaskUnit already
// turns panics into FailurePanicked; they are surfaced to the PanicHandler here.
func (c *StrategyConfig) execute(ctx context.Context, kind StrategyKind, unit *TaskUnit) Outcome {
	out := unit.Execute(ctx)
	if f := out.Failure; f != nil && f.Kind == FailurePanicked {
		c.PanicHandler.HandlePanic(ctx, string(kind), -1, f.Err, f.Stack)
	}
	c.settled(kind, out)
	return out
}

func (c *StrategyConfig) settled(kind StrategyKind, out Outcome) {
	c.Counters.TaskExecuted()
	c.Metrics.RecordTaskDuration(kind, out.Elapsed)
	if out.Failure != nil {
		c.Metrics.RecordTaskFailure(kind, out.Failure.Kind)
		c.Logger.Debug("task failed",
			F("strategy", kind),
			F("task_id", out.TaskID),
			F("kind", out.Failure.Kind),
			F("error", out.Failure.Err))
	}
}

// =============================================================================
// Fan-out / fan-in shared by PerTaskWorker and BoundedPool
// =============================================================================

// batchCollector folds outcomes into a BatchResult in completion order.
type batchCollector struct {
	result BatchResult
}

func newBatchCollector(kind StrategyKind, size int, w Workload) *batchCollector {
	return &batchCollector{result: BatchResult{
		RunID:     uuid.NewString(),
		Strategy:  kind,
		Workload:  w.Name,
		Requested: size,
		Workers:   make([]WorkerDescriptor, 0, size),
	}}
}

func (b *batchCollector) add(o Outcome) {
	if o.Succeeded() {
		b.result.Succeeded++
		b.result.Workers = append(b.result.Workers, o.Worker)
		if o.Recovered {
			b.result.Recovered++
		}
		return
	}
	b.result.Failed++
	if b.result.Failures == nil {
		b.result.Failures = make(map[FailureKind]int)
	}
	kind := FailureSimulated
	if o.Failure != nil {
		kind = o.Failure.Kind
	}
	b.result.Failures[kind]++
	if kind == FailureCancelled {
		b.result.Cancelled = true
	}
}

// dispatchBatch fans size units out through sp and fans every outcome back in.
// It never returns early on a task failure.
func dispatchBatch(ctx context.Context, kind StrategyKind, sp Spawner, size int, w Workload, cfg *StrategyConfig) (BatchResult, error) {
	if err := cfg.checkBatchSize(size); err != nil {
		return BatchResult{}, err
	}
	if err := sp.Available(); err != nil {
		return BatchResult{}, strategyUnavailable(kind, err)
	}

	collector := newBatchCollector(kind, size, w)
	results := make(chan Outcome, size)

	start := time.Now()
	for i := range size {
		unit := NewTaskUnit(i, w)
		err := sp.Spawn(ctx, func(ctx context.Context) {
			results <- cfg.execute(ctx, kind, unit)
		})
		if err != nil {
			out := unit.Abandon(FailureInterrupted, err)
			cfg.settled(kind, out)
			results <- out
		}
	}
	for range size {
		collector.add(<-results)
	}
	collector.result.Elapsed = time.Since(start)

	cfg.Metrics.RecordBatch(collector.result)
	return collector.result, nil
}
