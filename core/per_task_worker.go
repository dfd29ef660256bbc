package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// PerTaskWorker runs every task on its own freshly started lightweight worker.
// There is no queue and no admission control.
type PerTaskWorker struct {
	cfg     *StrategyConfig
	factory *WorkerFactory
	closed  atomic.Bool
}

var (
	_ ExecutionStrategy = (*PerTaskWorker)(nil)
	_ Spawner           = (*PerTaskWorker)(nil)
)

func NewPerTaskWorker(cfg *StrategyConfig) *PerTaskWorker {
	cfg = normalizeStrategyConfig(cfg)
	return &PerTaskWorker{
		cfg:     cfg,
		factory: NewWorkerFactory("task-worker", cfg.Counters),
	}
}

func (s *PerTaskWorker) Kind() StrategyKind { return StrategyPerTaskWorker }

// Run spawns size workers at once and waits for all of them to settle.
func (s *PerTaskWorker) Run(ctx context.Context, size int, w Workload) (BatchResult, error) {
	return dispatchBatch(ctx, s.Kind(), s, size, w, s.cfg)
}

func (s *PerTaskWorker) Available() error {
	if s.closed.Load() {
		return fmt.Errorf("per-task spawner closed")
	}
	return nil
}

// Spawn starts task on a new lightweight worker.
func (s *PerTaskWorker) Spawn(ctx context.Context, task Task) error {
	if err := s.Available(); err != nil {
		return err
	}
	return s.factory.NewWorker(task).Start(ctx)
}

// Close makes every later Run fail with ErrStrategyUnavailable. Running tasks are unaffected.
func (s *PerTaskWorker) Close() {
	s.closed.Store(true)
}
