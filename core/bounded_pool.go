package core

import (
	"context"
	"fmt"
)

// BoundedPool runs tasks on a fixed-size ThreadPool. Tasks beyond the pool's
// capacity wait in its FIFO admission queue.
//
// The pool is owned by this strategy; concurrent callers share its capacity.
type BoundedPool struct {
	pool   ThreadPool
	cfg    *StrategyConfig
	traits TaskTraits
}

var (
	_ ExecutionStrategy = (*BoundedPool)(nil)
	_ Spawner           = (*BoundedPool)(nil)
)

func NewBoundedPool(pool ThreadPool, cfg *StrategyConfig) *BoundedPool {
	return &BoundedPool{
		pool:   pool,
		cfg:    normalizeStrategyConfig(cfg),
		traits: BlockingTaskTraits(string(StrategyBoundedPool)),
	}
}

func (s *BoundedPool) Kind() StrategyKind { return StrategyBoundedPool }

// Capacity is the number of workers in the underlying pool.
func (s *BoundedPool) Capacity() int { return s.pool.WorkerCount() }

// Pool exposes the underlying ThreadPool.
func (s *BoundedPool) Pool() ThreadPool { return s.pool }

func (s *BoundedPool) Run(ctx context.Context, size int, w Workload) (BatchResult, error) {
	return dispatchBatch(ctx, s.Kind(), s, size, w, s.cfg)
}

func (s *BoundedPool) Available() error {
	if s.pool == nil {
		return fmt.Errorf("no thread pool configured")
	}
	if !s.pool.IsRunning() {
		return fmt.Errorf("pool %s: %w", s.pool.ID(), ErrPoolShutdown)
	}
	return nil
}

// Spawn queues task on the pool. The task sees a context that ends when either
// ctx ends or the executing worker is stopped (cause ErrInterrupted), and that
// carries the pool worker's descriptor.
func (s *BoundedPool) Spawn(ctx context.Context, task Task) error {
	return s.pool.PostInternal(func(workerCtx context.Context) {
		taskCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		stop := context.AfterFunc(workerCtx, func() {
			cancel(ErrInterrupted)
		})
		defer stop()

		if w, ok := CurrentWorker(workerCtx); ok {
			taskCtx = WithWorker(taskCtx, w)
		}
		task(taskCtx)
	}, s.traits)
}
