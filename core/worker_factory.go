package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// WorkerFactory creates named lightweight workers, one goroutine each.
type WorkerFactory struct {
	prefix   string
	seq      atomic.Int64
	counters *DispatchCounters
	traits   TaskTraits
}

// NewWorkerFactory names workers "<prefix>-<n>". counters may be nil.
func NewWorkerFactory(prefix string, counters *DispatchCounters) *WorkerFactory {
	if prefix == "" {
		prefix = "worker"
	}
	return &WorkerFactory{prefix: prefix, counters: counters, traits: DefaultTaskTraits()}
}

// NewWorker returns an unstarted worker that will run task.
func (f *WorkerFactory) NewWorker(task Task) *LightweightWorker {
	n := f.seq.Add(1)
	return newLightweightWorker(fmt.Sprintf("%s-%d", f.prefix, n), f.counters, f.traits, task)
}

// Created returns how many workers this factory has handed out.
func (f *WorkerFactory) Created() int64 { return f.seq.Load() }

// LightweightWorker is a single goroutine with a stable descriptor.
type LightweightWorker struct {
	desc     WorkerDescriptor
	task     Task
	counters *DispatchCounters
	started  atomic.Bool
	done     chan struct{}
}

// NewNamedWorker creates a worker with an explicit name outside any factory.
func NewNamedWorker(name string, counters *DispatchCounters, task Task) *LightweightWorker {
	return newLightweightWorker(name, counters, DefaultTaskTraits(), task)
}

func newLightweightWorker(name string, counters *DispatchCounters, traits TaskTraits, task Task) *LightweightWorker {
	return &LightweightWorker{
		desc: WorkerDescriptor{
			Name:         name,
			Lightweight:  true,
			DaemonLike:   true,
			PriorityHint: int(traits.Priority),
		},
		task:     task,
		counters: counters,
		done:     make(chan struct{}),
	}
}

var errWorkerStarted = errors.New("worker already started")

// Start runs the task on a new goroutine. A worker can be started once.
func (w *LightweightWorker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errWorkerStarted
	}
	if w.counters != nil {
		w.counters.WorkerCreated()
	}
	go func() {
		defer close(w.done)
		w.task(WithWorker(ctx, w.desc))
	}()
	return nil
}

// Join waits for the task to return or ctx to end.
func (w *LightweightWorker) Join(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *LightweightWorker) Descriptor() WorkerDescriptor { return w.desc }

// SpawnUnit runs a single TaskUnit of w on the worker returned by newWorker and
// waits until the unit settles.
func SpawnUnit(ctx context.Context, cfg *StrategyConfig, newWorker func(Task) *LightweightWorker, w Workload) (Outcome, error) {
	cfg = normalizeStrategyConfig(cfg)
	unit := NewTaskUnit(0, w)
	done := make(chan Outcome, 1)
	worker := newWorker(func(ctx context.Context) {
		done <- cfg.execute(ctx, StrategyPerTaskWorker, unit)
	})
	if err := worker.Start(ctx); err != nil {
		return Outcome{}, strategyUnavailable(StrategyPerTaskWorker, err)
	}
	return <-done, nil
}
