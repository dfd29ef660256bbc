package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, poolSize int) (*Engine, *StrategyConfig) {
	t.Helper()
	cfg := DefaultStrategyConfig()
	perTask := NewPerTaskWorker(cfg)
	e := NewEngine(cfg,
		perTask,
		NewBoundedPool(newTestPool(t, poolSize), cfg),
		NewStreamDispatcher(perTask, cfg),
	)
	return e, cfg
}

// TestEngine_Compare verifies a sequential comparison
// Given: Per-task and bounded strategies, a pool of 5 and 50 tasks of 20ms
// When: Compare runs both
// Then: Both settle all tasks and the bounded pool is slower
func TestEngine_Compare(t *testing.T) {
	// Arrange
	e, cfg := newTestEngine(t, 5)
	w := WorkloadGeneric.WithDelay(20 * time.Millisecond)
	before := cfg.Counters.TasksExecuted()

	// Act
	results, err := e.CompareWorkload(context.Background(),
		[]StrategyKind{StrategyPerTaskWorker, StrategyBoundedPool}, 50, w)

	// Assert
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	perTask, bounded := results[StrategyPerTaskWorker], results[StrategyBoundedPool]
	if perTask.Succeeded != 50 || bounded.Succeeded != 50 {
		t.Errorf("succeeded = %d / %d", perTask.Succeeded, bounded.Succeeded)
	}
	if bounded.Elapsed < 10*w.Delay {
		t.Errorf("bounded elapsed %v, want >= %v", bounded.Elapsed, 10*w.Delay)
	}
	if bounded.Elapsed <= perTask.Elapsed {
		t.Errorf("bounded %v should be slower than per-task %v", bounded.Elapsed, perTask.Elapsed)
	}
	if got := cfg.Counters.TasksExecuted() - before; got != 100 {
		t.Errorf("tasks executed grew by %d, want 100", got)
	}
}

func TestEngine_CompareAllRegistered(t *testing.T) {
	e, _ := newTestEngine(t, 2)

	results, err := e.CompareWorkload(context.Background(), nil, 3, WorkloadGeneric.WithDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	for _, kind := range []StrategyKind{StrategyPerTaskWorker, StrategyBoundedPool, StrategyStreamDispatcher} {
		if results[kind].Succeeded != 3 {
			t.Errorf("%s succeeded = %d, want 3", kind, results[kind].Succeeded)
		}
	}
	if kinds := e.Kinds(); len(kinds) != 3 || kinds[0] != StrategyPerTaskWorker {
		t.Errorf("Kinds = %v", kinds)
	}
}

// TestEngine_UnknownStrategyRunsNothing verifies resolution happens first
// Given: An engine without a stream strategy
// When: Compare names per-task and stream
// Then: It fails with ErrStrategyUnavailable and no task runs
func TestEngine_UnknownStrategyRunsNothing(t *testing.T) {
	// Arrange
	cfg := DefaultStrategyConfig()
	e := NewEngine(cfg, NewPerTaskWorker(cfg))

	// Act
	_, err := e.Compare(context.Background(), []StrategyKind{StrategyPerTaskWorker, StrategyStreamDispatcher}, 5)

	// Assert
	if !errors.Is(err, ErrStrategyUnavailable) {
		t.Fatalf("err = %v, want ErrStrategyUnavailable", err)
	}
	if cfg.Counters.TasksExecuted() != 0 {
		t.Errorf("tasks executed = %d, want 0", cfg.Counters.TasksExecuted())
	}
}

func TestEngine_InvalidSize(t *testing.T) {
	e, cfg := newTestEngine(t, 1)

	if _, err := e.Compare(context.Background(), nil, -1); !errors.Is(err, ErrInvalidBatchSize) {
		t.Errorf("Compare err = %v", err)
	}
	if _, err := e.RunSingle(context.Background(), StrategyPerTaskWorker, -5); !errors.Is(err, ErrInvalidBatchSize) {
		t.Errorf("RunSingle err = %v", err)
	}
	if cfg.Counters.TasksExecuted() != 0 {
		t.Error("invalid sizes must not run anything")
	}
}

// TestEngine_EmptyBatch verifies a zero-size batch on every strategy
// Given: An engine with all three strategies registered
// When: RunSingle is called with size 0 for each kind
// Then: Each result is 0/0 with no workers and zero throughput
func TestEngine_EmptyBatch(t *testing.T) {
	e, cfg := newTestEngine(t, 2)

	for _, kind := range []StrategyKind{StrategyPerTaskWorker, StrategyBoundedPool, StrategyStreamDispatcher} {
		t.Run(string(kind), func(t *testing.T) {
			res, err := e.RunSingle(context.Background(), kind, 0)
			if err != nil {
				t.Fatalf("RunSingle failed: %v", err)
			}
			if res.Strategy != kind || res.Requested != 0 {
				t.Errorf("result = %+v", res)
			}
			if res.Succeeded != 0 || res.Failed != 0 || len(res.Workers) != 0 {
				t.Errorf("succeeded=%d failed=%d workers=%d, want all 0", res.Succeeded, res.Failed, len(res.Workers))
			}
			if res.TasksPerSecond() != 0 {
				t.Errorf("tasksPerSecond = %v, want 0", res.TasksPerSecond())
			}
		})
	}
	if cfg.Counters.TasksExecuted() != 0 {
		t.Errorf("tasks executed = %d, want 0", cfg.Counters.TasksExecuted())
	}
}

// TestEngine_MaxBatchSize verifies the batch size limit
// Given: An engine whose config caps batches at 3 tasks
// When: Batches of 4 are requested through RunSingle and Compare
// Then: Both fail with ErrInvalidBatchSize before any task runs
func TestEngine_MaxBatchSize(t *testing.T) {
	cfg := normalizeStrategyConfig(&StrategyConfig{MaxBatchSize: 3})
	perTask := NewPerTaskWorker(cfg)
	e := NewEngine(cfg, perTask, NewStreamDispatcher(perTask, cfg))
	ctx := context.Background()

	if _, err := e.RunSingle(ctx, StrategyStreamDispatcher, 4); !errors.Is(err, ErrInvalidBatchSize) {
		t.Errorf("RunSingle err = %v", err)
	}
	if _, err := e.Compare(ctx, nil, 4); !errors.Is(err, ErrInvalidBatchSize) {
		t.Errorf("Compare err = %v", err)
	}
	if _, err := perTask.Run(ctx, 4, WorkloadGeneric); !errors.Is(err, ErrInvalidBatchSize) {
		t.Errorf("direct Run err = %v", err)
	}
	if cfg.Counters.TasksExecuted() != 0 {
		t.Errorf("tasks executed = %d, want 0", cfg.Counters.TasksExecuted())
	}

	res, err := e.RunWorkload(ctx, StrategyPerTaskWorker, 3, WorkloadGeneric.WithDelay(time.Millisecond))
	if err != nil || res.Succeeded != 3 {
		t.Errorf("batch at the limit: %+v, %v", res, err)
	}
}

func TestEngine_RunWorkload(t *testing.T) {
	e, _ := newTestEngine(t, 2)

	res, err := e.RunWorkload(context.Background(), StrategyBoundedPool, 4, WorkloadReactive)
	if err != nil {
		t.Fatalf("RunWorkload failed: %v", err)
	}
	if res.Workload != "reactive" || res.Succeeded != 4 {
		t.Errorf("result = %s", res)
	}

	if _, err := e.Strategy("nope"); !errors.Is(err, ErrStrategyUnavailable) {
		t.Errorf("Strategy err = %v", err)
	}
}

func TestEngine_RegisterReplaces(t *testing.T) {
	cfg := DefaultStrategyConfig()
	e := NewEngine(cfg, NewPerTaskWorker(cfg))
	replacement := NewPerTaskWorker(cfg)

	e.Register(replacement)

	if kinds := e.Kinds(); len(kinds) != 1 {
		t.Errorf("Kinds = %v, want one entry", kinds)
	}
	if s, _ := e.Strategy(StrategyPerTaskWorker); s != replacement {
		t.Error("Register should replace the existing strategy")
	}
}

func TestEngine_LogsBatches(t *testing.T) {
	logger := &recordingLogger{}
	cfg := &StrategyConfig{Logger: logger}
	e := NewEngine(cfg, NewPerTaskWorker(cfg))

	if _, err := e.RunWorkload(context.Background(), StrategyPerTaskWorker, 1, WorkloadGeneric.WithDelay(0)); err != nil {
		t.Fatalf("RunWorkload failed: %v", err)
	}

	var settled bool
	for _, entry := range logger.Entries() {
		if entry.level == "INFO" && entry.msg == "batch settled" {
			settled = true
		}
	}
	if !settled {
		t.Errorf("entries = %+v, want an INFO 'batch settled'", logger.Entries())
	}
}
