package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

// TestPanicHandler is a mock panic handler for testing
type TestPanicHandler struct {
	mu    sync.Mutex
	calls []PanicCall
}

type PanicCall struct {
	RunnerName string
	WorkerID   int
	PanicInfo  any
}

func NewTestPanicHandler() *TestPanicHandler {
	return &TestPanicHandler{calls: make([]PanicCall, 0)}
}

func (h *TestPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, PanicCall{RunnerName: runnerName, WorkerID: workerID, PanicInfo: panicInfo})
}

func (h *TestPanicHandler) GetCalls() []PanicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PanicCall(nil), h.calls...)
}

func (h *TestPanicHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called for a pool worker and a lightweight worker
	ctx := context.Background()
	handler.HandlePanic(ctx, "test-pool", 42, "test panic", []byte("stack trace"))
	handler.HandlePanic(ctx, "per_task_worker", -1, "test panic", []byte("stack trace"))

	// Then: No panic should occur (handler should not crash)
}

func TestLoggerPanicHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := &LoggerPanicHandler{Logger: logger}

	handler.HandlePanic(context.Background(), "pool", 3, "boom", []byte("stack"))

	entries := logger.Entries()
	if len(entries) != 1 || entries[0].level != "ERROR" || entries[0].msg != "task panicked" {
		t.Fatalf("entries = %+v, want one ERROR 'task panicked'", entries)
	}
}

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu             sync.Mutex
	taskDurations  []TaskDurationMetric
	taskFailures   []TaskFailureMetric
	batches        []BatchResult
	queueDepths    []QueueDepthMetric
	taskRejections []TaskRejectionMetric
}

type TaskDurationMetric struct {
	Strategy StrategyKind
	Duration time.Duration
}

type TaskFailureMetric struct {
	Strategy StrategyKind
	Kind     FailureKind
}

type QueueDepthMetric struct {
	RunnerName string
	Depth      int
}

type TaskRejectionMetric struct {
	RunnerName string
	Reason     string
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{}
}

func (m *TestMetrics) RecordTaskDuration(strategy StrategyKind, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskDurations = append(m.taskDurations, TaskDurationMetric{Strategy: strategy, Duration: duration})
}

func (m *TestMetrics) RecordTaskFailure(strategy StrategyKind, kind FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskFailures = append(m.taskFailures, TaskFailureMetric{Strategy: strategy, Kind: kind})
}

func (m *TestMetrics) RecordBatch(result BatchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, result)
}

func (m *TestMetrics) RecordQueueDepth(runnerName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepths = append(m.queueDepths, QueueDepthMetric{RunnerName: runnerName, Depth: depth})
}

func (m *TestMetrics) RecordTaskRejected(runnerName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskRejections = append(m.taskRejections, TaskRejectionMetric{RunnerName: runnerName, Reason: reason})
}

func (m *TestMetrics) GetTaskDurations() []TaskDurationMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaskDurationMetric(nil), m.taskDurations...)
}

func (m *TestMetrics) GetTaskFailures() []TaskFailureMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaskFailureMetric(nil), m.taskFailures...)
}

func (m *TestMetrics) GetBatches() []BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BatchResult(nil), m.batches...)
}

func (m *TestMetrics) GetQueueDepths() []QueueDepthMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]QueueDepthMetric(nil), m.queueDepths...)
}

func (m *TestMetrics) GetTaskRejections() []TaskRejectionMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaskRejectionMetric(nil), m.taskRejections...)
}

func TestNilMetrics(t *testing.T) {
	// Given: A NilMetrics instance
	metrics := &NilMetrics{}

	// When: All metric methods are called
	metrics.RecordTaskDuration(StrategyBoundedPool, time.Second)
	metrics.RecordTaskFailure(StrategyBoundedPool, FailureSimulated)
	metrics.RecordBatch(BatchResult{})
	metrics.RecordQueueDepth("test", 10)
	metrics.RecordTaskRejected("test", "shutdown")

	// Then: No panic should occur (no-op implementation)
}

// =============================================================================
// Test RejectedTaskHandler
// =============================================================================

// TestRejectedTaskHandler is a mock rejected task handler for testing
type TestRejectedTaskHandler struct {
	mu         sync.Mutex
	rejections []TaskRejection
}

type TaskRejection struct {
	RunnerName string
	Reason     string
}

func NewTestRejectedTaskHandler() *TestRejectedTaskHandler {
	return &TestRejectedTaskHandler{}
}

func (h *TestRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejections = append(h.rejections, TaskRejection{RunnerName: runnerName, Reason: reason})
}

func (h *TestRejectedTaskHandler) GetRejections() []TaskRejection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TaskRejection(nil), h.rejections...)
}

func (h *TestRejectedTaskHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rejections)
}

func TestLoggerRejectedTaskHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := &LoggerRejectedTaskHandler{Logger: logger}

	handler.HandleRejectedTask("pool", "shutting down")

	entries := logger.Entries()
	if len(entries) != 1 || entries[0].level != "WARN" {
		t.Fatalf("entries = %+v, want one WARN entry", entries)
	}
}

// =============================================================================
// Test TaskSchedulerConfig
// =============================================================================

func TestDefaultTaskSchedulerConfig(t *testing.T) {
	// Given: Default config
	config := DefaultTaskSchedulerConfig()

	// Then: All handlers should be the defaults
	if _, ok := config.PanicHandler.(*DefaultPanicHandler); !ok {
		t.Errorf("PanicHandler should be *DefaultPanicHandler, got %T", config.PanicHandler)
	}
	if _, ok := config.Metrics.(*NilMetrics); !ok {
		t.Errorf("Metrics should be *NilMetrics, got %T", config.Metrics)
	}
	if _, ok := config.RejectedTaskHandler.(*DefaultRejectedTaskHandler); !ok {
		t.Errorf("RejectedTaskHandler should be *DefaultRejectedTaskHandler, got %T", config.RejectedTaskHandler)
	}
}

func TestTaskScheduler_RejectedTask(t *testing.T) {
	// Given: A scheduler with custom handlers
	metrics := NewTestMetrics()
	rejectedHandler := NewTestRejectedTaskHandler()

	scheduler := NewFIFOTaskSchedulerWithConfig("rejecting", 2, &TaskSchedulerConfig{
		Metrics:             metrics,
		RejectedTaskHandler: rejectedHandler,
	})

	// When: Scheduler is shut down and a task is posted after shutdown
	scheduler.Shutdown()
	err := scheduler.PostInternal(func(_ context.Context) {
		t.Error("Task should not be executed after shutdown")
	}, DefaultTaskTraits())

	// Then: Rejection handlers should be called
	if !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("err = %v, want ErrPoolShutdown", err)
	}
	if got := metrics.GetTaskRejections(); len(got) != 1 || got[0].Reason != "shutting down" {
		t.Errorf("metric rejections = %+v, want one 'shutting down'", got)
	}
	if got := rejectedHandler.GetRejections(); len(got) != 1 || got[0].RunnerName != "rejecting" {
		t.Errorf("handler rejections = %+v, want one from 'rejecting'", got)
	}
}

func TestTaskScheduler_QueueDepthMetrics(t *testing.T) {
	metrics := NewTestMetrics()
	scheduler := NewFIFOTaskSchedulerWithConfig("depth", 1, &TaskSchedulerConfig{Metrics: metrics})

	scheduler.PostInternal(func(_ context.Context) {}, DefaultTaskTraits())
	scheduler.PostInternal(func(_ context.Context) {}, DefaultTaskTraits())
	scheduler.Shutdown()

	depths := metrics.GetQueueDepths()
	if len(depths) != 3 {
		t.Fatalf("queue depth samples = %d, want 3", len(depths))
	}
	if depths[1].Depth != 2 || depths[2].Depth != 0 {
		t.Errorf("depths = %+v, want 1,2,0", depths)
	}
}

// =============================================================================
// Shared test doubles
// =============================================================================

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.add("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.add("INFO", msg) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.add("WARN", msg) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.add("ERROR", msg) }

func (l *recordingLogger) Entries() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

// testPool is a minimal ThreadPool: n goroutines pulling from a TaskScheduler.
type testPool struct {
	id        string
	scheduler *TaskScheduler
	n         int

	mu      sync.Mutex
	running bool
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
}

func newTestPool(t *testing.T, n int) *testPool {
	t.Helper()
	p := &testPool{id: "test-pool", n: n, scheduler: NewFIFOTaskSchedulerWithConfig("test-pool", n, &TaskSchedulerConfig{
		RejectedTaskHandler: NewTestRejectedTaskHandler(),
	})}
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func (p *testPool) PostInternal(task Task, traits TaskTraits) error {
	return p.scheduler.PostInternal(task, traits)
}

func (p *testPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancelCause(ctx)
	p.running = true
	for i := range p.n {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			wctx := WithWorker(ctx, WorkerDescriptor{Name: fmt.Sprintf("%s-worker-%d", p.id, i)})
			for {
				task, ok := p.scheduler.GetWork(ctx.Done())
				if !ok {
					return
				}
				p.scheduler.OnTaskStart()
				task(wctx)
				p.scheduler.OnTaskEnd()
			}
		}()
	}
}

func (p *testPool) Stop() {
	leftover := p.scheduler.Shutdown()
	p.mu.Lock()
	if p.running {
		p.cancel(ErrInterrupted)
		p.running = false
	}
	p.mu.Unlock()
	p.wg.Wait()

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrInterrupted)
	for _, item := range leftover {
		item.Task(ctx)
	}
}

func (p *testPool) ID() string { return p.id }

func (p *testPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *testPool) WorkerCount() int     { return p.n }
func (p *testPool) QueuedTaskCount() int { return p.scheduler.QueuedTaskCount() }
func (p *testPool) ActiveTaskCount() int { return p.scheduler.ActiveTaskCount() }

func (p *testPool) Stats() PoolStats {
	return PoolStats{ID: p.id, Workers: p.n, Queued: p.QueuedTaskCount(), Active: p.ActiveTaskCount(), Running: p.IsRunning()}
}

// fakeSource is a ResourceSnapshotSource with fixed figures.
type fakeSource struct {
	lightweight int
	workers     OSWorkerStats
	mem         MemoryStats
	processors  int
}

func (s fakeSource) CurrentLightweightWorkerEstimate() int { return s.lightweight }
func (s fakeSource) CurrentOSWorkerStats() OSWorkerStats   { return s.workers }
func (s fakeSource) MemoryStats() MemoryStats              { return s.mem }
func (s fakeSource) ProcessorCount() int                   { return s.processors }

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
