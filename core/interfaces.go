package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (carries the worker descriptor)
	// - runnerName: The name of the pool or strategy where the panic occurred
	// - workerID: The ID of the pool worker, -1 for lightweight workers
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, runnerName, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Runner %s] Panic: %v\nStack trace:\n%s",
			runnerName, panicInfo, stackTrace)
	}
}

// LoggerPanicHandler reports panics through a Logger.
type LoggerPanicHandler struct {
	Logger Logger
}

func (h *LoggerPanicHandler) HandlePanic(ctx context.Context, runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	h.Logger.Error("task panicked",
		F("runner", runnerName),
		F("worker_id", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting dispatch metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a settled task took, success or failure.
	RecordTaskDuration(strategy StrategyKind, duration time.Duration)

	// RecordTaskFailure records one per-task failure by kind.
	RecordTaskFailure(strategy StrategyKind, kind FailureKind)

	// RecordBatch records a fully settled batch.
	RecordBatch(result BatchResult)

	// RecordQueueDepth records the current admission queue depth of a pool.
	RecordQueueDepth(runnerName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	RecordTaskRejected(runnerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(strategy StrategyKind, duration time.Duration) {}
func (m *NilMetrics) RecordTaskFailure(strategy StrategyKind, kind FailureKind)       {}
func (m *NilMetrics) RecordBatch(result BatchResult)                                  {}
func (m *NilMetrics) RecordQueueDepth(runnerName string, depth int)                   {}
func (m *NilMetrics) RecordTaskRejected(runnerName string, reason string)             {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task is rejected by the scheduler,
// which happens once the scheduler is shutting down.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	fmt.Printf("[Runner %s] Task rejected: %s\n", runnerName, reason)
}

// LoggerRejectedTaskHandler reports rejections through a Logger.
type LoggerRejectedTaskHandler struct {
	Logger Logger
}

func (h *LoggerRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	h.Logger.Warn("task rejected", F("runner", runnerName), F("reason", reason))
}

// =============================================================================
// TaskSchedulerConfig: Configuration for TaskScheduler
// =============================================================================

// TaskSchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type TaskSchedulerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record queue metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultTaskSchedulerConfig returns a config with default handlers.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
	}
}

// =============================================================================
// ThreadPool: fixed-size set of OS-backed workers
// =============================================================================

// ThreadPool is the bounded worker set behind the BoundedPool strategy.
// Workers put their WorkerDescriptor into the context passed to each task.
type ThreadPool interface {
	PostInternal(task Task, traits TaskTraits) error

	Start(ctx context.Context)
	Stop()

	ID() string
	IsRunning() bool

	WorkerCount() int
	QueuedTaskCount() int // In queue
	ActiveTaskCount() int // Executing
}

// =============================================================================
// Spawner: execution substrate shared by the strategies
// =============================================================================

// Spawner starts a task on some worker. The task's context carries the worker's
// descriptor (see CurrentWorker) and is cancelled when either the caller's context
// or the worker is torn down.
type Spawner interface {
	// Available reports whether the substrate can accept work right now.
	Available() error

	// Spawn submits task. A non-nil error means the task will never run.
	Spawn(ctx context.Context, task Task) error
}
