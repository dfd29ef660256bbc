package core

import (
	"context"
	"fmt"
)

// Task is the unit of work (Closure) handed to a Spawner or ThreadPool.
type Task func(ctx context.Context)

// =============================================================================
// TaskTraits: Define task attributes (priority, blocking behavior, etc.)
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	TaskPriorityUserBlocking
)

// String returns the label used in logs and metrics.
func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityBestEffort:
		return "best_effort"
	case TaskPriorityUserVisible:
		return "user_visible"
	case TaskPriorityUserBlocking:
		return "user_blocking"
	default:
		return "unknown"
	}
}

type TaskTraits struct {
	Priority TaskPriority
	MayBlock bool
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// BlockingTaskTraits marks simulated I/O: every TaskUnit suspends its worker.
func BlockingTaskTraits(category string) TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible, MayBlock: true, Category: category}
}

// =============================================================================
// WorkerDescriptor: Identity of the worker that executed a task
// =============================================================================

// WorkerDescriptor is an immutable snapshot of the worker executing a task.
// Lightweight is set by whichever Spawner created the worker; it is never inferred.
type WorkerDescriptor struct {
	Name         string `json:"name"`
	Lightweight  bool   `json:"isLightweight"`
	DaemonLike   bool   `json:"isDaemonLike"`
	PriorityHint int    `json:"priorityHint"`
}

// IsZero reports whether no worker was captured.
func (w WorkerDescriptor) IsZero() bool {
	return w.Name == ""
}

func (w WorkerDescriptor) String() string {
	if w.IsZero() {
		return "<no worker>"
	}
	return fmt.Sprintf("%s (Lightweight: %t)", w.Name, w.Lightweight)
}

// =============================================================================
// Context Helper
// =============================================================================
type workerKeyType struct{}

var workerKey workerKeyType

// WithWorker returns a context that carries the descriptor of the executing worker.
func WithWorker(ctx context.Context, w WorkerDescriptor) context.Context {
	return context.WithValue(ctx, workerKey, w)
}

// CurrentWorker retrieves the executing worker from context.
func CurrentWorker(ctx context.Context) (WorkerDescriptor, bool) {
	if v := ctx.Value(workerKey); v != nil {
		return v.(WorkerDescriptor), true
	}
	return WorkerDescriptor{}, false
}
