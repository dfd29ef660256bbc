package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidBatchSize is returned before dispatch when a batch size is negative
	// or above the configured limit.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrStrategyUnavailable means the strategy could not accept a batch at all.
	ErrStrategyUnavailable = errors.New("strategy unavailable")

	// ErrInterrupted is the cancellation cause used when a worker is torn down
	// underneath a running task (pool shutdown).
	ErrInterrupted = errors.New("task interrupted")

	// ErrCancelled is reported for tasks whose batch context was cancelled.
	ErrCancelled = errors.New("task cancelled")

	// ErrSimulated is reported for injected workload faults.
	ErrSimulated = errors.New("simulated error")

	// ErrPoolShutdown is returned when posting to a stopped thread pool.
	ErrPoolShutdown = errors.New("thread pool is shut down")

	// ErrUnknownWorkload is returned for a workload name with no preset.
	ErrUnknownWorkload = errors.New("unknown workload")
)

// FailureKind classifies a per-task failure.
type FailureKind int

const (
	FailureInterrupted FailureKind = iota
	FailureCancelled
	FailureSimulated
	FailurePanicked
)

func (k FailureKind) String() string {
	switch k {
	case FailureInterrupted:
		return "interrupted"
	case FailureCancelled:
		return "cancelled"
	case FailureSimulated:
		return "simulated_error"
	case FailurePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// MarshalText lets FailureKind be used as a JSON map key.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *FailureKind) UnmarshalText(text []byte) error {
	for _, candidate := range []FailureKind{FailureInterrupted, FailureCancelled, FailureSimulated, FailurePanicked} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown failure kind %q", text)
}

// TaskFailure is the data form of a per-task error. It never escapes a batch as
// an error return; it is folded into BatchResult.Failed instead.
type TaskFailure struct {
	TaskID int
	Kind   FailureKind
	Err    error
	Stack  []byte // only for FailurePanicked
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("task %d %s: %v", f.TaskID, f.Kind, f.Err)
}

func (f *TaskFailure) Unwrap() error {
	return f.Err
}

// failureFromContext maps a done context onto Interrupted or Cancelled using its cause.
func failureFromContext(taskID int, ctx context.Context) *TaskFailure {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	if errors.Is(cause, ErrInterrupted) {
		return &TaskFailure{TaskID: taskID, Kind: FailureInterrupted, Err: cause}
	}
	return &TaskFailure{TaskID: taskID, Kind: FailureCancelled, Err: fmt.Errorf("%w: %w", ErrCancelled, cause)}
}

func strategyUnavailable(kind StrategyKind, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStrategyUnavailable, kind, err)
}
