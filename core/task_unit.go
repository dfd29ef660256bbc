package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Workload: presets for simulated blocking I/O
// =============================================================================

// Workload describes what every TaskUnit of a batch does.
type Workload struct {
	Name  string
	Delay time.Duration

	// FailureRate in [0,1] makes a task fail with FailureSimulated after its delay.
	FailureRate float64

	// Body, if set, runs after the delay and supplies the task's value.
	// A returned error becomes FailureSimulated; a panic becomes FailurePanicked.
	Body func(ctx context.Context, taskID int) (string, error)
}

var (
	WorkloadGeneric          = Workload{Name: "generic", Delay: 100 * time.Millisecond}
	WorkloadBlocking         = Workload{Name: "blocking", Delay: 1000 * time.Millisecond}
	WorkloadParallel         = Workload{Name: "parallel", Delay: 500 * time.Millisecond}
	WorkloadReactive         = Workload{Name: "reactive", Delay: 10 * time.Millisecond}
	WorkloadSchedulerCompare = Workload{Name: "scheduler_compare", Delay: 200 * time.Millisecond}
)

// WorkloadByName resolves a preset by its name.
func WorkloadByName(name string) (Workload, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", WorkloadGeneric.Name:
		return WorkloadGeneric, true
	case WorkloadBlocking.Name:
		return WorkloadBlocking, true
	case WorkloadParallel.Name:
		return WorkloadParallel, true
	case WorkloadReactive.Name:
		return WorkloadReactive, true
	case WorkloadSchedulerCompare.Name:
		return WorkloadSchedulerCompare, true
	default:
		return Workload{}, false
	}
}

// WithDelay returns a copy of w using the given delay.
func (w Workload) WithDelay(d time.Duration) Workload {
	w.Delay = d
	return w
}

// =============================================================================
// Outcome
// =============================================================================

type OutcomeState int

const (
	OutcomePending OutcomeState = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s OutcomeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OutcomeState) UnmarshalText(text []byte) error {
	for _, candidate := range []OutcomeState{OutcomePending, OutcomeSucceeded, OutcomeFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome state %q", text)
}

// Outcome is the settled result of one TaskUnit.
// Worker is set whenever a worker actually picked the task up, even on failure.
type Outcome struct {
	TaskID    int              `json:"taskId"`
	State     OutcomeState     `json:"state"`
	Worker    WorkerDescriptor `json:"worker"`
	Value     string           `json:"value,omitempty"`
	Failure   *TaskFailure     `json:"-"`
	Recovered bool             `json:"recovered,omitempty"`
	Elapsed   time.Duration    `json:"elapsedNanos"`
}

func (o Outcome) Succeeded() bool { return o.State == OutcomeSucceeded }

// FailureText is the failure message, empty for successes.
func (o Outcome) FailureText() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Error()
}

// =============================================================================
// TaskUnit
// =============================================================================

// TaskUnit is one unit of simulated blocking work. Its outcome is written exactly once.
type TaskUnit struct {
	ID       int
	Workload Workload

	once    sync.Once
	mu      sync.RWMutex
	outcome Outcome
}

func NewTaskUnit(id int, w Workload) *TaskUnit {
	return &TaskUnit{ID: id, Workload: w, outcome: Outcome{TaskID: id}}
}

// Execute suspends the calling worker for the configured delay and captures the
// executing worker from ctx. Subsequent calls return the first outcome.
func (u *TaskUnit) Execute(ctx context.Context) Outcome {
	u.once.Do(func() {
		u.setOutcome(u.run(ctx))
	})
	return u.Outcome()
}

// Abandon settles a unit that never reached a worker.
func (u *TaskUnit) Abandon(kind FailureKind, err error) Outcome {
	u.once.Do(func() {
		u.setOutcome(Outcome{
			TaskID:  u.ID,
			State:   OutcomeFailed,
			Failure: &TaskFailure{TaskID: u.ID, Kind: kind, Err: err},
		})
	})
	return u.Outcome()
}

// Outcome returns the current outcome; State is OutcomePending until settled.
// It is safe to call while another goroutine is executing the unit.
func (u *TaskUnit) Outcome() Outcome {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.outcome
}

func (u *TaskUnit) setOutcome(out Outcome) {
	u.mu.Lock()
	u.outcome = out
	u.mu.Unlock()
}

func (u *TaskUnit) run(ctx context.Context) (out Outcome) {
	start := time.Now()
	worker, _ := CurrentWorker(ctx)
	out = Outcome{TaskID: u.ID, Worker: worker}

	defer func() {
		if r := recover(); r != nil {
			out.State = OutcomeFailed
			out.Value = ""
			out.Failure = &TaskFailure{TaskID: u.ID, Kind: FailurePanicked, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
		out.Elapsed = time.Since(start)
	}()

	if err := sleepContext(ctx, u.Workload.Delay); err != nil {
		out.State = OutcomeFailed
		out.Failure = failureFromContext(u.ID, ctx)
		return out
	}

	if u.Workload.FailureRate > 0 && rand.Float64() < u.Workload.FailureRate {
		out.State = OutcomeFailed
		out.Failure = &TaskFailure{TaskID: u.ID, Kind: FailureSimulated, Err: ErrSimulated}
		return out
	}

	if u.Workload.Body != nil {
		value, err := u.Workload.Body(ctx, u.ID)
		if err != nil && ctx.Err() != nil {
			out.State = OutcomeFailed
			out.Failure = failureFromContext(u.ID, ctx)
			return out
		}
		if err != nil {
			out.State = OutcomeFailed
			out.Failure = &TaskFailure{TaskID: u.ID, Kind: FailureSimulated, Err: fmt.Errorf("%w: %w", ErrSimulated, err)}
			return out
		}
		out.State = OutcomeSucceeded
		out.Value = value
		return out
	}

	out.State = OutcomeSucceeded
	out.Value = fmt.Sprintf("Task %d processed by %s", u.ID, worker)
	return out
}

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
