package core

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// StreamState tracks a StreamRun through
// NotStarted -> Dispatching -> AllSettled -> Closed, or Aborted.
type StreamState int32

const (
	StreamNotStarted StreamState = iota
	StreamDispatching
	StreamAllSettled
	StreamClosed
	StreamAborted
)

func (s StreamState) String() string {
	switch s {
	case StreamNotStarted:
		return "not_started"
	case StreamDispatching:
		return "dispatching"
	case StreamAllSettled:
		return "all_settled"
	case StreamClosed:
		return "closed"
	case StreamAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s StreamState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StreamState) UnmarshalText(text []byte) error {
	for c := StreamNotStarted; c <= StreamAborted; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown stream state %q", text)
}

// RecoveryPolicy decides what a failed task looks like to the stream consumer.
type RecoveryPolicy struct {
	recover     bool
	placeholder string
}

// RecoverWith turns a simulated or panicked failure of an executed task into a
// success carrying placeholder. Interrupted and cancelled tasks stay failed.
func RecoverWith(placeholder string) RecoveryPolicy {
	return RecoveryPolicy{recover: true, placeholder: placeholder}
}

// Propagate passes failures through unchanged.
func Propagate() RecoveryPolicy {
	return RecoveryPolicy{}
}

// apply only recovers tasks that reached a worker, so a recovered success still
// carries a worker descriptor.
func (p RecoveryPolicy) apply(out Outcome) Outcome {
	if !p.recover || out.Succeeded() || out.Worker.IsZero() {
		return out
	}
	if f := out.Failure; f != nil && (f.Kind == FailureInterrupted || f.Kind == FailureCancelled) {
		return out
	}
	out.State = OutcomeSucceeded
	out.Value = p.placeholder
	out.Failure = nil
	out.Recovered = true
	return out
}

// =============================================================================
// StreamDispatcher
// =============================================================================

// StreamDispatcher fans a range of task indices out onto a Spawner and yields the
// outcomes back one by one in completion order.
type StreamDispatcher struct {
	substrate Spawner
	cfg       *StrategyConfig
}

var _ ExecutionStrategy = (*StreamDispatcher)(nil)

// NewStreamDispatcher uses substrate (usually a PerTaskWorker) to execute tasks.
func NewStreamDispatcher(substrate Spawner, cfg *StrategyConfig) *StreamDispatcher {
	return &StreamDispatcher{substrate: substrate, cfg: normalizeStrategyConfig(cfg)}
}

func (d *StreamDispatcher) Kind() StrategyKind { return StrategyStreamDispatcher }

// Run drains a propagate-policy stream into a BatchResult.
func (d *StreamDispatcher) Run(ctx context.Context, size int, w Workload) (BatchResult, error) {
	run, err := d.Stream(ctx, size, w, Propagate())
	if err != nil {
		return BatchResult{}, err
	}
	return run.Collect()
}

// Stream prepares a lazy run of size tasks. Nothing is dispatched until the
// outcomes are iterated. Each call returns an independent run.
func (d *StreamDispatcher) Stream(ctx context.Context, size int, w Workload, policy RecoveryPolicy) (*StreamRun, error) {
	if err := d.cfg.checkBatchSize(size); err != nil {
		return nil, err
	}
	run := &StreamRun{
		d:         d,
		ctx:       ctx,
		size:      size,
		workload:  w,
		policy:    policy,
		collector: newBatchCollector(d.Kind(), size, w),
	}
	if err := d.substrate.Available(); err != nil {
		run.abort(err)
		return run, run.err
	}
	return run, nil
}

// StreamRun is a single-use sequence of outcomes.
type StreamRun struct {
	d        *StreamDispatcher
	ctx      context.Context
	size     int
	workload Workload
	policy   RecoveryPolicy

	state     atomic.Int32
	collector *batchCollector
	err       error
}

func (r *StreamRun) State() StreamState { return StreamState(r.state.Load()) }

// Err is non-nil once the run has been aborted.
func (r *StreamRun) Err() error { return r.err }

func (r *StreamRun) abort(err error) {
	r.err = strategyUnavailable(r.d.Kind(), err)
	r.state.Store(int32(StreamAborted))
}

// Outcomes dispatches every task and yields outcomes as they settle. Breaking out
// of the loop cancels the remaining tasks; they still settle before the iterator
// returns. A second iteration yields nothing.
func (r *StreamRun) Outcomes() iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		if !r.state.CompareAndSwap(int32(StreamNotStarted), int32(StreamDispatching)) {
			return
		}
		if err := r.d.substrate.Available(); err != nil {
			r.abort(err)
			return
		}

		kind := r.d.Kind()
		cfg := r.d.cfg
		ctx, cancel := context.WithCancelCause(r.ctx)
		defer cancel(nil)

		results := make(chan Outcome, r.size)
		start := time.Now()
		for i := range r.size {
			unit := NewTaskUnit(i, r.workload)
			err := r.d.substrate.Spawn(ctx, func(ctx context.Context) {
				results <- cfg.execute(ctx, kind, unit)
			})
			if err != nil {
				out := unit.Abandon(FailureInterrupted, err)
				cfg.settled(kind, out)
				results <- out
			}
		}

		consuming := true
		for range r.size {
			out := r.policy.apply(<-results)
			r.collector.add(out)
			if consuming && !yield(out) {
				consuming = false
				cancel(ErrCancelled)
			}
		}
		r.collector.result.Elapsed = time.Since(start)
		cfg.Metrics.RecordBatch(r.collector.result)

		if consuming {
			r.state.Store(int32(StreamAllSettled))
		} else {
			r.state.Store(int32(StreamClosed))
		}
	}
}

// Collect consumes the remaining outcomes and returns the folded result.
func (r *StreamRun) Collect() (BatchResult, error) {
	for range r.Outcomes() {
	}
	if r.State() == StreamAborted {
		return BatchResult{}, r.err
	}
	return r.collector.result, nil
}

// Close releases the run. It does not wait for anything.
func (r *StreamRun) Close() {
	r.state.CompareAndSwap(int32(StreamAllSettled), int32(StreamClosed))
	r.state.CompareAndSwap(int32(StreamNotStarted), int32(StreamClosed))
}

// =============================================================================
// Single calls and composition
// =============================================================================

// Call runs fn once on the substrate. With RecoverWith, any failure of fn
// (error or panic) becomes the placeholder and Call returns a nil error.
func (d *StreamDispatcher) Call(ctx context.Context, fn func(ctx context.Context) (string, error), policy RecoveryPolicy) (string, Outcome, error) {
	w := Workload{Name: "call", Body: func(ctx context.Context, _ int) (string, error) {
		return fn(ctx)
	}}
	run, err := d.Stream(ctx, 1, w, policy)
	if err != nil {
		return "", Outcome{}, err
	}
	var out Outcome
	for o := range run.Outcomes() {
		out = o
	}
	run.Close()
	if run.State() == StreamAborted {
		return "", Outcome{}, run.Err()
	}
	if !out.Succeeded() {
		return "", out, out.Failure
	}
	return out.Value, out, nil
}

// Pipeline is one branch of a Join.
type Pipeline struct {
	Name     string
	Strategy ExecutionStrategy
	Size     int
	Workload Workload
}

// PipelineResult pairs a pipeline name with its batch.
type PipelineResult struct {
	Name   string      `json:"name"`
	Result BatchResult `json:"result"`
}

// JoinResult is the combined record of a barrier join. Elapsed runs from dispatch
// of the first pipeline until the last one settled.
type JoinResult struct {
	Pipelines []PipelineResult `json:"pipelines"`
	Elapsed   time.Duration    `json:"elapsedNanos"`
}

func (j JoinResult) ElapsedMillis() int64 { return j.Elapsed.Milliseconds() }

func (j JoinResult) String() string {
	parts := make([]string, 0, len(j.Pipelines))
	for _, p := range j.Pipelines {
		parts = append(parts, fmt.Sprintf("%s completed %d tasks", p.Name, p.Result.Succeeded))
	}
	return strings.Join(parts, ", ")
}

// Join runs every pipeline concurrently and combines the results only after all
// of them have settled. A batch-level error in any pipeline fails the join.
func (d *StreamDispatcher) Join(ctx context.Context, pipelines ...Pipeline) (JoinResult, error) {
	for _, p := range pipelines {
		if p.Strategy == nil {
			return JoinResult{}, fmt.Errorf("%w: pipeline %q has no strategy", ErrStrategyUnavailable, p.Name)
		}
	}

	results := make([]PipelineResult, len(pipelines))
	g, gctx := errgroup.WithContext(ctx)

	start := time.Now()
	for i, p := range pipelines {
		g.Go(func() error {
			res, err := p.Strategy.Run(gctx, p.Size, p.Workload)
			if err != nil {
				return fmt.Errorf("pipeline %s: %w", p.Name, err)
			}
			results[i] = PipelineResult{Name: p.Name, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Pipelines: results, Elapsed: time.Since(start)}, nil
}

// ServiceCall is a named simulated remote call.
type ServiceCall struct {
	Name  string
	Delay time.Duration
}

// SequentialResult summarizes calls made one after another on one worker.
type SequentialResult struct {
	Responses []string         `json:"responses"`
	Worker    WorkerDescriptor `json:"worker"`
	Elapsed   time.Duration    `json:"elapsedNanos"`
}

func (s SequentialResult) String() string {
	return fmt.Sprintf("Sequential calls completed: %s on worker: %s",
		strings.Join(s.Responses, " -> "), s.Worker.Name)
}

// Sequential runs calls in order on a single worker from the substrate.
func (d *StreamDispatcher) Sequential(ctx context.Context, calls ...ServiceCall) (SequentialResult, error) {
	var res SequentialResult
	start := time.Now()
	_, out, err := d.Call(ctx, func(ctx context.Context) (string, error) {
		for _, c := range calls {
			if err := sleepContext(ctx, c.Delay); err != nil {
				return "", err
			}
			res.Responses = append(res.Responses, fmt.Sprintf("%s response (%dms)", c.Name, c.Delay.Milliseconds()))
		}
		return strings.Join(res.Responses, " -> "), nil
	}, Propagate())
	res.Elapsed = time.Since(start)
	res.Worker = out.Worker
	if err != nil {
		return res, err
	}
	return res, nil
}
