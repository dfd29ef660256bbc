package taskbench

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Swind/go-task-bench/core"
	"github.com/Swind/go-task-bench/observability/runtimestats"
)

// Workloads are the presets a Bench hands to its strategies.
type Workloads struct {
	Generic          core.Workload
	Blocking         core.Workload
	Parallel         core.Workload
	Reactive         core.Workload
	SchedulerCompare core.Workload
}

func DefaultWorkloads() Workloads {
	return Workloads{
		Generic:          core.WorkloadGeneric,
		Blocking:         core.WorkloadBlocking,
		Parallel:         core.WorkloadParallel,
		Reactive:         core.WorkloadReactive,
		SchedulerCompare: core.WorkloadSchedulerCompare,
	}
}

// ByName resolves a preset name against these workloads.
func (w Workloads) ByName(name string) (core.Workload, bool) {
	preset, ok := core.WorkloadByName(name)
	if !ok {
		return core.Workload{}, false
	}
	switch preset.Name {
	case w.Blocking.Name:
		return w.Blocking, true
	case w.Parallel.Name:
		return w.Parallel, true
	case w.Reactive.Name:
		return w.Reactive, true
	case w.SchedulerCompare.Name:
		return w.SchedulerCompare, true
	default:
		return w.Generic, true
	}
}

// Options configures New. Start from DefaultOptions; zero sizes, workloads and
// collaborators fall back to their defaults.
type Options struct {
	PoolSize     int
	LockOSThread bool
	Workloads    Workloads

	// ServiceCalls are the simulated calls of SequentialCalls.
	ServiceCalls []core.ServiceCall

	// ErrorRate is the failure probability of the ErrorHandling demo.
	ErrorRate float64

	// MaxBatchSize caps every batch; larger sizes fail with ErrInvalidBatchSize.
	MaxBatchSize int

	// AsyncDelay is the simulated processing time of AsyncOperation.
	AsyncDelay time.Duration

	Logger       core.Logger
	Metrics      core.Metrics
	PanicHandler core.PanicHandler
	Source       core.ResourceSnapshotSource
}

func DefaultOptions() Options {
	return Options{
		PoolSize:     200,
		LockOSThread: true,
		Workloads:    DefaultWorkloads(),
		ServiceCalls: []core.ServiceCall{
			{Name: "Service A", Delay: 300 * time.Millisecond},
			{Name: "Service B", Delay: 400 * time.Millisecond},
			{Name: "Service C", Delay: 200 * time.Millisecond},
		},
		ErrorRate:    0.5,
		MaxBatchSize: core.DefaultMaxBatchSize,
		AsyncDelay:   2 * time.Second,
	}
}

// Bench owns the process-wide pool, the shared counters and every strategy.
// All callers share one bounded pool, so concurrent callers contend for its capacity.
type Bench struct {
	opts     Options
	cfg      *core.StrategyConfig
	counters *core.DispatchCounters

	pool    *GoroutineThreadPool
	perTask *core.PerTaskWorker
	bounded *core.BoundedPool
	stream  *core.StreamDispatcher
	factory *core.WorkerFactory

	engine     *core.Engine
	aggregator *core.MetricsAggregator
}

// New builds and starts a Bench.
func New(opts Options) (*Bench, error) {
	if opts.PoolSize < 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", opts.PoolSize)
	}
	def := DefaultOptions()
	if opts.PoolSize == 0 {
		opts.PoolSize = def.PoolSize
	}
	if opts.Workloads.Generic.Name == "" {
		opts.Workloads = def.Workloads
	}
	if opts.ServiceCalls == nil {
		opts.ServiceCalls = def.ServiceCalls
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = def.MaxBatchSize
	}
	if opts.AsyncDelay <= 0 {
		opts.AsyncDelay = def.AsyncDelay
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNoOpLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = &core.NilMetrics{}
	}
	if opts.PanicHandler == nil {
		opts.PanicHandler = &core.LoggerPanicHandler{Logger: opts.Logger}
	}
	if opts.Source == nil {
		opts.Source = runtimestats.New()
	}

	counters := core.NewDispatchCounters()
	cfg := &core.StrategyConfig{
		Counters:     counters,
		Metrics:      opts.Metrics,
		PanicHandler: opts.PanicHandler,
		Logger:       opts.Logger,
		MaxBatchSize: opts.MaxBatchSize,
	}

	pool := NewGoroutineThreadPool("bounded-pool", opts.PoolSize,
		WithLockOSThread(opts.LockOSThread),
		WithPoolLogger(opts.Logger),
		WithSchedulerConfig(&core.TaskSchedulerConfig{
			PanicHandler:        opts.PanicHandler,
			Metrics:             opts.Metrics,
			RejectedTaskHandler: &core.LoggerRejectedTaskHandler{Logger: opts.Logger},
		}),
	)
	pool.Start(context.Background())

	perTask := core.NewPerTaskWorker(cfg)
	bounded := core.NewBoundedPool(pool, cfg)
	stream := core.NewStreamDispatcher(perTask, cfg)

	return &Bench{
		opts:       opts,
		cfg:        cfg,
		counters:   counters,
		pool:       pool,
		perTask:    perTask,
		bounded:    bounded,
		stream:     stream,
		factory:    core.NewWorkerFactory("factory-worker", counters),
		engine:     core.NewEngine(cfg, perTask, bounded, stream),
		aggregator: core.NewMetricsAggregator(opts.Source, counters, pool),
	}, nil
}

// Close stops the pool; queued tasks settle as interrupted.
func (b *Bench) Close() {
	b.perTask.Close()
	b.pool.Stop()
}

func (b *Bench) Engine() *core.Engine                { return b.engine }
func (b *Bench) Aggregator() *core.MetricsAggregator { return b.aggregator }
func (b *Bench) Pool() *GoroutineThreadPool          { return b.pool }
func (b *Bench) Stream() *core.StreamDispatcher      { return b.stream }
func (b *Bench) Counters() *core.DispatchCounters    { return b.counters }
func (b *Bench) Workloads() Workloads                { return b.opts.Workloads }
func (b *Bench) Logger() core.Logger                 { return b.opts.Logger }
func (b *Bench) MaxBatchSize() int                   { return b.opts.MaxBatchSize }

// WorkerFactory returns the factory that names workers "factory-worker-N".
func (b *Bench) WorkerFactory() *core.WorkerFactory { return b.factory }

// Compare runs the generic workload on each kind in turn; no kinds means all.
func (b *Bench) Compare(ctx context.Context, size int, kinds ...core.StrategyKind) (map[core.StrategyKind]core.BatchResult, error) {
	return b.engine.CompareWorkload(ctx, kinds, size, b.opts.Workloads.Generic)
}

// Run runs one batch of the named workload.
func (b *Bench) Run(ctx context.Context, kind core.StrategyKind, size int, workload string) (core.BatchResult, error) {
	w, ok := b.opts.Workloads.ByName(workload)
	if !ok {
		return core.BatchResult{}, fmt.Errorf("%w: %q", core.ErrUnknownWorkload, workload)
	}
	return b.engine.RunWorkload(ctx, kind, size, w)
}

// SingleResult describes one task run on one worker.
type SingleResult struct {
	Message   string                `json:"message"`
	Worker    core.WorkerDescriptor `json:"worker"`
	ElapsedMs int64                 `json:"elapsedMs"`
	Failure   string                `json:"failure,omitempty"`
}

func singleResult(out core.Outcome, elapsed time.Duration) SingleResult {
	return SingleResult{
		Message:   out.Value,
		Worker:    out.Worker,
		ElapsedMs: elapsed.Milliseconds(),
		Failure:   out.FailureText(),
	}
}

// BlockingOperation runs one blocking task on a fresh lightweight worker.
func (b *Bench) BlockingOperation(ctx context.Context) (SingleResult, error) {
	start := time.Now()
	w := b.opts.Workloads.Blocking
	w.Body = func(ctx context.Context, _ int) (string, error) {
		worker, _ := core.CurrentWorker(ctx)
		return fmt.Sprintf("Blocking operation completed on %s", worker), nil
	}
	out, err := core.SpawnUnit(ctx, b.cfg, b.factory.NewWorker, w)
	if err != nil {
		return SingleResult{}, err
	}
	return singleResult(out, time.Since(start)), nil
}

// AsyncOperation hands one slow call to the stream dispatcher and waits for its
// single outcome.
func (b *Bench) AsyncOperation(ctx context.Context) (SingleResult, error) {
	start := time.Now()
	w := core.Workload{Name: "async", Delay: b.opts.AsyncDelay, Body: func(ctx context.Context, _ int) (string, error) {
		worker, _ := core.CurrentWorker(ctx)
		return fmt.Sprintf("Async operation completed on %s", worker), nil
	}}
	run, err := b.stream.Stream(ctx, 1, w, core.Propagate())
	if err != nil {
		return SingleResult{}, err
	}
	var out core.Outcome
	for o := range run.Outcomes() {
		out = o
	}
	if err := run.Err(); err != nil {
		return SingleResult{}, err
	}
	return singleResult(out, time.Since(start)), nil
}

// MultipleBlocking runs n blocking tasks, one lightweight worker each.
func (b *Bench) MultipleBlocking(ctx context.Context, n int) (core.BatchResult, error) {
	return b.engine.RunWorkload(ctx, core.StrategyPerTaskWorker, n, b.opts.Workloads.Blocking)
}

// SpawnManual starts a single explicitly named lightweight worker and joins it.
func (b *Bench) SpawnManual(ctx context.Context, name string) (SingleResult, error) {
	if name == "" {
		name = "manual-worker"
	}
	start := time.Now()
	w := b.opts.Workloads.Generic
	w.Body = func(ctx context.Context, _ int) (string, error) {
		worker, _ := core.CurrentWorker(ctx)
		return fmt.Sprintf("Manual worker executed on %s", worker), nil
	}
	out, err := core.SpawnUnit(ctx, b.cfg, func(t core.Task) *core.LightweightWorker {
		return core.NewNamedWorker(name, b.counters, t)
	}, w)
	if err != nil {
		return SingleResult{}, err
	}
	return singleResult(out, time.Since(start)), nil
}

// SpawnFromFactory runs one generic task on a worker from WorkerFactory.
func (b *Bench) SpawnFromFactory(ctx context.Context) (SingleResult, error) {
	start := time.Now()
	w := b.opts.Workloads.Generic
	w.Body = func(ctx context.Context, _ int) (string, error) {
		worker, _ := core.CurrentWorker(ctx)
		return fmt.Sprintf("Factory worker executed on %s", worker), nil
	}
	out, err := core.SpawnUnit(ctx, b.cfg, b.factory.NewWorker, w)
	if err != nil {
		return SingleResult{}, err
	}
	return singleResult(out, time.Since(start)), nil
}

// ThreadInfo is what a lightweight worker knows about itself.
type ThreadInfo struct {
	Worker     core.WorkerDescriptor `json:"worker"`
	Goroutines int                   `json:"goroutines"`
	Scheduler  string                `json:"scheduler"`
}

func (b *Bench) ThreadInfo(ctx context.Context) (ThreadInfo, error) {
	out, err := core.SpawnUnit(ctx, b.cfg, b.factory.NewWorker, core.Workload{Name: "thread_info"})
	if err != nil {
		return ThreadInfo{}, err
	}
	return ThreadInfo{
		Worker:     out.Worker,
		Goroutines: b.opts.Source.CurrentLightweightWorkerEstimate(),
		Scheduler:  "go runtime scheduler",
	}, nil
}

// SequentialCalls makes the configured service calls one after another on one worker.
func (b *Bench) SequentialCalls(ctx context.Context) (core.SequentialResult, error) {
	return b.stream.Sequential(ctx, b.opts.ServiceCalls...)
}

// GracefulMessage is returned by ErrorHandling when the call failed.
const GracefulMessage = "Error handled gracefully"

var errDemo = errors.New("simulated error in lightweight worker")

// ErrorHandling makes one call that fails with probability ErrorRate and
// recovers the failure into GracefulMessage.
func (b *Bench) ErrorHandling(ctx context.Context) (string, error) {
	rate := b.opts.ErrorRate
	msg, _, err := b.stream.Call(ctx, func(ctx context.Context) (string, error) {
		if rand.Float64() < rate {
			return "", errDemo
		}
		worker, _ := core.CurrentWorker(ctx)
		return fmt.Sprintf("Operation succeeded on lightweight worker: %s", worker.Name), nil
	}, core.RecoverWith(GracefulMessage))
	return msg, err
}

// CompareSchedulers runs tasks on lightweight workers and on the pool at the
// same time and joins both once they have settled.
func (b *Bench) CompareSchedulers(ctx context.Context, tasks int) (core.JoinResult, error) {
	if tasks < 0 || tasks > b.opts.MaxBatchSize {
		return core.JoinResult{}, fmt.Errorf("%w: %d", core.ErrInvalidBatchSize, tasks)
	}
	w := b.opts.Workloads.SchedulerCompare
	return b.stream.Join(ctx,
		core.Pipeline{Name: "Lightweight workers", Strategy: b.perTask, Size: tasks, Workload: w},
		core.Pipeline{Name: "Bounded pool", Strategy: b.bounded, Size: tasks, Workload: w},
	)
}

// StressResult summarizes a reactive stress test.
type StressResult struct {
	TotalTasks             int     `json:"totalTasks"`
	Succeeded              int     `json:"succeeded"`
	LightweightWorkersUsed int     `json:"lightweightWorkersUsed"`
	DurationMs             int64   `json:"durationMs"`
	TasksPerSecond         float64 `json:"tasksPerSecond"`
}

// StressTest streams n reactive tasks through lightweight workers.
func (b *Bench) StressTest(ctx context.Context, n int) (StressResult, error) {
	run, err := b.stream.Stream(ctx, n, b.opts.Workloads.Reactive, core.Propagate())
	if err != nil {
		return StressResult{}, err
	}
	res, err := run.Collect()
	if err != nil {
		return StressResult{}, err
	}
	return StressResult{
		TotalTasks:             n,
		Succeeded:              res.Succeeded,
		LightweightWorkersUsed: res.LightweightWorkers(),
		DurationMs:             res.ElapsedMillis(),
		TasksPerSecond:         res.TasksPerSecond(),
	}, nil
}

// StreamOutcomes prepares a stream of n parallel-preset tasks for incremental consumption.
func (b *Bench) StreamOutcomes(ctx context.Context, n int, policy core.RecoveryPolicy) (*core.StreamRun, error) {
	return b.stream.Stream(ctx, n, b.opts.Workloads.Parallel, policy)
}

// Report summarizes results against a fresh resource snapshot.
func (b *Bench) Report(results ...core.BatchResult) core.Report {
	return b.aggregator.Summarize(results...)
}
