package taskbench

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-task-bench/core"
)

// GoroutineThreadPool is the bounded set of OS-backed workers.
// Each worker pulls from a FIFO TaskScheduler and, by default, is pinned to its own OS thread.
type GoroutineThreadPool struct {
	id           string
	workers      int
	scheduler    *core.TaskScheduler
	lockOSThread bool
	logger       core.Logger

	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelCauseFunc
	running   bool
	runningMu sync.RWMutex

	started atomic.Int64 // workers ever started
}

var _ core.ThreadPool = (*GoroutineThreadPool)(nil)

// PoolOption configures a GoroutineThreadPool.
type PoolOption func(*GoroutineThreadPool)

// WithLockOSThread pins every worker to an OS thread for its lifetime (default true).
func WithLockOSThread(lock bool) PoolOption {
	return func(tg *GoroutineThreadPool) { tg.lockOSThread = lock }
}

// WithSchedulerConfig sets the handlers of the pool's scheduler.
func WithSchedulerConfig(cfg *core.TaskSchedulerConfig) PoolOption {
	return func(tg *GoroutineThreadPool) {
		tg.scheduler = core.NewFIFOTaskSchedulerWithConfig(tg.id, tg.workers, cfg)
	}
}

func WithPoolLogger(logger core.Logger) PoolOption {
	return func(tg *GoroutineThreadPool) { tg.logger = logger }
}

// NewGoroutineThreadPool creates a stopped pool of the given size.
func NewGoroutineThreadPool(id string, workers int, opts ...PoolOption) *GoroutineThreadPool {
	if workers < 1 {
		workers = 1
	}
	tg := &GoroutineThreadPool{
		id:           id,
		workers:      workers,
		lockOSThread: true,
		logger:       core.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(tg)
	}
	if tg.scheduler == nil {
		tg.scheduler = core.NewFIFOTaskScheduler(id, workers)
	}
	return tg
}

// Start starts all worker goroutines
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running || tg.scheduler.IsShuttingDown() {
		return
	}

	tg.ctx, tg.cancel = context.WithCancelCause(ctx)
	tg.running = true

	for i := 0; i < tg.workers; i++ {
		tg.wg.Add(1)
		tg.started.Add(1)
		go tg.workerLoop(i, tg.ctx)
	}
	tg.logger.Info("thread pool started",
		core.F("pool", tg.id),
		core.F("workers", tg.workers),
		core.F("lock_os_thread", tg.lockOSThread))
}

// Stop rejects new tasks, interrupts running ones and settles whatever was
// still queued by running it with an already interrupted context.
func (tg *GoroutineThreadPool) Stop() {
	leftover := tg.scheduler.Shutdown()
	tg.stopWorkers()
	tg.settle(leftover)
}

// StopGraceful stops the thread pool gracefully, waiting for queued tasks to complete
// Returns error if timeout is exceeded before tasks complete
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	if !tg.IsRunning() {
		tg.settle(tg.scheduler.Shutdown())
		return nil
	}

	leftover, err := tg.scheduler.ShutdownGraceful(timeout)
	tg.stopWorkers()
	tg.settle(leftover)
	return err
}

func (tg *GoroutineThreadPool) stopWorkers() {
	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		return
	}
	tg.runningMu.Unlock()

	if tg.cancel != nil {
		tg.cancel(core.ErrInterrupted)
	}
	tg.Join()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()
	tg.logger.Info("thread pool stopped", core.F("pool", tg.id))
}

func (tg *GoroutineThreadPool) settle(items []core.TaskItem) {
	if len(items) == 0 {
		return
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(core.ErrInterrupted)
	for _, item := range items {
		tg.runTask(ctx, -1, item.Task)
	}
	tg.logger.Debug("settled queued tasks after stop",
		core.F("pool", tg.id),
		core.F("count", len(items)))
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

// workerLoop is the main loop for each worker
func (tg *GoroutineThreadPool) workerLoop(id int, ctx context.Context) {
	defer tg.wg.Done()
	if tg.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	workerCtx := core.WithWorker(ctx, core.WorkerDescriptor{
		Name:         fmt.Sprintf("%s-worker-%d", tg.id, id),
		Lightweight:  false,
		DaemonLike:   false,
		PriorityHint: int(core.TaskPriorityUserVisible),
	})
	stopCh := ctx.Done()

	for {
		task, ok := tg.scheduler.GetWork(stopCh)
		if !ok {
			return
		}
		tg.scheduler.OnTaskStart()
		tg.runTask(workerCtx, id, task)
		tg.scheduler.OnTaskEnd()
	}
}

func (tg *GoroutineThreadPool) runTask(ctx context.Context, workerID int, task core.Task) {
	defer func() {
		if r := recover(); r != nil {
			tg.scheduler.GetPanicHandler().HandlePanic(ctx, tg.id, workerID, r, debug.Stack())
		}
	}()
	task(ctx)
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.wg.Wait()
}

// WorkerCount returns the number of workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.scheduler.QueuedTaskCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

// StartedWorkers counts workers started over the pool's lifetime.
func (tg *GoroutineThreadPool) StartedWorkers() int64 {
	return tg.started.Load()
}

// PostInternal queues task; it fails with core.ErrPoolShutdown once Stop has begun.
func (tg *GoroutineThreadPool) PostInternal(task core.Task, traits core.TaskTraits) error {
	return tg.scheduler.PostInternal(task, traits)
}

// Stats implements core.PoolStatsProvider.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      tg.id,
		Workers: tg.workers,
		Queued:  tg.QueuedTaskCount(),
		Active:  tg.ActiveTaskCount(),
		Running: tg.IsRunning(),
	}
}
