package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskScheduler is the FIFO work source pulled by the workers of a bounded pool.
type TaskScheduler struct {
	name        string
	queue       TaskQueue
	signal      chan struct{}
	workerCount int

	metricQueued int32 // Waiting in queue
	metricActive int32 // Executing in Worker

	// Handlers and Metrics
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	// Lifecycle
	shuttingDown int32        // atomic flag
	postMu       sync.RWMutex // Shutdown excludes in-flight posts so nothing lands after Drain
}

func NewFIFOTaskScheduler(name string, workerCount int) *TaskScheduler {
	return NewFIFOTaskSchedulerWithConfig(name, workerCount, DefaultTaskSchedulerConfig())
}

func NewFIFOTaskSchedulerWithConfig(name string, workerCount int, config *TaskSchedulerConfig) *TaskScheduler {
	s := &TaskScheduler{
		name:        name,
		signal:      make(chan struct{}, workerCount*2),
		workerCount: workerCount,
		queue:       NewFIFOTaskQueue(),
	}

	// Apply config
	if config != nil {
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.rejectedTaskHandler = config.RejectedTaskHandler
	}

	// Use defaults if not provided
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}

	return s
}

// PostInternal queues task for the next free worker.
func (s *TaskScheduler) PostInternal(task Task, traits TaskTraits) error {
	s.postMu.RLock()
	defer s.postMu.RUnlock()

	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		s.rejectedTaskHandler.HandleRejectedTask(s.name, "shutting down")
		s.metrics.RecordTaskRejected(s.name, "shutting down")
		return ErrPoolShutdown
	}

	s.queue.Push(task, traits)
	depth := atomic.AddInt32(&s.metricQueued, 1)
	s.metrics.RecordQueueDepth(s.name, int(depth))

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
	return nil
}

// GetWork (Called by Worker)
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (Task, bool) {
	for {
		if item, ok := s.queue.Pop(); ok {
			depth := atomic.AddInt32(&s.metricQueued, -1)
			s.metrics.RecordQueueDepth(s.name, int(depth))
			return item.Task, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

// Shutdown stops accepting tasks and returns whatever was still queued so the
// caller can settle it.
func (s *TaskScheduler) Shutdown() []TaskItem {
	s.markShuttingDown()

	drained := s.queue.Drain()
	if n := len(drained); n > 0 {
		atomic.AddInt32(&s.metricQueued, -int32(n))
		s.metrics.RecordQueueDepth(s.name, s.QueuedTaskCount())
	}
	return drained
}

// ShutdownGraceful waits for all queued and active tasks to complete
// Returns error if timeout is exceeded before tasks complete; the leftover queue
// is returned for settlement in either case.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) ([]TaskItem, error) {
	s.markShuttingDown()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.QueuedTaskCount() == 0 && s.ActiveTaskCount() == 0 {
			return nil, nil
		}
		select {
		case <-deadline:
			return s.Shutdown(), fmt.Errorf("shutdown graceful timeout after %v, forced clearing", timeout)
		case <-ticker.C:
		}
	}
}

func (s *TaskScheduler) markShuttingDown() {
	s.postMu.Lock()
	atomic.StoreInt32(&s.shuttingDown, 1)
	s.postMu.Unlock()
}

// Metrics
func (s *TaskScheduler) Name() string         { return s.name }
func (s *TaskScheduler) WorkerCount() int     { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int { return int(atomic.LoadInt32(&s.metricQueued)) }
func (s *TaskScheduler) ActiveTaskCount() int { return int(atomic.LoadInt32(&s.metricActive)) }
func (s *TaskScheduler) IsShuttingDown() bool { return atomic.LoadInt32(&s.shuttingDown) == 1 }

func (s *TaskScheduler) OnTaskStart() {
	atomic.AddInt32(&s.metricActive, 1)
}

func (s *TaskScheduler) OnTaskEnd() {
	atomic.AddInt32(&s.metricActive, -1)
}

// GetPanicHandler returns the panic handler for this scheduler
func (s *TaskScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetMetrics returns the metrics collector for this scheduler
func (s *TaskScheduler) GetMetrics() Metrics {
	return s.metrics
}
