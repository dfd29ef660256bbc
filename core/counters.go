package core

import (
	"sync/atomic"
	"time"
)

// DispatchCounters are the process-lifetime counters shared by the strategies and
// read by MetricsAggregator. They only ever increase.
type DispatchCounters struct {
	workersCreated atomic.Int64
	tasksExecuted  atomic.Int64
	startedAt      time.Time
}

func NewDispatchCounters() *DispatchCounters {
	return &DispatchCounters{startedAt: time.Now()}
}

// WorkerCreated records one lightweight worker spawn.
func (c *DispatchCounters) WorkerCreated() {
	c.workersCreated.Add(1)
}

// TaskExecuted records one settled task, successful or not.
func (c *DispatchCounters) TaskExecuted() {
	c.tasksExecuted.Add(1)
}

func (c *DispatchCounters) WorkersCreated() int64 { return c.workersCreated.Load() }
func (c *DispatchCounters) TasksExecuted() int64  { return c.tasksExecuted.Load() }
func (c *DispatchCounters) Uptime() time.Duration { return time.Since(c.startedAt) }

// AvgTasksPerWorker is tasksExecuted / workersCreated, or 0 before any worker exists.
func (c *DispatchCounters) AvgTasksPerWorker() float64 {
	created := c.workersCreated.Load()
	if created == 0 {
		return 0
	}
	return float64(c.tasksExecuted.Load()) / float64(created)
}
