package core

import (
	"runtime"
	"sync"
	"time"
)

// PoolStatsProvider is implemented by pools that can describe themselves.
type PoolStatsProvider interface {
	Stats() PoolStats
}

// CounterStats is a read of DispatchCounters.
type CounterStats struct {
	WorkersCreated    int64   `json:"workersCreated"`
	TasksExecuted     int64   `json:"tasksExecuted"`
	AvgTasksPerWorker float64 `json:"avgTasksPerWorker"`
}

// SystemInfo describes the runtime the report was taken in.
type SystemInfo struct {
	GoVersion   string        `json:"goVersion"`
	OS          string        `json:"os"`
	Arch        string        `json:"arch"`
	GOMAXPROCS  int           `json:"gomaxprocs"`
	Uptime      time.Duration `json:"uptimeNanos"`
	IsSupported bool          `json:"isSupported"`
}

// BatchSummary is a BatchResult plus its derived throughput.
type BatchSummary struct {
	BatchResult
	ElapsedMs      int64   `json:"elapsedMs"`
	TasksPerSecond float64 `json:"tasksPerSecond"`
}

// Report is an immutable summary of resources, counters and optional batches.
type Report struct {
	Resources          ResourceSnapshot `json:"resources"`
	MemoryUsagePercent float64          `json:"memoryUsagePercent"`

	// CarrierThreadEstimate is min(osWorkers, processors); best-effort only.
	CarrierThreadEstimate int `json:"carrierThreadEstimate"`

	Counters CounterStats   `json:"counters"`
	Pools    []PoolStats    `json:"pools,omitempty"`
	Batches  []BatchSummary `json:"batches,omitempty"`

	// TasksPerSecond covers all batches: sum(requested)*1000/sum(elapsedMillis).
	TasksPerSecond float64 `json:"tasksPerSecond"`

	System SystemInfo `json:"system"`
}

// MetricsAggregator merges BatchResults with a fresh ResourceSnapshot. It reads
// the shared counters but never writes them.
type MetricsAggregator struct {
	mu       sync.Mutex
	source   ResourceSnapshotSource
	counters *DispatchCounters
	pools    []PoolStatsProvider
}

func NewMetricsAggregator(source ResourceSnapshotSource, counters *DispatchCounters, pools ...PoolStatsProvider) *MetricsAggregator {
	if counters == nil {
		counters = NewDispatchCounters()
	}
	return &MetricsAggregator{source: source, counters: counters, pools: pools}
}

// Counters returns the counters this aggregator reads.
func (a *MetricsAggregator) Counters() *DispatchCounters { return a.counters }

// Resources takes one snapshot. Concurrent callers are serialized so that the
// figures of one snapshot are read together.
func (a *MetricsAggregator) Resources() ResourceSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return TakeSnapshot(a.source)
}

// Snapshot is a report without batches.
func (a *MetricsAggregator) Snapshot() Report {
	return a.Summarize()
}

// Summarize builds a report over results.
func (a *MetricsAggregator) Summarize(results ...BatchResult) Report {
	res := a.Resources()
	r := Report{
		Resources:             res,
		MemoryUsagePercent:    res.MemoryUsagePercent(),
		CarrierThreadEstimate: res.CarrierEstimate(),
		Counters: CounterStats{
			WorkersCreated:    a.counters.WorkersCreated(),
			TasksExecuted:     a.counters.TasksExecuted(),
			AvgTasksPerWorker: a.counters.AvgTasksPerWorker(),
		},
		System: SystemInfo{
			GoVersion:   runtime.Version(),
			OS:          runtime.GOOS,
			Arch:        runtime.GOARCH,
			GOMAXPROCS:  runtime.GOMAXPROCS(0),
			Uptime:      a.counters.Uptime(),
			IsSupported: true,
		},
	}
	for _, p := range a.pools {
		r.Pools = append(r.Pools, p.Stats())
	}

	var requested, elapsedMs int64
	for _, b := range results {
		r.Batches = append(r.Batches, BatchSummary{
			BatchResult:    b,
			ElapsedMs:      b.ElapsedMillis(),
			TasksPerSecond: b.TasksPerSecond(),
		})
		requested += int64(b.Requested)
		elapsedMs += b.ElapsedMillis()
	}
	r.TasksPerSecond = tasksPerSecond(requested, elapsedMs)
	return r
}
