package core

import "time"

// OSWorkerStats is a point-in-time view of OS-backed workers.
type OSWorkerStats struct {
	Count        int   `json:"count"`
	Peak         int   `json:"peak"`
	TotalStarted int64 `json:"totalStarted"`
	DaemonCount  int   `json:"daemonCount"`
}

// MemoryStats are process memory figures in bytes.
type MemoryStats struct {
	Used uint64 `json:"used"`
	Free uint64 `json:"free"`
	Max  uint64 `json:"max"`
}

// ResourceSnapshotSource supplies best-effort runtime figures. Every call is an
// independent read; nothing here is used for correctness.
type ResourceSnapshotSource interface {
	CurrentLightweightWorkerEstimate() int
	CurrentOSWorkerStats() OSWorkerStats
	MemoryStats() MemoryStats
	ProcessorCount() int
}

// ResourceSnapshot gathers one reading of every ResourceSnapshotSource figure.
type ResourceSnapshot struct {
	LightweightWorkerEstimate int       `json:"lightweightWorkerEstimate"`
	OSWorkerCount             int       `json:"osWorkerCount"`
	PeakOSWorkerCount         int       `json:"peakOsWorkerCount"`
	TotalOSWorkersStarted     int64     `json:"totalOsWorkersStarted"`
	DaemonOSWorkerCount       int       `json:"daemonOsWorkerCount"`
	UsedMemoryBytes           uint64    `json:"usedMemoryBytes"`
	FreeMemoryBytes           uint64    `json:"freeMemoryBytes"`
	MaxMemoryBytes            uint64    `json:"maxMemoryBytes"`
	AvailableProcessors       int       `json:"availableProcessors"`
	TakenAt                   time.Time `json:"takenAt"`
}

// TakeSnapshot reads src once per figure.
func TakeSnapshot(src ResourceSnapshotSource) ResourceSnapshot {
	workers := src.CurrentOSWorkerStats()
	mem := src.MemoryStats()
	return ResourceSnapshot{
		LightweightWorkerEstimate: src.CurrentLightweightWorkerEstimate(),
		OSWorkerCount:             workers.Count,
		PeakOSWorkerCount:         workers.Peak,
		TotalOSWorkersStarted:     workers.TotalStarted,
		DaemonOSWorkerCount:       workers.DaemonCount,
		UsedMemoryBytes:           mem.Used,
		FreeMemoryBytes:           mem.Free,
		MaxMemoryBytes:            mem.Max,
		AvailableProcessors:       src.ProcessorCount(),
		TakenAt:                   time.Now(),
	}
}

// MemoryUsagePercent is used/max*100, or 0 when max is unknown.
func (s ResourceSnapshot) MemoryUsagePercent() float64 {
	if s.MaxMemoryBytes == 0 {
		return 0
	}
	return float64(s.UsedMemoryBytes) / float64(s.MaxMemoryBytes) * 100
}

// CarrierEstimate guesses how many OS threads carry lightweight workers as
// min(osWorkers, processors). It is a rough label, not a measured figure.
func (s ResourceSnapshot) CarrierEstimate() int {
	return min(s.OSWorkerCount, s.AvailableProcessors)
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string `json:"id"`
	Workers int    `json:"workers"`
	Queued  int    `json:"queued"`
	Active  int    `json:"active"`
	Running bool   `json:"running"`
}
