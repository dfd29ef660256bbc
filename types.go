package taskbench

import "github.com/Swind/go-task-bench/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskbench package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// StrategyKind names a concurrency discipline
type StrategyKind = core.StrategyKind

// Workload describes the simulated work of every task in a batch
type Workload = core.Workload

// BatchResult is the settled record of one batch
type BatchResult = core.BatchResult

// Report is the summary produced by the metrics aggregator
type Report = core.Report

// WorkerDescriptor identifies the worker that executed a task
type WorkerDescriptor = core.WorkerDescriptor

// ThreadPool is re-exported for type compatibility
type ThreadPool = core.ThreadPool

// Strategy constants
const (
	StrategyPerTaskWorker    StrategyKind = core.StrategyPerTaskWorker
	StrategyBoundedPool      StrategyKind = core.StrategyBoundedPool
	StrategyStreamDispatcher StrategyKind = core.StrategyStreamDispatcher
)

// Sentinel errors
var (
	ErrInvalidBatchSize    = core.ErrInvalidBatchSize
	ErrStrategyUnavailable = core.ErrStrategyUnavailable
	ErrUnknownWorkload     = core.ErrUnknownWorkload
)

// ParseStrategyKind accepts canonical strategy names and short aliases.
var ParseStrategyKind = core.ParseStrategyKind

// CurrentWorker retrieves the executing worker from context
var CurrentWorker = core.CurrentWorker
