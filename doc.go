// Package taskbench benchmarks concurrency strategies for blocking work in Go.
//
// A Bench runs batches of simulated blocking I/O tasks under three strategies and
// reports per-batch timings and worker identities next to a snapshot of process
// resources.
//
// # Strategies
//
// PerTaskWorker: every task gets its own freshly started goroutine. Creation is
// unbounded and there is no admission queue.
//
// BoundedPool: tasks are posted to a GoroutineThreadPool, a fixed set of workers
// each pinned to an OS thread, with FIFO queueing once every worker is busy.
//
// StreamDispatcher: tasks are spawned on lightweight workers and their outcomes are
// yielded one by one in completion order. It also supports error recovery into a
// placeholder value and barrier joins of several pipelines.
//
// # Failure Isolation
//
// A failing, panicking or cancelled task is folded into BatchResult.Failed. Only a
// negative batch size (core.ErrInvalidBatchSize) or a strategy that cannot accept
// work at all (core.ErrStrategyUnavailable) is returned as an error.
//
// # Example
//
//	import (
//		"context"
//		"fmt"
//
//		taskbench "github.com/Swind/go-task-bench"
//		"github.com/Swind/go-task-bench/core"
//	)
//
//	func main() {
//		bench, err := taskbench.New(taskbench.DefaultOptions())
//		if err != nil {
//			panic(err)
//		}
//		defer bench.Close()
//
//		results, err := bench.Compare(context.Background(), 100,
//			core.StrategyPerTaskWorker, core.StrategyBoundedPool)
//		if err != nil {
//			panic(err)
//		}
//		for kind, res := range results {
//			fmt.Println(kind, res)
//		}
//		fmt.Printf("%+v\n", bench.Report())
//	}
package taskbench
