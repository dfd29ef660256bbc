// Package runtimestats reads goroutine, thread and memory figures from the Go
// runtime and the operating system.
package runtimestats

import (
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/Swind/go-task-bench/core"
)

// Source implements core.ResourceSnapshotSource.
//
// OS thread counts come from the operating system when available and fall back
// to the runtime's thread-creation profile otherwise.
type Source struct {
	once    sync.Once
	proc    *process.Process
	procErr error

	peak atomic.Int64
}

var _ core.ResourceSnapshotSource = (*Source)(nil)

func New() *Source {
	return &Source{}
}

func (s *Source) process() (*process.Process, error) {
	s.once.Do(func() {
		s.proc, s.procErr = process.NewProcess(int32(os.Getpid()))
	})
	return s.proc, s.procErr
}

// CurrentLightweightWorkerEstimate is the live goroutine count.
func (s *Source) CurrentLightweightWorkerEstimate() int {
	return runtime.NumGoroutine()
}

// CurrentOSWorkerStats reports OS threads of this process. Go has no daemon
// distinction: no thread keeps the process alive, so every thread counts as one.
func (s *Source) CurrentOSWorkerStats() core.OSWorkerStats {
	created := int64(pprof.Lookup("threadcreate").Count())
	count := int(created)
	if p, err := s.process(); err == nil {
		if n, err := p.NumThreads(); err == nil {
			count = int(n)
		}
	}
	return core.OSWorkerStats{
		Count:        count,
		Peak:         int(s.observePeak(int64(count))),
		TotalStarted: max(created, int64(count)),
		DaemonCount:  count,
	}
}

func (s *Source) observePeak(n int64) int64 {
	for {
		cur := s.peak.Load()
		if n <= cur {
			return cur
		}
		if s.peak.CompareAndSwap(cur, n) {
			return n
		}
	}
}

// MemoryStats reports resident memory as used, system available memory as free,
// and the runtime memory limit (or total system memory without one) as max.
func (s *Source) MemoryStats() core.MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := core.MemoryStats{Used: ms.Sys - ms.HeapReleased}
	if p, err := s.process(); err == nil {
		if info, err := p.MemoryInfo(); err == nil && info.RSS > 0 {
			out.Used = info.RSS
		}
	}

	vm, err := mem.VirtualMemory()
	if err == nil {
		out.Free = vm.Available
		out.Max = vm.Total
	}
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		out.Max = uint64(limit)
	}
	return out
}

func (s *Source) ProcessorCount() int {
	return runtime.GOMAXPROCS(0)
}
