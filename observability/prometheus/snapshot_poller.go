package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-bench/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ReportProvider provides point-in-time reports, usually a core.MetricsAggregator.
type ReportProvider interface {
	Snapshot() core.Report
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports report and pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	reportMu sync.RWMutex
	report   ReportProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	lightweightWorkers prom.Gauge
	osThreads          *prom.GaugeVec
	memoryBytes        *prom.GaugeVec
	memoryUsagePercent prom.Gauge
	workersCreated     prom.Gauge
	tasksExecuted      prom.Gauge

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "taskbench"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	lightweightWorkers := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "lightweight_workers",
		Help:      "Estimated live lightweight workers (goroutines).",
	})
	osThreads := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "os_threads",
		Help:      "OS thread figures (current, peak, started).",
	}, []string{"figure"})
	memoryBytes := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_bytes",
		Help:      "Memory figures in bytes (used, free, max).",
	}, []string{"figure"})
	memoryUsagePercent := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "memory_usage_percent",
		Help:      "Used memory as a percentage of max memory.",
	})
	workersCreated := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "lightweight_workers_created",
		Help:      "Lightweight workers created since start.",
	})
	tasksExecuted := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_executed",
		Help:      "Tasks settled since start.",
	})

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_queued",
		Help:      "Queued tasks per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_active",
		Help:      "Active tasks per pool.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=stopped).",
	}, []string{"pool"})

	var err error
	if lightweightWorkers, err = registerCollector(reg, lightweightWorkers); err != nil {
		return nil, err
	}
	if osThreads, err = registerCollector(reg, osThreads); err != nil {
		return nil, err
	}
	if memoryBytes, err = registerCollector(reg, memoryBytes); err != nil {
		return nil, err
	}
	if memoryUsagePercent, err = registerCollector(reg, memoryUsagePercent); err != nil {
		return nil, err
	}
	if workersCreated, err = registerCollector(reg, workersCreated); err != nil {
		return nil, err
	}
	if tasksExecuted, err = registerCollector(reg, tasksExecuted); err != nil {
		return nil, err
	}
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:           interval,
		pools:              make(map[string]PoolSnapshotProvider),
		lightweightWorkers: lightweightWorkers,
		osThreads:          osThreads,
		memoryBytes:        memoryBytes,
		memoryUsagePercent: memoryUsagePercent,
		workersCreated:     workersCreated,
		tasksExecuted:      tasksExecuted,
		poolQueued:         poolQueued,
		poolActive:         poolActive,
		poolWorkers:        poolWorkers,
		poolRunning:        poolRunning,
	}, nil
}

// SetReport sets the report provider polled on every tick.
func (p *SnapshotPoller) SetReport(provider ReportProvider) {
	if p == nil || provider == nil {
		return
	}
	p.reportMu.Lock()
	p.report = provider
	p.reportMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.reportMu.RLock()
	provider := p.report
	p.reportMu.RUnlock()

	if provider != nil {
		r := provider.Snapshot()
		res := r.Resources
		p.lightweightWorkers.Set(float64(res.LightweightWorkerEstimate))
		p.osThreads.WithLabelValues("current").Set(float64(res.OSWorkerCount))
		p.osThreads.WithLabelValues("peak").Set(float64(res.PeakOSWorkerCount))
		p.osThreads.WithLabelValues("started").Set(float64(res.TotalOSWorkersStarted))
		p.memoryBytes.WithLabelValues("used").Set(float64(res.UsedMemoryBytes))
		p.memoryBytes.WithLabelValues("free").Set(float64(res.FreeMemoryBytes))
		p.memoryBytes.WithLabelValues("max").Set(float64(res.MaxMemoryBytes))
		p.memoryUsagePercent.Set(r.MemoryUsagePercent)
		p.workersCreated.Set(float64(r.Counters.WorkersCreated))
		p.tasksExecuted.Set(float64(r.Counters.TasksExecuted))
	}

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
	p.poolsMu.RUnlock()
}
