package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-task-bench/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds  *prom.HistogramVec
	taskFailureTotal     *prom.CounterVec
	taskRejectedTotal    *prom.CounterVec
	queueDepth           *prom.GaugeVec
	batchTotal           *prom.CounterVec
	batchTasksTotal      *prom.CounterVec
	batchDurationSeconds *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "taskbench"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Settled task duration in seconds.",
		Buckets:   buckets,
	}, []string{"strategy"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failure_total",
		Help:      "Total number of failed tasks by kind.",
	}, []string{"strategy", "kind"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"runner", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"runner"})
	batchVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "batch_total",
		Help:      "Total number of settled batches.",
	}, []string{"strategy"})
	batchTasksVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "batch_tasks_total",
		Help:      "Tasks of settled batches by state.",
	}, []string{"strategy", "state"})
	batchDurationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall-clock batch duration in seconds.",
		Buckets:   buckets,
	}, []string{"strategy"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if batchVec, err = registerCollector(reg, batchVec); err != nil {
		return nil, err
	}
	if batchTasksVec, err = registerCollector(reg, batchTasksVec); err != nil {
		return nil, err
	}
	if batchDurationVec, err = registerCollector(reg, batchDurationVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds:  durationVec,
		taskFailureTotal:     failureVec,
		taskRejectedTotal:    rejectedVec,
		queueDepth:           queueDepthVec,
		batchTotal:           batchVec,
		batchTasksTotal:      batchTasksVec,
		batchDurationSeconds: batchDurationVec,
	}, nil
}

// RecordTaskDuration records settled task duration.
func (m *MetricsExporter) RecordTaskDuration(strategy core.StrategyKind, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(strategyLabel(strategy)).Observe(duration.Seconds())
}

// RecordTaskFailure records one failed task.
func (m *MetricsExporter) RecordTaskFailure(strategy core.StrategyKind, kind core.FailureKind) {
	if m == nil {
		return
	}
	m.taskFailureTotal.WithLabelValues(strategyLabel(strategy), kind.String()).Inc()
}

// RecordBatch records a settled batch.
func (m *MetricsExporter) RecordBatch(result core.BatchResult) {
	if m == nil {
		return
	}
	strategy := strategyLabel(result.Strategy)
	m.batchTotal.WithLabelValues(strategy).Inc()
	m.batchTasksTotal.WithLabelValues(strategy, "succeeded").Add(float64(result.Succeeded))
	m.batchTasksTotal.WithLabelValues(strategy, "failed").Add(float64(result.Failed))
	m.batchDurationSeconds.WithLabelValues(strategy).Observe(result.Elapsed.Seconds())
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(runnerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(runnerName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(runnerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(runnerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func strategyLabel(kind core.StrategyKind) string {
	return normalizeLabel(string(kind), "unknown")
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
