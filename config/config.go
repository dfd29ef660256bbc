// Package config loads taskbench settings from YAML, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	taskbench "github.com/Swind/go-task-bench"
	"github.com/Swind/go-task-bench/core"
)

// EnvPrefix prefixes every environment override, e.g. TASKBENCH_POOL_SIZE.
const EnvPrefix = "TASKBENCH_"

type Config struct {
	Pool     PoolConfig     `yaml:"pool"`
	Workload WorkloadConfig `yaml:"workload"`
	Compare  CompareConfig  `yaml:"compare"`
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Log      LogConfig      `yaml:"log"`
}

type PoolConfig struct {
	Size         int  `yaml:"size"`
	LockOSThread bool `yaml:"lock_os_thread"`
}

type WorkloadConfig struct {
	GenericDelay          time.Duration `yaml:"generic_delay"`
	BlockingDelay         time.Duration `yaml:"blocking_delay"`
	ParallelDelay         time.Duration `yaml:"parallel_delay"`
	ReactiveDelay         time.Duration `yaml:"reactive_delay"`
	SchedulerCompareDelay time.Duration `yaml:"scheduler_compare_delay"`
	AsyncDelay            time.Duration `yaml:"async_delay"`
	FailureRate           float64       `yaml:"failure_rate"`
	ErrorRate             float64       `yaml:"error_rate"`
}

type CompareConfig struct {
	Strategies   []string `yaml:"strategies"`
	MaxBatchSize int      `yaml:"max_batch_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type TracingConfig struct {
	Exporter string `yaml:"exporter"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Pool: PoolConfig{Size: 200, LockOSThread: true},
		Workload: WorkloadConfig{
			GenericDelay:          core.WorkloadGeneric.Delay,
			BlockingDelay:         core.WorkloadBlocking.Delay,
			ParallelDelay:         core.WorkloadParallel.Delay,
			ReactiveDelay:         core.WorkloadReactive.Delay,
			SchedulerCompareDelay: core.WorkloadSchedulerCompare.Delay,
			AsyncDelay:            2 * time.Second,
			ErrorRate:             0.5,
		},
		Compare: CompareConfig{
			Strategies: []string{
				string(core.StrategyPerTaskWorker),
				string(core.StrategyBoundedPool),
				string(core.StrategyStreamDispatcher),
			},
			MaxBatchSize: core.DefaultMaxBatchSize,
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Namespace: "taskbench", PollInterval: time.Second},
		Tracing: TracingConfig{Exporter: "none"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TASKBENCH_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}

	integer("POOL_SIZE", &c.Pool.Size)
	boolean("POOL_LOCK_OS_THREAD", &c.Pool.LockOSThread)
	duration("WORKLOAD_GENERIC_DELAY", &c.Workload.GenericDelay)
	duration("WORKLOAD_BLOCKING_DELAY", &c.Workload.BlockingDelay)
	duration("WORKLOAD_PARALLEL_DELAY", &c.Workload.ParallelDelay)
	duration("WORKLOAD_REACTIVE_DELAY", &c.Workload.ReactiveDelay)
	duration("WORKLOAD_SCHEDULER_COMPARE_DELAY", &c.Workload.SchedulerCompareDelay)
	duration("WORKLOAD_ASYNC_DELAY", &c.Workload.AsyncDelay)
	float("WORKLOAD_FAILURE_RATE", &c.Workload.FailureRate)
	float("WORKLOAD_ERROR_RATE", &c.Workload.ErrorRate)
	if v, ok := lookup(EnvPrefix + "COMPARE_STRATEGIES"); ok {
		c.Compare.Strategies = splitList(v)
	}
	integer("COMPARE_MAX_BATCH_SIZE", &c.Compare.MaxBatchSize)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("METRICS_NAMESPACE", &c.Metrics.Namespace)
	duration("METRICS_POLL_INTERVAL", &c.Metrics.PollInterval)
	str("TRACING_EXPORTER", &c.Tracing.Exporter)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.Size < 1 {
		errs = append(errs, fmt.Errorf("pool.size must be >= 1, got %d", c.Pool.Size))
	}
	for name, d := range map[string]time.Duration{
		"workload.generic_delay":           c.Workload.GenericDelay,
		"workload.blocking_delay":          c.Workload.BlockingDelay,
		"workload.parallel_delay":          c.Workload.ParallelDelay,
		"workload.reactive_delay":          c.Workload.ReactiveDelay,
		"workload.scheduler_compare_delay": c.Workload.SchedulerCompareDelay,
		"workload.async_delay":             c.Workload.AsyncDelay,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.Workload.FailureRate < 0 || c.Workload.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("workload.failure_rate must be in [0,1], got %v", c.Workload.FailureRate))
	}
	if c.Workload.ErrorRate < 0 || c.Workload.ErrorRate > 1 {
		errs = append(errs, fmt.Errorf("workload.error_rate must be in [0,1], got %v", c.Workload.ErrorRate))
	}
	if _, err := c.Strategies(); err != nil {
		errs = append(errs, err)
	}
	if c.Compare.MaxBatchSize < 1 {
		errs = append(errs, fmt.Errorf("compare.max_batch_size must be >= 1, got %d", c.Compare.MaxBatchSize))
	}
	if c.Metrics.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.poll_interval must be positive, got %s", c.Metrics.PollInterval))
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be none or stdout, got %q", c.Tracing.Exporter))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Strategies parses compare.strategies.
func (c *Config) Strategies() ([]core.StrategyKind, error) {
	kinds := make([]core.StrategyKind, 0, len(c.Compare.Strategies))
	for _, s := range c.Compare.Strategies {
		kind, err := core.ParseStrategyKind(s)
		if err != nil {
			return nil, fmt.Errorf("compare.strategies: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Workloads returns the presets with the configured delays and failure rate.
func (c *Config) Workloads() taskbench.Workloads {
	w := taskbench.DefaultWorkloads()
	w.Generic = w.Generic.WithDelay(c.Workload.GenericDelay)
	w.Blocking = w.Blocking.WithDelay(c.Workload.BlockingDelay)
	w.Parallel = w.Parallel.WithDelay(c.Workload.ParallelDelay)
	w.Reactive = w.Reactive.WithDelay(c.Workload.ReactiveDelay)
	w.SchedulerCompare = w.SchedulerCompare.WithDelay(c.Workload.SchedulerCompareDelay)
	for _, p := range []*core.Workload{&w.Generic, &w.Blocking, &w.Parallel, &w.Reactive, &w.SchedulerCompare} {
		p.FailureRate = c.Workload.FailureRate
	}
	return w
}

// BenchOptions maps the config onto taskbench.Options; collaborators are left
// for the caller to fill in.
func (c *Config) BenchOptions() taskbench.Options {
	opts := taskbench.DefaultOptions()
	opts.PoolSize = c.Pool.Size
	opts.LockOSThread = c.Pool.LockOSThread
	opts.Workloads = c.Workloads()
	opts.ErrorRate = c.Workload.ErrorRate
	opts.MaxBatchSize = c.Compare.MaxBatchSize
	opts.AsyncDelay = c.Workload.AsyncDelay
	return opts
}
