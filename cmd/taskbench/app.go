package main

import (
	"context"
	"fmt"
	"strings"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	taskbench "github.com/Swind/go-task-bench"
	"github.com/Swind/go-task-bench/config"
	"github.com/Swind/go-task-bench/core"
	obs "github.com/Swind/go-task-bench/observability/prometheus"
	"github.com/Swind/go-task-bench/observability/tracing"
)

// app is everything a command needs, built from config + flags.
type app struct {
	cfg      *config.Config
	zap      *zap.Logger
	logger   core.Logger
	registry *prom.Registry
	poller   *obs.SnapshotPoller
	bench    *taskbench.Bench
	shutdown tracing.ShutdownFunc
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("pool-size") {
		cfg.Pool.Size = c.Int("pool-size")
	}
	if c.IsSet("max-batch-size") {
		cfg.Compare.MaxBatchSize = c.Int("max-batch-size")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newZapLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}

	zl, err := newZapLogger(cfg.Log)
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	logger := core.NewZapLogger(zl)

	shutdown, err := tracing.Init(tracing.Options{Service: "taskbench", Exporter: cfg.Tracing.Exporter})
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
	if err != nil {
		return nil, err
	}
	poller, err := obs.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
	if err != nil {
		return nil, err
	}

	opts := cfg.BenchOptions()
	opts.Logger = logger
	opts.Metrics = exporter
	bench, err := taskbench.New(opts)
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	poller.SetReport(bench.Aggregator())
	poller.AddPool(bench.Pool().ID(), bench.Pool())

	return &app{
		cfg:      cfg,
		zap:      zl,
		logger:   logger,
		registry: reg,
		poller:   poller,
		bench:    bench,
		shutdown: shutdown,
	}, nil
}

func (a *app) Close() {
	a.poller.Stop()
	a.bench.Close()
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("tracer shutdown failed", core.F("error", err))
	}
	_ = a.zap.Sync()
}
