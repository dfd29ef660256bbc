// Package server exposes a Bench over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	taskbench "github.com/Swind/go-task-bench"
	"github.com/Swind/go-task-bench/core"
)

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server routes requests to a Bench.
type Server struct {
	bench      *taskbench.Bench
	logger     core.Logger
	router     *mux.Router
	wsUpgrader websocket.Upgrader
	metrics    http.Handler
}

type Option func(*Server)

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func New(bench *taskbench.Bench, logger core.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	s := &Server{
		bench:  bench,
		logger: logger,
		router: mux.NewRouter(),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()

	dispatch := api.PathPrefix("/dispatch").Subrouter()
	dispatch.HandleFunc("/compare", s.handleCompare).Methods(http.MethodGet)
	dispatch.HandleFunc("/run/{strategy}", s.handleRun).Methods(http.MethodGet)
	dispatch.HandleFunc("/blocking", s.handleBlocking).Methods(http.MethodGet)
	dispatch.HandleFunc("/multiple-blocking", s.handleMultipleBlocking).Methods(http.MethodGet)
	dispatch.HandleFunc("/manual-creation", s.handleManualCreation).Methods(http.MethodGet)
	dispatch.HandleFunc("/factory-creation", s.handleFactoryCreation).Methods(http.MethodGet)
	dispatch.HandleFunc("/thread-info", s.handleThreadInfo).Methods(http.MethodGet)
	dispatch.HandleFunc("/sequential-calls", s.handleSequentialCalls).Methods(http.MethodGet)
	dispatch.HandleFunc("/error-handling", s.handleErrorHandling).Methods(http.MethodGet)
	dispatch.HandleFunc("/compare-schedulers", s.handleCompareSchedulers).Methods(http.MethodGet)
	dispatch.HandleFunc("/stress-test", s.handleStressTest).Methods(http.MethodGet)
	dispatch.HandleFunc("/async", s.handleAsync).Methods(http.MethodGet)
	dispatch.HandleFunc("/stream", s.handleStream)

	api.HandleFunc("/metrics/report", s.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	api.HandleFunc("/system-info", s.handleSystemInfo).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	size, err := s.sizeParam(r, "tasks", 100)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var kinds []core.StrategyKind
	if raw := r.URL.Query().Get("strategies"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			kind, err := core.ParseStrategyKind(part)
			if err != nil {
				s.sendError(w, err)
				return
			}
			kinds = append(kinds, kind)
		}
	}
	results, err := s.bench.Compare(r.Context(), size, kinds...)
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, results)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseStrategyKind(mux.Vars(r)["strategy"])
	if err != nil {
		s.sendError(w, err)
		return
	}
	size, err := s.sizeParam(r, "tasks", 100)
	if err != nil {
		s.sendError(w, err)
		return
	}
	res, err := s.bench.Run(r.Context(), kind, size, r.URL.Query().Get("workload"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, res)
}

func (s *Server) handleBlocking(w http.ResponseWriter, r *http.Request) {
	res, err := s.bench.BlockingOperation(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, res)
}

func (s *Server) handleAsync(w http.ResponseWriter, r *http.Request) {
	res, err := s.bench.AsyncOperation(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, res)
}

func (s *Server) handleMultipleBlocking(w http.ResponseWriter, r *http.Request) {
	n, err := s.sizeParam(r, "operations", 10)
	if err != nil {
		s.sendError(w, err)
		return
	}
	res, err := s.bench.MultipleBlocking(r.Context(), n)
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, res)
}

func (s *Server) handleManualCreation(w http.ResponseWriter, r *http.Request) {
	res, err := s.bench.SpawnManual(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, res)
}

func (s *Server) handleFactoryCreation(w http.ResponseWriter, r *http.Request) {
	res, err := s.bench.SpawnFromFactory(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, res)
}

func (s *Server) handleThreadInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.bench.ThreadInfo(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, info)
}

func (s *Server) handleSequentialCalls(w http.ResponseWriter, r *http.Request) {
	res, err := s.bench.SequentialCalls(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, map[string]any{
		"message":   res.String(),
		"responses": res.Responses,
		"worker":    res.Worker,
		"elapsedMs": res.Elapsed.Milliseconds(),
	})
}

func (s *Server) handleErrorHandling(w http.ResponseWriter, r *http.Request) {
	msg, err := s.bench.ErrorHandling(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, map[string]any{"message": msg})
}

func (s *Server) handleCompareSchedulers(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.sizeParam(r, "tasks", 5)
	if err != nil {
		s.sendError(w, err)
		return
	}
	res, err := s.bench.CompareSchedulers(r.Context(), tasks)
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, map[string]any{
		"summary":         res.String(),
		"pipelines":       res.Pipelines,
		"totalDurationMs": res.ElapsedMillis(),
	})
}

func (s *Server) handleStressTest(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.sizeParam(r, "tasks", 1000)
	if err != nil {
		s.sendError(w, err)
		return
	}
	res, err := s.bench.StressTest(r.Context(), tasks)
	if err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, s.bench.Report())
}

// APIVersion is reported by /api/info.
const APIVersion = "1.0.0"

// APIInfo describes the service and where its endpoint groups live.
type APIInfo struct {
	Name                        string            `json:"name"`
	Version                     string            `json:"version"`
	Description                 string            `json:"description"`
	GoVersion                   string            `json:"goVersion"`
	LightweightWorkersSupported bool              `json:"lightweightWorkersSupported"`
	Endpoints                   map[string]string `json:"endpoints"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	report := s.bench.Aggregator().Snapshot()
	sendJSON(w, APIInfo{
		Name:                        "taskbench",
		Version:                     APIVersion,
		Description:                 "Compares per-task goroutines, a bounded OS-thread pool and a streaming dispatcher",
		GoVersion:                   report.System.GoVersion,
		LightweightWorkersSupported: report.System.IsSupported,
		Endpoints: map[string]string{
			"dispatch":   "/api/dispatch/**",
			"report":     "/api/metrics/report",
			"systemInfo": "/api/system-info",
			"info":       "/api/info",
		},
	})
}

// SystemInfo is the runtime and memory view served by /api/system-info.
type SystemInfo struct {
	Runtime    core.SystemInfo  `json:"runtime"`
	Memory     core.MemoryStats `json:"memory"`
	Processors int              `json:"processors"`
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	report := s.bench.Aggregator().Snapshot()
	res := report.Resources
	sendJSON(w, SystemInfo{
		Runtime: report.System,
		Memory: core.MemoryStats{
			Used: res.UsedMemoryBytes,
			Free: res.FreeMemoryBytes,
			Max:  res.MaxMemoryBytes,
		},
		Processors: res.AvailableProcessors,
	})
}

// =============================================================================
// Helpers
// =============================================================================

// sizeParam reads a batch size query parameter in [0, MaxBatchSize].
func (s *Server) sizeParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", core.ErrInvalidBatchSize, name, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s=%d", core.ErrInvalidBatchSize, name, n)
	}
	if limit := s.bench.MaxBatchSize(); n > limit {
		return 0, fmt.Errorf("%w: %s=%d exceeds the limit of %d", core.ErrInvalidBatchSize, name, n, limit)
	}
	return n, nil
}

// statusFor maps batch-level errors onto HTTP status codes. Partial task
// failures never get here; they are reported inside a 200 response.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidBatchSize), errors.Is(err, core.ErrUnknownWorkload):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStrategyUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", core.F("status", status), core.F("error", err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}
