package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskbench "github.com/Swind/go-task-bench"
	"github.com/Swind/go-task-bench/core"
)

type staticSource struct{}

func (staticSource) CurrentLightweightWorkerEstimate() int { return 3 }
func (staticSource) CurrentOSWorkerStats() core.OSWorkerStats {
	return core.OSWorkerStats{Count: 5, Peak: 5, TotalStarted: 5, DaemonCount: 5}
}
func (staticSource) MemoryStats() core.MemoryStats { return core.MemoryStats{Used: 1, Free: 1, Max: 2} }
func (staticSource) ProcessorCount() int           { return 2 }

func newTestServer(t *testing.T, mutate ...func(*taskbench.Options)) *Server {
	t.Helper()
	opts := taskbench.DefaultOptions()
	opts.PoolSize = 4
	opts.LockOSThread = false
	opts.Source = staticSource{}
	opts.Workloads.Generic.Delay = 5 * time.Millisecond
	opts.Workloads.Blocking.Delay = 5 * time.Millisecond
	opts.Workloads.Reactive.Delay = time.Millisecond
	opts.Workloads.SchedulerCompare.Delay = 5 * time.Millisecond
	opts.Workloads.Parallel.Delay = 5 * time.Millisecond
	opts.AsyncDelay = 5 * time.Millisecond
	opts.ServiceCalls = []core.ServiceCall{{Name: "Service A", Delay: time.Millisecond}}
	for _, m := range mutate {
		m(&opts)
	}
	bench, err := taskbench.New(opts)
	require.NoError(t, err)
	t.Cleanup(bench.Close)
	return New(bench, nil, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	})))
}

func get(t *testing.T, s *Server, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestServer_Compare(t *testing.T) {
	s := newTestServer(t)

	rec, resp := get(t, s, "/api/dispatch/compare?tasks=8&strategies=per-task,pool")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Len(t, data, 2)
	bounded := data["bounded_pool"].(map[string]any)
	assert.EqualValues(t, 8, bounded["succeeded"])
}

func TestServer_StatusMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"negative size", "/api/dispatch/compare?tasks=-1", http.StatusBadRequest},
		{"non-numeric size", "/api/dispatch/run/pool?tasks=many", http.StatusBadRequest},
		{"oversized batch", "/api/dispatch/run/pool?tasks=1000000000", http.StatusBadRequest},
		{"oversized stress test", "/api/dispatch/stress-test?tasks=1000000000", http.StatusBadRequest},
		{"unknown strategy", "/api/dispatch/run/carrier-pigeon", http.StatusServiceUnavailable},
		{"unknown compare strategy", "/api/dispatch/compare?strategies=nope", http.StatusServiceUnavailable},
		{"unknown workload", "/api/dispatch/run/pool?workload=mystery", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := get(t, s, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestServer_PartialFailureIsOK(t *testing.T) {
	s := newTestServer(t, func(o *taskbench.Options) {
		o.Workloads.Generic.FailureRate = 1
	})

	rec, resp := get(t, s, "/api/dispatch/run/per_task_worker?tasks=4")

	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 4, data["failed"])
	assert.Equal(t, map[string]any{"simulated_error": float64(4)}, data["failures"])
}

func TestServer_Demos(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{
		"/api/dispatch/blocking",
		"/api/dispatch/multiple-blocking?operations=3",
		"/api/dispatch/manual-creation?name=custom",
		"/api/dispatch/factory-creation",
		"/api/dispatch/thread-info",
		"/api/dispatch/sequential-calls",
		"/api/dispatch/error-handling",
		"/api/dispatch/compare-schedulers?tasks=4",
		"/api/dispatch/stress-test?tasks=50",
		"/api/dispatch/async",
		"/api/metrics/report",
		"/api/info",
		"/api/system-info",
	} {
		t.Run(target, func(t *testing.T) {
			rec, resp := get(t, s, target)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.True(t, resp.Success)
			assert.NotNil(t, resp.Data)
		})
	}
}

func TestServer_InfoEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec, resp := get(t, s, "/api/info")
	require.Equal(t, http.StatusOK, rec.Code)
	info := resp.Data.(map[string]any)
	assert.Equal(t, APIVersion, info["version"])
	assert.Equal(t, true, info["lightweightWorkersSupported"])
	assert.Contains(t, info["endpoints"], "systemInfo")

	rec, resp = get(t, s, "/api/system-info")
	require.Equal(t, http.StatusOK, rec.Code)
	sys := resp.Data.(map[string]any)
	assert.EqualValues(t, 2, sys["processors"])
	assert.Equal(t, map[string]any{"used": float64(1), "free": float64(1), "max": float64(2)}, sys["memory"])
}

func TestServer_AsyncRunsOnLightweightWorker(t *testing.T) {
	s := newTestServer(t)

	rec, resp := get(t, s, "/api/dispatch/async")

	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Contains(t, data["message"], "Async operation completed on")
	worker := data["worker"].(map[string]any)
	assert.Equal(t, true, worker["isLightweight"])
}

func TestServer_ManualCreationName(t *testing.T) {
	s := newTestServer(t)

	_, resp := get(t, s, "/api/dispatch/manual-creation?name=custom")

	worker := resp.Data.(map[string]any)["worker"].(map[string]any)
	assert.Equal(t, "custom", worker["name"])
	assert.Equal(t, true, worker["isLightweight"])
}

func TestServer_MetricsHandler(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# metrics"))
}

// TestServer_Stream verifies the websocket stream
// Given: A running server
// When: A client asks for 5 outcomes with a recovery placeholder
// Then: It receives 5 outcome frames, a summary and a normal close
func TestServer_Stream(t *testing.T) {
	// Arrange
	ts := httptest.NewServer(newTestServer(t))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/dispatch/stream?count=5&recover=fallback"

	// Act
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var outcomes int
	var summary *StreamMessage
	for summary == nil {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case "outcome":
			outcomes++
			require.NotNil(t, msg.Outcome)
			assert.True(t, msg.Outcome.Succeeded())
		case "summary":
			summary = &msg
		default:
			t.Fatalf("unexpected frame %+v", msg)
		}
	}

	// Assert
	assert.Equal(t, 5, outcomes)
	require.NotNil(t, summary.Summary)
	assert.Equal(t, 5, summary.Summary.Succeeded)
	assert.Equal(t, core.StreamAllSettled, summary.State)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "err = %v", err)
}

func TestServer_StreamInvalidCount(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{
		"/api/dispatch/stream?count=-4",
		"/api/dispatch/stream?count=1000000000",
	} {
		rec, resp := get(t, s, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.False(t, resp.Success)
	}
}
