package service

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/convtest/metrics"
	"github.com/ethereum-optimism/infra/convtest/types"
)

func TestHealthz(t *testing.T) {
	h := NewHealthzServer()
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func getStatus(t *testing.T, h *HealthzServer) StatusResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestStatusLifecycle(t *testing.T) {
	svc := New(Config{}, nil)
	assert.Equal(t, StateIdle, getStatus(t, svc.Healthz).State)

	svc.RunStarted("run-1", 2)
	resp := getStatus(t, svc.Healthz)
	assert.Equal(t, StateRunning, resp.State)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 2, resp.Total)

	start := time.Now()
	summary := types.NewRunSummary("run-1", 2, start)
	summary.Record(&types.CaseResult{
		Case:    types.TestCase{Name: "modelA", Ordinal: 1},
		Outcome: types.Outcome{Status: types.TestStatusPass},
	})
	summary.Record(&types.CaseResult{
		Case:    types.TestCase{Name: "modelB", Ordinal: 2},
		Outcome: types.Outcome{Status: types.TestStatusFail, Category: types.CategoryAccuracy},
	})
	summary.Finalize(start.Add(2 * time.Second))
	svc.RunCompleted(summary)

	resp = getStatus(t, svc.Healthz)
	assert.Equal(t, StateCompleted, resp.State)
	assert.Equal(t, "fail", resp.Status)
	assert.Equal(t, 1, resp.Passed)
	assert.Equal(t, 1, resp.Failed)
	assert.InDelta(t, 2.0, resp.Duration, 0.001)
	require.Len(t, resp.Cases, 2)
	assert.Equal(t, CaseStatus{Name: "modelB", Status: "fail", Category: "accuracy failure"}, resp.Cases[1])
}

func TestUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthzServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	svc := New(Config{}, nil)
	svc.Start(t.Context())
	svc.Shutdown()
}

func TestMetricsHandler(t *testing.T) {
	metrics.RecordError("metrics_handler_test")
	m := &MetricsServer{}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "convtest_errors_total")

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServiceStartAndShutdown(t *testing.T) {
	healthzAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(freePort(t)))
	metricsPort := freePort(t)
	svc := New(Config{
		HealthzEnabled: true,
		HealthzAddr:    healthzAddr,
		MetricsEnabled: true,
		MetricsHost:    "127.0.0.1",
		MetricsPort:    metricsPort,
	}, nil)
	svc.Start(t.Context())

	healthzURL := "http://" + healthzAddr + "/healthz"
	metricsURL := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(metricsPort)) + "/metrics"
	reachable := func(url string) bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
	require.Eventually(t, func() bool { return reachable(healthzURL) }, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return reachable(metricsURL) }, 5*time.Second, 20*time.Millisecond)

	svc.Shutdown()
	assert.False(t, reachable(healthzURL))
	assert.False(t, reachable(metricsURL))
}

func TestStartAfterShutdown(t *testing.T) {
	h := NewHealthzServer()
	require.NoError(t, h.Shutdown())
	err := h.Start(t.Context(), "127.0.0.1:0")
	assert.True(t, errors.Is(err, http.ErrServerClosed))

	m := &MetricsServer{}
	require.NoError(t, m.Shutdown())
	err = m.Start(t.Context(), "127.0.0.1:0")
	assert.True(t, errors.Is(err, http.ErrServerClosed))
}
