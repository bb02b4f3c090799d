package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCompute("MACD", time.Millisecond)
	m.ObserveRun("MACD", "ok", 3, time.Millisecond)
	m.ObserveMonteCarlo(time.Millisecond)
	m.ObserveSweep(time.Now())
}

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun("Wave", "ok", 4, 10*time.Millisecond)
	m.ObserveRun("Wave", "ok", 0, 10*time.Millisecond)
	m.ObserveRun("Wave", "error", 0, time.Millisecond)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("Wave", "ok")); got != 2 {
		t.Errorf("runs ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("Wave", "error")); got != 1 {
		t.Errorf("runs error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("Wave")); got != 4 {
		t.Errorf("trades = %v, want 4", got)
	}
}

func TestObserveSweep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ts := time.Unix(1700000000, 0)
	m.ObserveSweep(ts)
	if got := testutil.ToFloat64(m.SweepsTotal); got != 1 {
		t.Errorf("sweeps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LastSweepTS); got != 1700000000 {
		t.Errorf("last sweep ts = %v", got)
	}
}

func TestHealthz(t *testing.T) {
	h := NewHealthStatus()
	h.SetSQLiteOK(true)
	h.SetRefresh(time.Now(), nil)

	srv := NewServer(":0", h, prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}

	// Redis enabled but never connected → degraded
	h.SetRedisEnabled(true)
	h.SetRefresh(time.Now(), errors.New("sweep failed"))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sweep failed") {
		t.Errorf("body should carry the refresh error: %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveRun("MACD", "ok", 1, time.Millisecond)

	srv := NewServer(":0", NewHealthStatus(), reg)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `signalperf_runs_total{indicator="MACD",status="ok"} 1`) {
		t.Errorf("metrics output missing run counter:\n%s", rec.Body.String())
	}
}
