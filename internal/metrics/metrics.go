package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the backtest pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Pipeline
	RunsTotal           *prometheus.CounterVec   // labels: indicator, status
	TradesTotal         *prometheus.CounterVec   // labels: indicator
	IndicatorComputeDur *prometheus.HistogramVec // labels: indicator
	RunDur              prometheus.Histogram
	MonteCarloDur       prometheus.Histogram
	SweepsTotal         prometheus.Counter
	LastSweepTS         prometheus.Gauge

	// Storage
	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Report feed
	FeedClients prometheus.Gauge
	FeedDrops   prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the process default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalperf_runs_total",
			Help: "Backtest runs completed (by indicator and status)",
		}, []string{"indicator", "status"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalperf_trades_total",
			Help: "Trades extracted from direction series (by indicator)",
		}, []string{"indicator"}),
		IndicatorComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalperf_indicator_compute_duration_seconds",
			Help:    "Indicator evaluation latency per series",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"indicator"}),
		RunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalperf_run_duration_seconds",
			Help:    "End-to-end latency of one series/rule run",
			Buckets: prometheus.DefBuckets,
		}),
		MonteCarloDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalperf_montecarlo_duration_seconds",
			Help:    "Monte Carlo bootstrap latency per report",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalperf_sweeps_total",
			Help: "Parameter sweeps executed",
		}),
		LastSweepTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalperf_last_sweep_timestamp_seconds",
			Help: "Unix time of the last completed sweep",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalperf_sqlite_commit_duration_seconds",
			Help:    "SQLite transaction commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalperf_redis_write_duration_seconds",
			Help:    "Redis report cache write latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalperf_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalperf_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalperf_redis_buffered_writes_total",
			Help: "Report writes buffered locally while Redis was unavailable",
		}),

		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalperf_feed_clients",
			Help: "Connected WebSocket report subscribers",
		}),
		FeedDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalperf_feed_drops_total",
			Help: "Report messages dropped for slow subscribers",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.TradesTotal,
		m.IndicatorComputeDur,
		m.RunDur,
		m.MonteCarloDur,
		m.SweepsTotal,
		m.LastSweepTS,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.FeedClients,
		m.FeedDrops,
	)

	return m
}

// ObserveCompute records one indicator evaluation.
func (m *Metrics) ObserveCompute(indicator string, d time.Duration) {
	if m == nil {
		return
	}
	m.IndicatorComputeDur.WithLabelValues(indicator).Observe(d.Seconds())
}

// ObserveRun records a finished run. status is "ok" or "error".
func (m *Metrics) ObserveRun(indicator, status string, trades int, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(indicator, status).Inc()
	if trades > 0 {
		m.TradesTotal.WithLabelValues(indicator).Add(float64(trades))
	}
	m.RunDur.Observe(d.Seconds())
}

// ObserveMonteCarlo records one bootstrap study.
func (m *Metrics) ObserveMonteCarlo(d time.Duration) {
	if m == nil {
		return
	}
	m.MonteCarloDur.Observe(d.Seconds())
}

// ObserveSweep records a completed sweep at t.
func (m *Metrics) ObserveSweep(t time.Time) {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
	m.LastSweepTS.Set(float64(t.Unix()))
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastRefresh    time.Time `json:"last_refresh"`
	LastRefreshErr string    `json:"last_refresh_error"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// SetRefresh records the outcome of a scheduled refresh.
func (h *HealthStatus) SetRefresh(t time.Time, err error) {
	h.mu.Lock()
	h.LastRefresh = t
	h.LastRefreshErr = ""
	if err != nil {
		h.LastRefreshErr = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisOK := !h.RedisEnabled || h.RedisConnected
	if !redisOK || !h.SQLiteOK || h.LastRefreshErr != "" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && !redisOK {
		overallStatus = "unhealthy"
	}

	refreshAge := ""
	if !h.LastRefresh.IsZero() {
		refreshAge = time.Since(h.LastRefresh).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		RedisEnabled    bool     `json:"redis_enabled"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		LastRefresh     string   `json:"last_refresh"`
		RefreshAge      string   `json:"refresh_age"`
		LastRefreshErr  string   `json:"last_refresh_error,omitempty"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastRefresh:     h.LastRefresh.Format(time.RFC3339),
		RefreshAge:      refreshAge,
		LastRefreshErr:  h.LastRefreshErr,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer serves the
// process default registry.
func NewServer(addr string, health *HealthStatus, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server mux (used by tests).
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
