package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine.
type Metrics struct {
	// Indicator computation
	ComputeDur     *prometheus.HistogramVec // labels: kind
	PointsTotal    *prometheus.CounterVec   // labels: kind
	SeriesRejected prometheus.Counter
	ActiveCharts   prometheus.Gauge

	// Surface delivery
	SurfaceCalls  *prometheus.CounterVec // labels: surface, op
	SurfaceErrors *prometheus.CounterVec // labels: surface, op

	// Source reads
	SourceReadDur prometheus.Histogram
	RefreshTotal  *prometheus.CounterVec // labels: result=ok|error

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indengine_compute_duration_seconds",
			Help:    "Indicator computation latency over a full series",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"kind"}),
		PointsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_points_total",
			Help: "Indicator points computed",
		}, []string{"kind"}),
		SeriesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_series_rejected_total",
			Help: "Series refreshes rejected by validation",
		}),
		ActiveCharts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_active_charts",
			Help: "Charts with an active indicator",
		}),
		SurfaceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_surface_calls_total",
			Help: "Line set/remove calls per chart surface",
		}, []string{"surface", "op"}),
		SurfaceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_surface_errors_total",
			Help: "Failed line set/remove calls per chart surface",
		}, []string{"surface", "op"}),
		SourceReadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_source_read_duration_seconds",
			Help:    "Candle source read latency",
			Buckets: prometheus.DefBuckets,
		}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_refresh_total",
			Help: "Chart refreshes by result",
		}, []string{"result"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.ComputeDur,
		m.PointsTotal,
		m.SeriesRejected,
		m.ActiveCharts,
		m.SurfaceCalls,
		m.SurfaceErrors,
		m.SourceReadDur,
		m.RefreshTotal,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// ObserveCompute records one indicator computation.
func (m *Metrics) ObserveCompute(kind string, d time.Duration, points int) {
	m.ComputeDur.WithLabelValues(kind).Observe(d.Seconds())
	m.PointsTotal.WithLabelValues(kind).Add(float64(points))
}

// ObserveSurface records one surface call.
func (m *Metrics) ObserveSurface(surface, op string, err error) {
	m.SurfaceCalls.WithLabelValues(surface, op).Inc()
	if err != nil {
		m.SurfaceErrors.WithLabelValues(surface, op).Inc()
	}
}

// ObserveBreaker records a circuit breaker state change.
func (m *Metrics) ObserveBreaker(from, to int) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 && from != 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// Pinger is a dependency that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SourceOK        bool      `json:"source_ok"`
	RedisEnabled    bool      `json:"redis_enabled"`
	RedisConnected  bool      `json:"redis_connected"`
	Charts          int       `json:"charts"`
	LastRefresh     time.Time `json:"last_refresh"`
	SourceLatencyMs float64   `json:"source_latency_ms"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetCharts(n int) {
	h.mu.Lock()
	h.Charts = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastRefresh(t time.Time) {
	h.mu.Lock()
	h.LastRefresh = t
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

// CheckSource pings the candle source and records latency + health.
func (h *HealthStatus) CheckSource(ctx context.Context, src Pinger) {
	start := time.Now()
	err := src.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SourceOK = err == nil
	h.SourceLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, src Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(checkCtx, rdb)
				}
				if src != nil {
					h.CheckSource(checkCtx, src)
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

	redisDown := h.RedisEnabled && !h.RedisConnected
	if !h.SourceOK || redisDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SourceOK && redisDown {
		overallStatus = "unhealthy"
	}

	refreshAge := ""
	if !h.LastRefresh.IsZero() {
		refreshAge = time.Since(h.LastRefresh).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Charts          int     `json:"charts"`
		LastRefresh     string  `json:"last_refresh"`
		RefreshAge      string  `json:"refresh_age"`
		SourceOK        bool    `json:"source_ok"`
		SourceLatencyMs float64 `json:"source_latency_ms"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Charts:          h.Charts,
		LastRefresh:     h.LastRefresh.Format(time.RFC3339),
		RefreshAge:      refreshAge,
		SourceOK:        h.SourceOK,
		SourceLatencyMs: h.SourceLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
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
	log    *slog.Logger
}

// NewServer creates a metrics and health server serving metrics from g.
func NewServer(addr string, health *HealthStatus, g prometheus.Gatherer, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		log:    log.With("component", "metrics"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
