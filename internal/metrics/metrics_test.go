package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// gathered returns the value of the counter or gauge name with the given
// label pairs, or -1 if it was not collected.
func gathered(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for i := 0; i+1 < len(labels); i += 2 {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == labels[i] && lp.GetValue() == labels[i+1] {
						found = true
					}
				}
				if !found {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return -1
}

func TestMetrics_Observers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveCompute("SMA", time.Millisecond, 41)
	m.ObserveCompute("SMA", time.Millisecond, 9)
	assert.Equal(t, 50.0, gathered(t, reg, "indengine_points_total", "kind", "SMA"))

	m.ObserveSurface("redis", "set", nil)
	m.ObserveSurface("redis", "set", errors.New("down"))
	assert.Equal(t, 2.0, gathered(t, reg, "indengine_surface_calls_total", "surface", "redis", "op", "set"))
	assert.Equal(t, 1.0, gathered(t, reg, "indengine_surface_errors_total", "surface", "redis", "op", "set"))

	m.ObserveBreaker(0, 1)
	m.ObserveBreaker(1, 2)
	m.ObserveBreaker(2, 1)
	assert.Equal(t, 1.0, gathered(t, reg, "indengine_redis_circuit_breaker_state"))
	assert.Equal(t, 2.0, gathered(t, reg, "indengine_redis_circuit_breaker_trips_total"))
}

func TestHealth_Status(t *testing.T) {
	h := NewHealthStatus()
	h.SetCharts(2)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.CheckSource(context.Background(), pinger{})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 2.0, body["charts"])

	// Redis matters only when enabled.
	h.SetRedisEnabled(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.CheckSource(context.Background(), pinger{err: errors.New("locked")})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}
