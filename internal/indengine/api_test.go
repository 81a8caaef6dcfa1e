package indengine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chartengine/internal/insight"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) ChartStatus {
	t.Helper()
	var st ChartStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestAPI_SelectAndClear(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.svc.Handler()

	rec := do(t, h, http.MethodPost, "/api/charts/BTCUSD/timeframe", `{"timeframe":"1h"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Trace-Id"), "BTCUSD-"))

	rec = do(t, h, http.MethodPost, "/api/charts/BTCUSD/indicator", `{"indicator":"RSI"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeStatus(t, rec)
	assert.Equal(t, "RSI:14", st.Indicator)
	assert.Equal(t, []string{"RSI_14"}, st.Lines)

	line, ok := f.surface.Line("BTCUSD", "RSI_14")
	require.True(t, ok)
	assert.Equal(t, "oscillator", string(line.Pane))
	assert.Len(t, line.Data, 46)

	rec = do(t, h, http.MethodDelete, "/api/charts/BTCUSD/indicator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeStatus(t, rec)
	assert.Equal(t, "inactive", st.State)
	assert.Empty(t, st.Lines)
	assert.Empty(t, f.surface.Lines("BTCUSD"))
}

func TestAPI_Errors(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.svc.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown chart", http.MethodGet, "/api/charts/DOGE", "", http.StatusNotFound},
		{"bad selection", http.MethodPost, "/api/charts/BTCUSD/indicator", `{"indicator":"SMA:0"}`, http.StatusUnprocessableEntity},
		{"unknown kind", http.MethodPost, "/api/charts/BTCUSD/indicator", `{"indicator":"VWAP"}`, http.StatusUnprocessableEntity},
		{"bad json", http.MethodPost, "/api/charts/BTCUSD/indicator", `{`, http.StatusBadRequest},
		{"bad timeframe", http.MethodPost, "/api/charts/BTCUSD/timeframe", `{"timeframe":"3x"}`, http.StatusUnprocessableEntity},
		{"unsorted series", http.MethodPost, "/api/charts/BTCUSD/series",
			`[{"time":2,"open":1,"high":1,"low":1,"close":1},{"time":1,"open":1,"high":1,"low":1,"close":1}]`,
			http.StatusUnprocessableEntity},
		{"wrong method", http.MethodPut, "/api/charts/BTCUSD/indicator", `{}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_SeriesRecomputes(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.svc.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/charts/ETHUSD/indicator", `{"indicator":"SMA:3"}`).Code)

	body := `[
		{"time":60,"open":100,"high":100,"low":100,"close":100},
		{"time":120,"open":101,"high":101,"low":101,"close":101},
		{"time":180,"open":102,"high":102,"low":102,"close":102},
		{"time":240,"open":103,"high":103,"low":103,"close":103}
	]`
	rec := do(t, h, http.MethodPost, "/api/charts/ETHUSD/series", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decodeStatus(t, rec).Candles)

	line, ok := f.surface.Line("ETHUSD", "SMA_3")
	require.True(t, ok)
	require.Len(t, line.Data, 2)
	assert.Equal(t, int64(180), line.Data[0].Time)
	assert.Equal(t, 101.0, line.Data[0].Value)
	assert.Equal(t, 102.0, line.Data[1].Value)
}

func TestAPI_ListAndInsight(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.svc.Handler()

	rec := do(t, h, http.MethodGet, "/api/charts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ChartStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "BTCUSD", list[0].Symbol)
	assert.Equal(t, "ETHUSD", list[1].Symbol)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/charts/BTCUSD/timeframe", `{"timeframe":"1h"}`).Code)
	rec = do(t, h, http.MethodGet, "/api/charts/BTCUSD/insight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var in insight.Insight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &in))
	assert.Equal(t, insight.Bullish, in.Sentiment)
	assert.Equal(t, "BTCUSD", in.Indicators.Symbol)
}
