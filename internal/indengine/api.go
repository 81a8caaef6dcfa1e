package indengine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"chartengine/internal/indicator"
	"chartengine/internal/logger"
	"chartengine/internal/model"
)

const maxBodyBytes = 8 << 20

type selectRequest struct {
	Indicator string `json:"indicator"`
}

type timeframeRequest struct {
	Timeframe string `json:"timeframe"`
}

// Handler returns the chart API:
//
//	GET    /api/charts
//	GET    /api/charts/{symbol}
//	POST   /api/charts/{symbol}/indicator   {"indicator":"SMA:20"}
//	DELETE /api/charts/{symbol}/indicator
//	POST   /api/charts/{symbol}/series      [{"time":..,"open":..,...}]
//	POST   /api/charts/{symbol}/timeframe   {"timeframe":"4h"}
//	GET    /api/charts/{symbol}/insight
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes adds the chart API to mux.
func (svc *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/charts", svc.traced(svc.handleList))
	mux.HandleFunc("GET /api/charts/{symbol}", svc.traced(svc.handleStatus))
	mux.HandleFunc("POST /api/charts/{symbol}/indicator", svc.traced(svc.handleSelect))
	mux.HandleFunc("DELETE /api/charts/{symbol}/indicator", svc.traced(svc.handleClear))
	mux.HandleFunc("POST /api/charts/{symbol}/series", svc.traced(svc.handleSeries))
	mux.HandleFunc("POST /api/charts/{symbol}/timeframe", svc.traced(svc.handleTimeframe))
	mux.HandleFunc("GET /api/charts/{symbol}/insight", svc.traced(svc.handleInsight))
}

// traced stamps each request with a trace id.
func (svc *Service) traced(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid := logger.GenerateTraceID(r.PathValue("symbol"), time.Now())
		w.Header().Set("X-Trace-Id", tid)
		next(w, r.WithContext(logger.WithTraceID(r.Context(), tid)))
	}
}

func (svc *Service) handleList(w http.ResponseWriter, r *http.Request) {
	out := make([]ChartStatus, 0, len(svc.symbols))
	for _, sym := range svc.symbols {
		st, err := svc.Status(sym)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (svc *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	svc.respond(w, r, r.PathValue("symbol"), nil)
}

func (svc *Service) handleSelect(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	sel, err := indicator.ParseSelection(req.Indicator)
	if err != nil {
		svc.fail(w, r, err)
		return
	}
	svc.respond(w, r, symbol, svc.Select(r.Context(), symbol, sel))
}

func (svc *Service) handleClear(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	svc.respond(w, r, symbol, svc.Clear(r.Context(), symbol))
}

func (svc *Service) handleSeries(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	var s model.Series
	if !decode(w, r, &s) {
		return
	}
	svc.respond(w, r, symbol, svc.UpdateSeries(r.Context(), symbol, s))
}

func (svc *Service) handleTimeframe(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	var req timeframeRequest
	if !decode(w, r, &req) {
		return
	}
	svc.respond(w, r, symbol, svc.SetTimeframe(r.Context(), symbol, req.Timeframe))
}

func (svc *Service) handleInsight(w http.ResponseWriter, r *http.Request) {
	in, err := svc.Insight(r.PathValue("symbol"))
	if err != nil {
		svc.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// respond writes the chart status after an operation, or the error.
func (svc *Service) respond(w http.ResponseWriter, r *http.Request, symbol string, opErr error) {
	if opErr != nil {
		svc.fail(w, r, opErr)
		return
	}
	st, err := svc.Status(symbol)
	if err != nil {
		svc.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (svc *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	attrs := append([]any{"path", r.URL.Path, "status", status, "error", err}, logger.LogWithTrace(r.Context())...)
	if status >= http.StatusInternalServerError {
		svc.log.Error("request failed", attrs...)
	} else {
		svc.log.Info("request rejected", attrs...)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps an operation error to an HTTP status. Surface failures
// leave the operation applied and surface as 502.
func statusFor(err error) int {
	var verr *model.ValidationError
	var serr *indicator.SelectionError
	switch {
	case errors.Is(err, ErrUnknownChart):
		return http.StatusNotFound
	case errors.As(err, &verr), errors.As(err, &serr), errors.Is(err, ErrInvalidTimeframe):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
