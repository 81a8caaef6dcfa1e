package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the WebSocket endpoint and the line backfill
// endpoints on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	// ?charts=BTCUSD,ETHUSD pre-subscribes the connection.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("ws upgrade failed", "error", err)
			return
		}
		var charts []string
		if q := r.URL.Query().Get("charts"); q != "" {
			charts = strings.Split(q, ",")
		}
		hub.HandleWSRequest(conn, charts)
	})

	// Envelopes a client missed, found via a chart_seq gap.
	mux.HandleFunc("GET /api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		chart := q.Get("chart")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
		if chart == "" || errFrom != nil || errTo != nil || from > to {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chart, from and to are required"})
			return
		}

		msgs := hub.GetReplayRange(chart, from, to)
		raw := make([]json.RawMessage, len(msgs))
		for i, m := range msgs {
			raw[i] = m
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"chart":    chart,
			"seq":      hub.ChartSeq(chart),
			"messages": raw,
		})
	})

	mux.HandleFunc("GET /api/lines", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		chart := r.URL.Query().Get("chart")
		if chart == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chart is required"})
			return
		}
		names := hub.LineNames(chart)
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"chart": chart, "lines": names})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
