// Package gateway serves indicator lines to chart clients over WebSocket.
// The Hub is an overlay.Surface: every SetLine/RemoveLine becomes an
// envelope broadcast to the clients watching that chart.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"chartengine/internal/overlay"

	"github.com/gorilla/websocket"
)

const defaultReplayCap = 500

// chartState is what the hub remembers per chart.
type chartState struct {
	seq    int64
	lines  map[string][]byte // current line envelopes, sent to new subscribers
	replay *ReplayBuffer
}

// Hub manages WebSocket clients and fans out line changes.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	charts  map[string]*chartState
	seq     int64

	replayCap   int
	log         *slog.Logger
	Broadcaster *Broadcaster
}

// NewHub creates a Hub keeping replayCap envelopes per chart for backfill.
func NewHub(replayCap int, log *slog.Logger) *Hub {
	if replayCap <= 0 {
		replayCap = defaultReplayCap
	}
	h := &Hub{
		clients:   make(map[*Client]bool),
		charts:    make(map[string]*chartState),
		replayCap: replayCap,
		log:       log.With("component", "gateway"),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// SetLine broadcasts a line to the chart's clients.
func (h *Hub) SetLine(_ context.Context, line overlay.Line) error {
	data, err := json.Marshal(line.Data)
	if err != nil {
		return err
	}
	h.Broadcaster.Broadcast(EnvelopeLine, line, data)
	return nil
}

// RemoveLine tells the chart's clients to drop a line.
func (h *Hub) RemoveLine(_ context.Context, chart, name string) error {
	h.Broadcaster.Broadcast(EnvelopeRemove, overlay.Line{Chart: chart, Name: name}, nil)
	return nil
}

// state returns the chart state, creating it. Caller holds h.mu.
func (h *Hub) state(chart string) *chartState {
	st, ok := h.charts[chart]
	if !ok {
		st = &chartState{
			lines:  make(map[string][]byte),
			replay: NewReplayBuffer(h.replayCap),
		}
		h.charts[chart] = st
	}
	return st
}

// HandleWSRequest registers an upgraded connection. charts pre-subscribes
// the client; with none it receives every chart.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, charts []string) {
	client := newClient(h, conn)
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", count)

	if len(charts) > 0 {
		client.subscribe(charts)
	}
	client.sendInitialState(charts)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChartSeq returns the latest sequence number of a chart.
func (h *Hub) ChartSeq(chart string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.charts[chart]; ok {
		return st.seq
	}
	return 0
}

// GetReplayRange returns buffered envelopes for a chart with seq in
// [fromSeq, toSeq]. Used by /api/missed for client gap backfill.
func (h *Hub) GetReplayRange(chart string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	st, ok := h.charts[chart]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return st.replay.Range(fromSeq, toSeq)
}

// LineNames returns the names of the lines currently shown on a chart.
func (h *Hub) LineNames(chart string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.charts[chart]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(st.lines))
	for n := range st.lines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
