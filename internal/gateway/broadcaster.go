package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"chartengine/internal/overlay"
)

// Envelope types.
const (
	EnvelopeLine   = "line"
	EnvelopeRemove = "remove"
)

// Envelope is the message clients receive. Broadcast builds the same shape
// by hand; the struct is used for decoding and for initial-state frames.
type Envelope struct {
	Type     string          `json:"type"`
	Chart    string          `json:"chart"`
	Name     string          `json:"name"`
	Pane     string          `json:"pane,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	TS       string          `json:"ts"`
	Seq      int64           `json:"seq"`
	ChartSeq int64           `json:"chart_seq"`
	Initial  bool            `json:"initial,omitempty"`
}

// Broadcaster constructs envelope JSON and sends it to matching clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast records a line change for the chart and sends it to every
// client subscribed to that chart. data is the JSON point array (nil for
// removals). Includes a per-chart seq for client-side gap detection.
func (b *Broadcaster) Broadcast(typ string, line overlay.Line, data []byte) {
	now := time.Now().UTC()

	b.hub.mu.Lock()
	st := b.hub.state(line.Chart)
	st.seq++
	chartSeq := st.seq
	b.hub.seq++
	seq := b.hub.seq

	buf := appendEnvelope(make([]byte, 0, len(data)+192), typ, line, data, now, seq, chartSeq)
	if typ == EnvelopeRemove {
		delete(st.lines, line.Name)
	} else {
		st.lines[line.Name] = buf
	}
	st.replay.Push(chartSeq, buf)
	b.hub.mu.Unlock()

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.wants(line.Chart) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// appendEnvelope hand-crafts the envelope JSON.
func appendEnvelope(buf []byte, typ string, line overlay.Line, data []byte, now time.Time, seq, chartSeq int64) []byte {
	buf = append(buf, `{"type":`...)
	buf = appendString(buf, typ)
	buf = append(buf, `,"chart":`...)
	buf = appendString(buf, line.Chart)
	buf = append(buf, `,"name":`...)
	buf = appendString(buf, line.Name)
	if line.Pane != "" {
		buf = append(buf, `,"pane":`...)
		buf = appendString(buf, string(line.Pane))
	}
	if data != nil {
		buf = append(buf, `,"data":`...)
		buf = append(buf, data...)
	}
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"chart_seq":`...)
	buf = strconv.AppendInt(buf, chartSeq, 10)
	buf = append(buf, '}')
	return buf
}

func appendString(buf []byte, s string) []byte {
	q, _ := json.Marshal(s)
	return append(buf, q...)
}
