package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chartengine/internal/indicator"
	"chartengine/internal/model"
	"chartengine/internal/overlay"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLine(chart, name string, values ...float64) overlay.Line {
	pts := make([]model.Point, len(values))
	for i, v := range values {
		pts[i] = model.Point{Time: 1704067200 + int64(i)*3600, Value: v}
	}
	return overlay.Line{Chart: chart, Name: name, Pane: indicator.PriceOverlay, Data: pts}
}

func TestHub_IsSurface(t *testing.T) {
	var _ overlay.Surface = NewHub(0, quietLogger())
}

func TestBroadcast_EnvelopeShape(t *testing.T) {
	hub := NewHub(10, quietLogger())
	ctx := context.Background()

	require.NoError(t, hub.SetLine(ctx, testLine("BTCUSD", "SMA_3", 1, 2)))
	require.NoError(t, hub.RemoveLine(ctx, "BTCUSD", "SMA_3"))

	msgs := hub.GetReplayRange("BTCUSD", 1, 2)
	require.Len(t, msgs, 2)

	var set, rm Envelope
	require.NoError(t, json.Unmarshal(msgs[0], &set))
	require.NoError(t, json.Unmarshal(msgs[1], &rm))

	assert.Equal(t, EnvelopeLine, set.Type)
	assert.Equal(t, "BTCUSD", set.Chart)
	assert.Equal(t, "SMA_3", set.Name)
	assert.Equal(t, "price", set.Pane)
	assert.Equal(t, int64(1), set.ChartSeq)
	var pts []model.Point
	require.NoError(t, json.Unmarshal(set.Data, &pts))
	require.Len(t, pts, 2)
	assert.Equal(t, 2.0, pts[1].Value)

	assert.Equal(t, EnvelopeRemove, rm.Type)
	assert.Empty(t, rm.Data)
	assert.Equal(t, int64(2), rm.ChartSeq)
	assert.Empty(t, hub.LineNames("BTCUSD"))
}

func TestBroadcast_SeqPerChart(t *testing.T) {
	hub := NewHub(10, quietLogger())
	ctx := context.Background()

	require.NoError(t, hub.SetLine(ctx, testLine("A", "EMA_2", 1)))
	require.NoError(t, hub.SetLine(ctx, testLine("B", "EMA_2", 1)))
	require.NoError(t, hub.SetLine(ctx, testLine("A", "RSI_14", 1)))

	assert.Equal(t, int64(2), hub.ChartSeq("A"))
	assert.Equal(t, int64(1), hub.ChartSeq("B"))
	assert.Equal(t, int64(0), hub.ChartSeq("C"))
	assert.Equal(t, []string{"EMA_2", "RSI_14"}, hub.LineNames("A"))
}

func TestAppendEnvelope_EscapesNames(t *testing.T) {
	line := overlay.Line{Chart: `we"ird`, Name: "x"}
	buf := appendEnvelope(nil, EnvelopeRemove, line, nil, time.Unix(0, 0).UTC(), 7, 3)

	var env Envelope
	require.NoError(t, json.Unmarshal(buf, &env))
	assert.Equal(t, `we"ird`, env.Chart)
	assert.Equal(t, int64(7), env.Seq)
	assert.Empty(t, env.Pane)
}

func TestSendInitialState_RemovedClient(t *testing.T) {
	hub := NewHub(10, quietLogger())
	require.NoError(t, hub.SetLine(context.Background(), testLine("BTCUSD", "SMA_3", 1)))

	c := newClient(hub, nil)
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()

	c.sendInitialState([]string{"BTCUSD"})
	require.Len(t, c.send, 1)

	// After removal the send channel is closed; queuing must be skipped.
	hub.RemoveClient(c)
	assert.NotPanics(t, func() { c.sendInitialState(nil) })
	assert.NotPanics(t, func() { c.sendInitialState([]string{"BTCUSD"}) })
	assert.Equal(t, 0, hub.ClientCount())
}

func TestRoutes_MissedAndLines(t *testing.T) {
	hub := NewHub(10, quietLogger())
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, hub.SetLine(ctx, testLine("BTCUSD", "SMA_3", float64(i))))
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/missed?chart=BTCUSD&from=2&to=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var missed struct {
		Seq      int64             `json:"seq"`
		Messages []json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missed))
	assert.Equal(t, int64(3), missed.Seq)
	assert.Len(t, missed.Messages, 2)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/missed?chart=BTCUSD&from=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lines?chart=BTCUSD", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chart":"BTCUSD","lines":["SMA_3"]}`, rec.Body.String())
}

// readEnvelopes reads one frame and splits coalesced messages.
func readEnvelopes(t *testing.T, conn *websocket.Conn) []Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var out []Envelope
	for _, part := range bytes.Split(frame, []byte{'\n'}) {
		var env Envelope
		require.NoError(t, json.Unmarshal(part, &env))
		out = append(out, env)
	}
	return out
}

func TestWebSocket_ChartSubscription(t *testing.T) {
	hub := NewHub(10, quietLogger())
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, hub.SetLine(ctx, testLine("BTCUSD", "SMA_3", 1)))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?charts=BTCUSD"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readEnvelopes(t, conn)
	require.Len(t, initial, 1)
	assert.True(t, initial[0].Initial)
	assert.Equal(t, "SMA_3", initial[0].Name)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// Other charts are filtered out.
	require.NoError(t, hub.SetLine(ctx, testLine("ETHUSD", "SMA_3", 1)))
	require.NoError(t, hub.RemoveLine(ctx, "BTCUSD", "SMA_3"))

	got := readEnvelopes(t, conn)
	require.NotEmpty(t, got)
	assert.Equal(t, EnvelopeRemove, got[0].Type)
	assert.Equal(t, "BTCUSD", got[0].Chart)
}
