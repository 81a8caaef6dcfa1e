package gateway

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendQueue  = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Charts this client watches. Empty means all charts.
	subMu  sync.RWMutex
	charts map[string]bool
}

// controlMsg is what clients send: SUBSCRIBE/UNSUBSCRIBE or a ping.
type controlMsg struct {
	Type   string   `json:"type"`
	Charts []string `json:"charts"`
	ReqID  string   `json:"req_id,omitempty"`
	Ping   int64    `json:"ping,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendQueue),
		hub:    hub,
		charts: make(map[string]bool),
	}
}

// wants reports whether a change on chart is delivered to this client.
func (c *Client) wants(chart string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.charts) == 0 || c.charts[chart]
}

func (c *Client) subscribe(charts []string) []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range charts {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.charts[ch] = true
		}
	}
	return c.subscribedLocked()
}

func (c *Client) unsubscribe(charts []string) []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range charts {
		delete(c.charts, strings.TrimSpace(ch))
	}
	return c.subscribedLocked()
}

func (c *Client) subscribedLocked() []string {
	out := make([]string, 0, len(c.charts))
	for ch := range c.charts {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// sendInitialState queues the current lines of the given charts, or of
// every chart when charts is empty. A client already removed from the hub
// gets nothing, since its send channel is closed.
func (c *Client) sendInitialState(charts []string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}

	names := charts
	if len(names) == 0 {
		for ch := range c.hub.charts {
			names = append(names, ch)
		}
	}
	for _, ch := range names {
		st, ok := c.hub.charts[ch]
		if !ok {
			continue
		}
		for _, raw := range st.lines {
			var env Envelope
			if json.Unmarshal(raw, &env) != nil {
				continue
			}
			env.Initial = true
			msg, err := json.Marshal(env)
			if err != nil {
				continue
			}
			select {
			case c.send <- msg:
			default:
			}
		}
	}
}

func (c *Client) reply(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		c.hub.log.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			c.reply(map[string]string{"type": "error", "error": "invalid message"})
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			if len(msg.Charts) == 0 {
				c.reply(map[string]string{"type": "error", "req_id": msg.ReqID, "error": "charts are required"})
				continue
			}
			subs := c.subscribe(msg.Charts)
			c.reply(map[string]any{"type": "subscribed", "req_id": msg.ReqID, "charts": subs})
			c.sendInitialState(msg.Charts)
			c.hub.log.Debug("ws client subscribed", "charts", subs)
		case "UNSUBSCRIBE":
			subs := c.unsubscribe(msg.Charts)
			c.reply(map[string]any{"type": "unsubscribed", "req_id": msg.ReqID, "charts": subs})
		default:
			if msg.Ping > 0 {
				c.reply(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			}
		}
	}
}
