package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chartengine/internal/overlay"

	goredis "github.com/go-redis/redis/v8"
)

// Key layout:
//
//	overlay:{chart}:{name}   JSON line
//	overlay:{chart}:lines    set of line names
//	pub:overlay:{chart}      change notifications
func lineKey(chart, name string) string { return "overlay:" + chart + ":" + name }
func linesKey(chart string) string      { return "overlay:" + chart + ":lines" }

// Channel returns the Pub/Sub channel carrying a chart's line changes.
func Channel(chart string) string { return "pub:overlay:" + chart }

// Envelope is published on Channel for every change.
type Envelope struct {
	Type string `json:"type"` // "line" or "remove"
	overlay.Line
}

// pendingOp is a call held back while the breaker is open. Only the last
// op per line is kept.
type pendingOp struct {
	remove bool
	line   overlay.Line
}

// Surface stores indicator lines in Redis and announces each change.
// While the circuit breaker is open, calls are held locally and replayed
// after the next successful call.
type Surface struct {
	client *goredis.Client
	cb     *CircuitBreaker
	log    *slog.Logger

	// applyMu orders direct calls against Flush replays, so a replayed
	// op never lands after a newer call for the same line.
	applyMu sync.Mutex

	mu      sync.Mutex
	pending map[string]pendingOp
	order   []string
	maxPend int
}

// NewSurface creates a Surface. maxPending bounds the held-back lines
// (default 10000); the oldest is dropped when full.
func NewSurface(client *goredis.Client, cb *CircuitBreaker, maxPending int, log *slog.Logger) *Surface {
	if maxPending <= 0 {
		maxPending = 10000
	}
	return &Surface{
		client:  client,
		cb:      cb,
		log:     log.With("component", "redis_surface"),
		pending: make(map[string]pendingOp),
		maxPend: maxPending,
	}
}

// SetLine stores the line, adds it to the chart's set and publishes it.
func (s *Surface) SetLine(ctx context.Context, line overlay.Line) error {
	return s.do(ctx, pendingOp{line: line})
}

// RemoveLine deletes the line and publishes a remove envelope.
func (s *Surface) RemoveLine(ctx context.Context, chart, name string) error {
	return s.do(ctx, pendingOp{remove: true, line: overlay.Line{Chart: chart, Name: name}})
}

func (s *Surface) do(ctx context.Context, op pendingOp) error {
	s.applyMu.Lock()
	err := s.cb.Execute(func() error { return s.apply(ctx, op) })
	switch {
	case errors.Is(err, ErrCircuitOpen):
		s.hold(op)
		err = nil
	case err == nil:
		s.drop(op)
	}
	s.applyMu.Unlock()

	if err != nil {
		return err
	}
	s.Flush(ctx)
	return nil
}

func (s *Surface) apply(ctx context.Context, op pendingOp) error {
	l := op.line
	if op.remove {
		env, err := json.Marshal(Envelope{Type: "remove", Line: overlay.Line{Chart: l.Chart, Name: l.Name}})
		if err != nil {
			return err
		}
		_, err = s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, lineKey(l.Chart, l.Name))
			p.SRem(ctx, linesKey(l.Chart), l.Name)
			p.Publish(ctx, Channel(l.Chart), env)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis remove %s/%s: %w", l.Chart, l.Name, err)
		}
		return nil
	}

	val, err := json.Marshal(l)
	if err != nil {
		return err
	}
	env, err := json.Marshal(Envelope{Type: "line", Line: l})
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, lineKey(l.Chart, l.Name), val, 0)
		p.SAdd(ctx, linesKey(l.Chart), l.Name)
		p.Publish(ctx, Channel(l.Chart), env)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s/%s: %w", l.Chart, l.Name, err)
	}
	return nil
}

func pendingKey(op pendingOp) string { return op.line.Chart + "\x00" + op.line.Name }

func (s *Surface) hold(op pendingOp) {
	key := pendingKey(op)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; !ok {
		if len(s.order) >= s.maxPend {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.pending, oldest)
		}
		s.order = append(s.order, key)
	}
	s.pending[key] = op
}

// drop forgets a held call superseded by op.
func (s *Surface) drop(op pendingOp) {
	key := pendingKey(op)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; !ok {
		return
	}
	delete(s.pending, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Flush replays held-back calls. Calls that fail again stay held.
func (s *Surface) Flush(ctx context.Context) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return
	}
	order, pending := s.order, s.pending
	s.order = nil
	s.pending = make(map[string]pendingOp)
	s.mu.Unlock()

	flushed := 0
	for _, key := range order {
		op := pending[key]
		if err := s.cb.Execute(func() error { return s.apply(ctx, op) }); err != nil {
			s.hold(op)
			continue
		}
		flushed++
	}
	s.log.Info("flushed held lines", "count", flushed)
}

// PendingCount returns the number of held-back lines.
func (s *Surface) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Lines reads back the lines currently stored for chart.
func (s *Surface) Lines(ctx context.Context, chart string) ([]overlay.Line, error) {
	names, err := s.client.SMembers(ctx, linesKey(chart)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lines %s: %w", chart, err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = lineKey(chart, n)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lines %s: %w", chart, err)
	}

	out := make([]overlay.Line, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var l overlay.Line
		if err := json.Unmarshal([]byte(str), &l); err != nil {
			return nil, fmt.Errorf("decode line: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Ping checks the connection, bypassing the breaker.
func (s *Surface) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
