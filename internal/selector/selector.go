// Package selector tracks the active indicator of one chart and keeps its
// lines on the surface in step with the data.
//
// States are Inactive and Active(selection). Selecting replaces the previous
// indicator wholesale, a data update recomputes the active one, and clearing
// removes its lines. All events for a chart are serialized.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chartengine/internal/indicator"
	"chartengine/internal/model"
	"chartengine/internal/overlay"
	"chartengine/internal/series"
)

// State of a chart's indicator display.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Observer receives one call per computation.
type Observer interface {
	ObserveCompute(kind string, d time.Duration, points int)
}

// Options configure a Selector.
type Options struct {
	// MACDSignal publishes MACD with its signal line and histogram.
	MACDSignal bool
	Observer   Observer
	Logger     *slog.Logger
}

// Selector is the per-chart indicator state machine.
type Selector struct {
	mu     sync.Mutex
	chart  string
	buf    *series.Buffer
	pub    *overlay.Publisher
	opts   Options
	log    *slog.Logger
	state  State
	active indicator.Selection
}

// New creates an inactive Selector for chart publishing to surface.
func New(chart string, surface overlay.Surface, opts Options) *Selector {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Selector{
		chart:  chart,
		buf:    series.New(),
		pub:    overlay.NewPublisher(chart, surface),
		opts:   opts,
		log:    log.With("component", "selector", "chart", chart),
		state:  Inactive,
		active: indicator.None,
	}
}

// Chart returns the chart id.
func (s *Selector) Chart() string { return s.chart }

// SetIndicator makes sel the active indicator. An invalid selection is
// rejected and the current display is kept. Selecting NONE is the same as
// ClearIndicator. Surface errors are returned but the selection still becomes
// active, so the next data update publishes again.
func (s *Selector) SetIndicator(ctx context.Context, sel indicator.Selection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	if sel.Kind == indicator.KindNone {
		return s.ClearIndicator(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clearErr := s.pub.Clear(ctx)
	prev := s.active
	s.state = Active
	s.active = sel
	s.log.Info("indicator selected", "indicator", sel.Name(), "previous", prev.Name())

	return errors.Join(clearErr, s.recompute(ctx))
}

// ClearIndicator removes the active indicator's lines and goes inactive.
func (s *Selector) ClearIndicator(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Active {
		s.log.Info("indicator cleared", "indicator", s.active.Name())
	}
	s.state = Inactive
	s.active = indicator.None
	return s.pub.Clear(ctx)
}

// OnDataUpdated replaces the series and recomputes the active indicator.
// A series that fails validation is rejected and the display is unchanged.
func (s *Selector) OnDataUpdated(ctx context.Context, data model.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.buf.Replace(data); err != nil {
		s.log.Warn("series rejected", "error", err, "candles", len(data))
		return err
	}
	if s.state != Active {
		return nil
	}
	return s.recompute(ctx)
}

// State returns the current state and active selection.
func (s *Selector) State() (State, indicator.Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.active
}

// Active returns the active selection, or indicator.None.
func (s *Selector) Active() indicator.Selection {
	_, sel := s.State()
	return sel
}

// Series returns a copy of the buffered series.
func (s *Selector) Series() model.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Series().Clone()
}

// Published returns the names of the lines currently on the surface.
func (s *Selector) Published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pub.Published()
}

// recompute runs the active calculator over the buffer and publishes it.
// Caller holds s.mu.
func (s *Selector) recompute(ctx context.Context) error {
	sel := s.active
	start := time.Now()
	res, err := indicator.Compute(s.buf.Series(), sel, indicator.Options{MACDSignal: s.opts.MACDSignal})
	if err != nil {
		return fmt.Errorf("compute %s: %w", sel.Name(), err)
	}
	points := 0
	if res != nil {
		points = res.Len()
	}
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveCompute(string(sel.Kind), time.Since(start), points)
	}

	if err := s.pub.Publish(ctx, sel.Name(), res, sel.Kind.Placement()); err != nil {
		s.log.Error("publish failed", "indicator", sel.Name(), "error", err)
		return err
	}
	s.log.Debug("indicator published", "indicator", sel.Name(), "points", points, "candles", s.buf.Len())
	return nil
}
