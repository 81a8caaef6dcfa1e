package overlay

import (
	"context"
	"errors"
	"fmt"

	"chartengine/internal/indicator"
	"chartengine/internal/model"
)

// Line name suffixes for multi-line results.
const (
	SuffixBasis  = "_basis"
	SuffixUpper  = "_upper"
	SuffixLower  = "_lower"
	SuffixSignal = "_signal"
	SuffixHist   = "_hist"
)

// Publisher owns the indicator lines of one chart. A new Publish replaces
// whatever the previous one put on the surface, so at most one indicator is
// visible at a time. Not safe for concurrent use; the selector serializes.
type Publisher struct {
	chart     string
	surface   Surface
	published []string
}

// NewPublisher creates a Publisher for chart writing to surface.
func NewPublisher(chart string, surface Surface) *Publisher {
	return &Publisher{chart: chart, surface: surface}
}

// Chart returns the chart id.
func (p *Publisher) Chart() string { return p.chart }

// Publish clears the previous indicator and sets the lines of res on pane.
// Bands become name_basis/_upper/_lower; MACDLines become name, name_signal
// and name_hist. Lines set before a failure stay tracked so Clear removes them.
func (p *Publisher) Publish(ctx context.Context, name string, res indicator.Result, pane indicator.Placement) error {
	if err := p.Clear(ctx); err != nil {
		return err
	}
	if res == nil {
		return nil
	}

	for _, l := range Lines(p.chart, name, res, pane) {
		if err := p.surface.SetLine(ctx, l); err != nil {
			return fmt.Errorf("publish %s/%s: %w", p.chart, l.Name, err)
		}
		p.published = append(p.published, l.Name)
	}
	return nil
}

// Clear removes every line this publisher put on the surface. Lines that
// fail to be removed stay tracked for the next attempt.
func (p *Publisher) Clear(ctx context.Context) error {
	if len(p.published) == 0 {
		return nil
	}
	var (
		failed []string
		errs   []error
	)
	for _, name := range p.published {
		if err := p.surface.RemoveLine(ctx, p.chart, name); err != nil {
			failed = append(failed, name)
			errs = append(errs, fmt.Errorf("clear %s/%s: %w", p.chart, name, err))
		}
	}
	p.published = failed
	return errors.Join(errs...)
}

// Published returns the names of the lines currently shown.
func (p *Publisher) Published() []string {
	out := make([]string, len(p.published))
	copy(out, p.published)
	return out
}

// Lines expands a result into the named lines it is drawn as.
func Lines(chart, name string, res indicator.Result, pane indicator.Placement) []Line {
	mk := func(n string, data []model.Point) Line {
		if data == nil {
			data = []model.Point{}
		}
		return Line{Chart: chart, Name: n, Pane: pane, Data: data}
	}
	switch r := res.(type) {
	case indicator.SingleLine:
		return []Line{mk(name, r)}
	case indicator.Bands:
		return []Line{
			mk(name+SuffixBasis, r.Basis),
			mk(name+SuffixUpper, r.Upper),
			mk(name+SuffixLower, r.Lower),
		}
	case indicator.MACDLines:
		return []Line{
			mk(name, r.MACD),
			mk(name+SuffixSignal, r.Signal),
			mk(name+SuffixHist, r.Histogram),
		}
	default:
		return nil
	}
}
