// Package indengine runs the charts: one selector per symbol, fed from a
// candle source, published to the chart surfaces.
package indengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chartengine/internal/indicator"
	"chartengine/internal/insight"
	"chartengine/internal/metrics"
	"chartengine/internal/model"
	"chartengine/internal/overlay"
	"chartengine/internal/selector"
	"chartengine/internal/store/postgres"
	"chartengine/internal/store/sqlite"
)

var (
	ErrUnknownChart     = errors.New("unknown chart")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
)

// CandleSource loads the latest candles of a chart.
type CandleSource interface {
	ReadSeries(ctx context.Context, symbol string, tf int, limit int) (model.Series, error)
	Close() error
}

// CandleWriter stores candles pushed in through the API.
type CandleWriter interface {
	WriteCandles(ctx context.Context, symbol string, tf int, candles model.Series) error
}

// Options configure a Service. Zero values are usable.
type Options struct {
	Timeframe   string
	CandleLimit int
	MACDSignal  bool
	Default     indicator.Selection

	Writer  CandleWriter
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Logger  *slog.Logger
}

type chart struct {
	sel *selector.Selector

	// loadMu serializes series loads (refresh, timeframe switch, pushed
	// series) so a read for an old timeframe cannot land after a newer one.
	loadMu sync.Mutex

	mu      sync.Mutex
	tf      int
	tfLabel string
}

func (c *chart) timeframe() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tf, c.tfLabel
}

// ChartStatus describes one chart.
type ChartStatus struct {
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	State     string   `json:"state"`
	Indicator string   `json:"indicator"`
	Lines     []string `json:"lines"`
	Candles   int      `json:"candles"`
}

// Service is the top-level orchestrator for the charts.
type Service struct {
	charts  map[string]*chart
	symbols []string
	src     CandleSource
	opts    Options
	log     *slog.Logger
}

// New creates a Service with one inactive chart per symbol. src may be nil,
// in which case series only arrive through UpdateSeries.
func New(symbols []string, src CandleSource, surface overlay.Surface, opts Options) (*Service, error) {
	if opts.Timeframe == "" {
		opts.Timeframe = "1h"
	}
	tf, err := model.ParseTF(opts.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeframe, err)
	}
	if opts.CandleLimit <= 0 {
		opts.CandleLimit = 500
	}
	if opts.Default.Kind == "" {
		opts.Default = indicator.None
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	svc := &Service{
		charts: make(map[string]*chart, len(symbols)),
		src:    src,
		opts:   opts,
		log:    log.With("component", "indengine"),
	}
	selOpts := selector.Options{MACDSignal: opts.MACDSignal, Logger: log}
	if opts.Metrics != nil {
		selOpts.Observer = opts.Metrics
	}
	for _, sym := range symbols {
		if _, dup := svc.charts[sym]; dup || sym == "" {
			continue
		}
		svc.charts[sym] = &chart{
			sel:     selector.New(sym, surface, selOpts),
			tf:      tf,
			tfLabel: model.TFLabel(tf),
		}
		svc.symbols = append(svc.symbols, sym)
	}
	sort.Strings(svc.symbols)

	if opts.Health != nil {
		opts.Health.SetCharts(len(svc.symbols))
	}
	return svc, nil
}

// Symbols returns the chart symbols in order.
func (svc *Service) Symbols() []string {
	return append([]string(nil), svc.symbols...)
}

func (svc *Service) chart(symbol string) (*chart, error) {
	c, ok := svc.charts[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChart, symbol)
	}
	return c, nil
}

// Init loads every chart and applies the default indicator. Per-chart
// failures are logged and joined.
func (svc *Service) Init(ctx context.Context) error {
	var errs []error
	for _, sym := range svc.symbols {
		if err := svc.Refresh(ctx, sym); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
		}
		if svc.opts.Default.Kind != indicator.KindNone {
			if err := svc.Select(ctx, sym, svc.opts.Default); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			}
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		svc.log.Warn("init incomplete", "error", err)
	}
	svc.log.Info("charts initialized", "charts", len(svc.symbols), "indicator", svc.opts.Default.Name())
	return err
}

// Select makes sel the active indicator of a chart.
func (svc *Service) Select(ctx context.Context, symbol string, sel indicator.Selection) error {
	c, err := svc.chart(symbol)
	if err != nil {
		return err
	}
	err = c.sel.SetIndicator(ctx, sel)
	svc.updateActive()
	return err
}

// Clear removes a chart's indicator.
func (svc *Service) Clear(ctx context.Context, symbol string) error {
	c, err := svc.chart(symbol)
	if err != nil {
		return err
	}
	err = c.sel.ClearIndicator(ctx)
	svc.updateActive()
	return err
}

// UpdateSeries hands a full series to a chart. Accepted series are written
// through to the candle writer when one is configured.
func (svc *Service) UpdateSeries(ctx context.Context, symbol string, s model.Series) error {
	c, err := svc.chart(symbol)
	if err != nil {
		return err
	}
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if err := svc.apply(ctx, c, s); err != nil {
		return err
	}
	if svc.opts.Writer != nil && len(s) > 0 {
		tf, _ := c.timeframe()
		if err := svc.opts.Writer.WriteCandles(ctx, symbol, tf, s); err != nil {
			svc.log.Warn("candle write-through failed", "chart", symbol, "error", err)
		}
	}
	return nil
}

// SetTimeframe switches a chart's timeframe and reloads its series. The
// new timeframe is committed only once its series has been read and
// accepted; on failure the chart keeps its previous timeframe and data.
// Without a candle source the chart starts empty on the new timeframe.
func (svc *Service) SetTimeframe(ctx context.Context, symbol, label string) error {
	c, err := svc.chart(symbol)
	if err != nil {
		return err
	}
	tf, err := model.ParseTF(label)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimeframe, err)
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	s := model.Series{}
	if svc.src != nil {
		if s, err = svc.read(ctx, symbol, tf); err != nil {
			return err
		}
	}
	err = svc.apply(ctx, c, s)
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return err
	}

	c.mu.Lock()
	c.tf, c.tfLabel = tf, model.TFLabel(tf)
	c.mu.Unlock()
	svc.log.Info("timeframe changed", "chart", symbol, "timeframe", model.TFLabel(tf))
	return err
}

// Refresh reloads a chart's series from the candle source.
func (svc *Service) Refresh(ctx context.Context, symbol string) error {
	c, err := svc.chart(symbol)
	if err != nil {
		return err
	}
	if svc.src == nil {
		return nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	tf, _ := c.timeframe()
	s, err := svc.read(ctx, symbol, tf)
	if err != nil {
		return err
	}
	return svc.apply(ctx, c, s)
}

// read loads the latest candles of a chart. A store with no candles yields
// an empty series.
func (svc *Service) read(ctx context.Context, symbol string, tf int) (model.Series, error) {
	start := time.Now()
	s, err := svc.src.ReadSeries(ctx, symbol, tf, svc.opts.CandleLimit)
	if svc.opts.Metrics != nil {
		svc.opts.Metrics.SourceReadDur.Observe(time.Since(start).Seconds())
	}
	switch {
	case errors.Is(err, sqlite.ErrNoCandles), errors.Is(err, postgres.ErrNoCandles):
		return model.Series{}, nil
	case err != nil:
		return nil, fmt.Errorf("read series: %w", err)
	}
	return s, nil
}

// RefreshAll reloads every chart. It is the cron job.
func (svc *Service) RefreshAll(ctx context.Context) {
	ok, failed := 0, 0
	for _, sym := range svc.symbols {
		if err := svc.Refresh(ctx, sym); err != nil {
			failed++
			svc.log.Warn("refresh failed", "chart", sym, "error", err)
			continue
		}
		ok++
	}
	if m := svc.opts.Metrics; m != nil {
		m.RefreshTotal.WithLabelValues("ok").Add(float64(ok))
		m.RefreshTotal.WithLabelValues("error").Add(float64(failed))
	}
	if svc.opts.Health != nil {
		svc.opts.Health.SetLastRefresh(time.Now())
	}
	svc.log.Debug("refresh complete", "ok", ok, "failed", failed)
}

// Status reports a chart's timeframe, indicator and published lines.
func (svc *Service) Status(symbol string) (ChartStatus, error) {
	c, err := svc.chart(symbol)
	if err != nil {
		return ChartStatus{}, err
	}
	_, label := c.timeframe()
	state, sel := c.sel.State()
	lines := c.sel.Published()
	if lines == nil {
		lines = []string{}
	}
	return ChartStatus{
		Symbol:    symbol,
		Timeframe: label,
		State:     state.String(),
		Indicator: sel.String(),
		Lines:     lines,
		Candles:   len(c.sel.Series()),
	}, nil
}

// Insight evaluates the chart's buffered series.
func (svc *Service) Insight(symbol string) (insight.Insight, error) {
	c, err := svc.chart(symbol)
	if err != nil {
		return insight.Insight{}, err
	}
	_, label := c.timeframe()
	return insight.Evaluate(insight.NewSnapshot(symbol, label, c.sel.Series())), nil
}

// Close releases the candle source.
func (svc *Service) Close() error {
	if svc.src == nil {
		return nil
	}
	return svc.src.Close()
}

func (svc *Service) apply(ctx context.Context, c *chart, s model.Series) error {
	err := c.sel.OnDataUpdated(ctx, s)
	var verr *model.ValidationError
	if errors.As(err, &verr) && svc.opts.Metrics != nil {
		svc.opts.Metrics.SeriesRejected.Inc()
	}
	return err
}

func (svc *Service) updateActive() {
	if svc.opts.Metrics == nil {
		return
	}
	n := 0
	for _, c := range svc.charts {
		if st, _ := c.sel.State(); st == selector.Active {
			n++
		}
	}
	svc.opts.Metrics.ActiveCharts.Set(float64(n))
}
