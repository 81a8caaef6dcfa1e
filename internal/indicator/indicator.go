// Package indicator provides technical indicator calculations over candle data.
//
// Every calculator is a pure function: it reads a model.Series (or a float
// slice), never mutates or retains it, and returns points whose timestamps are
// taken from the input. Leading warm-up windows are omitted rather than
// padded, and insufficient data yields empty output, never an error.
package indicator

import (
	"math"

	"chartengine/internal/model"
)

// Kind identifies an indicator.
type Kind string

const (
	KindNone      Kind = "NONE"
	KindSMA       Kind = "SMA"
	KindEMA       Kind = "EMA"
	KindRSI       Kind = "RSI"
	KindMACD      Kind = "MACD"
	KindBollinger Kind = "BB"
)

// Placement is the chart pane an indicator is drawn in.
type Placement string

const (
	// PriceOverlay draws lines on top of the candles.
	PriceOverlay Placement = "price"
	// Oscillator draws lines in a separate pane below the price.
	Oscillator Placement = "oscillator"
)

// Placement returns the pane this kind is drawn in.
func (k Kind) Placement() Placement {
	switch k {
	case KindRSI, KindMACD:
		return Oscillator
	default:
		return PriceOverlay
	}
}

// Result is the output of one calculation: SingleLine, Bands or MACDLines.
type Result interface {
	isResult()
	// Len is the number of emitted timestamps.
	Len() int
}

// SingleLine is the output of SMA, EMA, RSI and the MACD line.
type SingleLine []model.Point

// Bands is the output of Bollinger Bands. All three lines share timestamps.
type Bands struct {
	Basis []model.Point
	Upper []model.Point
	Lower []model.Point
}

// MACDLines is the MACD line with its signal line and histogram, all aligned
// to the same timestamps.
type MACDLines struct {
	MACD      []model.Point
	Signal    []model.Point
	Histogram []model.Point
}

func (SingleLine) isResult() {}
func (Bands) isResult()      {}
func (MACDLines) isResult()  {}

func (l SingleLine) Len() int { return len(l) }
func (b Bands) Len() int      { return len(b.Basis) }
func (m MACDLines) Len() int  { return len(m.MACD) }

// finite reports whether v can be emitted.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// toPoints pairs each valid value with its timestamp.
func toPoints(times []int64, values []float64, valid []bool) []model.Point {
	n := 0
	for i := range values {
		if valid[i] && finite(values[i]) {
			n++
		}
	}
	out := make([]model.Point, 0, n)
	for i := range values {
		if valid[i] && finite(values[i]) {
			out = append(out, model.Point{Time: times[i], Value: values[i]})
		}
	}
	return out
}
