// Package series holds the OHLCV sequence for the active symbol and timeframe.
package series

import (
	"fmt"

	"chartengine/internal/model"
)

// Buffer holds one chart's candles. Every refresh replaces the whole series;
// no incremental diffing is attempted.
type Buffer struct {
	candles model.Series
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Replace validates s and swaps it in. On error the previous contents are kept.
// The buffer stores its own copy, so the caller keeps ownership of s.
func (b *Buffer) Replace(s model.Series) error {
	if err := model.ValidateSeries(s); err != nil {
		return fmt.Errorf("replace series: %w", err)
	}
	b.candles = s.Clone()
	return nil
}

// Series returns the buffered candles. Callers must not mutate it.
func (b *Buffer) Series() model.Series { return b.candles }

// Closes returns the close prices of the buffered candles.
func (b *Buffer) Closes() []float64 { return b.candles.Closes() }

// Times returns the timestamps of the buffered candles.
func (b *Buffer) Times() []int64 { return b.candles.Times() }

// Len returns the number of candles held.
func (b *Buffer) Len() int { return len(b.candles) }
