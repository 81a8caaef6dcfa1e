package indicator

import (
	"math"

	"chartengine/internal/model"
)

// Bollinger calculates Bollinger Bands: the SMA basis and bands at
// ±stdDev population standard deviations (divide by period, not period-1).
func Bollinger(s model.Series, period int, stdDev float64) Bands {
	n := len(s)
	if period <= 0 || n < period {
		return Bands{Basis: []model.Point{}, Upper: []model.Point{}, Lower: []model.Point{}}
	}

	closes := s.Closes()
	basis, ok := smaValues(closes, period)

	size := n - period + 1
	out := Bands{
		Basis: make([]model.Point, 0, size),
		Upper: make([]model.Point, 0, size),
		Lower: make([]model.Point, 0, size),
	}
	p := float64(period)
	for i := period - 1; i < n; i++ {
		if !ok[i] {
			continue
		}
		mean := basis[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / p)
		upper := mean + stdDev*std
		lower := mean - stdDev*std
		if !finite(mean) || !finite(upper) || !finite(lower) {
			continue
		}
		ts := s[i].Time
		out.Basis = append(out.Basis, model.Point{Time: ts, Value: mean})
		out.Upper = append(out.Upper, model.Point{Time: ts, Value: upper})
		out.Lower = append(out.Lower, model.Point{Time: ts, Value: lower})
	}
	return out
}
