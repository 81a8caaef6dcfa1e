package indicator

import "chartengine/internal/model"

// MACD returns the MACD line (fast EMA - slow EMA), emitted only where the
// signal line also exists. Fewer than slow+signal candles yield no output.
func MACD(s model.Series, fast, slow, signal int) SingleLine {
	return MACDFull(s, fast, slow, signal).MACD
}

// MACDFull returns the MACD line, its signal line and the histogram
// (MACD - signal) on the same timestamps as MACD.
func MACDFull(s model.Series, fast, slow, signal int) MACDLines {
	empty := MACDLines{MACD: []model.Point{}, Signal: []model.Point{}, Histogram: []model.Point{}}
	n := len(s)
	if fast <= 0 || slow <= 0 || signal <= 0 || n < slow+signal {
		return empty
	}

	closes := s.Closes()
	fastEMA, fastOK := EMAValues(closes, nil, fast)
	slowEMA, slowOK := EMAValues(closes, nil, slow)

	line := make([]float64, n)
	lineOK := make([]bool, n)
	for i := 0; i < n; i++ {
		if fastOK[i] && slowOK[i] {
			line[i] = fastEMA[i] - slowEMA[i]
			lineOK[i] = true
		}
	}

	// Signal seed counts only defined MACD values, not raw positions.
	sig, sigOK := EMAValues(line, lineOK, signal)

	out := MACDLines{
		MACD:      make([]model.Point, 0, n),
		Signal:    make([]model.Point, 0, n),
		Histogram: make([]model.Point, 0, n),
	}
	for i := 0; i < n; i++ {
		if !lineOK[i] || !sigOK[i] {
			continue
		}
		hist := line[i] - sig[i]
		if !finite(line[i]) || !finite(sig[i]) || !finite(hist) {
			continue
		}
		ts := s[i].Time
		out.MACD = append(out.MACD, model.Point{Time: ts, Value: line[i]})
		out.Signal = append(out.Signal, model.Point{Time: ts, Value: sig[i]})
		out.Histogram = append(out.Histogram, model.Point{Time: ts, Value: hist})
	}
	return out
}
