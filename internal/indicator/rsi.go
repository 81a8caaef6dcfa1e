package indicator

import "chartengine/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
//
// The averages are seeded with the plain mean of the first period gains and
// losses (candles 0..period) and the first point is emitted at index period.
// After that each average is smoothed with smmaStep, not re-averaged.
func RSI(s model.Series, period int) SingleLine {
	n := len(s)
	if period <= 0 || n <= period {
		return SingleLine{}
	}

	out := make(SingleLine, 0, n-period)
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i < n; i++ {
		gain, loss := 0.0, 0.0
		if delta := s[i].Close - s[i-1].Close; delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		switch {
		case i < period:
			avgGain += gain
			avgLoss += loss
			continue
		case i == period:
			avgGain = (avgGain + gain) / float64(period)
			avgLoss = (avgLoss + loss) / float64(period)
		default:
			avgGain = smmaStep(avgGain, gain, period)
			avgLoss = smmaStep(avgLoss, loss, period)
		}

		if v := rsiValue(avgGain, avgLoss); finite(v) {
			out = append(out, model.Point{Time: s[i].Time, Value: v})
		}
	}
	return out
}

// rsiValue maps smoothed averages to 0..100. With no losses RS is taken
// as 0 and the result is pinned to 100.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
