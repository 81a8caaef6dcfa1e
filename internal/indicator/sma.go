package indicator

import "chartengine/internal/model"

// SMA calculates the Simple Moving Average of closes over a rolling window.
// The first point sits at index period-1.
func SMA(s model.Series, period int) SingleLine {
	values, valid := smaValues(s.Closes(), period)
	return toPoints(s.Times(), values, valid)
}

// smaValues returns the rolling mean aligned to values by index.
// The window sum is kept running: the value leaving the window is
// subtracted, so the pass is linear in len(values).
func smaValues(values []float64, period int) ([]float64, []bool) {
	n := len(values)
	out := make([]float64, n)
	valid := make([]bool, n)
	if period <= 0 || n < period {
		return out, valid
	}

	p := float64(period)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / p
			valid[i] = true
		}
	}
	return out, valid
}
