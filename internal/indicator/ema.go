package indicator

import "chartengine/internal/model"

// EMA calculates the Exponential Moving Average of closes.
// The seed is the SMA of the first period closes, emitted at index period-1.
func EMA(s model.Series, period int) SingleLine {
	values, valid := EMAValues(s.Closes(), nil, period)
	return toPoints(s.Times(), values, valid)
}

// EMAValues runs an EMA over an arbitrary float slice, aligned by index.
//
// mask marks which entries are usable; nil means all of them. The seed is the
// mean of the first period usable entries and is placed at the index of the
// last of them, so gaps before warm-up do not count towards the window. After
// the seed, masked entries produce no output and do not advance the average.
//
// EMA = price*k + prev*(1-k), with k = 2/(period+1).
func EMAValues(values []float64, mask []bool, period int) ([]float64, []bool) {
	n := len(values)
	out := make([]float64, n)
	valid := make([]bool, n)
	if period <= 0 || n < period {
		return out, valid
	}

	k := 2.0 / float64(period+1)
	count := 0
	sum := 0.0
	current := 0.0
	for i := 0; i < n; i++ {
		if mask != nil && !mask[i] {
			continue
		}
		count++
		if count <= period {
			// Accumulate for initial SMA seed
			sum += values[i]
			if count == period {
				current = sum / float64(period)
				out[i] = current
				valid[i] = true
			}
			continue
		}
		current = values[i]*k + current*(1-k)
		out[i] = current
		valid[i] = true
	}
	return out, valid
}
