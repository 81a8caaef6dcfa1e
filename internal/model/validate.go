package model

import (
	"fmt"
	"math"
)

// ValidationError describes the first malformed candle found in a series.
type ValidationError struct {
	Index int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid candle %d (%s): %v", e.Index, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateSeries rejects series the calculators cannot accept: timestamps
// that do not strictly increase, and non-finite prices or volumes.
// An empty series is valid.
func ValidateSeries(s Series) error {
	for i := range s {
		c := &s[i]
		if i > 0 && c.Time <= s[i-1].Time {
			return &ValidationError{
				Index: i,
				Field: "time",
				Err:   fmt.Errorf("timestamp %d does not follow %d", c.Time, s[i-1].Time),
			}
		}
		for _, f := range [...]struct {
			name string
			v    float64
		}{
			{"open", c.Open},
			{"high", c.High},
			{"low", c.Low},
			{"close", c.Close},
		} {
			if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
				return &ValidationError{Index: i, Field: f.name, Err: fmt.Errorf("non-finite value %v", f.v)}
			}
		}
		if c.Volume != nil && (math.IsNaN(*c.Volume) || math.IsInf(*c.Volume, 0)) {
			return &ValidationError{Index: i, Field: "volume", Err: fmt.Errorf("non-finite value %v", *c.Volume)}
		}
	}
	return nil
}
