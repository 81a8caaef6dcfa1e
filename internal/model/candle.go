package model

// Candle is one OHLCV period for a single symbol.
// Time is the bucket start in Unix seconds.
type Candle struct {
	Time   int64    `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

// Series is an ascending, duplicate-free sequence of candles.
// Spacing between candles is not assumed to be uniform.
type Series []Candle

// Closes projects the close price of every candle.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}

// Times projects the timestamp of every candle.
func (s Series) Times() []int64 {
	out := make([]int64, len(s))
	for i := range s {
		out[i] = s[i].Time
	}
	return out
}

// Clone returns a copy that shares no memory with s.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	for i := range out {
		if out[i].Volume != nil {
			v := *out[i].Volume
			out[i].Volume = &v
		}
	}
	return out
}

// Point is the unit of indicator output. Its JSON shape is exactly
// {"time":..,"value":..}, the format chart surfaces consume.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}
