// Package insight summarizes a series into the latest indicator readings and
// a rule-based market tone.
package insight

import (
	"chartengine/internal/indicator"
	"chartengine/internal/model"
)

// MinCandles is the shortest series a snapshot computes indicators for.
const MinCandles = 30

// Snapshot holds the latest value of each indicator. A nil field means the
// indicator is not defined on the last candle.
type Snapshot struct {
	Symbol        string   `json:"symbol"`
	Timeframe     string   `json:"timeframe"`
	RSI14         *float64 `json:"rsi14"`
	MACD          *float64 `json:"macd"`
	SMA50         *float64 `json:"sma50"`
	EMA20         *float64 `json:"ema20"`
	BBBasis       *float64 `json:"bb_basis"`
	BBUpper       *float64 `json:"bb_upper"`
	BBLower       *float64 `json:"bb_lower"`
	LastClose     *float64 `json:"last_close"`
	ChangePercent *float64 `json:"change_percent_24h"`
}

// NewSnapshot computes a snapshot from s. Series shorter than MinCandles only
// carry the last close.
func NewSnapshot(symbol, timeframe string, s model.Series) Snapshot {
	snap := Snapshot{Symbol: symbol, Timeframe: timeframe}
	n := len(s)
	if n == 0 {
		return snap
	}
	last := s[n-1]
	snap.LastClose = ptr(last.Close)
	if n < MinCandles {
		return snap
	}

	snap.RSI14 = latest(indicator.RSI(s, 14), last.Time)
	snap.SMA50 = latest(indicator.SMA(s, 50), last.Time)
	snap.EMA20 = latest(indicator.EMA(s, 20), last.Time)

	// Ungated MACD line: fast minus slow EMA on the last candle.
	closes := s.Closes()
	fast, fastOK := indicator.EMAValues(closes, nil, indicator.DefaultMACDFast)
	slow, slowOK := indicator.EMAValues(closes, nil, indicator.DefaultMACDSlow)
	if fastOK[n-1] && slowOK[n-1] {
		snap.MACD = ptr(fast[n-1] - slow[n-1])
	}

	bb := indicator.Bollinger(s, indicator.DefaultBandsPeriod, indicator.DefaultBandsStdDev)
	snap.BBBasis = latest(bb.Basis, last.Time)
	snap.BBUpper = latest(bb.Upper, last.Time)
	snap.BBLower = latest(bb.Lower, last.Time)

	lookback := min(24, n-1)
	if ref := s[n-1-lookback].Close; ref != 0 {
		snap.ChangePercent = ptr((last.Close - ref) / ref * 100)
	}
	return snap
}

func latest(pts []model.Point, ts int64) *float64 {
	if len(pts) == 0 || pts[len(pts)-1].Time != ts {
		return nil
	}
	return ptr(pts[len(pts)-1].Value)
}

func ptr(v float64) *float64 { return &v }
