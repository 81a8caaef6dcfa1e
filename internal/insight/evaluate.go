package insight

import (
	"fmt"
	"math"
)

// Sentiment labels derived from the fear & greed index.
const (
	Bullish         = "bullish"
	SlightlyBullish = "slightly_bullish"
	Neutral         = "neutral"
	SlightlyBearish = "slightly_bearish"
	Bearish         = "bearish"
)

// Risk levels.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskElevated = "elevated"
	RiskHigh     = "high"
)

// Insight is the rule-based reading of a snapshot.
type Insight struct {
	Summary        string   `json:"summary"`
	Sentiment      string   `json:"sentiment_label"`
	FearGreedIndex int      `json:"fear_greed_index"`
	RiskLevel      string   `json:"risk_level"`
	RiskFactors    []string `json:"risk_factors"`
	Score          float64  `json:"score"`
	Bullets        []string `json:"bullets"`
	Indicators     Snapshot `json:"indicators"`
}

// Evaluate scores a snapshot. Without a last price it reports neutral tone
// with high risk.
func Evaluate(s Snapshot) Insight {
	if s.LastClose == nil {
		return Insight{
			Summary:     "Not enough data to generate insights for this symbol/timeframe.",
			Sentiment:   Neutral,
			RiskLevel:   RiskHigh,
			RiskFactors: []string{},
			Bullets:     []string{},
			Indicators:  s,
		}
	}

	in := Insight{Bullets: []string{}, RiskFactors: []string{}, Indicators: s}
	in.Score = score(s, &in.Bullets)
	in.FearGreedIndex = fearGreed(s)
	in.Sentiment = sentiment(in.FearGreedIndex)
	var risk float64
	risk, in.RiskFactors = riskScore(s)
	in.RiskLevel = riskLevel(risk)
	in.Summary = fmt.Sprintf("Based on current indicators, market tone for %s on the %s timeframe looks %s with %s risk.",
		s.Symbol, s.Timeframe, in.Sentiment, in.RiskLevel)
	return in
}

func score(s Snapshot, bullets *[]string) float64 {
	add := func(format string, args ...any) {
		*bullets = append(*bullets, fmt.Sprintf(format, args...))
	}
	price := *s.LastClose
	sc := 0.0

	if s.RSI14 != nil {
		rsi := *s.RSI14
		switch {
		case rsi > 70:
			add("RSI(14) is %.1f, indicating overbought conditions.", rsi)
			sc -= 0.5
		case rsi < 30:
			add("RSI(14) is %.1f, indicating oversold conditions.", rsi)
			sc += 0.5
		case rsi > 55:
			add("RSI(14) is %.1f, showing moderate bullish momentum.", rsi)
			sc += 0.2
		case rsi < 45:
			add("RSI(14) is %.1f, showing moderate bearish momentum.", rsi)
			sc -= 0.2
		}
	}

	if s.MACD != nil {
		switch {
		case *s.MACD > 0:
			add("MACD is above zero, confirming bullish momentum.")
			sc += 0.3
		case *s.MACD < 0:
			add("MACD is below zero, confirming bearish momentum.")
			sc -= 0.3
		}
	}

	if s.EMA20 != nil && s.SMA50 != nil && price != 0 {
		switch {
		case price > *s.EMA20 && *s.EMA20 > *s.SMA50:
			add("Price is trading above EMA(20) and SMA(50), indicating a short-term uptrend.")
			sc += 0.3
		case price < *s.EMA20 && *s.EMA20 < *s.SMA50:
			add("Price is below EMA(20) and SMA(50), indicating a short-term downtrend.")
			sc -= 0.3
		}
	}

	if s.BBUpper != nil && s.BBLower != nil {
		switch {
		case price >= *s.BBUpper:
			add("Price is at or above the upper Bollinger Band, suggesting stretched upside and higher pullback risk.")
			sc -= 0.4
		case price <= *s.BBLower:
			add("Price is at or below the lower Bollinger Band, suggesting potential exhaustion on the downside.")
			sc += 0.4
		}
	}

	if s.ChangePercent != nil {
		cp := *s.ChangePercent
		add("Approx. 24h change is %+.2f%%.", cp)
		switch {
		case cp > 5:
			sc += 0.2
		case cp < -5:
			sc -= 0.2
		}
	}
	return sc
}

// fearGreed maps the snapshot to 0 (extreme fear) .. 100 (extreme greed),
// starting from 50.
func fearGreed(s Snapshot) int {
	price := *s.LastClose
	fg := 50.0

	if s.RSI14 != nil {
		rsi := *s.RSI14
		switch {
		case rsi >= 70:
			fg += (rsi - 70) / 30 * 30
		case rsi <= 30:
			fg -= (30 - rsi) / 30 * 30
		}
	}

	if s.MACD != nil {
		fg += clamp(*s.MACD/500, -1, 1) * 15
	}

	if s.EMA20 != nil && s.SMA50 != nil && price != 0 {
		ema, sma := *s.EMA20, *s.SMA50
		switch {
		case price > ema && ema > sma:
			fg += 15
		case price < ema && ema < sma:
			fg -= 15
		case price > ema:
			fg += 7
		case price < ema:
			fg -= 7
		}
	}

	if s.ChangePercent != nil {
		fg += clamp(*s.ChangePercent, -20, 20)
	}

	if s.BBUpper != nil && s.BBLower != nil {
		if width := *s.BBUpper - *s.BBLower; width > 0 {
			pos := (price - *s.BBLower) / width
			fg += (pos - 0.5) * 20
		}
	}

	return int(clamp(fg, 0, 100))
}

func sentiment(fg int) string {
	switch {
	case fg >= 75:
		return Bullish
	case fg >= 55:
		return SlightlyBullish
	case fg >= 45:
		return Neutral
	case fg >= 25:
		return SlightlyBearish
	default:
		return Bearish
	}
}

func riskScore(s Snapshot) (float64, []string) {
	price := *s.LastClose
	risk := 0.0
	factors := []string{}

	if s.RSI14 != nil {
		rsi := *s.RSI14
		switch {
		case rsi > 75 || rsi < 25:
			risk += 1.5
			factors = append(factors, "extreme_rsi")
		case rsi > 70 || rsi < 30:
			risk += 1.0
			factors = append(factors, "rsi_extreme")
		}
	}

	if s.BBUpper != nil && s.BBLower != nil {
		if width := *s.BBUpper - *s.BBLower; width > 0 {
			switch {
			case price >= *s.BBUpper:
				risk += math.Min(1.5, (price-*s.BBUpper)/width*2)
				factors = append(factors, "above_bb")
			case price <= *s.BBLower:
				risk += math.Min(1.5, (*s.BBLower-price)/width*2)
				factors = append(factors, "below_bb")
			}
		}
	}

	if s.ChangePercent != nil {
		switch abs := math.Abs(*s.ChangePercent); {
		case abs > 15:
			risk += 1.5
			factors = append(factors, "high_volatility")
		case abs > 10:
			risk += 1.0
			factors = append(factors, "moderate_volatility")
		case abs > 5:
			risk += 0.5
		}
	}

	if s.MACD != nil && math.Abs(*s.MACD) > 1000 {
		risk += 0.5
	}
	return risk, factors
}

func riskLevel(r float64) string {
	switch {
	case r >= 2.5:
		return RiskHigh
	case r >= 1.5:
		return RiskElevated
	case r >= 0.8:
		return RiskMedium
	default:
		return RiskLow
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
