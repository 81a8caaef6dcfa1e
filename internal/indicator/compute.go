package indicator

import (
	"fmt"

	"chartengine/internal/model"
)

// Options tune what Compute returns beyond the minimum contract.
type Options struct {
	// MACDSignal returns MACDLines (line, signal, histogram) for MACD
	// selections instead of the gated MACD line alone.
	MACDSignal bool
}

// Compute dispatches a selection to its calculator. A NONE selection yields
// nil. The selection must be valid.
func Compute(s model.Series, sel Selection, opts Options) (Result, error) {
	switch sel.Kind {
	case KindNone, "":
		return nil, nil
	case KindSMA:
		return SMA(s, sel.Period), nil
	case KindEMA:
		return EMA(s, sel.Period), nil
	case KindRSI:
		return RSI(s, sel.Period), nil
	case KindMACD:
		if opts.MACDSignal {
			return MACDFull(s, sel.Fast, sel.Slow, sel.Signal), nil
		}
		return MACD(s, sel.Fast, sel.Slow, sel.Signal), nil
	case KindBollinger:
		return Bollinger(s, sel.Period, sel.StdDev), nil
	default:
		return nil, fmt.Errorf("compute: unknown indicator type %q", sel.Kind)
	}
}
