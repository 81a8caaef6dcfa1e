package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"chartengine/internal/model"
)

// Default parameters applied when a spec string omits them.
const (
	DefaultRSIPeriod   = 14
	DefaultMACDFast    = 12
	DefaultMACDSlow    = 26
	DefaultMACDSignal  = 9
	DefaultBandsPeriod = 20
	DefaultBandsStdDev = 2.0
)

// Selection is the indicator a chart shows, with its parameters.
// Only the fields relevant to Kind are used.
type Selection struct {
	Kind   Kind    `json:"kind"`
	Period int     `json:"period,omitempty"`  // SMA, EMA, RSI, BB
	Fast   int     `json:"fast,omitempty"`    // MACD
	Slow   int     `json:"slow,omitempty"`    // MACD
	Signal int     `json:"signal,omitempty"`  // MACD
	StdDev float64 `json:"std_dev,omitempty"` // BB
}

// None is the empty selection.
var None = Selection{Kind: KindNone}

// SelectionError reports an invalid selection parameter.
type SelectionError struct {
	Field string
	Err   error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid selection %s: %v", e.Field, e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// Validate checks the parameters for the selection's kind.
func (s Selection) Validate() error {
	switch s.Kind {
	case KindNone:
		return nil
	case KindSMA, KindEMA, KindRSI:
		if s.Period <= 0 {
			return &SelectionError{Field: "period", Err: fmt.Errorf("must be positive, got %d", s.Period)}
		}
	case KindBollinger:
		if s.Period <= 0 {
			return &SelectionError{Field: "period", Err: fmt.Errorf("must be positive, got %d", s.Period)}
		}
		if !(s.StdDev > 0) || !finite(s.StdDev) {
			return &SelectionError{Field: "std_dev", Err: fmt.Errorf("must be a positive number, got %v", s.StdDev)}
		}
	case KindMACD:
		if s.Fast <= 0 {
			return &SelectionError{Field: "fast", Err: fmt.Errorf("must be positive, got %d", s.Fast)}
		}
		if s.Slow <= s.Fast {
			return &SelectionError{Field: "slow", Err: fmt.Errorf("must be greater than fast: %d <= %d", s.Slow, s.Fast)}
		}
		if s.Signal <= 0 {
			return &SelectionError{Field: "signal", Err: fmt.Errorf("must be positive, got %d", s.Signal)}
		}
	default:
		return &SelectionError{Field: "kind", Err: fmt.Errorf("unknown indicator type %q", s.Kind)}
	}
	return nil
}

// Name is the line-series name, e.g. "SMA_20", "MACD_12_26_9", "BB_20_2".
func (s Selection) Name() string {
	switch s.Kind {
	case KindMACD:
		return "MACD_" + model.Itoa(s.Fast) + "_" + model.Itoa(s.Slow) + "_" + model.Itoa(s.Signal)
	case KindBollinger:
		return "BB_" + model.Itoa(s.Period) + "_" + model.Ftoa(s.StdDev)
	case KindNone, "":
		return string(KindNone)
	default:
		return string(s.Kind) + "_" + model.Itoa(s.Period)
	}
}

// String renders the "TYPE:PARAM" form accepted by ParseSelection.
func (s Selection) String() string {
	switch s.Kind {
	case KindMACD:
		return "MACD:" + model.Itoa(s.Fast) + ":" + model.Itoa(s.Slow) + ":" + model.Itoa(s.Signal)
	case KindBollinger:
		return "BB:" + model.Itoa(s.Period) + ":" + model.Ftoa(s.StdDev)
	case KindNone, "":
		return string(KindNone)
	default:
		return string(s.Kind) + ":" + model.Itoa(s.Period)
	}
}

// ParseSelection parses "TYPE[:PARAM...]" specs:
//
//	NONE, SMA:20, EMA:9, RSI[:14], MACD[:12:26:9], BB[:20[:2]]
//
// BOLLINGER is accepted as an alias for BB. The result is validated.
func ParseSelection(spec string) (Selection, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	kind := Kind(strings.ToUpper(parts[0]))
	args := parts[1:]

	var sel Selection
	switch kind {
	case "", KindNone:
		return None, nil
	case KindSMA, KindEMA:
		if len(args) != 1 {
			return Selection{}, &SelectionError{Field: "spec", Err: fmt.Errorf("%s needs a period: %q", kind, spec)}
		}
		period, err := parseInt("period", args[0])
		if err != nil {
			return Selection{}, err
		}
		sel = Selection{Kind: kind, Period: period}
	case KindRSI:
		sel = Selection{Kind: kind, Period: DefaultRSIPeriod}
		if len(args) > 1 {
			return Selection{}, &SelectionError{Field: "spec", Err: fmt.Errorf("too many parameters: %q", spec)}
		}
		if len(args) == 1 {
			period, err := parseInt("period", args[0])
			if err != nil {
				return Selection{}, err
			}
			sel.Period = period
		}
	case KindMACD:
		sel = Selection{Kind: kind, Fast: DefaultMACDFast, Slow: DefaultMACDSlow, Signal: DefaultMACDSignal}
		switch len(args) {
		case 0:
		case 3:
			var err error
			if sel.Fast, err = parseInt("fast", args[0]); err != nil {
				return Selection{}, err
			}
			if sel.Slow, err = parseInt("slow", args[1]); err != nil {
				return Selection{}, err
			}
			if sel.Signal, err = parseInt("signal", args[2]); err != nil {
				return Selection{}, err
			}
		default:
			return Selection{}, &SelectionError{Field: "spec", Err: fmt.Errorf("MACD takes fast:slow:signal: %q", spec)}
		}
	case KindBollinger, "BOLLINGER":
		sel = Selection{Kind: KindBollinger, Period: DefaultBandsPeriod, StdDev: DefaultBandsStdDev}
		if len(args) > 2 {
			return Selection{}, &SelectionError{Field: "spec", Err: fmt.Errorf("too many parameters: %q", spec)}
		}
		if len(args) >= 1 {
			period, err := parseInt("period", args[0])
			if err != nil {
				return Selection{}, err
			}
			sel.Period = period
		}
		if len(args) == 2 {
			mult, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return Selection{}, &SelectionError{Field: "std_dev", Err: err}
			}
			sel.StdDev = mult
		}
	default:
		return Selection{}, &SelectionError{Field: "kind", Err: fmt.Errorf("unknown indicator type %q", parts[0])}
	}

	if err := sel.Validate(); err != nil {
		return Selection{}, err
	}
	return sel, nil
}

func parseInt(field, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &SelectionError{Field: field, Err: err}
	}
	return n, nil
}
