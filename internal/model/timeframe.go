package model

import (
	"fmt"
	"strconv"
	"strings"
)

// tfUnits maps a timeframe suffix to its length in seconds.
var tfUnits = map[byte]int{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 7 * 86400,
}

// ParseTF parses a timeframe label such as "1m", "15m", "4h" or "1d" into
// seconds. A bare integer is taken as seconds.
func ParseTF(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid timeframe %q: must be positive", s)
		}
		return n, nil
	}
	unit, ok := tfUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid timeframe %q: unknown unit", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	return n * unit, nil
}

// TFLabel converts seconds to the shortest label, e.g. 300 → "5m", 3600 → "1h".
func TFLabel(tf int) string {
	switch {
	case tf <= 0:
		return Itoa(tf) + "s"
	case tf%(7*86400) == 0:
		return Itoa(tf/(7*86400)) + "w"
	case tf%86400 == 0:
		return Itoa(tf/86400) + "d"
	case tf%3600 == 0:
		return Itoa(tf/3600) + "h"
	case tf%60 == 0:
		return Itoa(tf/60) + "m"
	default:
		return Itoa(tf) + "s"
	}
}
