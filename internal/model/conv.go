package model

import "strconv"

// Itoa converts an int to its decimal string.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Ftoa formats a float with the fewest digits that round-trip, e.g. 2 → "2", 2.5 → "2.5".
func Ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
