package indicator

// smmaStep advances a Wilder-style smoothed average by one value:
// (prev*(period-1) + x) / period.
func smmaStep(prev, x float64, period int) float64 {
	p := float64(period)
	return (prev*(p-1) + x) / p
}
