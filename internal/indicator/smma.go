package indicator

// wilder applies one step of Wilder's smoothing:
// avg = (prev*(period-1) + current) / period.
func wilder(prev, current float64, period int) float64 {
	p := float64(period)
	return (prev*(p-1) + current) / p
}
