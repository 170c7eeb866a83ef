package indicator

// DefaultLookback is the number of extra closes fed into the oscillator
// beyond its period so Wilder smoothing has converged.
const DefaultLookback = 100

// ComputeOscillator calculates the RSI over the last period+lookback closes
// (or every cached close when fewer are available). At least period+1 closes
// are required. The first period deltas seed the average gain and loss as a
// simple mean; the remaining deltas are Wilder-smoothed in order.
func ComputeOscillator(src Source, period, lookback int) (float64, bool) {
	if period < 1 {
		return 0, false
	}
	n := period + lookback
	if have := src.Len(); have < n {
		n = have
	}
	if n < period+1 {
		return 0, false
	}
	closes, ok := src.LastNCloses(n)
	if !ok {
		return 0, false
	}
	return rsiOf(closes, period), true
}

// rsiOf expects len(closes) >= period+1.
func rsiOf(closes []float64, period int) float64 {
	avgGain, avgLoss := 0.0, 0.0

	// Accumulation phase: simple mean of the first period deltas
	for i := 1; i <= period; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = wilder(avgGain, gain, period)
		avgLoss = wilder(avgLoss, loss, period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}
