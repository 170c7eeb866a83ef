// Package indicator computes the technical indicators the entry signal is
// built on: a Bollinger-style band, a Wilder-smoothed RSI oscillator and
// relative volume.
//
// Every indicator is recomputed from the cached window on each call; there is
// no incremental state to restore. An indicator that does not have enough
// history is reported as undefined (ok=false), never as zero.
package indicator

// Source is the read side of the rolling candle cache.
type Source interface {
	// LastNCloses returns the last n closes, oldest first, or ok=false.
	LastNCloses(n int) ([]float64, bool)

	// LastNVolumes returns the last n volumes, oldest first, or ok=false.
	LastNVolumes(n int) ([]float64, bool)

	// Len returns the number of cached candles.
	Len() int
}
