package indicator

import "math"

// Band is a simple moving average with a ±k·σ envelope.
type Band struct {
	Mean  float64 `json:"mean"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// Width returns Upper - Lower.
func (b Band) Width() float64 { return b.Upper - b.Lower }

// ComputeBand calculates the band over the last period closes of src using
// the population standard deviation (denominator = period).
func ComputeBand(src Source, period int, k float64) (Band, bool) {
	closes, ok := src.LastNCloses(period)
	if !ok {
		return Band{}, false
	}
	return bandOf(closes, k), true
}

func bandOf(closes []float64, k float64) Band {
	n := float64(len(closes))

	sum := 0.0
	for _, c := range closes {
		sum += c
	}
	mean := sum / n

	sq := 0.0
	for _, c := range closes {
		d := c - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)

	return Band{
		Mean:  mean,
		Upper: mean + k*std,
		Lower: mean - k*std,
	}
}
