package indicator

// ComputeRelativeVolume returns the latest volume divided by the mean volume
// of the last period candles (the latest included).
func ComputeRelativeVolume(src Source, period int) (float64, bool) {
	vols, ok := src.LastNVolumes(period)
	if !ok {
		return 0, false
	}
	sum := 0.0
	for _, v := range vols {
		sum += v
	}
	if sum == 0 {
		return 0, false
	}
	avg := sum / float64(len(vols))
	return vols[len(vols)-1] / avg, true
}
