package indicator

// RSI calculates the Relative Strength Index over the trailing period+1
// closes. Gains and losses are plain averages over the window, not Wilder's
// smoothing, so the value only depends on the last period deltas.
//
// With fewer than period+1 closes it returns NeutralRSI. When the window has
// no losses the ratio is undefined: a window with gains yields 100, a flat
// window yields 0.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return NeutralRSI
	}
	window := closes[len(closes)-period-1:]

	gain, loss := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	p := float64(period)
	avgGain, avgLoss := gain/p, loss/p

	if avgLoss == 0 {
		if avgGain > 0 {
			return 100.0
		}
		return 0.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
