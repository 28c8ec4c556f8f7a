package indicator

import (
	"math"

	"rsibot/internal/model"
)

// Bollinger computes the mean and population standard deviation of the
// trailing period closes and returns mean ± k·std. ok is false while fewer
// than period closes exist.
func Bollinger(closes []float64, period int, k float64) (model.Bands, bool) {
	if period <= 0 || len(closes) < period {
		return model.Bands{}, false
	}
	window := closes[len(closes)-period:]

	mean := 0.0
	for _, c := range window {
		mean += c
	}
	mean /= float64(period)

	variance := 0.0
	for _, c := range window {
		d := c - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))

	return model.Bands{
		Mean:  mean,
		Upper: mean + k*std,
		Lower: mean - k*std,
	}, true
}
