package indicator

import (
	"math"

	"rsibot/internal/model"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(c model.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR is the arithmetic mean of the trailing period true ranges, or of all
// available ones when fewer exist. The first candle has no previous close and
// contributes no true range. Returns 0 when no true range exists.
func ATR(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < 2 {
		return 0.0
	}
	start := 1
	if n := len(candles) - period; n > start {
		start = n
	}

	sum := 0.0
	for i := start; i < len(candles); i++ {
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	return sum / float64(len(candles)-start)
}
