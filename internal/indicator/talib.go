package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"rsibot/internal/model"
)

// TalibRSI is Wilder's RSI as computed by TA-Lib over the whole series.
// Cold start behaves like RSI: NeutralRSI below period+1 closes.
func TalibRSI(closes []float64, period int) float64 {
	if period < 2 || len(closes) < period+1 {
		return RSI(closes, period)
	}
	out := talib.Rsi(closes, period)
	return out[len(out)-1]
}

// TalibBollinger uses TA-Lib BBands with a simple moving average. TA-Lib's
// standard deviation is the population one, matching Bollinger.
func TalibBollinger(closes []float64, period int, k float64) (model.Bands, bool) {
	if period < 2 || len(closes) < period {
		return Bollinger(closes, period, k)
	}
	upper, middle, lower := talib.BBands(closes, period, k, k, talib.SMA)
	i := len(closes) - 1
	return model.Bands{Mean: middle[i], Upper: upper[i], Lower: lower[i]}, true
}

// TalibATR is Wilder's ATR as computed by TA-Lib. TA-Lib needs more than
// period candles; shorter series fall back to ATR.
func TalibATR(candles []model.Candle, period int) float64 {
	if period < 2 || len(candles) <= period {
		return ATR(candles, period)
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	out := talib.Atr(highs, lows, closes, period)
	v := out[len(out)-1]
	if math.IsNaN(v) {
		return ATR(candles, period)
	}
	return v
}
