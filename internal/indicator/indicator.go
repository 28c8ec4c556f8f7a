// Package indicator computes RSI, Bollinger Bands and ATR over close and
// candle series.
//
// Every function is pure: the same input always yields the same output and
// no state is retained between calls. Insufficient history never fails; the
// functions return neutral sentinels instead (RSI 50, Bands unavailable,
// ATR 0) so a cold-start strategy does not trade on undefined values.
package indicator

import (
	"fmt"
	"strings"

	"rsibot/internal/model"
)

// NeutralRSI is returned while there is not enough history for an RSI.
const NeutralRSI = 50.0

// Mode selects the implementation behind a Calculator.
type Mode int

const (
	// ModeCustom uses the trailing-window implementations in this package.
	ModeCustom Mode = iota
	// ModeLibrary uses TA-Lib semantics (Wilder-smoothed RSI and ATR).
	ModeLibrary
)

func (m Mode) String() string {
	switch m {
	case ModeCustom:
		return "custom"
	case ModeLibrary:
		return "library"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts "custom" or "library" (case-insensitive) into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "custom", "":
		return ModeCustom, nil
	case "library", "talib":
		return ModeLibrary, nil
	}
	return ModeCustom, fmt.Errorf("indicator: unknown mode %q", s)
}

// Calculator dispatches indicator calls to the implementation chosen at
// construction. The zero value uses ModeCustom.
type Calculator struct {
	Mode Mode
}

// NewCalculator returns a Calculator for mode.
func NewCalculator(mode Mode) Calculator {
	return Calculator{Mode: mode}
}

// Alternate returns a Calculator using the other implementation.
func (c Calculator) Alternate() Calculator {
	if c.Mode == ModeLibrary {
		return Calculator{Mode: ModeCustom}
	}
	return Calculator{Mode: ModeLibrary}
}

func (c Calculator) RSI(closes []float64, period int) float64 {
	if c.Mode == ModeLibrary {
		return TalibRSI(closes, period)
	}
	return RSI(closes, period)
}

func (c Calculator) Bollinger(closes []float64, period int, k float64) (model.Bands, bool) {
	if c.Mode == ModeLibrary {
		return TalibBollinger(closes, period, k)
	}
	return Bollinger(closes, period, k)
}

func (c Calculator) ATR(candles []model.Candle, period int) float64 {
	if c.Mode == ModeLibrary {
		return TalibATR(candles, period)
	}
	return ATR(candles, period)
}
