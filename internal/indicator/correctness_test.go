package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsibot/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func bar(high, low, close float64) model.Candle {
	return model.Candle{Open: close, High: high, Low: low, Close: close}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_ColdStart(t *testing.T) {
	for n := 0; n <= 14; n++ {
		assert.Equal(t, 50.0, RSI(ramp(100, -1, n), 14), "len=%d", n)
	}
}

func TestRSI_Correctness_Period3(t *testing.T) {
	// Closes: 10, 11, 10, 12 → deltas +1, -1, +2
	// avgGain = 3/3 = 1, avgLoss = 1/3, rs = 3
	// RSI = 100 - 100/4 = 75
	assertClose(t, "RSI(3)", RSI([]float64{10, 11, 10, 12}, 3), 75.0, 1e-9)

	// Only the trailing period+1 closes count
	assertClose(t, "RSI(3) long series", RSI([]float64{50, 1, 10, 11, 10, 12}, 3), 75.0, 1e-9)
}

func TestRSI_Monotonic(t *testing.T) {
	assert.Equal(t, 100.0, RSI(ramp(100, 1, 16), 14), "strictly increasing")
	assert.Equal(t, 0.0, RSI(ramp(100, -1, 16), 14), "strictly decreasing")
	assert.Equal(t, 0.0, RSI(ramp(100, 0, 16), 14), "flat series has rs=0")
}

func TestRSI_TrailingWindowNotSmoothed(t *testing.T) {
	// A crash before the window must not influence the value.
	closes := append([]float64{1000, 10}, ramp(10, 1, 15)...)
	assert.Equal(t, 100.0, RSI(closes, 14))
}

// ────────────────────────────────────────────────────────────
// Bollinger Correctness
// ────────────────────────────────────────────────────────────

func TestBollinger_Unavailable(t *testing.T) {
	_, ok := Bollinger(ramp(1, 1, 19), 20, 2.0)
	assert.False(t, ok)
}

func TestBollinger_Correctness(t *testing.T) {
	// 2,4,4,4,5,5,7,9: mean 5, population std 2
	b, ok := Bollinger([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2.0)
	require.True(t, ok)
	assertClose(t, "mean", b.Mean, 5, 1e-9)
	assertClose(t, "upper", b.Upper, 9, 1e-9)
	assertClose(t, "lower", b.Lower, 1, 1e-9)

	// Trailing window only
	b, ok = Bollinger([]float64{1000, 2, 4, 4, 4, 5, 5, 7, 9}, 8, 1.5)
	require.True(t, ok)
	assertClose(t, "mean", b.Mean, 5, 1e-9)
	assertClose(t, "upper k=1.5", b.Upper, 8, 1e-9)
}

// ────────────────────────────────────────────────────────────
// ATR Correctness
// ────────────────────────────────────────────────────────────

func TestATR_Correctness(t *testing.T) {
	candles := []model.Candle{
		bar(10, 8, 9),
		bar(12, 9, 11),  // TR = max(3, 3, 0) = 3
		bar(11, 10, 10), // TR = max(1, 0, 1) = 1
		bar(15, 12, 14), // TR = max(3, 5, 2) = 5
	}
	assertClose(t, "ATR(2)", ATR(candles, 2), 3.0, 1e-9)
	assertClose(t, "ATR(14) partial", ATR(candles, 14), 3.0, 1e-9)
	assert.Equal(t, 0.0, ATR(candles[:1], 14))
	assert.Equal(t, 0.0, ATR(nil, 14))
}

// ────────────────────────────────────────────────────────────
// Library-backed implementations
// ────────────────────────────────────────────────────────────

func TestTalibRSI(t *testing.T) {
	assert.Equal(t, 50.0, TalibRSI(ramp(100, 1, 14), 14))
	assertClose(t, "increasing", TalibRSI(ramp(100, 1, 30), 14), 100.0, 1e-9)
	assertClose(t, "decreasing", TalibRSI(ramp(100, -1, 30), 14), 0.0, 1e-9)
}

func TestTalibBollinger_MatchesCustom(t *testing.T) {
	closes := []float64{101, 103, 102, 99, 98, 104, 107, 106, 105, 103, 100, 102}
	want, ok := Bollinger(closes, 10, 2.0)
	require.True(t, ok)
	got, ok := TalibBollinger(closes, 10, 2.0)
	require.True(t, ok)
	assertClose(t, "mean", got.Mean, want.Mean, 1e-6)
	assertClose(t, "upper", got.Upper, want.Upper, 1e-6)
	assertClose(t, "lower", got.Lower, want.Lower, 1e-6)
}

func TestTalibATR(t *testing.T) {
	candles := make([]model.Candle, 30)
	for i := range candles {
		candles[i] = bar(101, 99, 100)
	}
	assertClose(t, "constant range", TalibATR(candles, 14), 2.0, 1e-9)
	// Too short for TA-Lib, falls back to the simple mean
	assertClose(t, "fallback", TalibATR(candles[:5], 14), 2.0, 1e-9)
}

func TestCalculator_Dispatch(t *testing.T) {
	closes := append([]float64{100, 120, 90}, ramp(90, 1, 14)...)

	custom := NewCalculator(ModeCustom)
	lib := custom.Alternate()
	assert.Equal(t, ModeLibrary, lib.Mode)
	assert.Equal(t, ModeCustom, lib.Alternate().Mode)

	assert.Equal(t, RSI(closes, 14), custom.RSI(closes, 14))
	assert.Equal(t, TalibRSI(closes, 14), lib.RSI(closes, 14))
	assert.NotEqual(t, custom.RSI(closes, 14), lib.RSI(closes, 14), "Wilder smoothing remembers the early swings")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Library")
	require.NoError(t, err)
	assert.Equal(t, ModeLibrary, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeCustom, m)

	_, err = ParseMode("wilder")
	assert.Error(t, err)
	assert.Equal(t, "library", ModeLibrary.String())
}
