package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsibot/internal/indicator"
	"rsibot/internal/model"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

// candleTick returns a tick at the start of the i-th 5 minute candle.
func candleTick(i int, price float64) model.Tick {
	return model.Tick{Price: price, Volume: 1, Time: t0.Add(time.Duration(i) * 5 * time.Minute)}
}

// feed sends one tick per candle, starting at candle index from.
func feed(t *testing.T, e *Engine, from int, prices ...float64) model.Position {
	t.Helper()
	var sig model.Position
	for i, p := range prices {
		var err error
		sig, err = e.OnTick(candleTick(from+i, p))
		require.NoError(t, err)
	}
	return sig
}

func series(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func assertAligned(t *testing.T, e *Engine) {
	t.Helper()
	n := len(e.Candles())
	if _, open := e.OpenCandle(); open {
		n++
	}
	assert.Len(t, e.Snapshots(), n, "snapshots vs candles")
	assert.Len(t, e.EquityCurve(), n, "equity curve vs candles")
}

func TestEngine_DecreasingOpensLong(t *testing.T) {
	e := newEngine(t, nil)

	prices := series(100, -1, 15) // 100 .. 86
	for i, p := range prices[:14] {
		sig, err := e.OnTick(candleTick(i, p))
		require.NoError(t, err)
		assert.Equal(t, model.Flat, sig, "cold start must not trade (tick %d)", i)
	}

	sig, err := e.OnTick(candleTick(14, 86))
	require.NoError(t, err)
	assert.Equal(t, model.Long, sig)
	assert.Equal(t, model.Long, e.Position())
	assert.Equal(t, model.Long, e.LastSignal())

	snap, ok := e.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, 0.0, snap.RSI)
	assert.Nil(t, snap.Bands, "bb period 20 not reached")

	entries := e.EntryPoints()
	require.Len(t, entries, 1)
	assert.Equal(t, 86.0, entries[0].Price)
	assert.True(t, entries[0].Time.Equal(t0.Add(14*5*time.Minute)))

	entry, ok := e.EntryPrice()
	require.True(t, ok)
	assert.Equal(t, 86.0, entry)
	assert.Empty(t, e.Trades())
	assertAligned(t, e)
}

func TestEngine_FinishClosesLong(t *testing.T) {
	e := newEngine(t, nil)
	require.Equal(t, model.Long, feed(t, e, 0, series(114, -1, 15)...)) // entry at 100

	require.NoError(t, e.OnFinish(110))

	assert.InDelta(t, 1.10, e.Equity(), 1e-12)
	assert.Equal(t, []float64{e.Equity()}, e.Trades())
	assert.Equal(t, model.Flat, e.Position())
	_, ok := e.EntryPrice()
	assert.False(t, ok)

	assert.Len(t, e.Candles(), 15)
	assert.Len(t, e.Snapshots(), 15)
	curve := e.EquityCurve()
	require.Len(t, curve, 15)
	assert.InDelta(t, 1.10, curve[14], 1e-12)
	assert.Equal(t, 1.0, curve[13])
	assert.Empty(t, e.ExitPoints(), "forced close is not a signal exit")
}

func TestEngine_FinishIsIdempotent(t *testing.T) {
	e := newEngine(t, nil)
	feed(t, e, 0, series(114, -1, 15)...)

	require.NoError(t, e.OnFinish(110))
	state := e.State()
	curve, trades, snaps := e.EquityCurve(), e.Trades(), e.Snapshots()

	require.NoError(t, e.OnFinish(90))
	assert.Equal(t, state, e.State())
	assert.Equal(t, curve, e.EquityCurve())
	assert.Equal(t, trades, e.Trades())
	assert.Equal(t, snaps, e.Snapshots())
}

func TestEngine_FinishRejectsBadPrice(t *testing.T) {
	e := newEngine(t, nil)
	for _, p := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, e.OnFinish(p), ErrInvalidTick)
	}
}

func TestEngine_LongRoundTrip(t *testing.T) {
	e := newEngine(t, nil)
	require.Equal(t, model.Long, feed(t, e, 0, series(100, -1, 15)...)) // P = 86

	// A jump to 200: trailing deltas are 13×(-1) and +114, rs = 114/13 → RSI ≈ 89.8
	sig, err := e.OnTick(candleTick(15, 200))
	require.NoError(t, err)
	assert.Equal(t, model.Flat, sig)

	want := 1 + (200.0-86.0)/86.0
	assert.InDelta(t, want, e.Equity(), 1e-12)
	require.Len(t, e.Trades(), 1)
	require.Len(t, e.ExitPoints(), 1)
	assert.Equal(t, 200.0, e.ExitPoints()[0].Price)
	assertAligned(t, e)
}

func TestEngine_ShortRoundTrip(t *testing.T) {
	e := newEngine(t, nil)
	require.Equal(t, model.Short, feed(t, e, 0, series(100, 1, 15)...)) // P = 114

	// Crash to 50: 13×(+1) and -64, rs = 13/64 → RSI ≈ 16.9
	sig, err := e.OnTick(candleTick(15, 50))
	require.NoError(t, err)
	assert.Equal(t, model.Flat, sig)

	want := 1 + (114.0-50.0)/114.0
	assert.InDelta(t, want, e.Equity(), 1e-12)
	assert.Len(t, e.Trades(), 1)
}

func TestEngine_PnLUsesTickPriceNotCandleClose(t *testing.T) {
	e := newEngine(t, func(c *Config) { c.CandleInterval = time.Hour })

	// One tick per hour candle, entering long at 86 on the last one.
	for i, p := range series(100, -1, 15) {
		_, err := e.OnTick(model.Tick{Price: p, Time: t0.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	require.Equal(t, model.Long, e.Position())

	// The exit tick at 200 is the candle close too; a later tick in the
	// same candle moves the close but not the realized PnL.
	exitAt := t0.Add(15 * time.Hour)
	_, err := e.OnTick(model.Tick{Price: 200, Time: exitAt})
	require.NoError(t, err)
	_, err = e.OnTick(model.Tick{Price: 150, Time: exitAt.Add(time.Minute)})
	require.NoError(t, err)

	require.Len(t, e.Trades(), 1)
	assert.InDelta(t, 1+(200.0-86.0)/86.0, e.Trades()[0], 1e-12)
}

func TestEngine_NoRepeatWhileSameSide(t *testing.T) {
	e := newEngine(t, nil)
	feed(t, e, 0, series(100, -1, 15)...)
	require.Equal(t, model.Long, e.Position())

	// RSI stays at 0 for further declines
	feed(t, e, 15, 85, 84, 83)
	assert.Len(t, e.EntryPoints(), 1)
	assert.Empty(t, e.ExitPoints())
	assert.Empty(t, e.Trades())
	assert.Equal(t, model.Long, e.Position())
}

func TestEngine_SameCandleOverwritesSnapshot(t *testing.T) {
	e := newEngine(t, nil)
	for i := 0; i < 5; i++ {
		_, err := e.OnTick(model.Tick{Price: 100 + float64(i), Time: t0.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	assert.Empty(t, e.Candles())
	assert.Len(t, e.Snapshots(), 1)
	assert.Len(t, e.EquityCurve(), 1)

	cur, ok := e.OpenCandle()
	require.True(t, ok)
	assert.Equal(t, 104.0, cur.Close)
	assert.Equal(t, 5, cur.Ticks)

	_, err := e.OnTick(model.Tick{Price: 99, Time: t0.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, e.Candles(), 1)
	assertAligned(t, e)
}

func TestEngine_InvalidTick(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.OnTick(model.Tick{Price: 100, Time: t0})
	require.NoError(t, err)

	bad := []model.Tick{
		{Price: 0, Time: t0},
		{Price: -5, Time: t0},
		{Price: math.NaN(), Time: t0},
		{Price: math.Inf(1), Time: t0},
		{Price: 100, Volume: -1, Time: t0},
		{Price: 100, Volume: math.NaN(), Time: t0},
		{Price: 100, Time: t0.Add(-time.Second)},
	}
	for _, tk := range bad {
		_, err := e.OnTick(tk)
		assert.True(t, errors.Is(err, ErrInvalidTick), "tick %+v: %v", tk, err)
	}
	assert.Equal(t, 1, e.TickCount(), "rejected ticks leave no trace")
	assert.Len(t, e.Snapshots(), 1)

	// Equal timestamps are allowed
	_, err = e.OnTick(model.Tick{Price: 101, Time: t0})
	assert.NoError(t, err)
}

func TestEngine_EquityCurveIsCumulativeProduct(t *testing.T) {
	e := newEngine(t, func(c *Config) { c.RSIPeriod = 5 })

	var prices []float64
	for i := 0; i < 200; i++ {
		prices = append(prices, 100+20*math.Sin(float64(i)/4)+float64(i%3))
	}
	feed(t, e, 0, prices...)
	require.NoError(t, e.OnFinish(prices[len(prices)-1]))

	assert.Len(t, e.Snapshots(), len(e.Candles()))
	curve := e.EquityCurve()
	require.Len(t, curve, len(e.Candles()))
	trades := e.Trades()
	require.NotEmpty(t, trades, "the sine wave must trade")

	// Each curve point equals the equity after some prefix of trades.
	prefix := append([]float64{1.0}, trades...)
	k := 0
	for i, v := range curve {
		for k < len(prefix) && prefix[k] != v {
			k++
		}
		require.Less(t, k, len(prefix), "curve[%d]=%v is not a cumulative product", i, v)
	}
	assert.Equal(t, e.Equity(), curve[len(curve)-1])

	product := 1.0
	for i := range trades {
		if i == 0 {
			product = trades[0]
			continue
		}
		product *= trades[i] / trades[i-1]
	}
	assert.InDelta(t, e.Equity(), product, 1e-9)
}

// Closes 100, 113, 112, ..., 100, 99: the window at the last tick is all
// losses (custom RSI 0) while Wilder's RSI still remembers the +13 (≈48).
var divergent = append([]float64{100}, series(113, -1, 15)...)

func TestEngine_CustomAndLibraryDiverge(t *testing.T) {
	custom := newEngine(t, nil)
	assert.Equal(t, model.Long, feed(t, custom, 0, divergent...))

	lib := newEngine(t, func(c *Config) { c.Mode = indicator.ModeLibrary })
	assert.Equal(t, model.Flat, feed(t, lib, 0, divergent...))
	snap, _ := lib.LastSnapshot()
	assert.InDelta(t, 48.0, snap.RSI, 1.0)
}

func TestEngine_DualRSIRequiresBoth(t *testing.T) {
	e := newEngine(t, func(c *Config) { c.Features.DualRSI = true })
	assert.Equal(t, model.Flat, feed(t, e, 0, divergent...))

	snap, _ := e.LastSnapshot()
	assert.Equal(t, 0.0, snap.RSI)
	assert.InDelta(t, 48.0, snap.RSIAlt, 1.0)

	// Both agree on a pure decline
	both := newEngine(t, func(c *Config) { c.Features.DualRSI = true })
	assert.Equal(t, model.Long, feed(t, both, 0, series(100, -1, 15)...))
}

func TestEngine_ATRTracking(t *testing.T) {
	off := newEngine(t, nil)
	feed(t, off, 0, 100, 105, 95)
	snap, _ := off.LastSnapshot()
	assert.Equal(t, 0.0, snap.ATR)

	on := newEngine(t, func(c *Config) { c.Features.ATRTracking = true })
	feed(t, on, 0, 100, 105, 95)
	snap, _ = on.LastSnapshot()
	// single-tick candles: TR = |105-100| = 5, |95-105| = 10
	assert.InDelta(t, 7.5, snap.ATR, 1e-12)
}

func TestEngine_FilterRejectsEntry(t *testing.T) {
	e := newEngine(t, func(c *Config) {
		c.Features.ExternalSignalFilter = true
		c.Filter = ThresholdFilter{MinConfidence: 1.1}
	})
	assert.Equal(t, model.Flat, feed(t, e, 0, series(100, -1, 16)...))
	assert.Empty(t, e.EntryPoints())
	assert.Equal(t, 2, e.State().Rejected)

	// Filter set but feature off: ignored
	e = newEngine(t, func(c *Config) { c.Filter = ThresholdFilter{MinConfidence: 1.1} })
	assert.Equal(t, model.Long, feed(t, e, 0, series(100, -1, 15)...))
}

func TestEngine_Preload(t *testing.T) {
	e := newEngine(t, nil)
	hist := make([]model.Candle, 20)
	for i := range hist {
		p := 100 + float64(i%4)
		hist[i] = model.Candle{Start: t0.Add(time.Duration(i) * 5 * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p, Ticks: 10}
	}
	require.NoError(t, e.Preload(hist))
	assert.Len(t, e.Candles(), 19)
	assertAligned(t, e)
	assert.Equal(t, model.Flat, e.Position())

	// Extends the last preloaded candle
	_, err := e.OnTick(model.Tick{Price: 110, Time: t0.Add(19*5*time.Minute + time.Minute)})
	require.NoError(t, err)
	assert.Len(t, e.Candles(), 19)
	cur, _ := e.OpenCandle()
	assert.Equal(t, 11, cur.Ticks)
	assert.Equal(t, 110.0, cur.High)

	assert.ErrorIs(t, e.Preload(hist), ErrAlreadyStarted)

	// A tick older than the preloaded history is rejected
	_, err = e.OnTick(model.Tick{Price: 110, Time: t0})
	assert.ErrorIs(t, err, ErrInvalidTick)
}

func TestEngine_PreloadOnce(t *testing.T) {
	c := func(min int, p float64) model.Candle {
		return model.Candle{Start: t0.Add(time.Duration(min) * time.Minute), Open: p, High: p, Low: p, Close: p, Ticks: 1}
	}

	e := newEngine(t, nil)
	require.NoError(t, e.Preload([]model.Candle{c(0, 100), c(5, 101)}))

	// A second warm start would rewrite history
	assert.ErrorIs(t, e.Preload([]model.Candle{c(0, 50), c(5, 51), c(10, 52)}), ErrAlreadyStarted)
	candles := e.Candles()
	require.Len(t, candles, 1)
	assert.True(t, candles[0].Start.Equal(t0))
	assert.Equal(t, 100.0, candles[0].Close)
	cur, ok := e.OpenCandle()
	require.True(t, ok)
	assert.Equal(t, 101.0, cur.Close)
	assert.Len(t, e.Snapshots(), 2)
	assert.Len(t, e.EquityCurve(), 2)

	// Even a single seeded candle counts
	e = newEngine(t, nil)
	require.NoError(t, e.Preload([]model.Candle{c(0, 100)}))
	assert.ErrorIs(t, e.Preload([]model.Candle{c(5, 101)}), ErrAlreadyStarted)
}

func TestEngine_PreloadFloorsStarts(t *testing.T) {
	e := newEngine(t, nil)
	hist := []model.Candle{
		{Start: t0.Add(2 * time.Minute), Open: 100, High: 100, Low: 100, Close: 100, Ticks: 1},
		{Start: t0.Add(7*time.Minute + 30*time.Second), Open: 101, High: 101, Low: 101, Close: 101, Ticks: 1},
		{Start: t0.Add(11 * time.Minute), Open: 102, High: 102, Low: 102, Close: 102, Ticks: 1},
	}
	require.NoError(t, e.Preload(hist))

	candles := e.Candles()
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Start.Equal(t0))
	assert.True(t, candles[1].Start.Equal(t0.Add(5*time.Minute)))
	cur, _ := e.OpenCandle()
	assert.True(t, cur.Start.Equal(t0.Add(10*time.Minute)))

	// Starts that collapse into one bucket are rejected, leaving the engine empty
	e = newEngine(t, nil)
	err := e.Preload([]model.Candle{
		{Start: t0.Add(time.Minute), Close: 100},
		{Start: t0.Add(3 * time.Minute), Close: 101},
	})
	assert.ErrorIs(t, err, ErrInvalidTick)
	assert.Empty(t, e.Candles())
	assert.Empty(t, e.Snapshots())
	_, open := e.OpenCandle()
	assert.False(t, open)
}

func TestEngine_OverridePositionWithoutEntry(t *testing.T) {
	e := newEngine(t, nil)
	e.OverridePosition(model.Long, 0)
	assert.Equal(t, model.Long, e.Position())

	// Rising prices exit the long without a known entry: no PnL is booked.
	assert.Equal(t, model.Flat, feed(t, e, 0, series(100, 1, 15)...))
	assert.Empty(t, e.Trades())
	assert.Equal(t, 1.0, e.Equity())
	assert.Len(t, e.ExitPoints(), 1)

	e2 := newEngine(t, nil)
	e2.OverridePosition(model.Short, 120)
	entry, ok := e2.EntryPrice()
	require.True(t, ok)
	assert.Equal(t, 120.0, entry)
	require.NoError(t, e2.OnFinish(108))
	assert.InDelta(t, 1.1, e2.Equity(), 1e-12)
}

func TestEngine_StateIsACopy(t *testing.T) {
	e := newEngine(t, nil)
	feed(t, e, 0, series(100, -1, 21)...)

	st := e.State()
	require.NotNil(t, st.Snapshot)
	require.NotNil(t, st.Snapshot.Bands)
	st.Snapshot.Bands.Mean = -1
	st.Open.Close = -1

	again := e.State()
	assert.NotEqual(t, -1.0, again.Snapshot.Bands.Mean)
	assert.NotEqual(t, -1.0, again.Open.Close)
	assert.Equal(t, 21, again.Ticks)
	assert.Equal(t, 20, again.Candles)
}
