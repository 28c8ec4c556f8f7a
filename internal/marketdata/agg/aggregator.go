// Package agg folds a single symbol's tick stream into fixed-interval candles.
package agg

import (
	"time"

	"rsibot/internal/model"
)

// Bucket floors ts to a multiple of interval, aligned to the Unix epoch.
func Bucket(ts time.Time, interval time.Duration) time.Time {
	ns := ts.UnixNano()
	step := int64(interval)
	floor := ns - ns%step
	if ns < 0 && ns%step != 0 {
		floor -= step
	}
	return time.Unix(0, floor).UTC()
}

// Aggregator builds OHLCV candles from ticks of one symbol.
// It is synchronous and not safe for concurrent use; the caller feeds it
// from a single goroutine.
type Aggregator struct {
	interval time.Duration
	open     bool
	candle   model.Candle
}

// New creates an Aggregator with the given candle interval.
func New(interval time.Duration) *Aggregator {
	return &Aggregator{interval: interval}
}

// Interval returns the candle interval.
func (a *Aggregator) Interval() time.Duration {
	return a.interval
}

// AddTick incorporates a tick. When the tick opens a new bucket the previous
// candle is sealed and returned with ok=true.
func (a *Aggregator) AddTick(t model.Tick) (sealed model.Candle, ok bool) {
	bucket := Bucket(t.Time, a.interval)

	if a.open && bucket.Before(a.candle.Start) {
		// late tick from an older bucket
		return model.Candle{}, false
	}

	if a.open && bucket.Equal(a.candle.Start) {
		c := &a.candle
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume += t.Volume
		c.Ticks++
		return model.Candle{}, false
	}

	if a.open {
		sealed, ok = a.candle, true
	}
	a.candle = model.Candle{
		Start:  bucket,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Volume,
		Ticks:  1,
	}
	a.open = true
	return sealed, ok
}

// Current returns a copy of the open candle, if any.
func (a *Aggregator) Current() (model.Candle, bool) {
	return a.candle, a.open
}

// Flush seals and returns the open candle. The aggregator is left empty.
func (a *Aggregator) Flush() (model.Candle, bool) {
	if !a.open {
		return model.Candle{}, false
	}
	c := a.candle
	a.candle = model.Candle{}
	a.open = false
	return c, true
}

// Seed opens c as the current candle, replacing any open one. Used to
// continue a candle loaded from history. Start is re-floored to the interval.
func (a *Aggregator) Seed(c model.Candle) {
	c.Start = Bucket(c.Start, a.interval)
	a.candle = c
	a.open = true
}

// Build folds ticks into candles, including the trailing open one. Late
// ticks are dropped as in AddTick.
func Build(ticks []model.Tick, interval time.Duration) []model.Candle {
	a := New(interval)
	var out []model.Candle
	for _, t := range ticks {
		if c, ok := a.AddTick(t); ok {
			out = append(out, c)
		}
	}
	if c, ok := a.Flush(); ok {
		out = append(out, c)
	}
	return out
}
