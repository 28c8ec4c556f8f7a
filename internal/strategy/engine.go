// Package strategy implements the RSI/Bollinger signal engine.
//
// The Engine folds ticks into candles, evaluates indicators on every tick
// against the sealed closes plus the forming candle, derives the position
// signal and keeps a hypothetical equity ledger. It is synchronous and
// single-threaded and performs no I/O; backtests and live trading drive the
// same code path so both produce identical series for identical ticks.
package strategy

import (
	"fmt"
	"math"
	"time"

	"rsibot/internal/indicator"
	"rsibot/internal/marketdata/agg"
	"rsibot/internal/model"
)

// Engine is the strategy state machine. Not safe for concurrent use.
type Engine struct {
	cfg    Config
	calc   indicator.Calculator
	filter Filter
	agg    *agg.Aggregator

	candles   []model.Candle // sealed
	closes    []float64      // closes of sealed candles, appended on seal
	snapshots []model.IndicatorSnapshot
	ledger    *Ledger

	position   model.Position
	entryPrice float64
	hasEntry   bool
	lastSignal model.Position

	started  bool // a tick has been processed
	hasLast  bool
	lastTick time.Time
	ticks    int
	rejected int
}

// New validates cfg and returns an Engine with equity 1.0 and no position.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	filter := cfg.Filter
	if filter == nil || !cfg.Features.ExternalSignalFilter {
		filter = NoOpFilter{}
	}
	return &Engine{
		cfg:    cfg,
		calc:   indicator.NewCalculator(cfg.Mode),
		filter: filter,
		agg:    agg.New(cfg.CandleInterval),
		ledger: NewLedger(),
	}, nil
}

// Config returns the construction configuration.
func (e *Engine) Config() Config { return e.cfg }

// OnTick processes one tick and returns the resulting signal, which equals
// the position held after the tick.
func (e *Engine) OnTick(t model.Tick) (model.Position, error) {
	if err := e.checkTick(t); err != nil {
		return e.position, err
	}
	e.started, e.hasLast = true, true
	e.lastTick = t.Time
	e.ticks++

	if sealed, ok := e.agg.AddTick(t); ok {
		e.seal(sealed)
	}
	cur, _ := e.agg.Current()

	snap := e.evaluate(cur, true)
	e.putSnapshot(snap)

	signal := e.decide(snap)
	if signal != e.position {
		if !e.transition(signal, snap, t.Price, cur) {
			signal = e.position
		}
	}

	e.ledger.Mark(len(e.snapshots))
	return signal, nil
}

// OnFinish seals the open candle, fills in a missing snapshot and equity
// entry and force-closes any open position at finalPrice. Calling it again
// changes nothing.
func (e *Engine) OnFinish(finalPrice float64) error {
	if math.IsNaN(finalPrice) || math.IsInf(finalPrice, 0) || finalPrice <= 0 {
		return fmt.Errorf("%w: final price %v", ErrInvalidTick, finalPrice)
	}

	if sealed, ok := e.agg.Flush(); ok {
		e.seal(sealed)
	}
	if len(e.snapshots) < len(e.candles) {
		e.snapshots = append(e.snapshots, e.evaluate(model.Candle{}, false))
	}

	if e.position != model.Flat {
		if e.hasEntry {
			e.ledger.Realize(e.position, e.entryPrice, finalPrice)
		}
		e.position = model.Flat
		e.lastSignal = model.Flat
		e.entryPrice, e.hasEntry = 0, false
	}

	e.ledger.Mark(len(e.snapshots))
	return nil
}

// Preload seeds the engine with historical candles before the first tick.
// All but the last candle are sealed; the last one stays open so live ticks
// in the same bucket extend it. Every candle gets a snapshot and an equity
// entry as if it had been built from ticks. No signals are derived.
//
// Candle starts are floored to the interval and must be strictly
// increasing. Preload may run once, on an empty engine.
func (e *Engine) Preload(candles []model.Candle) error {
	if _, open := e.agg.Current(); e.started || open || len(e.candles) > 0 {
		return ErrAlreadyStarted
	}

	floored := make([]model.Candle, len(candles))
	for i, c := range candles {
		c.Start = agg.Bucket(c.Start, e.cfg.CandleInterval)
		if i > 0 && !c.Start.After(floored[i-1].Start) {
			return fmt.Errorf("%w: preload candles out of order at %d", ErrInvalidTick, i)
		}
		floored[i] = c
	}

	for i, c := range floored {
		if i < len(floored)-1 {
			e.candles = append(e.candles, c)
			e.closes = append(e.closes, c.Close)
			e.snapshots = append(e.snapshots, e.evaluate(model.Candle{}, false))
			e.ledger.Mark(len(e.snapshots))
			continue
		}
		e.agg.Seed(c)
		cur, _ := e.agg.Current()
		e.putSnapshot(e.evaluate(cur, true))
		e.ledger.Mark(len(e.snapshots))
		e.lastTick, e.hasLast = cur.Start, true
	}
	return nil
}

// OverridePosition replaces the held position with one reported by the
// venue. entryPrice <= 0 means unknown: closing such a position later books
// no PnL.
func (e *Engine) OverridePosition(pos model.Position, entryPrice float64) {
	e.position = pos
	e.lastSignal = pos
	e.entryPrice, e.hasEntry = 0, false
	if pos != model.Flat && entryPrice > 0 {
		e.entryPrice, e.hasEntry = entryPrice, true
	}
}

func (e *Engine) checkTick(t model.Tick) error {
	switch {
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0:
		return fmt.Errorf("%w: price %v", ErrInvalidTick, t.Price)
	case math.IsNaN(t.Volume) || math.IsInf(t.Volume, 0) || t.Volume < 0:
		return fmt.Errorf("%w: volume %v", ErrInvalidTick, t.Volume)
	case e.hasLast && t.Time.Before(e.lastTick):
		return fmt.Errorf("%w: timestamp %v before %v", ErrInvalidTick, t.Time, e.lastTick)
	}
	return nil
}

func (e *Engine) seal(c model.Candle) {
	e.candles = append(e.candles, c)
	e.closes = append(e.closes, c.Close)
}

// evaluate computes a snapshot over the sealed series, extended with the
// open candle when withOpen is set.
func (e *Engine) evaluate(open model.Candle, withOpen bool) model.IndicatorSnapshot {
	closes, candles := e.closes, e.candles
	if withOpen {
		// The full slice expressions force a copy so the cache never aliases.
		closes = append(e.closes[:len(e.closes):len(e.closes)], open.Close)
		if e.cfg.Features.ATRTracking {
			candles = append(e.candles[:len(e.candles):len(e.candles)], open)
		}
	}

	snap := model.IndicatorSnapshot{RSI: e.calc.RSI(closes, e.cfg.RSIPeriod)}
	if e.cfg.Features.DualRSI {
		snap.RSIAlt = e.calc.Alternate().RSI(closes, e.cfg.RSIPeriod)
	}
	if b, ok := e.calc.Bollinger(closes, e.cfg.BBPeriod, e.cfg.BBStdDev); ok {
		snap.Bands = &b
	}
	if e.cfg.Features.ATRTracking {
		snap.ATR = e.calc.ATR(candles, e.cfg.ATRPeriod)
	}
	return snap
}

// putSnapshot appends when the open candle has no snapshot yet (first tick
// or a candle just sealed) and overwrites the last one otherwise.
func (e *Engine) putSnapshot(s model.IndicatorSnapshot) {
	if len(e.snapshots) == len(e.candles) {
		e.snapshots = append(e.snapshots, s)
		return
	}
	e.snapshots[len(e.snapshots)-1] = s
}

// decide applies the threshold rules in priority order.
func (e *Engine) decide(s model.IndicatorSnapshot) model.Position {
	below := s.RSI < e.cfg.BuyThreshold
	above := s.RSI > e.cfg.SellThreshold
	if e.cfg.Features.DualRSI {
		below = below && s.RSIAlt < e.cfg.BuyThreshold
		above = above && s.RSIAlt > e.cfg.SellThreshold
	}

	switch {
	case below && e.position == model.Flat:
		return model.Long
	case above && e.position == model.Long:
		return model.Flat
	case above && e.position == model.Flat:
		return model.Short
	case below && e.position == model.Short:
		return model.Flat
	}
	return e.position
}

// transition moves to signal. Position-opening signals pass through the
// filter first; a rejection leaves all state untouched and returns false.
// Points use the open candle's start and close; PnL uses the tick price.
func (e *Engine) transition(signal model.Position, s model.IndicatorSnapshot, price float64, cur model.Candle) bool {
	opening := signal != model.Flat
	if opening && e.cfg.Features.ExternalSignalFilter {
		ok, _ := e.filter.Approve(SignalFeatures{
			Proposed:    signal,
			Current:     e.position,
			RSI:         s.RSI,
			RSIAlt:      s.RSIAlt,
			Bands:       s.Bands,
			ATR:         s.ATR,
			TickPrice:   price,
			CandleClose: cur.Close,
			Buy:         e.cfg.BuyThreshold,
			Sell:        e.cfg.SellThreshold,
		})
		if !ok {
			e.rejected++
			return false
		}
	}

	point := model.Point{Time: cur.Start, Price: cur.Close}
	if opening {
		e.ledger.AddEntry(point)
	} else {
		e.ledger.AddExit(point)
	}

	if e.position != model.Flat && e.hasEntry {
		e.ledger.Realize(e.position, e.entryPrice, price)
	}
	if opening {
		e.entryPrice, e.hasEntry = price, true
	} else {
		e.entryPrice, e.hasEntry = 0, false
	}
	e.position = signal
	e.lastSignal = signal
	return true
}
