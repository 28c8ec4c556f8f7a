package strategy

import (
	"time"

	"rsibot/internal/model"
)

// State is a read-only copy of the engine's externally visible state.
type State struct {
	Position   model.Position           `json:"position"`
	EntryPrice float64                  `json:"entry_price,omitempty"`
	LastSignal model.Position           `json:"last_signal"`
	Equity     float64                  `json:"equity"`
	Sharpe     float64                  `json:"sharpe"`
	Trades     int                      `json:"trades"`
	Candles    int                      `json:"candles"`
	Ticks      int                      `json:"ticks"`
	Rejected   int                      `json:"rejected"`
	LastTick   time.Time                `json:"last_tick"`
	Snapshot   *model.IndicatorSnapshot `json:"snapshot,omitempty"`
	Open       *model.Candle            `json:"open_candle,omitempty"`
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	st := State{
		Position:   e.position,
		LastSignal: e.lastSignal,
		Equity:     e.ledger.Equity(),
		Sharpe:     e.ledger.Sharpe(),
		Trades:     e.ledger.TradeCount(),
		Candles:    len(e.candles),
		Ticks:      e.ticks,
		Rejected:   e.rejected,
		LastTick:   e.lastTick,
	}
	if e.hasEntry {
		st.EntryPrice = e.entryPrice
	}
	if s, ok := e.LastSnapshot(); ok {
		st.Snapshot = &s
	}
	if c, ok := e.agg.Current(); ok {
		st.Open = &c
	}
	return st
}

func (e *Engine) Position() model.Position   { return e.position }
func (e *Engine) LastSignal() model.Position { return e.lastSignal }
func (e *Engine) Equity() float64            { return e.ledger.Equity() }
func (e *Engine) Sharpe() float64            { return e.ledger.Sharpe() }
func (e *Engine) Trades() []float64          { return e.ledger.Trades() }
func (e *Engine) EquityCurve() []float64     { return e.ledger.Curve() }
func (e *Engine) EntryPoints() []model.Point { return e.ledger.EntryPoints() }
func (e *Engine) ExitPoints() []model.Point  { return e.ledger.ExitPoints() }
func (e *Engine) TickCount() int             { return e.ticks }
func (e *Engine) TradeCount() int            { return e.ledger.TradeCount() }
func (e *Engine) CandleCount() int           { return len(e.candles) }

// EntryPrice returns the raw tick price the open position was entered at.
// ok is false when flat or when the entry is unknown.
func (e *Engine) EntryPrice() (float64, bool) { return e.entryPrice, e.hasEntry }

// Candles returns the sealed candles.
func (e *Engine) Candles() []model.Candle {
	return append([]model.Candle(nil), e.candles...)
}

// OpenCandle returns the forming candle, if any.
func (e *Engine) OpenCandle() (model.Candle, bool) { return e.agg.Current() }

// Snapshots returns the indicator series, aligned with Candles plus the
// open candle.
func (e *Engine) Snapshots() []model.IndicatorSnapshot {
	return append([]model.IndicatorSnapshot(nil), e.snapshots...)
}

// LastSnapshot returns the most recent indicator snapshot.
func (e *Engine) LastSnapshot() (model.IndicatorSnapshot, bool) {
	if len(e.snapshots) == 0 {
		return model.IndicatorSnapshot{}, false
	}
	s := e.snapshots[len(e.snapshots)-1]
	if s.Bands != nil {
		b := *s.Bands
		s.Bands = &b
	}
	return s, true
}
