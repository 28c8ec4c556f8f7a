package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rsibot/internal/model"
)

// PaperExecutor simulates a venue: every order fills immediately at its
// limit price, adjusted by a fixed slippage. It also tracks the resulting
// net position so it can answer reconciliation queries.
type PaperExecutor struct {
	mu        sync.RWMutex
	fills     []model.Fill
	positions map[string]*paperPosition
	recorder  model.FillRecorder

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
}

type paperPosition struct {
	qty   float64 // positive = long, negative = short
	price float64 // average entry
}

// NewPaperExecutor creates a paper trading venue. slippageBps controls
// simulated slippage in basis points; recorder (optional) persists fills.
func NewPaperExecutor(slippageBps float64, recorder model.FillRecorder) *PaperExecutor {
	return &PaperExecutor{
		fills:       make([]model.Fill, 0, 64),
		positions:   make(map[string]*paperPosition),
		recorder:    recorder,
		slippageBps: slippageBps,
	}
}

// PlaceOrder fills o immediately.
func (p *PaperExecutor) PlaceOrder(ctx context.Context, o model.Order) (model.Fill, error) {
	if err := ctx.Err(); err != nil {
		return model.Fill{}, err
	}
	if o.Qty <= 0 || o.Price <= 0 {
		return model.Fill{}, fmt.Errorf("paper: order %s: invalid qty %v or price %v", o.ID, o.Qty, o.Price)
	}

	slippage := o.Price * p.slippageBps / 10000
	fillPrice := o.Price - slippage // sell lower
	if o.Side == model.Buy {
		fillPrice = o.Price + slippage // buy higher
	}

	fill := model.Fill{
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Qty:      o.Qty,
		Price:    fillPrice,
		Slippage: slippage,
		FilledAt: time.Now().UTC(),
	}

	p.mu.Lock()
	if err := p.apply(o, fill); err != nil {
		p.mu.Unlock()
		return model.Fill{}, err
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	if p.recorder != nil {
		if err := p.recorder.RecordFill(fill); err != nil {
			slog.Error("paper: journal fill failed", "order", o.ID, "error", err)
		}
	}

	slog.Info("paper: filled", "order", o.ID, "side", o.Side, "qty", o.Qty,
		"price", fillPrice, "slippage", slippage, "reduce_only", o.ReduceOnly)
	return fill, nil
}

// apply updates the tracked position. Caller holds p.mu.
func (p *PaperExecutor) apply(o model.Order, f model.Fill) error {
	pos, ok := p.positions[o.Symbol]
	if !ok {
		pos = &paperPosition{}
		p.positions[o.Symbol] = pos
	}
	delta := f.Qty
	if f.Side == model.Sell {
		delta = -delta
	}

	if o.ReduceOnly {
		if pos.qty == 0 || (pos.qty > 0) == (delta > 0) {
			return fmt.Errorf("paper: reduce-only order %s would increase position", o.ID)
		}
		if abs(delta) > abs(pos.qty) {
			delta = -pos.qty
		}
	}

	next := pos.qty + delta
	switch {
	case next == 0:
		pos.price = 0
	case pos.qty == 0 || (pos.qty > 0) != (next > 0):
		pos.price = f.Price
	case abs(next) > abs(pos.qty):
		pos.price = (pos.price*abs(pos.qty) + f.Price*abs(delta)) / abs(next)
	}
	pos.qty = next
	return nil
}

// Position reports the simulated net position of symbol.
func (p *PaperExecutor) Position(ctx context.Context, symbol string) (model.ExchangePosition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := model.ExchangePosition{Symbol: symbol}
	pos, ok := p.positions[symbol]
	if !ok || pos.qty == 0 {
		return out, nil
	}
	out.Side = model.Long
	if pos.qty < 0 {
		out.Side = model.Short
	}
	out.Size = abs(pos.qty)
	out.EntryPrice = pos.price
	return out, nil
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []model.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
