package strategy

import (
	"math"

	"rsibot/internal/model"
)

// sharpeEpsilon keeps the Sharpe ratio finite for constant returns.
const sharpeEpsilon = 1e-8

// PnL is the fractional return of a round trip: (exit-entry)/entry for a
// long, (entry-exit)/entry for a short and 0 for Flat.
func PnL(side model.Position, entry, exit float64) float64 {
	switch side {
	case model.Long:
		return (exit - entry) / entry
	case model.Short:
		return (entry - exit) / entry
	}
	return 0
}

// Ledger is the multiplicative equity account of a strategy run.
// Equity starts at 1.0.
type Ledger struct {
	equity  float64
	curve   []float64
	trades  []float64
	entries []model.Point
	exits   []model.Point
}

// NewLedger returns a ledger with equity 1.0.
func NewLedger() *Ledger {
	return &Ledger{equity: 1.0}
}

// Equity is the current equity multiple.
func (l *Ledger) Equity() float64 { return l.equity }

// Realize books a closed round trip and returns its PnL. The resulting
// equity is appended to the trade list.
func (l *Ledger) Realize(side model.Position, entry, exit float64) float64 {
	pnl := PnL(side, entry, exit)
	l.equity *= 1 + pnl
	l.trades = append(l.trades, l.equity)
	return pnl
}

// Mark records the current equity for the candle at index n-1, where n is
// the snapshot count: a new slot is appended when the curve is shorter,
// otherwise the last slot is overwritten.
func (l *Ledger) Mark(n int) {
	if len(l.curve) < n {
		l.curve = append(l.curve, l.equity)
		return
	}
	if len(l.curve) > 0 {
		l.curve[len(l.curve)-1] = l.equity
	}
}

func (l *Ledger) AddEntry(p model.Point) { l.entries = append(l.entries, p) }
func (l *Ledger) AddExit(p model.Point)  { l.exits = append(l.exits, p) }

func (l *Ledger) Curve() []float64           { return append([]float64(nil), l.curve...) }
func (l *Ledger) Trades() []float64          { return append([]float64(nil), l.trades...) }
func (l *Ledger) EntryPoints() []model.Point { return append([]model.Point(nil), l.entries...) }
func (l *Ledger) ExitPoints() []model.Point  { return append([]model.Point(nil), l.exits...) }

// TradeCount is the number of realized round trips.
func (l *Ledger) TradeCount() int { return len(l.trades) }

// Sharpe annualises the per-trade equity changes with sqrt(252):
// mean(diff(trades)) / (std(diff(trades)) + 1e-8) * sqrt(252), using the
// population standard deviation. Zero when there are no differences.
func (l *Ledger) Sharpe() float64 {
	if len(l.trades) < 2 {
		return 0.0
	}
	returns := make([]float64, len(l.trades)-1)
	for i := 1; i < len(l.trades); i++ {
		returns[i-1] = l.trades[i] - l.trades[i-1]
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(returns)))

	return mean / (std + sharpeEpsilon) * math.Sqrt(252)
}
