package model

import "time"

// RunRecord is a finished backtest run as persisted by the run store.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol"`
	StartedAt  time.Time `json:"started_at"`
	Sharpe     float64   `json:"sharpe"`
	Equity     float64   `json:"equity"`
	PnLPercent float64   `json:"pnl_percent"`
	Candles    int       `json:"candles"`
	Ticks      int       `json:"ticks"`
	Err        string    `json:"error,omitempty"`

	Trades  []float64 `json:"trades"` // equity after each closed trade
	Entries []Point   `json:"entries"`
	Exits   []Point   `json:"exits"`
	Curve   []float64 `json:"curve"` // equity per candle
}
