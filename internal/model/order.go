package model

import "time"

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Order is a limit order derived from a position transition.
type Order struct {
	ID         string    `json:"order_link_id"` // "rsi-bot-<ulid>"
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"` // limit price
	ReduceOnly bool      `json:"reduce_only"`
	PostOnly   bool      `json:"post_only"`
	CreatedAt  time.Time `json:"created_at"`
}

// Fill is an executed order.
type Fill struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Qty      float64   `json:"qty"`
	Price    float64   `json:"price"`
	Slippage float64   `json:"slippage"` // absolute price difference vs limit
	FilledAt time.Time `json:"filled_at"`
}

// ExchangePosition is a position as reported by the venue.
// EntryPrice is zero when the venue did not report one.
type ExchangePosition struct {
	Symbol     string   `json:"symbol"`
	Side       Position `json:"side"`
	Size       float64  `json:"size"`
	EntryPrice float64  `json:"entry_price"`
}
