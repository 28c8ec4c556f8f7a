package model

import "time"

// Tick is a single trade print from a feed or a replayed history.
type Tick struct {
	Symbol string    `json:"symbol,omitempty"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"ts"` // UTC
}
