package model

import (
	"encoding/json"
	"time"
)

// Candle is an OHLCV bar for one fixed-interval bucket.
// Start is the bucket start (timestamp floored to the interval).
type Candle struct {
	Start  time.Time `json:"start"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Ticks  int       `json:"ticks"` // number of ticks aggregated
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
