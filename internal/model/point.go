package model

import "time"

// Point marks an entry or exit on a price chart.
type Point struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}
