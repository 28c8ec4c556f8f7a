package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the drivers from concrete storage and venue
// implementations (SQLite, Redis, paper execution).

// TickWriter persists ticks as they arrive.
type TickWriter interface {
	// Run reads ticks from tickCh and writes them in batches.
	// Blocks until ctx is cancelled or tickCh is closed.
	Run(ctx context.Context, tickCh <-chan Tick)

	// Close releases underlying resources.
	Close() error
}

// TickReader reads stored ticks for replay and backtests.
type TickReader interface {
	// ReadTicks returns the ticks of symbol in [from, to), oldest first.
	// A zero to means no upper bound.
	ReadTicks(symbol string, from, to time.Time) ([]Tick, error)

	// TickDays lists the UTC days that hold at least one tick of symbol.
	TickDays(symbol string) ([]time.Time, error)

	// Close releases underlying resources.
	Close() error
}

// StatePublisher publishes JSON-encoded engine state and signal events.
// Using []byte keeps the storage packages independent of the strategy package.
type StatePublisher interface {
	PublishState(ctx context.Context, symbol string, state []byte) error
	PublishSignal(ctx context.Context, symbol string, event []byte) error
}

// OrderPlacer submits orders to a venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, o Order) (Fill, error)
}

// PositionProvider reports the venue's current position for a symbol.
type PositionProvider interface {
	Position(ctx context.Context, symbol string) (ExchangePosition, error)
}

// FillRecorder persists executed fills.
type FillRecorder interface {
	RecordFill(f Fill) error
}
