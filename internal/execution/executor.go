// Package execution turns position transitions into limit orders and
// places them on a venue. PaperExecutor is the built-in simulated venue.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"rsibot/internal/model"
	"rsibot/pkg/id"
)

// DefaultLimitOffset places limit orders 0.1% away from the tick price on
// the maker side.
const DefaultLimitOffset = 0.001

// OrdersFor translates a transition from one position to another into
// orders: a reduce-only close of the held side, then an open of the new
// side. Buys are priced below price and sells above it by offset, rounded
// to cents, and are post-only.
func OrdersFor(symbol string, from, to model.Position, price, qty, offset float64) []model.Order {
	if from == to {
		return nil
	}
	now := time.Now().UTC()
	var orders []model.Order

	mk := func(side model.Side, reduce bool) model.Order {
		limit := price * (1 + offset)
		if side == model.Buy {
			limit = price * (1 - offset)
		}
		return model.Order{
			ID:         id.OrderLinkID(),
			Symbol:     symbol,
			Side:       side,
			Qty:        qty,
			Price:      math.Round(limit*100) / 100,
			ReduceOnly: reduce,
			PostOnly:   true,
			CreatedAt:  now,
		}
	}

	switch from {
	case model.Long:
		orders = append(orders, mk(model.Sell, true))
	case model.Short:
		orders = append(orders, mk(model.Buy, true))
	}
	switch to {
	case model.Long:
		orders = append(orders, mk(model.Buy, false))
	case model.Short:
		orders = append(orders, mk(model.Sell, false))
	}
	return orders
}

// RetryPolicy bounds order placement retries.
type RetryPolicy struct {
	Attempts     int           // total attempts, >= 1
	InitialDelay time.Duration // doubled after each failure
	MaxDelay     time.Duration
}

// DefaultRetryPolicy tries three times starting at 500ms.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// PlaceWithRetry places o, retrying failures with exponential backoff until
// the policy is exhausted or ctx is cancelled. onRetry (optional) is called
// before each retry.
func PlaceWithRetry(ctx context.Context, p model.OrderPlacer, o model.Order, policy RetryPolicy, onRetry func(attempt int, err error)) (model.Fill, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		fill, err := p.PlaceOrder(ctx, o)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		slog.Warn("execution: order failed, retrying",
			"order", o.ID, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return model.Fill{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return model.Fill{}, fmt.Errorf("execution: order %s failed after %d attempts: %w", o.ID, attempts, lastErr)
}
