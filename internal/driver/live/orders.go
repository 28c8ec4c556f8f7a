package live

import (
	"context"
	"log/slog"

	"rsibot/internal/execution"
	"rsibot/internal/logger"
	"rsibot/internal/model"
)

// trade places the orders moving the venue position from prev to next at
// tick price. A failed order aborts the rest: opening after a failed close
// would double the exposure.
func (d *Driver) trade(ctx context.Context, prev, next model.Position, t model.Tick) {
	orders := execution.OrdersFor(d.cfg.Symbol, prev, next, t.Price, d.cfg.PositionSize, d.cfg.LimitOffset)
	for _, o := range orders {
		onRetry := func(attempt int, err error) {
			if d.m != nil {
				d.m.OrdersTotal.WithLabelValues("retried").Inc()
			}
		}
		fill, err := execution.PlaceWithRetry(ctx, d.placer, o, d.cfg.Retry, onRetry)
		if err != nil {
			slog.Error("live: order failed", append([]any{
				"order", o.ID, "side", o.Side, "price", o.Price, "error", err,
			}, logger.LogWithTrace(ctx)...)...)
			if d.m != nil {
				d.m.OrdersTotal.WithLabelValues("failed").Inc()
			}
			order := o
			d.emit(Event{
				Kind:   EventOrderFailed,
				Symbol: d.cfg.Symbol,
				Time:   t.Time,
				From:   prev,
				To:     next,
				Price:  o.Price,
				Order:  &order,
				Err:    err.Error(),
			})
			return
		}

		if d.m != nil {
			d.m.OrdersTotal.WithLabelValues("filled").Inc()
		}
		order, f := o, fill
		d.emit(Event{
			Kind:   EventFill,
			Symbol: d.cfg.Symbol,
			Time:   fill.FilledAt,
			From:   prev,
			To:     next,
			Price:  fill.Price,
			Order:  &order,
			Fill:   &f,
		})
	}
}
