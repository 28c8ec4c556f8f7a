package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"rsibot/internal/model"
	"rsibot/internal/notification"
)

// EventKind classifies driver events.
type EventKind string

const (
	EventSignal        EventKind = "signal"
	EventFill          EventKind = "fill"
	EventOrderFailed   EventKind = "order_failed"
	EventFeedStale     EventKind = "feed_stale"
	EventFeedRecovered EventKind = "feed_recovered"
)

// Event is broadcast on the driver's bus.
type Event struct {
	Kind   EventKind      `json:"kind"`
	Symbol string         `json:"symbol"`
	Time   time.Time      `json:"time"`
	From   model.Position `json:"from"`
	To     model.Position `json:"to"`
	Price  float64        `json:"price,omitempty"`
	RSI    float64        `json:"rsi,omitempty"`
	Equity float64        `json:"equity,omitempty"`
	Order  *model.Order   `json:"order,omitempty"`
	Fill   *model.Fill    `json:"fill,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// Alert renders ev for a notifier.
func (ev Event) Alert() notification.Alert {
	a := notification.Alert{
		Level:  notification.AlertInfo,
		Fields: map[string]string{"symbol": ev.Symbol},
	}
	price := strconv.FormatFloat(ev.Price, 'f', -1, 64)
	switch ev.Kind {
	case EventSignal:
		a.Title = "Signal"
		a.Message = fmt.Sprintf("%s: %s -> %s at %s", ev.Symbol, ev.From, ev.To, price)
		a.Fields["rsi"] = strconv.FormatFloat(ev.RSI, 'f', 2, 64)
		a.Fields["equity"] = strconv.FormatFloat(ev.Equity, 'f', 4, 64)
	case EventFill:
		a.Title = "Order filled"
		a.Message = fmt.Sprintf("%s: %s %v at %s", ev.Symbol, ev.Fill.Side, ev.Fill.Qty, price)
		a.Fields["order_link_id"] = ev.Fill.OrderID
	case EventOrderFailed:
		a.Level = notification.AlertCritical
		a.Title = "Order failed"
		a.Message = fmt.Sprintf("%s: %s -> %s: %s", ev.Symbol, ev.From, ev.To, ev.Err)
		if ev.Order != nil {
			a.Fields["order_link_id"] = ev.Order.ID
		}
	case EventFeedStale:
		a.Level = notification.AlertWarning
		a.Title = "Feed stale"
		a.Message = fmt.Sprintf("%s: no ticks since %s", ev.Symbol, ev.Time.Format(time.RFC3339))
	case EventFeedRecovered:
		a.Title = "Feed recovered"
		a.Message = fmt.Sprintf("%s: ticks flowing again", ev.Symbol)
	default:
		a.Title = string(ev.Kind)
		a.Message = ev.Symbol
	}
	return a
}

// NotifySink forwards events to n until events closes or ctx ends.
func NotifySink(ctx context.Context, events <-chan Event, n notification.Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := n.Send(ctx, ev.Alert()); err != nil {
				slog.Warn("live: notify failed", "kind", ev.Kind, "error", err)
			}
		}
	}
}

// PublishSink appends every event to the signal stream of pub.
// onErr (optional) is called for each failed publish.
func PublishSink(ctx context.Context, events <-chan Event, pub model.StatePublisher, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err == nil {
				err = pub.PublishSignal(ctx, ev.Symbol, data)
			}
			if err != nil {
				slog.Warn("live: publish event failed", "kind", ev.Kind, "error", err)
				if onErr != nil {
					onErr(err)
				}
			}
		}
	}
}
