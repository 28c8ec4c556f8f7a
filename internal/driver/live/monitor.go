package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"rsibot/internal/model"
)

// MonitorFeed checks the age of the last accepted tick every
// HealthInterval. It emits one EventFeedStale when ticks stop for
// StaleAfter and one EventFeedRecovered when they resume.
func (d *Driver) MonitorFeed(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkFeed()
		}
	}
}

func (d *Driver) checkFeed() {
	d.mu.RLock()
	last := d.lastTickAt
	d.mu.RUnlock()

	age := d.now().Sub(last)
	stale := age > d.cfg.StaleAfter
	if stale == d.stale {
		return
	}
	d.stale = stale

	kind := EventFeedRecovered
	if stale {
		kind = EventFeedStale
		slog.Warn("live: feed stale", "symbol", d.cfg.Symbol, "last_tick", last, "age", age)
	} else {
		slog.Info("live: feed recovered", "symbol", d.cfg.Symbol)
	}
	if d.m != nil {
		v := 0.0
		if stale {
			v = 1
		}
		d.m.FeedStale.Set(v)
	}
	d.emit(Event{Kind: kind, Symbol: d.cfg.Symbol, Time: last})
}

// PublishStates pushes a copy of the engine state to pub every
// StateInterval, and once more on shutdown.
func (d *Driver) PublishStates(ctx context.Context, pub model.StatePublisher) {
	ticker := time.NewTicker(d.cfg.StateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			d.publishState(final, pub)
			cancel()
			return
		case <-ticker.C:
			d.publishState(ctx, pub)
		}
	}
}

func (d *Driver) publishState(ctx context.Context, pub model.StatePublisher) {
	data, err := json.Marshal(d.State())
	if err != nil {
		slog.Error("live: encode state", "error", err)
		return
	}
	if err := pub.PublishState(ctx, d.cfg.Symbol, data); err != nil {
		slog.Warn("live: publish state failed", "symbol", d.cfg.Symbol, "error", err)
		if d.m != nil {
			d.m.PublishErrors.Inc()
		}
	}
}
