// Package replay reads stored ticks and emits them at a configurable speed,
// standing in for a live feed during backtests.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rsibot/internal/model"
)

// maxGap caps the simulated wait between two ticks.
const maxGap = 5 * time.Second

// Window is a symbol and time range to replay. A zero To is open-ended.
type Window struct {
	Symbol string
	From   time.Time
	To     time.Time
}

func (w Window) String() string {
	if w.From.IsZero() && w.To.IsZero() {
		return w.Symbol
	}
	if w.To.IsZero() {
		return fmt.Sprintf("%s from %s", w.Symbol, w.From.Format(time.DateOnly))
	}
	if w.To.Sub(w.From) == 24*time.Hour {
		return fmt.Sprintf("%s %s", w.Symbol, w.From.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s %s..%s", w.Symbol, w.From.Format(time.DateTime), w.To.Format(time.DateTime))
}

// Replayer replays ticks from a TickReader.
type Replayer struct {
	reader model.TickReader
	speed  float64
}

// New creates a Replayer. speed controls the playback rate:
// 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func New(reader model.TickReader, speed float64) *Replayer {
	return &Replayer{reader: reader, speed: speed}
}

// Days splits the stored history of symbol into one window per UTC day.
func (r *Replayer) Days(symbol string) ([]Window, error) {
	days, err := r.reader.TickDays(symbol)
	if err != nil {
		return nil, err
	}
	out := make([]Window, len(days))
	for i, d := range days {
		out[i] = Window{Symbol: symbol, From: d, To: d.Add(24 * time.Hour)}
	}
	return out, nil
}

// Run emits every tick of w into outCh in stored order and returns the
// number emitted. outCh is not closed.
func (r *Replayer) Run(ctx context.Context, w Window, outCh chan<- model.Tick) (int, error) {
	ticks, err := r.reader.ReadTicks(w.Symbol, w.From, w.To)
	if err != nil {
		return 0, fmt.Errorf("replay %s: %w", w, err)
	}
	if len(ticks) == 0 {
		slog.Warn("replay: no ticks found", "window", w.String())
		return 0, nil
	}
	slog.Info("replay: loaded ticks", "window", w.String(), "ticks", len(ticks), "speed", r.speed)

	var prev time.Time
	emitted := 0
	for _, t := range ticks {
		if r.speed > 0 && !prev.IsZero() {
			if gap := t.Time.Sub(prev); gap > 0 {
				scaled := time.Duration(float64(gap) / r.speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prev = t.Time

		select {
		case <-ctx.Done():
			slog.Info("replay: cancelled", "emitted", emitted)
			return emitted, ctx.Err()
		case outCh <- t:
			emitted++
		}
	}

	slog.Debug("replay: completed", "window", w.String(), "ticks", emitted)
	return emitted, nil
}

// Stream runs w in a goroutine and closes the returned channel when done.
// The replay error, if any, is delivered on errc after the channel closes.
func (r *Replayer) Stream(ctx context.Context, w Window, buf int) (<-chan model.Tick, <-chan error) {
	out := make(chan model.Tick, buf)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		_, err := r.Run(ctx, w, out)
		close(out)
		errc <- err
	}()
	return out, errc
}
