// Package backtest drives a strategy engine over recorded ticks and
// summarizes the outcome.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rsibot/internal/marketdata/replay"
	"rsibot/internal/model"
	"rsibot/internal/strategy"
	"rsibot/pkg/id"
)

// ErrNoTicks is returned when a source produced no valid tick.
var ErrNoTicks = errors.New("backtest: no ticks")

// Report is the outcome of one backtest run.
type Report struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol"`
	StartedAt  time.Time `json:"started_at"`
	Sharpe     float64   `json:"sharpe"`
	Equity     float64   `json:"equity"`
	PnLPercent float64   `json:"pnl_percent"`
	Trades     []float64 `json:"trades"`
	Candles    int       `json:"candles"`
	Ticks      int       `json:"ticks"`
	Invalid    int       `json:"invalid_ticks"`
	Rejected   int       `json:"rejected_signals"`

	Entries []model.Point `json:"entries"`
	Exits   []model.Point `json:"exits"`
	Curve   []float64     `json:"curve"`

	Err error `json:"-"` // set by RunMany for failed runs
}

// Failed reports whether the run ended with an error.
func (r Report) Failed() bool { return r.Err != nil }

// Record converts r for the run store.
func (r Report) Record() model.RunRecord {
	rec := model.RunRecord{
		RunID:      r.RunID,
		Source:     r.Source,
		Symbol:     r.Symbol,
		StartedAt:  r.StartedAt,
		Sharpe:     r.Sharpe,
		Equity:     r.Equity,
		PnLPercent: r.PnLPercent,
		Candles:    r.Candles,
		Ticks:      r.Ticks,
		Trades:     r.Trades,
		Entries:    r.Entries,
		Exits:      r.Exits,
		Curve:      r.Curve,
	}
	if r.Err != nil {
		rec.Err = r.Err.Error()
	}
	return rec
}

// Run feeds every tick from ticks into e until the channel closes, then
// finalizes the engine with the last tick price. Invalid ticks are counted
// and skipped. The engine must be fresh.
func Run(ctx context.Context, e *strategy.Engine, source string, ticks <-chan model.Tick) (Report, error) {
	rep := Report{RunID: id.New(), Source: source, StartedAt: time.Now().UTC()}

	var last model.Tick
	for {
		var (
			t  model.Tick
			ok bool
		)
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		case t, ok = <-ticks:
		}
		if !ok {
			break
		}

		if _, err := e.OnTick(t); err != nil {
			if errors.Is(err, strategy.ErrInvalidTick) {
				rep.Invalid++
				slog.Debug("backtest: skipping tick", "source", source, "error", err)
				continue
			}
			return rep, fmt.Errorf("backtest %s: %w", source, err)
		}
		rep.Ticks++
		last = t
	}

	if rep.Ticks == 0 {
		return rep, fmt.Errorf("%w: %s", ErrNoTicks, source)
	}
	if err := e.OnFinish(last.Price); err != nil {
		return rep, fmt.Errorf("backtest %s: finish: %w", source, err)
	}

	st := e.State()
	rep.Symbol = last.Symbol
	rep.Sharpe = st.Sharpe
	rep.Equity = st.Equity
	rep.PnLPercent = (st.Equity - 1) * 100
	rep.Trades = e.Trades()
	rep.Candles = len(e.Candles())
	rep.Rejected = st.Rejected
	rep.Entries = e.EntryPoints()
	rep.Exits = e.ExitPoints()
	rep.Curve = e.EquityCurve()

	slog.Info("backtest: run finished",
		"source", source,
		"sharpe", rep.Sharpe,
		"equity", rep.Equity,
		"trades", len(rep.Trades),
		"candles", rep.Candles,
		"ticks", rep.Ticks,
	)
	return rep, nil
}

// Source is one replayable tick stream, typically a symbol-day.
type Source interface {
	Name() string
	// Ticks streams the source. The tick channel is closed when the
	// source is exhausted; errc then yields the stream error, if any.
	Ticks(ctx context.Context) (ticks <-chan model.Tick, errc <-chan error)
}

// RunMany backtests each source on a fresh engine from newEngine, at most
// parallel at a time (<= 0 means one). Failing sources are reported with
// Err set instead of aborting the batch; only ctx cancellation is returned.
// Reports keep the order of sources.
func RunMany(ctx context.Context, newEngine func() (*strategy.Engine, error), sources []Source, parallel int) ([]Report, error) {
	if parallel <= 0 {
		parallel = 1
	}
	reports := make([]Report, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			rep, err := runSource(gctx, newEngine, src)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("backtest: run failed", "source", src.Name(), "error", err)
				rep.Source = src.Name()
				rep.Err = err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

func runSource(ctx context.Context, newEngine func() (*strategy.Engine, error), src Source) (Report, error) {
	e, err := newEngine()
	if err != nil {
		return Report{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks, errc := src.Ticks(ctx)
	rep, runErr := Run(ctx, e, src.Name(), ticks)
	if runErr != nil {
		cancel()
		for range ticks {
		}
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return rep, fmt.Errorf("backtest %s: source: %w", src.Name(), err)
	}
	return rep, runErr
}

type replaySource struct {
	r   *replay.Replayer
	w   replay.Window
	buf int
}

// ReplaySource adapts a replay window to a Source.
func ReplaySource(r *replay.Replayer, w replay.Window, buf int) Source {
	return replaySource{r: r, w: w, buf: buf}
}

func (s replaySource) Name() string { return s.w.String() }

func (s replaySource) Ticks(ctx context.Context) (<-chan model.Tick, <-chan error) {
	return s.r.Stream(ctx, s.w, s.buf)
}
