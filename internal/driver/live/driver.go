// Package live drives the strategy engine from a real-time tick stream and
// turns its position changes into orders.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rsibot/internal/execution"
	"rsibot/internal/logger"
	"rsibot/internal/marketdata/bus"
	"rsibot/internal/metrics"
	"rsibot/internal/model"
	"rsibot/internal/strategy"
)

// Config holds the live trading parameters.
type Config struct {
	Symbol       string
	PositionSize float64 // order quantity
	LimitOffset  float64 // fractional distance of limit prices from the tick
	Retry        execution.RetryPolicy

	// StaleAfter is the tick silence after which the feed counts as stale.
	StaleAfter time.Duration
	// HealthInterval is how often the feed monitor checks.
	HealthInterval time.Duration
	// StateInterval is how often PublishStates pushes engine state.
	StateInterval time.Duration
}

func (c *Config) defaults() {
	if c.PositionSize <= 0 {
		c.PositionSize = 0.001
	}
	if c.LimitOffset <= 0 {
		c.LimitOffset = execution.DefaultLimitOffset
	}
	if c.Retry.Attempts == 0 {
		c.Retry = execution.DefaultRetryPolicy
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 2 * time.Minute
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = c.StaleAfter / 4
	}
	if c.StateInterval <= 0 {
		c.StateInterval = 5 * time.Second
	}
}

// Deps are the collaborators of a Driver. Engine and Placer are required.
type Deps struct {
	Engine    *strategy.Engine
	Placer    model.OrderPlacer
	Positions model.PositionProvider // optional, used by Reconcile
	Metrics   *metrics.Metrics       // optional
	Events    *bus.FanOut[Event]     // optional

	// Now overrides the wall clock used for feed health.
	Now func() time.Time
}

// Driver owns the engine. Run is the only writer; the monitoring loops
// read state under the shared lock.
type Driver struct {
	cfg    Config
	engine *strategy.Engine
	placer model.OrderPlacer
	pos    model.PositionProvider
	m      *metrics.Metrics
	events *bus.FanOut[Event]
	now    func() time.Time

	mu          sync.RWMutex // guards engine and lastTickAt
	lastTickAt  time.Time    // wall clock of the last accepted tick
	lastOrdered model.Position
	logMinute   time.Time
	stale       bool
}

// New creates a Driver.
func New(cfg Config, deps Deps) (*Driver, error) {
	if deps.Engine == nil || deps.Placer == nil {
		return nil, errors.New("live: engine and placer are required")
	}
	if cfg.Symbol == "" {
		return nil, errors.New("live: symbol is required")
	}
	cfg.defaults()
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Driver{
		cfg:        cfg,
		engine:     deps.Engine,
		placer:     deps.Placer,
		pos:        deps.Positions,
		m:          deps.Metrics,
		events:     deps.Events,
		now:        now,
		lastTickAt: now(),
	}, nil
}

// Preload warms the engine with historical candles.
func (d *Driver) Preload(candles []model.Candle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.engine.Preload(candles); err != nil {
		return fmt.Errorf("live: preload: %w", err)
	}
	slog.Info("live: preloaded candles", "symbol", d.cfg.Symbol, "candles", len(candles))
	return nil
}

// Reconcile adopts the venue's position for the symbol so the next
// signal starts from what is actually held. It is a no-op without a
// PositionProvider.
func (d *Driver) Reconcile(ctx context.Context) error {
	if d.pos == nil {
		return nil
	}
	p, err := d.pos.Position(ctx, d.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("live: reconcile %s: %w", d.cfg.Symbol, err)
	}

	d.mu.Lock()
	d.engine.OverridePosition(p.Side, p.EntryPrice)
	d.lastOrdered = p.Side
	d.mu.Unlock()

	slog.Info("live: reconciled position",
		"symbol", d.cfg.Symbol, "position", p.Side, "size", p.Size, "entry", p.EntryPrice)
	return nil
}

// Run consumes ticks until the channel closes or ctx is cancelled.
// Invalid ticks are logged and counted; they never stop the loop.
func (d *Driver) Run(ctx context.Context, ticks <-chan model.Tick) error {
	slog.Info("live: driver started", "symbol", d.cfg.Symbol)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ticks:
			if !ok {
				slog.Info("live: tick stream closed", "symbol", d.cfg.Symbol)
				return nil
			}
			d.handle(ctx, t)
		}
	}
}

// State returns a copy of the engine state.
func (d *Driver) State() strategy.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.engine.State()
}

type tickResult struct {
	prev, signal model.Position
	snap         model.IndicatorSnapshot
	equity       float64
	newCandles   int
	newTrades    int
}

func (d *Driver) handle(ctx context.Context, t model.Tick) {
	start := time.Now()
	if t.Symbol != "" && t.Symbol != d.cfg.Symbol {
		return
	}

	res, err := d.step(t)
	if err != nil {
		slog.Warn("live: rejected tick", "symbol", d.cfg.Symbol, "error", err)
		if d.m != nil {
			d.m.InvalidTicksTotal.Inc()
		}
		return
	}

	if d.m != nil {
		d.m.TicksTotal.Inc()
		d.m.CandlesTotal.Add(float64(res.newCandles))
		d.m.TradesTotal.Add(float64(res.newTrades))
		d.m.ObserveState(res.signal, res.equity, res.snap.RSI)
		d.m.TickProcessDur.Observe(time.Since(start).Seconds())
	}
	d.logStatus(t, res)

	if res.signal == res.prev {
		return
	}
	if d.m != nil {
		d.m.SignalsTotal.WithLabelValues(res.signal.String()).Inc()
	}
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(d.cfg.Symbol, t.Time))
	slog.Info("live: signal", append([]any{
		"symbol", d.cfg.Symbol, "from", res.prev, "to", res.signal,
		"price", t.Price, "rsi", res.snap.RSI, "equity", res.equity,
	}, logger.LogWithTrace(ctx)...)...)
	d.emit(Event{
		Kind:   EventSignal,
		Symbol: d.cfg.Symbol,
		Time:   t.Time,
		From:   res.prev,
		To:     res.signal,
		Price:  t.Price,
		RSI:    res.snap.RSI,
		Equity: res.equity,
	})

	if res.signal == d.lastOrdered {
		return
	}
	d.trade(ctx, res.prev, res.signal, t)
	d.lastOrdered = res.signal
}

// step runs the engine under the exclusive lock.
func (d *Driver) step(t model.Tick) (tickResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := tickResult{prev: d.engine.Position()}
	candles, trades := d.engine.CandleCount(), d.engine.TradeCount()

	sig, err := d.engine.OnTick(t)
	if err != nil {
		return res, err
	}
	d.lastTickAt = d.now()

	res.signal = sig
	res.snap, _ = d.engine.LastSnapshot()
	res.equity = d.engine.Equity()
	res.newCandles = d.engine.CandleCount() - candles
	res.newTrades = d.engine.TradeCount() - trades
	return res, nil
}

// logStatus logs price and indicators once per tick-minute.
func (d *Driver) logStatus(t model.Tick, res tickResult) {
	minute := t.Time.Truncate(time.Minute)
	if minute.Equal(d.logMinute) {
		return
	}
	d.logMinute = minute

	attrs := []any{
		"symbol", d.cfg.Symbol,
		"price", t.Price,
		"rsi", res.snap.RSI,
		"position", res.signal,
		"equity", res.equity,
	}
	if b := res.snap.Bands; b != nil {
		attrs = append(attrs, "bb_lower", b.Lower, "bb_mean", b.Mean, "bb_upper", b.Upper)
	}
	slog.Info("live: status", attrs...)
}

func (d *Driver) emit(ev Event) {
	if d.events != nil {
		d.events.Publish(ev)
	}
}
