package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rsibot/config"
	"rsibot/internal/driver/live"
	"rsibot/internal/execution"
	"rsibot/internal/marketdata/agg"
	"rsibot/internal/marketdata/bus"
	"rsibot/internal/marketdata/feed"
	"rsibot/internal/metrics"
	"rsibot/internal/model"
	"rsibot/internal/notification"
	redisstore "rsibot/internal/store/redis"
	sqlitestore "rsibot/internal/store/sqlite"
	"rsibot/internal/strategy"
)

type liveFlags struct {
	feedURL string
	record  bool
	paper   bool
	noRedis bool
}

func newLiveCmd(a *app) *cobra.Command {
	var f liveFlags

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Trade the strategy on a live tick feed",
		Long: `Live connects to a JSON WebSocket tick feed, drives the strategy on every
tick and places post-only limit orders on each position change.

Orders are filled by the built-in paper venue and journaled to JOURNAL_PATH.
Engine state is published to Redis every STATE_INTERVAL and Prometheus
metrics are served on METRICS_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !f.paper {
				return errors.New("live: only paper execution is available")
			}
			if f.feedURL != "" {
				a.cfg.FeedURL = f.feedURL
			}
			return runLive(cmd.Context(), a.cfg, f)
		},
	}

	cmd.Flags().StringVar(&f.feedURL, "feed-url", "", "tick WebSocket URL (default FEED_URL)")
	cmd.Flags().BoolVar(&f.record, "record", false, "record ticks to SQLITE_PATH for later backtests")
	cmd.Flags().BoolVar(&f.paper, "paper", true, "fill orders on the paper venue")
	cmd.Flags().BoolVar(&f.noRedis, "no-redis", false, "do not publish state to Redis")
	return cmd
}

func runLive(ctx context.Context, cfg *config.Config, f liveFlags) error {
	sc, err := cfg.Strategy()
	if err != nil {
		return err
	}
	engine, err := strategy.New(sc)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	for _, p := range []string{cfg.JournalPath, cfg.SQLitePath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
	}

	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()
	paper := execution.NewPaperExecutor(cfg.SlippageBps, journal)

	events := bus.New[live.Event](256)
	ticks := bus.New[model.Tick](4096)
	dropCounter(events, m, "event")
	dropCounter(ticks, m, "tick")

	drv, err := live.New(live.Config{
		Symbol:        cfg.Symbol,
		PositionSize:  cfg.PositionSize,
		LimitOffset:   cfg.LimitOffset,
		StaleAfter:    cfg.StaleAfter,
		StateInterval: cfg.StateInterval,
	}, live.Deps{Engine: engine, Placer: paper, Positions: paper, Metrics: m, Events: events})
	if err != nil {
		return err
	}

	preload(drv, cfg, sc.CandleInterval)
	if err := drv.Reconcile(ctx); err != nil {
		return err
	}

	src, err := feed.New(feed.Config{
		URL:                  cfg.FeedURL,
		Symbol:               cfg.Symbol,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectDelay:    cfg.MaxReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		return err
	}
	src.OnReconnect = func(int, error) { m.FeedReconnects.Inc() }
	src.OnDrop = func() { m.FanoutDropsTotal.WithLabelValues("feed").Inc() }

	notifiers := notification.Multi{notification.NewLogNotifier(nil)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}

	var pub *redisstore.Publisher
	if !f.noRedis {
		client, err := redisstore.NewClient(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			slog.Warn("live: redis unavailable, continuing without state publishing", "error", err)
		} else {
			pub = redisstore.NewPublisher(client, redisstore.PublisherOptions{
				OnStateChange: func(_, to redisstore.State) { m.RedisCircuitBreakerState.Set(float64(to)) },
			})
			defer pub.Close()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	raw := make(chan model.Tick, 4096)

	g.Go(func() error {
		defer close(raw)
		err := src.Start(gctx, raw)
		if errors.Is(err, feed.ErrGaveUp) {
			notifiers.Send(context.Background(), notification.Alert{
				Level: notification.AlertCritical, Title: "Feed lost", Message: err.Error(),
			})
		}
		return err
	})
	driverTicks := ticks.Subscribe()
	if f.record {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			return err
		}
		defer w.Close()
		recorded := ticks.Subscribe()
		g.Go(func() error {
			w.Run(gctx, recorded)
			return nil
		})
	}
	g.Go(func() error {
		ticks.Run(gctx, raw)
		return nil
	})
	g.Go(func() error {
		defer events.Close()
		return drv.Run(gctx, driverTicks)
	})
	g.Go(func() error {
		drv.MonitorFeed(gctx)
		return nil
	})

	notified := events.Subscribe()
	g.Go(func() error {
		live.NotifySink(gctx, notified, notifiers)
		return nil
	})
	if pub != nil {
		published := events.Subscribe()
		g.Go(func() error {
			live.PublishSink(gctx, published, pub, func(error) { m.PublishErrors.Inc() })
			return nil
		})
		g.Go(func() error {
			drv.PublishStates(gctx, pub)
			return nil
		})
	}
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, reg)
		g.Go(func() error { return srv.Run(gctx) })
	}

	slog.Info("live: running", "symbol", cfg.Symbol, "feed", cfg.FeedURL, "record", f.record, "redis", pub != nil)
	err = g.Wait()

	st := drv.State()
	slog.Info("live: stopped", "position", st.Position, "equity", st.Equity, "trades", st.Trades, "ticks", st.Ticks)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// preload seeds the engine with the most recent recorded candles. A
// missing or empty database only costs the warm start.
func preload(drv *live.Driver, cfg *config.Config, interval time.Duration) {
	if cfg.PreloadCandles <= 0 {
		return
	}
	if _, err := os.Stat(cfg.SQLitePath); err != nil {
		return
	}
	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		slog.Warn("live: preload skipped", "error", err)
		return
	}
	defer r.Close()

	from := time.Now().Add(-time.Duration(cfg.PreloadCandles+1) * interval)
	ticks, err := r.ReadTicks(cfg.Symbol, from, time.Time{})
	if err != nil {
		slog.Warn("live: preload skipped", "error", err)
		return
	}
	candles := agg.Build(ticks, interval)
	if n := len(candles) - cfg.PreloadCandles; n > 0 {
		candles = candles[n:]
	}
	if len(candles) == 0 {
		return
	}
	if err := drv.Preload(candles); err != nil {
		slog.Warn("live: preload skipped", "error", err)
	}
}

func dropCounter[T any](f *bus.FanOut[T], m *metrics.Metrics, name string) {
	f.OnDrop = func(int) {
		m.FanoutDropsTotal.WithLabelValues(name).Inc()
	}
}
