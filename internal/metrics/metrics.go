// Package metrics exposes Prometheus metrics for the strategy engine and
// its drivers.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rsibot/internal/model"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	TicksTotal        prometheus.Counter
	InvalidTicksTotal prometheus.Counter
	CandlesTotal      prometheus.Counter
	TickProcessDur    prometheus.Histogram

	// Strategy state
	SignalsTotal *prometheus.CounterVec // labels: position
	TradesTotal  prometheus.Counter
	Equity       prometheus.Gauge
	Position     prometheus.Gauge // -1=short, 0=flat, 1=long
	RSI          prometheus.Gauge

	// Execution
	OrdersTotal *prometheus.CounterVec // labels: status=filled|failed|retried

	// Feed
	FeedReconnects prometheus.Counter
	FeedStale      prometheus.Gauge // 1 while no ticks arrive

	// Publishing
	PublishErrors            prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	FanoutDropsTotal         *prometheus.CounterVec // labels: subscriber
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_ticks_total",
			Help: "Total ticks accepted by the engine",
		}),
		InvalidTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_invalid_ticks_total",
			Help: "Ticks rejected by the engine's input contract",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_candles_total",
			Help: "Total candles sealed",
		}),
		TickProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsibot_tick_process_duration_seconds",
			Help:    "Engine OnTick latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_signals_total",
			Help: "Position transitions by target position",
		}, []string{"position"}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_trades_total",
			Help: "Round trips realized in the equity ledger",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsibot_equity",
			Help: "Hypothetical equity multiple (starts at 1.0)",
		}),
		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsibot_position",
			Help: "Current position (-1=short, 0=flat, 1=long)",
		}),
		RSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsibot_rsi",
			Help: "Latest RSI value",
		}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_orders_total",
			Help: "Order placement attempts by outcome",
		}, []string{"status"}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_feed_reconnects_total",
			Help: "Total tick feed reconnection attempts",
		}),
		FeedStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsibot_feed_stale",
			Help: "1 while the tick feed is considered stale",
		}),

		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsibot_publish_errors_total",
			Help: "Failed state or signal publications",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsibot_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsibot_fanout_drops_total",
			Help: "Events dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.InvalidTicksTotal,
		m.CandlesTotal,
		m.TickProcessDur,
		m.SignalsTotal,
		m.TradesTotal,
		m.Equity,
		m.Position,
		m.RSI,
		m.OrdersTotal,
		m.FeedReconnects,
		m.FeedStale,
		m.PublishErrors,
		m.RedisCircuitBreakerState,
		m.FanoutDropsTotal,
	)

	return m
}

// ObserveState updates the strategy gauges.
func (m *Metrics) ObserveState(pos model.Position, equity, rsi float64) {
	m.Position.Set(pos.Sign())
	m.Equity.Set(equity)
	m.RSI.Set(rsi)
}

// Server runs an HTTP server exposing /metrics.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics server for the metrics gathered by g.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
