// Command tickserver broadcasts simulated ticks over WebSocket in the
// format rsibot's live feed reads, for running the bot without an
// exchange connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"rsibot/internal/logger"
	"rsibot/internal/marketdata/sim"
)

type config struct {
	Addr     string        `env:"TICK_SERVER_ADDR" envDefault:":8765"`
	Symbols  string        `env:"TICK_SYMBOLS" envDefault:"BTCUSDT:50000"`
	Interval time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
	Step     float64       `env:"TICK_STEP" envDefault:"0.001"`
	Seed     int64         `env:"TICK_SEED"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	_ = godotenv.Load()
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "tickserver:", err)
		os.Exit(1)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger.Init("tickserver", level, "text")

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	walks, err := parseWalks(cfg.Symbols, cfg.Step, seed)
	if err != nil {
		slog.Error("tickserver: bad TICK_SYMBOLS", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := sim.NewHub()
	go sim.Generate(ctx, h, walks, cfg.Interval)

	mux := http.NewServeMux()
	mux.HandleFunc("/ticks", h.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","clients":%d,"dropped":%d}`+"\n", h.Clients(), h.Dropped())
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	slog.Info("tickserver: listening", "addr", cfg.Addr, "symbols", len(walks), "interval", cfg.Interval)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("tickserver: server error", "error", err)
		os.Exit(1)
	}
}

// parseWalks reads SYMBOL:PRICE pairs. The seed is offset per symbol.
func parseWalks(s string, step float64, seed int64) ([]*sim.Walk, error) {
	var walks []*sim.Walk
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, p, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%q: want SYMBOL:PRICE", part)
		}
		price, err := strconv.ParseFloat(p, 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("%q: invalid price", part)
		}
		walks = append(walks, sim.NewWalk(strings.TrimSpace(sym), price, step, seed+int64(i)))
	}
	if len(walks) == 0 {
		return nil, errors.New("no symbols")
	}
	return walks, nil
}
