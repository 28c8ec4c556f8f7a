// Package feed streams ticks from a JSON WebSocket server.
//
// Every text message is one tick:
//
//	{"symbol":"BTCUSDT","price":64123.5,"volume":0.01,"ts":1714564800123}
//
// with ts in Unix milliseconds.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"rsibot/internal/model"
)

// ErrGaveUp is returned by Start after MaxReconnectAttempts consecutive
// failed connections.
var ErrGaveUp = errors.New("feed: reconnect attempts exhausted")

// Config holds the feed configuration.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws".
	URL string

	// Symbol filters ticks; empty accepts every symbol.
	Symbol string

	// ReconnectDelay is the initial delay before reconnecting. Defaults to 2s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// MaxReconnectAttempts bounds consecutive failed connections; 0 = unlimited.
	MaxReconnectAttempts int
}

func (c *Config) defaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

type wireTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	TS     int64   `json:"ts"`
}

// Decode parses one wire message.
func Decode(raw []byte) (model.Tick, error) {
	var w wireTick
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Tick{}, fmt.Errorf("feed: decode: %w", err)
	}
	return model.Tick{
		Symbol: w.Symbol,
		Price:  w.Price,
		Volume: w.Volume,
		Time:   time.UnixMilli(w.TS).UTC(),
	}, nil
}

// Encode renders t in wire format.
func Encode(t model.Tick) ([]byte, error) {
	return json.Marshal(wireTick{Symbol: t.Symbol, Price: t.Price, Volume: t.Volume, TS: t.Time.UnixMilli()})
}

// Feed connects to a tick server and pushes ticks into a channel.
type Feed struct {
	cfg Config

	// OnReconnect (optional) is called before each reconnection wait.
	OnReconnect func(attempt int, err error)
	// OnDrop (optional) is called when tickCh is full and a tick is dropped.
	OnDrop func()
}

// New creates a Feed. Returns an error if the URL is unparseable.
func New(cfg Config) (*Feed, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed: url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed: url %q: scheme must be ws or wss", cfg.URL)
	}
	return &Feed{cfg: cfg}, nil
}

// Start streams ticks into tickCh until ctx is cancelled, reconnecting with
// exponential backoff. A session that delivered at least one tick resets
// the backoff and the attempt counter.
func (f *Feed) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := f.cfg.ReconnectDelay
	attempts := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		received, err := f.runOnce(ctx, tickCh)
		if err == nil {
			return nil
		}
		if received > 0 {
			delay = f.cfg.ReconnectDelay
			attempts = 0
		}
		attempts++
		if f.cfg.MaxReconnectAttempts > 0 && attempts > f.cfg.MaxReconnectAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempts-1, err)
		}

		slog.Warn("feed: disconnected, reconnecting", "error", err, "delay", delay, "attempt", attempts)
		if f.OnReconnect != nil {
			f.OnReconnect(attempts, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection and reads until disconnect or ctx
// cancel. It returns nil only on cancellation.
func (f *Feed) runOnce(ctx context.Context, tickCh chan<- model.Tick) (int, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil
		}
		return 0, err
	}
	defer conn.Close()

	slog.Info("feed: connected", "url", f.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	received := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			return received, err
		}

		tick, err := Decode(raw)
		if err != nil {
			slog.Warn("feed: bad message", "error", err, "raw", string(raw))
			continue
		}
		if f.cfg.Symbol != "" && tick.Symbol != f.cfg.Symbol {
			continue
		}
		received++

		select {
		case tickCh <- tick:
		default:
			if f.OnDrop != nil {
				f.OnDrop()
			}
			slog.Warn("feed: tick channel full, dropping tick", "symbol", tick.Symbol)
		}
	}
}
