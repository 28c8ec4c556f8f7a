// Package sim serves a simulated tick stream over WebSocket in the wire
// format the live feed consumes. It lets the live command run end to end
// without an exchange connection.
package sim

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"rsibot/internal/marketdata/feed"
	"rsibot/internal/model"
)

// Hub fans encoded ticks out to connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client. Slow clients lose the message.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were dropped for slow clients.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades the request and streams broadcasts until the client
// goes away.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("sim: upgrade failed", "error", err)
			return
		}
		slog.Info("sim: client connected", "remote", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			slog.Info("sim: client disconnected", "remote", r.RemoteAddr)
		}()

		// reader detects the close handshake
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg := <-ch:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-gone:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

// Walk is a random walk price source.
type Walk struct {
	Symbol string
	Price  float64
	// Step is the largest relative move per tick, 0.001 means ±0.1%.
	Step float64
	// Floor keeps the price positive.
	Floor float64

	rng *rand.Rand
}

// NewWalk starts a walk at price. seed makes the walk reproducible.
func NewWalk(symbol string, price, step float64, seed int64) *Walk {
	return &Walk{
		Symbol: symbol,
		Price:  price,
		Step:   step,
		Floor:  0.01,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next advances the walk and returns the tick stamped at now.
func (w *Walk) Next(now time.Time) model.Tick {
	pct := (w.rng.Float64()*2 - 1) * w.Step
	w.Price += w.Price * pct
	if w.Price < w.Floor {
		w.Price = w.Floor
	}
	return model.Tick{
		Symbol: w.Symbol,
		Price:  float64(int64(w.Price*100+0.5)) / 100,
		Volume: float64(w.rng.Intn(100)+1) / 1000,
		Time:   now.UTC(),
	}
}

// Generate broadcasts one tick per walk every interval until ctx is done.
func Generate(ctx context.Context, h *Hub, walks []*Walk, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, w := range walks {
				b, err := feed.Encode(w.Next(now))
				if err != nil {
					continue
				}
				h.Broadcast(b)
			}
		}
	}
}
