package redis

import (
	"context"
	"log/slog"
	"sync"
)

type pendingSignal struct {
	symbol string
	data   []byte
}

// signalBuffer holds signal events written while the circuit is open and
// replays them through write when it closes.
type signalBuffer struct {
	mu     sync.Mutex
	buffer []pendingSignal
	maxBuf int // oldest events are dropped beyond this
	write  func(ctx context.Context, symbol string, data []byte) error
}

func newSignalBuffer(maxBuf int, write func(ctx context.Context, symbol string, data []byte) error) *signalBuffer {
	if maxBuf <= 0 {
		maxBuf = 10000
	}
	return &signalBuffer{maxBuf: maxBuf, write: write}
}

func (b *signalBuffer) add(symbol string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) >= b.maxBuf {
		b.buffer = b.buffer[1:]
	}
	b.buffer = append(b.buffer, pendingSignal{symbol: symbol, data: append([]byte(nil), data...)})
}

func (b *signalBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// flush replays all buffered events. Events that fail again are put back
// in front of anything buffered meanwhile.
func (b *signalBuffer) flush(ctx context.Context) int {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return 0
	}
	toFlush := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	flushed := 0
	for i, ps := range toFlush {
		if err := b.write(ctx, ps.symbol, ps.data); err != nil {
			slog.Warn("redis: signal replay failed", "pending", len(toFlush)-i, "error", err)
			b.mu.Lock()
			b.buffer = append(append([]pendingSignal(nil), toFlush[i:]...), b.buffer...)
			if over := len(b.buffer) - b.maxBuf; over > 0 {
				b.buffer = b.buffer[over:]
			}
			b.mu.Unlock()
			break
		}
		flushed++
	}
	if flushed > 0 {
		slog.Info("redis: flushed buffered signals", "count", flushed)
	}
	return flushed
}
