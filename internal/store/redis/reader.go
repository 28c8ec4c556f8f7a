package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// ErrStateNotFound is returned when no state is stored for a symbol.
var ErrStateNotFound = errors.New("redis: state not found")

// StateReader reads what Publisher writes.
type StateReader struct {
	client *goredis.Client
}

// NewStateReader wraps client.
func NewStateReader(client *goredis.Client) *StateReader {
	return &StateReader{client: client}
}

// ReadState returns the latest state JSON of symbol.
func (r *StateReader) ReadState(ctx context.Context, symbol string) ([]byte, error) {
	data, err := r.client.Get(ctx, StateKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", StateKey(symbol), err)
	}
	return data, nil
}

// RecentSignals returns up to n signal events of symbol, newest first.
func (r *StateReader) RecentSignals(ctx context.Context, symbol string, n int64) ([][]byte, error) {
	msgs, err := r.client.XRevRangeN(ctx, SignalStream(symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", SignalStream(symbol), err)
	}
	out := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		if s, ok := m.Values["data"].(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

// Close closes the Redis client.
func (r *StateReader) Close() error {
	return r.client.Close()
}
