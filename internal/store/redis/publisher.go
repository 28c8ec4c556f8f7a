package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStateTTL     = 30 * time.Minute
	defaultSignalMaxLen = 10000
)

// Key layout. symbol is appended to every prefix.
const (
	stateKeyPrefix     = "rsibot:state:"
	signalStreamPrefix = "rsibot:signals:"
	statePubPrefix     = "pub:rsibot:state:"
	signalPubPrefix    = "pub:rsibot:signal:"
)

// StateKey is the key holding the latest engine state of symbol.
func StateKey(symbol string) string { return stateKeyPrefix + symbol }

// SignalStream is the stream of signal events of symbol.
func SignalStream(symbol string) string { return signalStreamPrefix + symbol }

// StateChannel is the pubsub channel announcing state updates of symbol.
func StateChannel(symbol string) string { return statePubPrefix + symbol }

// SignalChannel is the pubsub channel announcing signal events of symbol.
func SignalChannel(symbol string) string { return signalPubPrefix + symbol }

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// PublisherOptions tunes the Publisher. Zero values take defaults.
type PublisherOptions struct {
	StateTTL      time.Duration
	SignalMaxLen  int64
	MaxFailures   int           // consecutive failures before the breaker opens
	ResetTimeout  time.Duration // breaker open time before a probe
	MaxBuffered   int           // signal events kept while the breaker is open
	OnStateChange func(from, to State)
}

// Publisher writes engine state and signal events to Redis:
// state is SET with a TTL and PUBLISHed, signals are XADDed to a capped
// stream and PUBLISHed. All writes go through a CircuitBreaker; signal
// events rejected by an open breaker are buffered and replayed once it
// closes.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	buf    *signalBuffer
	opts   PublisherOptions
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewClient creates a Redis client and pings the server.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis: connected", "addr", cfg.Addr)
	return client, nil
}

// NewPublisher wraps client.
func NewPublisher(client *goredis.Client, opts PublisherOptions) *Publisher {
	if opts.StateTTL <= 0 {
		opts.StateTTL = defaultStateTTL
	}
	if opts.SignalMaxLen <= 0 {
		opts.SignalMaxLen = defaultSignalMaxLen
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 10 * time.Second
	}

	p := &Publisher{
		client: client,
		cb:     NewCircuitBreaker(opts.MaxFailures, opts.ResetTimeout),
		opts:   opts,
	}
	p.buf = newSignalBuffer(opts.MaxBuffered, p.writeSignal)
	p.cb.OnStateChange = func(from, to State) {
		slog.Warn("redis: circuit breaker", "from", from, "to", to)
		if opts.OnStateChange != nil {
			opts.OnStateChange(from, to)
		}
		if to == StateClosed {
			go p.buf.flush(context.Background())
		}
	}
	return p
}

// Breaker exposes the publisher's circuit breaker.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// PendingSignals is the number of buffered signal events.
func (p *Publisher) PendingSignals() int { return p.buf.len() }

// PublishState stores the latest state of symbol and announces it.
func (p *Publisher) PublishState(ctx context.Context, symbol string, state []byte) error {
	return p.cb.Execute(func() error {
		data := string(state)
		_, err := p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, StateKey(symbol), data, p.opts.StateTTL)
			pipe.Publish(ctx, StateChannel(symbol), data)
			return nil
		})
		return err
	})
}

// PublishSignal appends a signal event to the symbol's stream and announces
// it. While the breaker is open the event is buffered and nil is returned.
func (p *Publisher) PublishSignal(ctx context.Context, symbol string, event []byte) error {
	err := p.cb.Execute(func() error {
		return p.writeSignal(ctx, symbol, event)
	})
	if errors.Is(err, ErrCircuitOpen) {
		p.buf.add(symbol, event)
		return nil
	}
	return err
}

func (p *Publisher) writeSignal(ctx context.Context, symbol string, event []byte) error {
	data := string(event)
	_, err := p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: SignalStream(symbol),
			MaxLen: p.opts.SignalMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, SignalChannel(symbol), data)
		return nil
	})
	return err
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
