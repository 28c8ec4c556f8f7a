package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsibot/internal/model"
)

type memReader struct {
	ticks []model.Tick
	err   error
}

func (m *memReader) ReadTicks(symbol string, from, to time.Time) ([]model.Tick, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Tick
	for _, t := range m.ticks {
		if t.Symbol == symbol && !t.Time.Before(from) && (to.IsZero() || t.Time.Before(to)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memReader) TickDays(symbol string) ([]time.Time, error) {
	var days []time.Time
	for _, t := range m.ticks {
		d := t.Time.Truncate(24 * time.Hour)
		if t.Symbol == symbol && (len(days) == 0 || !days[len(days)-1].Equal(d)) {
			days = append(days, d)
		}
	}
	return days, nil
}

func (m *memReader) Close() error { return nil }

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sample() *memReader {
	return &memReader{ticks: []model.Tick{
		{Symbol: "BTC", Price: 1, Time: base},
		{Symbol: "BTC", Price: 2, Time: base.Add(10 * time.Millisecond)},
		{Symbol: "BTC", Price: 3, Time: base.Add(24 * time.Hour)},
	}}
}

func TestRunEmitsInOrder(t *testing.T) {
	r := New(sample(), 0)
	out := make(chan model.Tick, 10)

	n, err := r.Run(context.Background(), Window{Symbol: "BTC"}, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	close(out)

	var prices []float64
	for tk := range out {
		prices = append(prices, tk.Price)
	}
	assert.Equal(t, []float64{1, 2, 3}, prices)
}

func TestDays(t *testing.T) {
	r := New(sample(), 0)
	days, err := r.Days("BTC")
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "BTC 2024-05-01", days[0].String())

	out, errc := r.Stream(context.Background(), days[0], 0)
	var n int
	for range out {
		n++
	}
	assert.NoError(t, <-errc)
	assert.Equal(t, 2, n)
}

func TestRunPacesBySpeed(t *testing.T) {
	r := New(sample(), 1) // real time: 10ms gap between the first two ticks
	out := make(chan model.Tick, 10)

	start := time.Now()
	_, err := r.Run(context.Background(), Window{Symbol: "BTC", From: base, To: base.Add(time.Hour)}, out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(sample(), 0).Run(ctx, Window{Symbol: "BTC"}, make(chan model.Tick))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReaderError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := New(&memReader{err: boom}, 0).Run(context.Background(), Window{Symbol: "BTC"}, make(chan model.Tick))
	assert.ErrorIs(t, err, boom)
}
