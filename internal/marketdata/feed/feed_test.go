package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsibot/internal/model"
)

var upgrader = websocket.Upgrader{}

// tickServer sends msgs to every connection, then closes it.
func tickServer(t *testing.T, msgs ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDecodeEncode(t *testing.T) {
	tk, err := Decode([]byte(`{"symbol":"BTCUSDT","price":64123.5,"volume":0.01,"ts":1714564800123}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", tk.Symbol)
	assert.Equal(t, 64123.5, tk.Price)
	assert.Equal(t, time.UnixMilli(1714564800123).UTC(), tk.Time)

	raw, err := Encode(tk)
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"BTCUSDT","price":64123.5,"volume":0.01,"ts":1714564800123}`, string(raw))

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{URL: "http://example.com"})
	assert.Error(t, err)
	_, err = New(Config{URL: "://"})
	assert.Error(t, err)
}

func TestStreamsAndFilters(t *testing.T) {
	srv, _ := tickServer(t,
		`{"symbol":"BTCUSDT","price":1,"ts":1000}`,
		`garbage`,
		`{"symbol":"ETHUSDT","price":2,"ts":2000}`,
		`{"symbol":"BTCUSDT","price":3,"ts":3000}`,
	)
	f, err := New(Config{URL: wsURL(srv), Symbol: "BTCUSDT", ReconnectDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan model.Tick, 10)
	done := make(chan error, 1)
	go func() { done <- f.Start(ctx, ticks) }()

	var got []float64
	for len(got) < 2 {
		select {
		case tk := <-ticks:
			got = append(got, tk.Price)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for ticks")
		}
	}
	assert.Equal(t, []float64{1, 3}, got)

	cancel()
	assert.NoError(t, <-done)
}

func TestReconnectsThenGivesUp(t *testing.T) {
	srv, conns := tickServer(t) // accepts, then hangs up immediately
	f, err := New(Config{
		URL:                  wsURL(srv),
		ReconnectDelay:       time.Millisecond,
		MaxReconnectDelay:    2 * time.Millisecond,
		MaxReconnectAttempts: 3,
	})
	require.NoError(t, err)

	var reconnects int
	f.OnReconnect = func(int, error) { reconnects++ }

	err = f.Start(context.Background(), make(chan model.Tick, 1))
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, 3, reconnects)
	assert.Equal(t, int32(4), conns.Load())
}
