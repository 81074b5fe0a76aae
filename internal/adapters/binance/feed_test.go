package binance_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/adapters/binance"
)

// aggTradeServer sirve un stream aggTrade por conexión. Cada conexión envía
// los precios de prices[conn] y luego cierra (o se queda abierta si es la última).
func aggTradeServer(t *testing.T, prices [][]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "usdt@aggTrade"), r.URL.Path)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		idx := int(conns.Add(1)) - 1
		if idx >= len(prices) {
			idx = len(prices) - 1
		}
		for _, p := range prices[idx] {
			msg := fmt.Sprintf(`{"e":"aggTrade","s":"BTCUSDT","p":%q,"q":"0.01"}`, p)
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		if idx < len(prices)-1 {
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		}
		// última conexión: mantener abierta hasta que el cliente cierre
		for {
			if _, _, err := c.ReadMessage(); err != nil {
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

func TestFeed_StreamURL(t *testing.T) {
	f := binance.NewFeed("", []string{"BTC"}, binance.NewTracker())
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@aggTrade", f.StreamURL("BTC"))
}

func TestFeed_RecordsPricesAndStopsOnCancel(t *testing.T) {
	srv, _ := aggTradeServer(t, [][]string{{"50000.10", "garbage", "50001.5"}})
	tracker := binance.NewTracker()
	feed := binance.NewFeed(wsURL(srv), []string{"BTC"}, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	require.Eventually(t, func() bool {
		p, ok := tracker.Latest("BTC")
		return ok && p == 50001.5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed no se detuvo tras cancelar")
	}
}

func TestFeed_ReconnectsAfterClose(t *testing.T) {
	srv, conns := aggTradeServer(t, [][]string{{"100"}, {"200"}})
	tracker := binance.NewTracker()
	feed := binance.NewFeed(wsURL(srv), []string{"SOL"}, tracker,
		binance.WithReconnectDelays(10*time.Millisecond, 10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	require.Eventually(t, func() bool {
		p, ok := tracker.Latest("SOL")
		return ok && p == 200
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestFeed_RetriesWhenDialFails(t *testing.T) {
	tracker := binance.NewTracker()
	feed := binance.NewFeed("ws://127.0.0.1:1", []string{"BTC"}, tracker,
		binance.WithReconnectDelays(5*time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, feed.Run(ctx))
	_, ok := tracker.Latest("BTC")
	assert.False(t, ok)
}
