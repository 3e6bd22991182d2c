package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

func TestStreamURL(t *testing.T) {
	u, err := StreamURL("wss://stream.binance.com:9443/", "BTCUSDT", "1h", true)
	assert.NoError(t, err)
	assert.Equal(t, u, "wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1h/btcusdt@trade")

	u, err = StreamURL("wss://stream.binance.com:9443", "ETHUSDT", "4h", false)
	assert.NoError(t, err)
	assert.Equal(t, u, "wss://stream.binance.com:9443/stream?streams=ethusdt@kline_4h")
}

func TestNewStream_RequiresSymbol(t *testing.T) {
	_, err := NewStream(StreamConfig{BaseURL: "ws://x", Interval: "1h"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestStream_DeliversAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	var gotStreams atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStreams.Store(r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if conns.Add(1) == 1 {
			// First connection: one open kline, one trade, one closed kline, then drop
			conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@kline_1h","data":{"e":"kline","s":"BTCUSDT","k":{"t":1,"T":2,"i":"1h","o":"1","c":"1","h":"1","l":"1","x":false}}}`))
			conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"100.5","q":"1","T":1709254800120}}`))
			conn.WriteMessage(websocket.TextMessage, []byte(closedKline))
			return
		}
		// Second connection: one more trade, then hold open
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"101","q":"1","T":1709254900000}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s, err := NewStream(StreamConfig{
		BaseURL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbol:         "BTCUSDT",
		Interval:       "1h",
		Trades:         true,
		ReconnectDelay: 10 * time.Millisecond,
	}, zerolog.Nop())
	assert.NoError(t, err)

	var reconnects atomic.Int32
	s.OnReconnect = func() { reconnects.Add(1) }

	out := make(chan model.Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, out) }()

	var events []model.Event
	timeout := time.After(3 * time.Second)
	for len(events) < 3 {
		select {
		case ev := <-out:
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out with %d events", len(events))
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	assert.Equal(t, events[0].Kind, model.EventTick)
	assert.Equal(t, events[1].Kind, model.EventBar)
	assert.Equal(t, events[1].Bar.Close, 61500.0)
	assert.Equal(t, events[2].Tick.Price, 101.0)
	assert.True(t, reconnects.Load() >= 1)
	assert.Equal(t, gotStreams.Load(), "btcusdt@kline_1h/btcusdt@trade")
}
