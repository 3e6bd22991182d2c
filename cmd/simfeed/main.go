// cmd/simfeed is a demo exchange feed.
// Serves a random-walk market in the exchange's wire format so the trader can
// run end to end without network access:
//
//	/stream          combined kline + trade WebSocket stream
//	/api/v3/klines   closed kline history
//
// Point the trader at it with STREAM_URL=ws://localhost:9001 and
// REST_URL=http://localhost:9001.
//
// Config (env vars):
//
//	SIMFEED_ADDR        listen address (default: ":9001")
//	SYMBOL              simulated symbol (default: "BTCUSDT")
//	INTERVAL            kline interval (default: "1m")
//	TICK_INTERVAL_MS    trade interval milliseconds (default: "200")
//	START_PRICE         initial price (default: "30000")
//	HISTORY_BARS        bars of history generated at startup (default: "500")
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trendbot/config"
	"trendbot/internal/logger"
	"trendbot/internal/marketdata/agg"
	"trendbot/internal/model"
)

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client
		}
	}
}

// ─── Wire format ──────────────────────────────────────────────────────────────

type envelope struct {
	Stream string `json:"stream"`
	Data   any    `json:"data"`
}

type tradeMsg struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
}

type klineMsg struct {
	Event     string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     klineBody `json:"k"`
}

type klineBody struct {
	OpenTime  int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func klineOf(b model.Bar, closed bool) klineMsg {
	return klineMsg{
		Event:     "kline",
		EventTime: time.Now().UnixMilli(),
		Symbol:    b.Symbol,
		Kline: klineBody{
			OpenTime:  b.OpenTime.UnixMilli(),
			CloseTime: b.CloseTime.UnixMilli(),
			Symbol:    b.Symbol,
			Interval:  b.Interval,
			Open:      num(b.Open),
			Close:     num(b.Close),
			High:      num(b.High),
			Low:       num(b.Low),
			Volume:    strconv.FormatFloat(b.Volume, 'f', 4, 64),
			Closed:    closed,
		},
	}
}

// klineRow is the REST array form of a closed bar.
func klineRow(b model.Bar) []any {
	return []any{
		b.OpenTime.UnixMilli(), num(b.Open), num(b.High), num(b.Low), num(b.Close),
		strconv.FormatFloat(b.Volume, 'f', 4, 64), b.CloseTime.UnixMilli(),
		"0", 0, "0", "0", "0",
	}
}

// ─── Market ───────────────────────────────────────────────────────────────────

type market struct {
	symbol   string
	interval string
	size     time.Duration

	mu      sync.RWMutex
	price   float64
	history []model.Bar
	rng     *rand.Rand
}

// walk applies a small random step (±0.1%) with a slow drift that flips
// direction now and then so trends form.
func (m *market) walk(drift float64) float64 {
	pct := (m.rng.Float64()*0.2 - 0.1 + drift) / 100.0
	m.price *= 1 + pct
	if m.price < 1 {
		m.price = 1
	}
	return m.price
}

// seed generates closed history bars ending before the current bucket.
func (m *market) seed(n int) {
	now := time.Now().UTC().Truncate(m.size)
	drift := 0.02
	for i := n; i > 0; i-- {
		if m.rng.Intn(40) == 0 {
			drift = -drift
		}
		open := now.Add(-time.Duration(i) * m.size)
		b := model.Bar{
			Symbol: m.symbol, Interval: m.interval,
			OpenTime: open, CloseTime: open.Add(m.size - time.Millisecond),
			Open: m.price, High: m.price, Low: m.price, Closed: true,
		}
		for j := 0; j < 20; j++ {
			p := m.walk(drift * 5)
			b.High = math.Max(b.High, p)
			b.Low = math.Min(b.Low, p)
			b.Volume += m.rng.Float64()
		}
		b.Close = m.price
		m.history = append(m.history, b)
	}
}

func (m *market) appendBar(b model.Bar) {
	m.mu.Lock()
	m.history = append(m.history, b)
	m.mu.Unlock()
}

// klines answers /api/v3/klines with the newest `limit` bars at or after startTime.
func (m *market) klines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !strings.EqualFold(q.Get("symbol"), m.symbol) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, `{"code":-1121,"msg":"Invalid symbol."}`)
		return
	}
	limit := 500
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= 1000 {
		limit = n
	}
	var start time.Time
	if ms, err := strconv.ParseInt(q.Get("startTime"), 10, 64); err == nil {
		start = time.UnixMilli(ms)
	}

	m.mu.RLock()
	var rows [][]any
	if start.IsZero() {
		from := len(m.history) - limit
		if from < 0 {
			from = 0
		}
		for _, b := range m.history[from:] {
			rows = append(rows, klineRow(b))
		}
	} else {
		for _, b := range m.history {
			if !b.OpenTime.Before(start) && len(rows) < limit {
				rows = append(rows, klineRow(b))
			}
		}
	}
	m.mu.RUnlock()

	if rows == nil {
		rows = [][]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// ─── Generator ────────────────────────────────────────────────────────────────

func runGenerator(ctx context.Context, m *market, h *hub, every time.Duration, log zerolog.Logger) {
	a := agg.New(m.interval, m.size, log)
	ticks := make(chan model.Tick, 1024)
	bars := make(chan model.Bar, 64)
	go a.Run(ctx, ticks, bars)

	sym := strings.ToLower(m.symbol)
	klineStream := sym + "@kline_" + m.interval
	tradeStream := sym + "@trade"

	send := func(stream string, data any) {
		b, err := json.Marshal(envelope{Stream: stream, Data: data})
		if err != nil {
			return
		}
		h.broadcast(b)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	drift := 0.01
	for {
		select {
		case <-ctx.Done():
			return

		case b := <-bars:
			m.appendBar(b)
			send(klineStream, klineOf(b, true))
			log.Info().Time("open_time", b.OpenTime).Float64("close", b.Close).Msg("bar closed")

		case <-ticker.C:
			m.mu.Lock()
			if m.rng.Intn(500) == 0 {
				drift = -drift
			}
			p := m.walk(drift)
			qty := m.rng.Float64()
			m.mu.Unlock()

			now := time.Now().UTC()
			t := model.Tick{Symbol: m.symbol, Price: p, Qty: qty, TS: now}
			select {
			case ticks <- t:
			default:
			}
			send(tradeStream, tradeMsg{
				Event: "trade", EventTime: now.UnixMilli(), Symbol: m.symbol,
				Price: num(p), Qty: strconv.FormatFloat(qty, 'f', 4, 64), TradeTime: now.UnixMilli(),
			})
			if cur, ok := a.Current(m.symbol); ok {
				send(klineStream, klineOf(cur, false))
			}
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("upgrade failed")
			return
		}
		log.Info().Str("remote", r.RemoteAddr).Str("streams", r.URL.Query().Get("streams")).Msg("client connected")

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Info().Str("remote", r.RemoteAddr).Msg("client disconnected")
		}()

		// Drain reads so pings and closes are handled.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.unregister(conn)
					return
				}
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log := logger.Init("simfeed", envOrDefault("LOG_LEVEL", "info"))

	addr := envOrDefault("SIMFEED_ADDR", ":9001")
	interval := envOrDefault("INTERVAL", "1m")
	size, err := config.IntervalDuration(interval)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid INTERVAL")
	}

	m := &market{
		symbol:   strings.ToUpper(envOrDefault("SYMBOL", "BTCUSDT")),
		interval: interval,
		size:     size,
		price:    envFloatOrDefault("START_PRICE", 30000),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.seed(envIntOrDefault("HISTORY_BARS", 500))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	every := time.Duration(envIntOrDefault("TICK_INTERVAL_MS", 200)) * time.Millisecond
	go runGenerator(ctx, m, h, every, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", wsHandler(h, log))
	mux.HandleFunc("/api/v3/klines", m.klines)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"simfeed"}`)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Str("symbol", m.symbol).Str("interval", interval).Int("history", len(m.history)).Msg("simfeed listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
