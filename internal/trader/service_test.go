package trader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"trendbot/config"
	"trendbot/internal/metrics"
	"trendbot/internal/model"
	sqlitestore "trendbot/internal/store/sqlite"
	"trendbot/internal/strategy"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func klineRow(i int) string {
	open := epoch.Add(time.Duration(i) * time.Hour)
	c := 100 + float64(i%7)
	return fmt.Sprintf(`[%d,"%g","%g","%g","%g","3",%d,"0",1,"0","0","0"]`,
		open.UnixMilli(), c-0.5, c+1, c-1, c, open.Add(time.Hour-time.Millisecond).UnixMilli())
}

// fakeExchange serves the klines endpoint and a combined stream that sends
// one more closed kline and a trade.
func fakeExchange(t *testing.T, warmup int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		rows := make([]string, warmup)
		for i := range rows {
			rows[i] = klineRow(i)
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		open := epoch.Add(time.Duration(warmup) * time.Hour)
		kline := fmt.Sprintf(`{"stream":"btcusdt@kline_1h","data":{"e":"kline","s":"BTCUSDT","k":{"t":%d,"T":%d,"s":"BTCUSDT","i":"1h","o":"100","c":"101","h":"102","l":"99","v":"5","x":true}}}`,
			open.UnixMilli(), open.Add(time.Hour-time.Millisecond).UnixMilli())
		trade := fmt.Sprintf(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"101.5","q":"0.2","T":%d}}`,
			open.Add(time.Hour+time.Minute).UnixMilli())
		conn.WriteMessage(websocket.TextMessage, []byte(kline))
		conn.WriteMessage(websocket.TextMessage, []byte(trade))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestService_WarmupStreamAndPersist(t *testing.T) {
	const warmup = 60
	srv := fakeExchange(t, warmup)
	dbPath := filepath.Join(t.TempDir(), "data", "trendbot.db")

	cfg := &config.Config{
		Symbol:      "BTCUSDT",
		Interval:    "1h",
		StreamURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		RESTURL:     srv.URL,
		SQLitePath:  dbPath,
		MetricsAddr: "127.0.0.1:0",
		PaperQty:    0.01,
		WarmupLimit: warmup,
		TickExits:   true,
		ReportAt:    "00:00",
		Timezone:    "UTC",
	}
	assert.NoError(t, cfg.Validate())

	svc, err := New(cfg, strategy.DefaultConfig(), zerolog.Nop())
	assert.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	reader, err := sqlitestore.NewReader(dbPath)
	assert.NoError(t, err)
	defer reader.Close()

	deadline := time.Now().Add(5 * time.Second)
	var stored []model.Bar
	for time.Now().Before(deadline) {
		stored, err = reader.ReadBars("BTCUSDT", "1h", time.Time{}, 0)
		if err == nil && len(stored) == warmup+1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, len(stored), warmup+1)
	assert.Equal(t, svc.engine.WindowLen(), warmup+1)
	assert.True(t, svc.engine.LastBarTime().Equal(epoch.Add(warmup*time.Hour)))

	// The report job runs against an empty journal without failing.
	svc.DailyReport()
}

// staticSource serves fixed bars or an error.
type staticSource struct {
	bars []model.Bar
	err  error
}

func (s staticSource) Klines(ctx context.Context, symbol, interval string, limit int, start time.Time) ([]model.Bar, error) {
	return s.bars, s.err
}

func TestTap_ForwardsInOrder(t *testing.T) {
	s := &Service{health: metrics.NewHealthStatus()}

	in := make(chan model.Event, 3)
	out := make(chan model.Event, 3)
	bar := model.Bar{Symbol: "BTCUSDT", OpenTime: epoch}
	in <- model.BarEvent(bar)
	in <- model.TickEvent(model.Tick{Symbol: "BTCUSDT", Price: 1, TS: epoch.Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	go s.tap(ctx, in, out)

	first := <-out
	second := <-out
	cancel()
	assert.Equal(t, first.Kind, model.EventBar)
	assert.Equal(t, second.Kind, model.EventTick)
	assert.True(t, s.health.LastBarTime.Equal(epoch))
	assert.True(t, s.health.LastTickTime.Equal(epoch.Add(time.Hour)))
}

func TestWarmup_FallsBackToStoredBars(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bars.db")
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath, Logger: zerolog.Nop()})
	assert.NoError(t, err)
	defer w.Close()
	r, err := sqlitestore.NewReader(dbPath)
	assert.NoError(t, err)
	defer r.Close()

	var bars []model.Bar
	for i := 0; i < 40; i++ {
		open := epoch.Add(time.Duration(i) * time.Hour)
		bars = append(bars, model.Bar{
			Symbol: "BTCUSDT", Interval: "1h", OpenTime: open, CloseTime: open.Add(time.Hour - time.Millisecond),
			Open: 100, High: 101, Low: 99, Close: 100.5, Closed: true,
		})
	}
	assert.NoError(t, w.InsertBars(bars))

	engine, err := strategy.NewEngine(strategy.DefaultConfig(), strategy.Options{Symbol: "BTCUSDT", Interval: "1h", Logger: zerolog.Nop()})
	assert.NoError(t, err)

	s := &Service{
		cfg:    &config.Config{Symbol: "BTCUSDT", Interval: "1h", WarmupLimit: 30},
		log:    zerolog.Nop(),
		health: metrics.NewHealthStatus(),
		engine: engine,
		source: staticSource{err: fmt.Errorf("exchange down")},
		sqlW:   w,
		sqlR:   r,
	}
	assert.NoError(t, s.Warmup(context.Background()))
	assert.Equal(t, engine.WindowLen(), 30)
	assert.True(t, engine.LastBarTime().Equal(bars[39].OpenTime))
}
