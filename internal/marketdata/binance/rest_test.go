package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func klineRow(open time.Time, price float64) string {
	return fmt.Sprintf(`[%d,"%g","%g","%g","%g","1",%d,"0",1,"0","0","0"]`,
		open.UnixMilli(), price, price+1, price-1, price, open.Add(time.Hour-time.Millisecond).UnixMilli())
}

func TestClientKlines_DropsOpenKline(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/api/v3/klines")
		gotQuery = r.URL.RawQuery
		rows := []string{
			klineRow(now.Add(-2*time.Hour).Truncate(time.Hour), 100),
			klineRow(now.Add(-time.Hour).Truncate(time.Hour), 101),
			klineRow(now.Truncate(time.Hour), 102), // still open
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	}))
	defer srv.Close()

	c := NewClient(RESTConfig{BaseURL: srv.URL, RequestsPerSecond: 100})
	c.now = func() time.Time { return now }

	bars, err := c.Klines(context.Background(), "BTCUSDT", "1h", 3, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, len(bars), 2)
	assert.Equal(t, bars[1].Close, 101.0)
	assert.True(t, strings.Contains(gotQuery, "symbol=BTCUSDT"))
	assert.True(t, strings.Contains(gotQuery, "interval=1h"))
	assert.True(t, strings.Contains(gotQuery, "limit=3"))
	assert.False(t, strings.Contains(gotQuery, "startTime"))
}

func TestClientKlines_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	}))
	defer srv.Close()

	c := NewClient(RESTConfig{BaseURL: srv.URL})
	_, err := c.Klines(context.Background(), "BTCUSDT", "1h", 10, time.Time{})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "429"))
}

func TestClientKlines_ContextCancelled(t *testing.T) {
	c := NewClient(RESTConfig{BaseURL: "http://127.0.0.1:1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Klines(ctx, "BTCUSDT", "1h", 10, time.Time{})
	assert.Error(t, err)
}

func TestClientHistory_Pages(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := MaxKlinesPerRequest + 250
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		ms, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		from := time.UnixMilli(ms).UTC()

		rows := make([]string, 0, MaxKlinesPerRequest)
		for i := 0; i < MaxKlinesPerRequest; i++ {
			open := from.Add(time.Duration(i) * time.Hour)
			if open.Sub(start)/time.Hour >= time.Duration(total) {
				break
			}
			rows = append(rows, klineRow(open, 100+float64(i)))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	}))
	defer srv.Close()

	c := NewClient(RESTConfig{BaseURL: srv.URL, RequestsPerSecond: 1000})
	bars, err := c.History(context.Background(), "BTCUSDT", "1h", start, time.Time{})
	assert.NoError(t, err)
	assert.Equal(t, len(bars), total)
	assert.Equal(t, requests, 2)
	for i := 1; i < len(bars); i++ {
		if !bars[i].OpenTime.After(bars[i-1].OpenTime) {
			t.Fatalf("bars out of order at %d", i)
		}
	}
}
