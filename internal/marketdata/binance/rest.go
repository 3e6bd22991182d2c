package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"trendbot/internal/model"
)

// MaxKlinesPerRequest is the exchange cap on the klines limit parameter.
const MaxKlinesPerRequest = 1000

// RESTConfig configures the public REST client.
type RESTConfig struct {
	// BaseURL, e.g. "https://api.binance.com".
	BaseURL string

	// RequestsPerSecond caps outgoing requests. Defaults to 5.
	RequestsPerSecond float64

	// Timeout per request. Defaults to 10s.
	Timeout time.Duration
}

// Client fetches historical klines from the public REST API.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// Ensure Client implements model.BarSource.
var _ model.BarSource = (*Client)(nil)

// NewClient builds a REST client.
func NewClient(cfg RESTConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		now:     time.Now,
	}
}

// Klines returns up to limit closed bars, oldest first, starting at start
// (zero start means the most recent bars). A still-open last kline is dropped.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int, start time.Time) ([]model.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		if limit > MaxKlinesPerRequest {
			limit = MaxKlinesPerRequest
		}
		params.Set("limit", strconv.Itoa(limit))
	}
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}

	u := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s: %w", symbol, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance klines status %d: %.128s", res.StatusCode, body)
	}

	bars, err := ParseKlines(body, symbol, interval)
	if err != nil {
		return nil, err
	}

	if n := len(bars); n > 0 && bars[n-1].CloseTime.After(c.now()) {
		bars = bars[:n-1]
	}
	return bars, nil
}

// History pages through Klines from start until end (or the latest closed
// bar when end is zero).
func (c *Client) History(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.Bar, error) {
	var out []model.Bar
	next := start
	for {
		page, err := c.Klines(ctx, symbol, interval, MaxKlinesPerRequest, next)
		if err != nil {
			return out, err
		}
		for _, b := range page {
			if !end.IsZero() && b.OpenTime.After(end) {
				return out, nil
			}
			out = append(out, b)
		}
		if len(page) < MaxKlinesPerRequest {
			return out, nil
		}
		next = page[len(page)-1].OpenTime.Add(time.Millisecond)
	}
}
