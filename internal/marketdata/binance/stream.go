// Package binance is the bar feed adapter for Binance spot market data. It
// turns the public kline and trade streams into one ordered queue of engine
// events and fetches historical klines over REST.
//
// Reconnection is the adapter's concern: the stream client retries with
// exponential backoff and exposes only connect and reconnect hooks.
package binance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

// StreamConfig configures the combined kline+trade stream.
type StreamConfig struct {
	// BaseURL of the stream host, e.g. "wss://stream.binance.com:9443".
	BaseURL  string
	Symbol   string
	Interval string

	// Trades also subscribes to <symbol>@trade for intrabar exits.
	Trades bool

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 1 second if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 60s.
	MaxReconnectDelay time.Duration

	// HealthyAfter resets the backoff once a connection has lasted this
	// long. Defaults to 1 minute.
	HealthyAfter time.Duration

	// ReadTimeout closes a silent connection. Defaults to 90s.
	ReadTimeout time.Duration
}

func (c *StreamConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 60 * time.Second
	}
	if c.HealthyAfter == 0 {
		c.HealthyAfter = time.Minute
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 90 * time.Second
	}
}

// Stream reads the combined stream and pushes events into a single channel.
type Stream struct {
	cfg StreamConfig
	url string
	log zerolog.Logger

	// Optional hooks.
	OnConnect   func(connected bool)
	OnReconnect func()
}

// NewStream validates cfg and builds the combined stream URL.
func NewStream(cfg StreamConfig, logger zerolog.Logger) (*Stream, error) {
	cfg.defaults()
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("stream needs a symbol and an interval")
	}
	u, err := StreamURL(cfg.BaseURL, cfg.Symbol, cfg.Interval, cfg.Trades)
	if err != nil {
		return nil, err
	}
	return &Stream{
		cfg: cfg,
		url: u,
		log: logger.With().Str("component", "binance-stream").Str("symbol", cfg.Symbol).Logger(),
	}, nil
}

// StreamURL returns the combined stream URL for a symbol.
func StreamURL(base, symbol, interval string, trades bool) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	sym := strings.ToLower(symbol)
	streams := []string{fmt.Sprintf("%s@kline_%s", sym, interval)}
	if trades {
		streams = append(streams, sym+"@trade")
	}
	u.Path += "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// Start connects and streams events into out until ctx is cancelled.
// Closed bars are delivered with a blocking send so none is lost; ticks are
// dropped when out is full. Reconnects automatically on disconnect.
func (s *Stream) Start(ctx context.Context, out chan<- model.Event) error {
	delay := s.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connectedAt := time.Now()
		err := s.runOnce(ctx, out)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}
		if s.OnConnect != nil {
			s.OnConnect(false)
		}

		if time.Since(connectedAt) >= s.cfg.HealthyAfter {
			delay = s.cfg.ReconnectDelay
		}

		s.log.Warn().Err(err).Dur("retry_in", delay).Msg("stream disconnected, reconnecting")
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (s *Stream) runOnce(ctx context.Context, out chan<- model.Event) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info().Str("url", s.url).Msg("stream connected")
	if s.OnConnect != nil {
		s.OnConnect(true)
	}

	// The server pings every few minutes; any frame extends the deadline.
	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	// Async context watcher: closes the connection when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		ev, ok, err := ParseStreamMessage(raw, s.cfg.Interval)
		if err != nil {
			s.log.Warn().Err(err).Msg("parse error")
			continue
		}
		if !ok {
			continue
		}

		switch ev.Kind {
		case model.EventBar:
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		case model.EventTick:
			select {
			case out <- ev:
			default:
				s.log.Debug().Msg("event queue full, dropping tick")
			}
		}
	}
}
