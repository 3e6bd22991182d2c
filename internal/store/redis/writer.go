// Package redis publishes bars, decisions and position snapshots to Redis
// streams, latest-value keys and pub/sub channels for dashboards and other
// consumers.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"trendbot/internal/metrics"
	"trendbot/internal/model"
)

const (
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64         // approximate XADD trim length, default 5000
	LatestTTL    time.Duration // TTL of latest-value keys, default 24h
}

// Keys and channels written for a symbol.
func barLatestKey(b *model.Bar) string     { return "bar:" + b.Interval + ":latest:" + b.Symbol }
func barChannel(b *model.Bar) string       { return "pub:bar:" + b.Interval + ":" + b.Symbol }
func decisionLatestKey(sym string) string { return "decision:latest:" + sym }
func decisionChannel(sym string) string   { return "pub:decision:" + sym }

// PositionKey holds the JSON position snapshot of a symbol.
func PositionKey(sym string) string { return "position:" + sym }

// Writer writes bars and decisions to Redis with one pipeline per event.
type Writer struct {
	client  *goredis.Client
	log     zerolog.Logger
	metrics *metrics.Metrics
	maxLen  int64
	ttl     time.Duration
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig, logger zerolog.Logger, m *metrics.Metrics) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}

	log := logger.With().Str("component", "redis").Logger()
	log.Info().Str("addr", cfg.Addr).Msg("connected")
	return &Writer{client: client, log: log, metrics: m, maxLen: cfg.StreamMaxLen, ttl: cfg.LatestTTL}, nil
}

// WriteBar appends a closed bar to its stream, sets the latest key and
// publishes it.
func (w *Writer) WriteBar(ctx context.Context, b model.Bar) error {
	data := string(b.JSON())

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: b.StreamKey(),
		MaxLen: w.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Set(ctx, barLatestKey(&b), data, w.ttl)
	pipe.Publish(ctx, barChannel(&b), data)

	return w.exec(ctx, pipe, b.Key())
}

// WriteDecision appends a decision to its stream, publishes it and replaces
// the position snapshot with the post-transition view.
func (w *Writer) WriteDecision(ctx context.Context, d model.Decision) error {
	data := string(d.JSON())
	sym := d.Intent.Symbol
	pos := d.After
	pos.Symbol = sym

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: d.StreamKey(),
		MaxLen: w.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":   data,
			"action": string(d.Intent.Action),
			"reason": string(d.Intent.Reason),
		},
	})
	pipe.Set(ctx, decisionLatestKey(sym), data, w.ttl)
	pipe.Set(ctx, PositionKey(sym), string(pos.JSON()), 0)
	pipe.Publish(ctx, decisionChannel(sym), data)

	return w.exec(ctx, pipe, sym)
}

func (w *Writer) exec(ctx context.Context, pipe goredis.Pipeliner, key string) error {
	start := time.Now()
	_, err := pipe.Exec(ctx)
	if w.metrics != nil {
		w.metrics.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("redis pipeline for %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
