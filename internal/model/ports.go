package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the trading loop from concrete storage and
// transport implementations (Redis, SQLite). Each implementation satisfies
// one or more of them. None of them is ever called from inside the engine.

// BarWriter persists closed bars.
type BarWriter interface {
	// RunBars reads bars from barCh and writes them.
	// Blocks until ctx is cancelled or barCh is closed.
	RunBars(ctx context.Context, barCh <-chan Bar)

	// Close releases underlying resources.
	Close() error
}

// DecisionWriter persists or publishes engine decisions.
type DecisionWriter interface {
	// RunDecisions reads decisions from ch and writes them.
	// Blocks until ctx is cancelled or ch is closed.
	RunDecisions(ctx context.Context, ch <-chan Decision)

	// Close releases underlying resources.
	Close() error
}

// BarReader reads stored bars for warm-up and replay.
type BarReader interface {
	// ReadBars returns bars strictly after `after`, oldest first.
	// limit <= 0 means no limit.
	ReadBars(symbol, interval string, after time.Time, limit int) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// BarSource fetches historical bars from an exchange.
type BarSource interface {
	// Klines returns up to limit closed bars starting at start (zero = most recent).
	Klines(ctx context.Context, symbol, interval string, limit int, start time.Time) ([]Bar, error)
}
