package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trendbot/internal/model"
)

// Reader provides read-only access to stored bars for warm-up and replay.
type Reader struct {
	db *sql.DB
}

var _ model.BarReader = (*Reader)(nil)

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Reader{db: db}, nil
}

// ReadBars returns bars with open time strictly after `after`, ordered by
// open time ascending. limit <= 0 means no limit.
func (r *Reader) ReadBars(symbol, interval string, after time.Time, limit int) ([]model.Bar, error) {
	afterMs := int64(-1)
	if !after.IsZero() {
		afterMs = after.UnixMilli()
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.Query(`
		SELECT symbol, interval, open_time, close_time, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ? AND open_time > ?
		ORDER BY open_time ASC
		LIMIT ?
	`, symbol, interval, afterMs, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b               model.Bar
			openMs, closeMs int64
			volume          sql.NullFloat64
		)
		if err := rows.Scan(&b.Symbol, &b.Interval, &openMs, &closeMs, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.OpenTime = time.UnixMilli(openMs).UTC()
		b.CloseTime = time.UnixMilli(closeMs).UTC()
		b.Volume = volume.Float64
		b.Closed = true
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LatestBars returns the newest n bars, oldest first.
func (r *Reader) LatestBars(symbol, interval string, n int) ([]model.Bar, error) {
	var from sql.NullInt64
	err := r.db.QueryRow(`
		SELECT MIN(open_time) FROM (
			SELECT open_time FROM bars WHERE symbol = ? AND interval = ?
			ORDER BY open_time DESC LIMIT ?
		)
	`, symbol, interval, n).Scan(&from)
	if err != nil {
		return nil, fmt.Errorf("sqlite latest bars: %w", err)
	}
	if !from.Valid {
		return nil, nil
	}
	return r.ReadBars(symbol, interval, time.UnixMilli(from.Int64-1), n)
}

// LastBarTime returns the open time of the newest stored bar, or the zero
// time when none exists.
func (r *Reader) LastBarTime(symbol, interval string) (time.Time, error) {
	return lastBarTime(r.db, symbol, interval)
}

// CountDecisions returns the number of stored decisions for symbol.
func (r *Reader) CountDecisions(symbol string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE symbol = ?`, symbol).Scan(&n)
	return n, err
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
