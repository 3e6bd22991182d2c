package execution

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"trendbot/internal/model"
	"trendbot/internal/portfolio"
)

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Journal persists fills and round trips to SQLite for analysis and audit.
// Decimals are stored as TEXT to keep them exact.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

var _ FillJournal = (*Journal)(nil)

const journalSchema = `
CREATE TABLE IF NOT EXISTS fills (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id   TEXT NOT NULL UNIQUE,
	intent_id  TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	action     TEXT NOT NULL,
	reason     TEXT NOT NULL,
	qty        TEXT NOT NULL,
	price      TEXT NOT NULL,
	filled_at  TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol, filled_at);

CREATE TABLE IF NOT EXISTS round_trips (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	qty         TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price  TEXT NOT NULL,
	entry_time  TEXT NOT NULL,
	exit_time   TEXT NOT NULL,
	reason      TEXT NOT NULL,
	pnl         TEXT NOT NULL,
	pnl_pct     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_round_trips_exit ON round_trips(exit_time);
`

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// DB exposes the handle for health probes.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordFill persists a fill. Re-recording the same order id is a no-op.
func (j *Journal) RecordFill(ctx context.Context, f model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fills (order_id, intent_id, symbol, action, reason, qty, price, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.IntentID, f.Symbol, string(f.Action), string(f.Reason),
		f.Qty.String(), f.Price.String(), f.FilledAt.UTC().Format(tsLayout),
	)
	return err
}

// RecordRoundTrip persists a closed round trip.
func (j *Journal) RecordRoundTrip(ctx context.Context, rt portfolio.RoundTrip) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO round_trips (symbol, side, qty, entry_price, exit_price, entry_time, exit_time, reason, pnl, pnl_pct)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.Symbol, string(rt.Side), rt.Qty.String(), rt.EntryPrice.String(), rt.ExitPrice.String(),
		rt.EntryTime.UTC().Format(tsLayout), rt.ExitTime.UTC().Format(tsLayout),
		string(rt.Reason), rt.PnL.String(), rt.PnLPct.String(),
	)
	return err
}

// Fills returns the last limit fills, newest first.
func (j *Journal) Fills(ctx context.Context, limit int) ([]model.Fill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT order_id, intent_id, symbol, action, reason, qty, price, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []model.Fill
	for rows.Next() {
		var (
			f              model.Fill
			action, reason string
			filledAt       string
		)
		if err := rows.Scan(&f.OrderID, &f.IntentID, &f.Symbol, &action, &reason, &f.Qty, &f.Price, &filledAt); err != nil {
			return nil, err
		}
		f.Action, f.Reason = model.Action(action), model.Reason(reason)
		if f.FilledAt, err = time.Parse(tsLayout, filledAt); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// RoundTrips returns round trips that exited at or after since, oldest first.
func (j *Journal) RoundTrips(ctx context.Context, since time.Time) ([]portfolio.RoundTrip, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT symbol, side, qty, entry_price, exit_price, entry_time, exit_time, reason, pnl, pnl_pct
		 FROM round_trips WHERE exit_time >= ? ORDER BY exit_time, id`,
		since.UTC().Format(tsLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []portfolio.RoundTrip
	for rows.Next() {
		var (
			rt               portfolio.RoundTrip
			side, reason     string
			entryAt, exitAt  string
			qty, entry, exit decimal.Decimal
			pnl, pnlPct      decimal.Decimal
		)
		if err := rows.Scan(&rt.Symbol, &side, &qty, &entry, &exit, &entryAt, &exitAt, &reason, &pnl, &pnlPct); err != nil {
			return nil, err
		}
		rt.Side, rt.Reason = model.Side(side), model.Reason(reason)
		rt.Qty, rt.EntryPrice, rt.ExitPrice, rt.PnL, rt.PnLPct = qty, entry, exit, pnl, pnlPct
		if rt.EntryTime, err = time.Parse(tsLayout, entryAt); err != nil {
			return nil, err
		}
		if rt.ExitTime, err = time.Parse(tsLayout, exitAt); err != nil {
			return nil, err
		}
		trips = append(trips, rt)
	}
	return trips, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
