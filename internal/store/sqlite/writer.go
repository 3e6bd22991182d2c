// Package sqlite stores closed bars and engine decisions in a local SQLite
// database and reads bars back for warm-up and replay.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"trendbot/internal/metrics"
	"trendbot/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath  string // path to SQLite database file, e.g. "data/trendbot.db"
	Logger  zerolog.Logger
	Metrics *metrics.Metrics // optional
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *metrics.Metrics
}

var (
	_ model.BarWriter      = (*Writer)(nil)
	_ model.DecisionWriter = (*Writer)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := cfg.Logger.With().Str("component", "sqlite").Logger()
	log.Info().Str("path", cfg.DBPath).Msg("opened database")
	return &Writer{db: db, log: log, metrics: cfg.Metrics}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			open_time  INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			PRIMARY KEY (symbol, interval, open_time)
		);

		CREATE TABLE IF NOT EXISTS decisions (
			intent_id       TEXT    PRIMARY KEY,
			trace_id        TEXT    NOT NULL,
			symbol          TEXT    NOT NULL,
			action          TEXT    NOT NULL,
			reason          TEXT    NOT NULL,
			reference_price REAL    NOT NULL,
			bar_time        INTEGER NOT NULL,
			created_at      INTEGER NOT NULL,
			data            TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol, created_at);
	`)
	return err
}

// runBatched drains ch into flush, batching up to defaultBatchSize items or
// defaultFlushDelay, whichever comes first. Blocks until ctx is cancelled or
// ch is closed.
func runBatched[T any](ctx context.Context, ch <-chan T, flush func([]T)) {
	batch := make([]T, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	emit := func() {
		if len(batch) == 0 {
			return
		}
		flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			emit()
			return

		case item, ok := <-ch:
			if !ok {
				emit()
				return
			}
			batch = append(batch, item)
			if len(batch) >= defaultBatchSize {
				emit()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			emit()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// RunBars reads bars from barCh and inserts them in batched transactions.
func (w *Writer) RunBars(ctx context.Context, barCh <-chan model.Bar) {
	runBatched(ctx, barCh, func(batch []model.Bar) {
		if err := w.InsertBars(batch); err != nil {
			w.fail("bars", err, len(batch))
		}
	})
}

// RunDecisions reads decisions from ch and inserts them in batched transactions.
func (w *Writer) RunDecisions(ctx context.Context, ch <-chan model.Decision) {
	runBatched(ctx, ch, func(batch []model.Decision) {
		if err := w.InsertDecisions(batch); err != nil {
			w.fail("decisions", err, len(batch))
		}
	})
}

func (w *Writer) fail(table string, err error, n int) {
	w.log.Error().Err(err).Str("table", table).Int("rows", n).Msg("batch insert failed")
	if w.metrics != nil {
		w.metrics.SinkErrors.WithLabelValues("sqlite").Inc()
	}
}

// InsertBars upserts bars in a single transaction.
func (w *Writer) InsertBars(bars []model.Bar) error {
	return w.inTx(`
		INSERT OR REPLACE INTO bars (symbol, interval, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(bars), func(stmt *sql.Stmt, i int) error {
		b := bars[i]
		_, err := stmt.Exec(b.Symbol, b.Interval, b.OpenTime.UnixMilli(), b.CloseTime.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume)
		return err
	})
}

// InsertDecisions stores decisions in a single transaction. A decision whose
// intent id is already stored is skipped.
func (w *Writer) InsertDecisions(decisions []model.Decision) error {
	return w.inTx(`
		INSERT OR IGNORE INTO decisions (intent_id, trace_id, symbol, action, reason, reference_price, bar_time, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(decisions), func(stmt *sql.Stmt, i int) error {
		d := &decisions[i]
		in := d.Intent
		_, err := stmt.Exec(in.ID, d.TraceID, in.Symbol, string(in.Action), string(in.Reason),
			in.ReferencePrice, in.BarTime.UnixMilli(), in.CreatedAt.UnixMilli(), string(d.JSON()))
		return err
	})
}

// inTx prepares query once and executes it n times inside one transaction.
func (w *Writer) inTx(query string, n int, exec func(*sql.Stmt, int) error) error {
	start := time.Now()
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.SQLiteCommitDur.Observe(time.Since(start).Seconds())
	}
	w.log.Debug().Int("rows", n).Dur("took", time.Since(start)).Msg("committed batch")
	return nil
}

// LastBarTime returns the open time of the newest stored bar, or the zero
// time when none exists.
func (w *Writer) LastBarTime(symbol, interval string) (time.Time, error) {
	return lastBarTime(w.db, symbol, interval)
}

func lastBarTime(db *sql.DB, symbol, interval string) (time.Time, error) {
	var ms sql.NullInt64
	err := db.QueryRow(
		`SELECT MAX(open_time) FROM bars WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&ms)
	if err != nil {
		return time.Time{}, err
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
