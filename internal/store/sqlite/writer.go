package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"rsibot/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/rsibot.db"

	// OnFlush (optional) is called after every committed tick batch.
	OnFlush func(n int, err error)
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It records live ticks and finished backtest runs.
type Writer struct {
	db      *sql.DB
	onFlush func(n int, err error)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath, 1)
	if err != nil {
		return nil, err
	}
	slog.Info("sqlite: opened database", "path", cfg.DBPath)
	return &Writer{db: db, onFlush: cfg.OnFlush}, nil
}

// Run reads ticks from tickCh and inserts them in batched transactions.
// Flushes every batchSize ticks OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or tickCh is closed.
func (w *Writer) Run(ctx context.Context, tickCh <-chan model.Tick) {
	batch := make([]model.Tick, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		err := w.WriteTicks(batch)
		if err != nil {
			slog.Error("sqlite: tick batch insert failed", "ticks", len(batch), "error", err)
		} else {
			slog.Debug("sqlite: committed ticks", "ticks", len(batch), "took", time.Since(start))
		}
		if w.onFlush != nil {
			w.onFlush(len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case t, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, t)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteTicks inserts ticks in a single transaction.
func (w *Writer) WriteTicks(ticks []model.Tick) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO ticks (symbol, ts, price, volume) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.Exec(t.Symbol, t.Time.UnixMilli(), t.Price, t.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SaveRun persists a backtest run with its trades, entry/exit points and
// equity curve. Saving the same RunID twice replaces the earlier rows.
func (w *Writer) SaveRun(r model.RunRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	if err := saveRun(tx, r); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite save run %s: %w", r.RunID, err)
	}
	return tx.Commit()
}

func saveRun(tx *sql.Tx, r model.RunRecord) error {
	for _, table := range []string{"run_trades", "run_points", "run_equity"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, r.RunID); err != nil {
			return err
		}
	}

	_, err := tx.Exec(`
		INSERT OR REPLACE INTO backtest_runs
			(run_id, source, symbol, started_at, sharpe, equity, pnl_percent, candles, ticks, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Source, r.Symbol, r.StartedAt.UnixMilli(),
		r.Sharpe, r.Equity, r.PnLPercent, r.Candles, r.Ticks, r.Err)
	if err != nil {
		return err
	}

	for i, eq := range r.Trades {
		if _, err := tx.Exec(`INSERT INTO run_trades (run_id, seq, equity) VALUES (?, ?, ?)`, r.RunID, i, eq); err != nil {
			return err
		}
	}
	for i, eq := range r.Curve {
		if _, err := tx.Exec(`INSERT INTO run_equity (run_id, seq, equity) VALUES (?, ?, ?)`, r.RunID, i, eq); err != nil {
			return err
		}
	}

	points := func(kind string, pts []model.Point) error {
		for i, p := range pts {
			_, err := tx.Exec(`INSERT INTO run_points (run_id, kind, seq, ts, price) VALUES (?, ?, ?, ?, ?)`,
				r.RunID, kind, i, p.Time.UnixMilli(), p.Price)
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := points("entry", r.Entries); err != nil {
		return err
	}
	return points("exit", r.Exits)
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
