package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rsibot/internal/model"
)

// ErrRunNotFound is returned by ReadRun for an unknown run id.
var ErrRunNotFound = errors.New("sqlite: run not found")

// Reader provides read access to stored ticks and backtest runs.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath, 2)
	if err != nil {
		return nil, err
	}
	slog.Info("sqlite: opened reader", "path", dbPath)
	return &Reader{db: db}, nil
}

// ReadTicks returns the ticks of symbol in [from, to) in arrival order.
// A zero to means no upper bound.
func (r *Reader) ReadTicks(symbol string, from, to time.Time) ([]model.Tick, error) {
	upper := int64(1<<63 - 1)
	if !to.IsZero() {
		upper = to.UnixMilli()
	}
	rows, err := r.db.Query(`
		SELECT symbol, ts, price, volume
		FROM ticks
		WHERE symbol = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC, rowid ASC
	`, symbol, from.UnixMilli(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var (
			t  model.Tick
			ms int64
		)
		if err := rows.Scan(&t.Symbol, &ms, &t.Price, &t.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan ticks: %w", err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// TickDays lists the UTC days holding ticks of symbol, oldest first.
func (r *Reader) TickDays(symbol string) ([]time.Time, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT ts / 86400000
		FROM ticks
		WHERE symbol = ?
		ORDER BY 1 ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("sqlite query tick days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("sqlite scan tick days: %w", err)
		}
		days = append(days, time.Unix(d*86400, 0).UTC())
	}
	return days, rows.Err()
}

// ReadRun loads a saved backtest run.
func (r *Reader) ReadRun(runID string) (model.RunRecord, error) {
	var (
		rec     model.RunRecord
		started int64
	)
	err := r.db.QueryRow(`
		SELECT run_id, source, symbol, started_at, sharpe, equity, pnl_percent, candles, ticks, error
		FROM backtest_runs WHERE run_id = ?
	`, runID).Scan(&rec.RunID, &rec.Source, &rec.Symbol, &started,
		&rec.Sharpe, &rec.Equity, &rec.PnLPercent, &rec.Candles, &rec.Ticks, &rec.Err)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return rec, fmt.Errorf("sqlite read run: %w", err)
	}
	rec.StartedAt = time.UnixMilli(started).UTC()

	if rec.Trades, err = r.floats(`SELECT equity FROM run_trades WHERE run_id = ? ORDER BY seq`, runID); err != nil {
		return rec, err
	}
	if rec.Curve, err = r.floats(`SELECT equity FROM run_equity WHERE run_id = ? ORDER BY seq`, runID); err != nil {
		return rec, err
	}
	if rec.Entries, err = r.points(runID, "entry"); err != nil {
		return rec, err
	}
	if rec.Exits, err = r.points(runID, "exit"); err != nil {
		return rec, err
	}
	return rec, nil
}

// RecentRuns returns the run ids of the last n saved runs, newest first.
func (r *Reader) RecentRuns(n int) ([]string, error) {
	rows, err := r.db.Query(`SELECT run_id FROM backtest_runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Reader) floats(query, runID string) ([]float64, error) {
	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Reader) points(runID, kind string) ([]model.Point, error) {
	rows, err := r.db.Query(`SELECT ts, price FROM run_points WHERE run_id = ? AND kind = ? ORDER BY seq`, runID, kind)
	if err != nil {
		return nil, fmt.Errorf("sqlite query points: %w", err)
	}
	defer rows.Close()

	var out []model.Point
	for rows.Next() {
		var (
			p  model.Point
			ms int64
		)
		if err := rows.Scan(&ms, &p.Price); err != nil {
			return nil, err
		}
		p.Time = time.UnixMilli(ms).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
