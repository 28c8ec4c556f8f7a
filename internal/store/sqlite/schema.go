package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

func open(path string, conns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			price  REAL    NOT NULL,
			volume REAL    NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, ts);

		CREATE TABLE IF NOT EXISTS backtest_runs (
			run_id      TEXT PRIMARY KEY,
			source      TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			sharpe      REAL    NOT NULL,
			equity      REAL    NOT NULL,
			pnl_percent REAL    NOT NULL,
			candles     INTEGER NOT NULL,
			ticks       INTEGER NOT NULL,
			error       TEXT    NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS run_trades (
			run_id TEXT    NOT NULL,
			seq    INTEGER NOT NULL,
			equity REAL    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS run_points (
			run_id TEXT    NOT NULL,
			kind   TEXT    NOT NULL,
			seq    INTEGER NOT NULL,
			ts     INTEGER NOT NULL,
			price  REAL    NOT NULL,
			PRIMARY KEY (run_id, kind, seq)
		);

		CREATE TABLE IF NOT EXISTS run_equity (
			run_id TEXT    NOT NULL,
			seq    INTEGER NOT NULL,
			equity REAL    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}
