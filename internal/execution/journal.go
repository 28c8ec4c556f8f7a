package execution

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rsibot/internal/model"
)

// Journal persists fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		qty         REAL NOT NULL,
		price       REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	slog.Info("journal: opened fill journal", "path", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(f model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, symbol, side, qty, price, slippage, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID,
		f.Symbol,
		string(f.Side),
		f.Qty,
		f.Price,
		f.Slippage,
		f.FilledAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetFills returns the last N fills, newest first.
func (j *Journal) GetFills(limit int) ([]model.Fill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT order_id, symbol, side, qty, price, slippage, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []model.Fill
	for rows.Next() {
		var (
			f    model.Fill
			side string
			ts   string
		)
		if err := rows.Scan(&f.OrderID, &f.Symbol, &side, &f.Qty, &f.Price, &f.Slippage, &ts); err != nil {
			return nil, err
		}
		f.Side = model.Side(side)
		f.FilledAt, _ = time.Parse(time.RFC3339Nano, ts)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
