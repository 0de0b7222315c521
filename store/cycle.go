package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CycleStore persists one record per processed bar: the detected regime,
// the grid center and the reconciliation counts. Useful for post-mortems of
// live sessions.
type CycleStore struct {
	db *sql.DB
}

// CycleRecord is one bar's pipeline outcome.
type CycleRecord struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	Symbol    string    `json:"symbol"`
	Regime    string    `json:"regime"`
	Center    string    `json:"center"`
	SpreadBps float64   `json:"spread_bps"`
	Cancels   int       `json:"cancels"`
	Replaces  int       `json:"replaces"`
	Creates   int       `json:"creates"`
	Blocked   int       `json:"blocked"`
	Failed    int       `json:"failed"`
}

func (s *CycleStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS strategy_cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time DATETIME NOT NULL,
			symbol TEXT NOT NULL,
			regime TEXT NOT NULL,
			center TEXT NOT NULL,
			spread_bps REAL NOT NULL DEFAULT 0,
			cancels INTEGER NOT NULL DEFAULT 0,
			replaces INTEGER NOT NULL DEFAULT 0,
			creates INTEGER NOT NULL DEFAULT 0,
			blocked INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_symbol_time ON strategy_cycles(symbol, time DESC)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Insert stores one cycle record.
func (s *CycleStore) Insert(r *CycleRecord) error {
	res, err := s.db.Exec(
		`INSERT INTO strategy_cycles (time, symbol, regime, center, spread_bps, cancels, replaces, creates, blocked, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Time.UTC(), r.Symbol, r.Regime, r.Center, r.SpreadBps, r.Cancels, r.Replaces, r.Creates, r.Blocked, r.Failed,
	)
	if err != nil {
		return fmt.Errorf("insert cycle record: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns up to limit records for a symbol, newest first.
func (s *CycleStore) Recent(symbol string, limit int) ([]*CycleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, time, symbol, regime, center, spread_bps, cancels, replaces, creates, blocked, failed
		 FROM strategy_cycles WHERE symbol = ? ORDER BY time DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycle records: %w", err)
	}
	defer rows.Close()

	var out []*CycleRecord
	for rows.Next() {
		r := &CycleRecord{}
		if err := rows.Scan(&r.ID, &r.Time, &r.Symbol, &r.Regime, &r.Center, &r.SpreadBps,
			&r.Cancels, &r.Replaces, &r.Creates, &r.Blocked, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan cycle record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
