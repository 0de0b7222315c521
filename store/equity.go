package store

import (
	"database/sql"
	"fmt"
	"time"
)

// EquityStore persists account equity snapshots for return curves.
type EquityStore struct {
	db *sql.DB
}

// EquitySnapshot is one sampled account state.
type EquitySnapshot struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	Equity    float64   `json:"equity"`
	Available float64   `json:"available"`
}

func (s *EquityStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS equity_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time DATETIME NOT NULL,
			equity REAL NOT NULL DEFAULT 0,
			available REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_time ON equity_snapshots(time DESC)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Insert stores one snapshot.
func (s *EquityStore) Insert(snap *EquitySnapshot) error {
	if snap.Time.IsZero() {
		snap.Time = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO equity_snapshots (time, equity, available) VALUES (?, ?, ?)`,
		snap.Time.UTC(), snap.Equity, snap.Available,
	)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	snap.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns up to limit snapshots, newest first.
func (s *EquityStore) Recent(limit int) ([]*EquitySnapshot, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(
		`SELECT id, time, equity, available FROM equity_snapshots ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query equity snapshots: %w", err)
	}
	defer rows.Close()

	var out []*EquitySnapshot
	for rows.Next() {
		snap := &EquitySnapshot{}
		if err := rows.Scan(&snap.ID, &snap.Time, &snap.Equity, &snap.Available); err != nil {
			return nil, fmt.Errorf("scan equity snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
