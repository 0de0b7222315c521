package store

import (
	"database/sql"
	"fmt"
	"time"
)

// OrderStore is the append-only audit log of order intents dispatched to the
// venue.
type OrderStore struct {
	db *sql.DB
}

// OrderRecord is one dispatched intent.
type OrderRecord struct {
	ID       int64     `json:"id"`
	Time     time.Time `json:"time"`
	ClientID string    `json:"client_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Action   string    `json:"action"` // CREATE, CANCEL or REPLACE
	Price    string    `json:"price"`
	Qty      string    `json:"qty"`
}

func (s *OrderStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS order_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time DATETIME NOT NULL,
			client_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			action TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '',
			qty TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_audit_symbol_time ON order_audit(symbol, time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_order_audit_client ON order_audit(client_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Insert appends one audit record.
func (s *OrderStore) Insert(r *OrderRecord) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO order_audit (time, client_id, symbol, side, action, price, qty)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Time.UTC(), r.ClientID, r.Symbol, r.Side, r.Action, r.Price, r.Qty,
	)
	if err != nil {
		return fmt.Errorf("insert order record: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns up to limit audit records for a symbol, newest first.
func (s *OrderStore) Recent(symbol string, limit int) ([]*OrderRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, time, client_id, symbol, side, action, price, qty
		 FROM order_audit WHERE symbol = ? ORDER BY time DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query order records: %w", err)
	}
	defer rows.Close()

	var out []*OrderRecord
	for rows.Next() {
		r := &OrderRecord{}
		if err := rows.Scan(&r.ID, &r.Time, &r.ClientID, &r.Symbol, &r.Side, &r.Action, &r.Price, &r.Qty); err != nil {
			return nil, fmt.Errorf("scan order record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
