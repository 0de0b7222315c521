// Package store is the persistence layer. All database access goes through
// this package.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"hedgegrid/logger"
)

// Store is the unified storage handle with lazily initialized sub-stores.
type Store struct {
	db *sql.DB

	cycle  *CycleStore
	orders *OrderStore
	equity *EquityStore

	mu sync.Mutex
}

// New opens (or creates) the SQLite database at path and initializes all
// tables.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; WAL keeps readers unblocked during the bar loop.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("database initialized at %s", path)
	return s, nil
}

func (s *Store) initTables() error {
	for _, sub := range []interface{ initTables() error }{
		&CycleStore{db: s.db},
		&OrderStore{db: s.db},
		&EquityStore{db: s.db},
	} {
		if err := sub.initTables(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Cycle returns the per-bar cycle record store.
func (s *Store) Cycle() *CycleStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil {
		s.cycle = &CycleStore{db: s.db}
	}
	return s.cycle
}

// Orders returns the order audit-log store.
func (s *Store) Orders() *OrderStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orders == nil {
		s.orders = &OrderStore{db: s.db}
	}
	return s.orders
}

// Equity returns the equity snapshot store.
func (s *Store) Equity() *EquityStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.equity == nil {
		s.equity = &EquityStore{db: s.db}
	}
	return s.equity
}
