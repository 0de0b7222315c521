package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCycleStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rec := &CycleRecord{
		Time:      time.Now(),
		Symbol:    "BTCUSDT",
		Regime:    "SIDEWAYS",
		Center:    "100.5",
		SpreadBps: 3.2,
		Creates:   10,
	}
	require.NoError(t, s.Cycle().Insert(rec))
	assert.NotZero(t, rec.ID)

	got, err := s.Cycle().Recent("BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SIDEWAYS", got[0].Regime)
	assert.Equal(t, "100.5", got[0].Center)
	assert.Equal(t, 10, got[0].Creates)

	got, err = s.Cycle().Recent("ETHUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOrderStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Orders().Insert(&OrderRecord{
		ClientID: "HG1-LONG-01-1700000000000",
		Symbol:   "BTCUSDT",
		Side:     "LONG",
		Action:   "CREATE",
		Price:    "99.75",
		Qty:      "0.1",
	}))

	got, err := s.Orders().Recent("BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CREATE", got[0].Action)
	assert.False(t, got[0].Time.IsZero())
}

func TestEquityStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Equity().Insert(&EquitySnapshot{Equity: 100000, Available: 90000}))
	require.NoError(t, s.Equity().Insert(&EquitySnapshot{Equity: 100100, Available: 90100}))

	got, err := s.Equity().Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
}
