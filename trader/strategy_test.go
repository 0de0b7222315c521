package trader

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgegrid/config"
	"hedgegrid/grid"
	"hedgegrid/market"
	"hedgegrid/store"
)

func strategyTestConfig() *config.StrategyConfig {
	cfg := config.DefaultStrategyConfig()
	cfg.Symbol = "TEST"
	cfg.Tag = "HG1"
	cfg.EMAFastPeriod = 3
	cfg.EMASlowPeriod = 5
	cfg.ADXPeriod = 5
	cfg.ATRPeriod = 5
	cfg.HysteresisBps = 10
	return cfg
}

func choppyBar(t *testing.T, i int) market.Bar {
	t.Helper()
	close := 100.5
	if i%2 == 1 {
		close = 99.5
	}
	b, err := market.NewBar(time.Unix(int64(1700000000+60*i), 0), 100, 101, 99, close, 1)
	require.NoError(t, err)
	return b
}

func flatBar(t *testing.T, close float64) market.Bar {
	t.Helper()
	b, err := market.NewBar(time.Now(), close, close+1, close-1, close, 1)
	require.NoError(t, err)
	return b
}

// warmStrategy feeds choppy bars until the detector is warm and the first
// grid has been placed. The choppy tape keeps ADX low, so the regime is
// SIDEWAYS and both ladders go out in full.
func warmStrategy(t *testing.T) (*Strategy, *PaperVenue) {
	t.Helper()
	venue := NewPaperVenue("TEST", 100000)
	s, err := NewStrategy(strategyTestConfig(), venue, nil)
	require.NoError(t, err)

	// ADX is the slowest indicator: warm after 2*5 bars.
	for i := 0; i < 10; i++ {
		require.NoError(t, s.OnBar(context.Background(), choppyBar(t, i)))
	}
	return s, venue
}

func openIDs(t *testing.T, venue *PaperVenue) []string {
	t.Helper()
	open, err := venue.OpenOrders(context.Background(), "TEST")
	require.NoError(t, err)
	ids := make([]string, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.ClientID)
	}
	sort.Strings(ids)
	return ids
}

func TestStrategyPlacesFullGridOnceWarm(t *testing.T) {
	venue := NewPaperVenue("TEST", 100000)
	s, err := NewStrategy(strategyTestConfig(), venue, nil)
	require.NoError(t, err)

	// No trading before warm-up.
	for i := 0; i < 9; i++ {
		require.NoError(t, s.OnBar(context.Background(), choppyBar(t, i)))
		open, _ := venue.OpenOrders(context.Background(), "TEST")
		assert.Empty(t, open, "bar %d", i+1)
	}

	require.NoError(t, s.OnBar(context.Background(), choppyBar(t, 9)))
	open, err := venue.OpenOrders(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Len(t, open, 10, "5 LONG + 5 SHORT rungs")

	snap := s.Ops().Ladders()
	assert.Equal(t, market.RegimeSideways, snap.Regime)
	assert.Equal(t, "99.5", snap.Center)
	assert.Len(t, snap.Long, 5)
	assert.Len(t, snap.Short, 5)
	assert.Len(t, s.Ops().Orders(), 10)
}

func TestStrategyIsStableAcrossBarsWithoutDrift(t *testing.T) {
	s, venue := warmStrategy(t)
	before := openIDs(t, venue)

	// Same price as the grid center: no recenter, diff must be empty and
	// the book must not churn.
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 99.5)))
	assert.Equal(t, before, openIDs(t, venue))
	assert.Zero(t, venue.Fills())
}

func TestStrategyRecentersOnLargeMove(t *testing.T) {
	s, venue := warmStrategy(t)
	before := openIDs(t, venue)

	// ~150bps above the 99.5 center, beyond the 100bps trigger.
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 101)))
	after := openIDs(t, venue)
	assert.Len(t, after, 10)
	assert.NotEqual(t, before, after, "all orders must be replaced at the new center")
	assert.Equal(t, "101", s.Ops().Ladders().Center)
}

func TestStrategyPauseBlocksNewOrdersButNotCancels(t *testing.T) {
	s, venue := warmStrategy(t)
	s.Ops().Pause("test")

	// A recenter while paused cancels the old book but cannot place the new
	// one.
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 101)))
	open, _ := venue.OpenOrders(context.Background(), "TEST")
	assert.Empty(t, open)

	// Resume and the next bar restores the grid.
	s.Ops().Resume()
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 101)))
	open, _ = venue.OpenOrders(context.Background(), "TEST")
	assert.Len(t, open, 10)
}

func TestFlattenCancelsOneSideAndIsIdempotent(t *testing.T) {
	s, venue := warmStrategy(t)

	status, err := s.Flatten(context.Background(), grid.SideLong)
	require.NoError(t, err)
	assert.Equal(t, FlattenStarted, status)

	open, _ := venue.OpenOrders(context.Background(), "TEST")
	require.Len(t, open, 5)
	for _, o := range open {
		assert.Equal(t, grid.SideShort, o.Side)
	}

	// A second call while a flatten is claimed reports in-progress and does
	// nothing.
	require.True(t, s.Ops().beginFlatten())
	status, err = s.Flatten(context.Background(), grid.SideShort)
	require.NoError(t, err)
	assert.Equal(t, FlattenAlreadyInProgress, status)
	s.Ops().endFlatten()

	open, _ = venue.OpenOrders(context.Background(), "TEST")
	assert.Len(t, open, 5, "the blocked call must not have touched the book")
}

func TestFlattenBypassesPause(t *testing.T) {
	s, venue := warmStrategy(t)
	s.Ops().Pause("circuit breaker")

	status, err := s.FlattenAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FlattenStarted, status)

	open, _ := venue.OpenOrders(context.Background(), "TEST")
	assert.Empty(t, open, "flatten must run even while paused")
}

func TestStrategyFundingGuardWiredIntoPipeline(t *testing.T) {
	s, venue := warmStrategy(t)

	// Expensive positive rate with funding due exactly at this bar: the
	// LONG side is emptied by the guard, so its resting orders are
	// canceled.
	b := flatBar(t, 99.5)
	s.OnFundingUpdate(0.001, b.Time)
	require.NoError(t, s.OnBar(context.Background(), b))

	open, _ := venue.OpenOrders(context.Background(), "TEST")
	require.Len(t, open, 5)
	for _, o := range open {
		assert.Equal(t, grid.SideShort, o.Side)
	}
}

func TestStrategyPersistsCyclesAndOrderAudit(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer st.Close()

	venue := NewPaperVenue("TEST", 100000)
	s, err := NewStrategy(strategyTestConfig(), venue, st)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.OnBar(context.Background(), choppyBar(t, i)))
	}

	cycles, err := st.Cycle().Recent("TEST", 100)
	require.NoError(t, err)
	require.NotEmpty(t, cycles)
	assert.Equal(t, "SIDEWAYS", cycles[0].Regime)
	assert.Equal(t, 10, cycles[0].Creates)

	audits, err := st.Orders().Recent("TEST", 100)
	require.NoError(t, err)
	require.Len(t, audits, 10)
	for _, a := range audits {
		assert.Equal(t, "CREATE", a.Action)
		assert.NotEmpty(t, a.Price)
		assert.NotEmpty(t, a.Qty)
		_, err := ParseOrderID(a.ClientID)
		assert.NoError(t, err)
	}
}

func TestThrottleScalesBookWithoutChurn(t *testing.T) {
	s, venue := warmStrategy(t)
	require.NoError(t, s.Ops().SetThrottle(0.5))

	// First bar after the throttle change resizes the whole book.
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 99.5)))
	open, err := venue.OpenOrders(context.Background(), "TEST")
	require.NoError(t, err)
	require.Len(t, open, 10)
	for _, o := range open {
		id, err := ParseOrderID(o.ClientID)
		require.NoError(t, err)
		want := decimal.RequireFromString("0.05").
			Mul(decimal.RequireFromString("1.2").Pow(decimal.NewFromInt(int64(id.Level - 1))))
		assert.True(t, want.Equal(o.Qty), "level %d: want %s, got %s", id.Level, want, o.Qty)
	}

	// Subsequent identical bars must leave the throttled book untouched.
	ids := openIDs(t, venue)
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 99.5)))
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 99.5)))
	assert.Equal(t, ids, openIDs(t, venue), "throttled book must be stable across identical bars")
}

func TestZeroThrottleEmptiesBook(t *testing.T) {
	s, venue := warmStrategy(t)
	require.NoError(t, s.Ops().SetThrottle(0))

	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 99.5)))
	open, err := venue.OpenOrders(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Empty(t, open, "zero throttle wants no exposure at all")

	// And stays empty, idempotently.
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 99.5)))
	open, _ = venue.OpenOrders(context.Background(), "TEST")
	assert.Empty(t, open)

	// Restoring the throttle restores the full book.
	require.NoError(t, s.Ops().SetThrottle(1))
	require.NoError(t, s.OnBar(context.Background(), flatBar(t, 99.5)))
	open, _ = venue.OpenOrders(context.Background(), "TEST")
	assert.Len(t, open, 10)
}
