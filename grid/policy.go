package grid

import (
	"github.com/shopspring/decimal"

	"hedgegrid/config"
	"hedgegrid/market"
)

// Policy throttles the counter-trend side of a freshly built grid. In an UP
// regime the LONG ladder is the counter-trend side; in DOWN it is the SHORT
// ladder. SIDEWAYS grids pass through untouched for balanced market-making.
type Policy struct {
	counterLevels int
	counterScale  decimal.Decimal
}

// NewPolicy builds a placement policy from an already-validated config.
func NewPolicy(cfg *config.StrategyConfig) *Policy {
	return &Policy{
		counterLevels: cfg.CounterLevels,
		counterScale:  decimal.NewFromFloat(cfg.CounterQtyScale),
	}
}

// CounterTrendSide returns the throttled side for a regime, or "" for
// SIDEWAYS.
func CounterTrendSide(regime market.Regime) Side {
	switch regime {
	case market.RegimeUp:
		return SideLong
	case market.RegimeDown:
		return SideShort
	default:
		return ""
	}
}

// ShapeLadders applies the directional bias: the counter-trend ladder is
// truncated to counter_levels rungs closest to center and its quantities are
// scaled by counter_qty_scale; the trend-following ladder is returned as-is.
// Inputs are never mutated.
func (p *Policy) ShapeLadders(long, short Ladder, regime market.Regime) (Ladder, Ladder) {
	switch CounterTrendSide(regime) {
	case SideLong:
		return p.throttle(long), short
	case SideShort:
		return long, p.throttle(short)
	default:
		return long, short
	}
}

func (p *Policy) throttle(l Ladder) Ladder {
	return l.Truncate(p.counterLevels).ScaleQty(p.counterScale)
}
