package grid

import (
	"fmt"

	"github.com/shopspring/decimal"

	"hedgegrid/config"
)

var (
	bpsDivisor = decimal.NewFromInt(10000)

	// Exit prices on the entry side of a rung never cross 95% of the entry
	// price, so a wide sl_steps config cannot produce a zero or negative
	// stop.
	minExitFactor = decimal.RequireFromString("0.95")
)

// InventoryCapError is returned when a side's total notional at center
// exceeds the configured inventory cap. It is a construction-time guard:
// ladder building is aborted, nothing is silently truncated.
type InventoryCapError struct {
	Side     Side
	Notional decimal.Decimal
	Cap      decimal.Decimal
}

func (e *InventoryCapError) Error() string {
	return fmt.Sprintf(
		"%s ladder notional %s exceeds max_inventory_quote %s: reduce levels_%s, base_qty or qty_scale",
		e.Side, e.Notional.StringFixed(2), e.Cap.StringFixed(2),
		map[Side]string{SideLong: "long", SideShort: "short"}[e.Side],
	)
}

// Engine deterministically builds the two price ladders around a center
// price. All price/qty stepping is done in decimal arithmetic so repeated
// recentering over a long session does not accumulate float drift.
type Engine struct {
	tag          string
	stepBps      decimal.Decimal
	levelsLong   int
	levelsShort  int
	baseQty      decimal.Decimal
	qtyScale     decimal.Decimal
	tpSteps      decimal.Decimal
	slSteps      decimal.Decimal
	recenterBps  decimal.Decimal
	maxInventory decimal.Decimal
}

// NewEngine builds a grid engine from an already-validated strategy config.
func NewEngine(cfg *config.StrategyConfig) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("strategy config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}
	return &Engine{
		tag:          cfg.Tag,
		stepBps:      decimal.NewFromFloat(cfg.GridStepBps),
		levelsLong:   cfg.LevelsLong,
		levelsShort:  cfg.LevelsShort,
		baseQty:      decimal.NewFromFloat(cfg.BaseQty),
		qtyScale:     decimal.NewFromFloat(cfg.QtyScale),
		tpSteps:      decimal.NewFromInt(int64(cfg.TPSteps)),
		slSteps:      decimal.NewFromInt(int64(cfg.SLSteps)),
		recenterBps:  decimal.NewFromFloat(cfg.RecenterTriggerBps),
		maxInventory: decimal.NewFromFloat(cfg.MaxInventoryQuote),
	}, nil
}

// BuildLadders constructs the LONG ladder below center and the SHORT ladder
// above it. Both sides are always built; directional bias is applied
// downstream by Policy. Rungs are ordered closest-to-center first.
func (e *Engine) BuildLadders(center decimal.Decimal) (Ladder, Ladder, error) {
	if !center.IsPositive() {
		return Ladder{}, Ladder{}, fmt.Errorf("center price must be positive, got %s", center)
	}

	step := center.Mul(e.stepBps).Div(bpsDivisor)

	long, err := e.buildSide(SideLong, center, step, e.levelsLong)
	if err != nil {
		return Ladder{}, Ladder{}, err
	}
	short, err := e.buildSide(SideShort, center, step, e.levelsShort)
	if err != nil {
		return Ladder{}, Ladder{}, err
	}

	for _, l := range []Ladder{long, short} {
		if notional := l.TotalNotional(center); notional.GreaterThan(e.maxInventory) {
			return Ladder{}, Ladder{}, &InventoryCapError{Side: l.Side(), Notional: notional, Cap: e.maxInventory}
		}
	}
	return long, short, nil
}

func (e *Engine) buildSide(side Side, center, step decimal.Decimal, levels int) (Ladder, error) {
	rungs := make([]Rung, 0, levels)
	for level := 1; level <= levels; level++ {
		offset := step.Mul(decimal.NewFromInt(int64(level)))

		var price decimal.Decimal
		if side == SideLong {
			price = center.Sub(offset)
		} else {
			price = center.Add(offset)
		}
		if !price.IsPositive() {
			return Ladder{}, fmt.Errorf("%s level %d price %s is not positive: reduce grid_step_bps or levels", side, level, price)
		}

		qty := e.baseQty.Mul(e.qtyScale.Pow(decimal.NewFromInt(int64(level - 1))))
		tp, sl := e.exitPrices(side, price, step)

		r, err := NewRung(side, level, price, qty, tp, sl)
		if err != nil {
			return Ladder{}, fmt.Errorf("build %s level %d: %w", side, level, err)
		}
		rungs = append(rungs, r.WithTag(e.tag))
	}
	return NewLadder(side, rungs...)
}

// exitPrices derives the take-profit and stop-loss for one entry price.
// Whichever exit sits below a LONG entry (its stop) or below a SHORT entry
// (its target) is floored at 95% of the entry so it stays strictly positive.
func (e *Engine) exitPrices(side Side, price, step decimal.Decimal) (tp, sl decimal.Decimal) {
	tpDist := step.Mul(e.tpSteps)
	slDist := step.Mul(e.slSteps)
	floor := price.Mul(minExitFactor)

	if side == SideLong {
		tp = price.Add(tpDist)
		sl = price.Sub(slDist)
		if sl.LessThan(floor) {
			sl = floor
		}
	} else {
		tp = price.Sub(tpDist)
		if tp.LessThan(floor) {
			tp = floor
		}
		sl = price.Add(slDist)
	}
	return tp, sl
}

// RecenterNeeded reports whether the mid price has drifted far enough from
// the last grid center to rebuild the grid. A zero last center means the
// grid has never been placed, which always triggers.
func (e *Engine) RecenterNeeded(mid, lastCenter decimal.Decimal) bool {
	if lastCenter.IsZero() {
		return true
	}
	devBps := mid.Sub(lastCenter).Abs().Div(lastCenter).Mul(bpsDivisor)
	return devBps.GreaterThan(e.recenterBps)
}
