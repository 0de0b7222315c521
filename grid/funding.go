package grid

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"hedgegrid/config"
)

// Perpetual funding accrues once per 8-hour interval.
const fundingIntervalHours = 8.0

// FundingGuard shrinks exposure on whichever side pays funding as the next
// funding timestamp approaches. It is stateful across bars: the latest rate
// and timestamp arrive via OnFundingUpdate from the venue's funding stream.
// Sign convention: a positive rate means longs pay shorts.
type FundingGuard struct {
	windowMinutes float64
	maxCostBps    float64

	rate        float64
	nextFunding time.Time
	hasData     bool
}

// NewFundingGuard builds a funding guard from an already-validated config.
func NewFundingGuard(cfg *config.StrategyConfig) *FundingGuard {
	return &FundingGuard{
		windowMinutes: float64(cfg.FundingWindowMinutes),
		maxCostBps:    cfg.MaxFundingCostBps,
	}
}

// OnFundingUpdate records the latest funding rate and the next funding
// timestamp.
func (g *FundingGuard) OnFundingUpdate(rate float64, nextFunding time.Time) {
	g.rate = rate
	g.nextFunding = nextFunding
	g.hasData = true
}

// Rate returns the last observed funding rate and whether one has been seen.
func (g *FundingGuard) Rate() (float64, bool) {
	return g.rate, g.hasData
}

// PayingSide returns the side that owes the upcoming funding payment, or ""
// when the rate is zero or unknown.
func (g *FundingGuard) PayingSide() Side {
	if !g.hasData || g.rate == 0 {
		return ""
	}
	if g.rate > 0 {
		return SideLong
	}
	return SideShort
}

// AdjustLadders scales down the paying side when the projected funding cost
// over the window exceeds the configured maximum. The scale ramps linearly
// from 1.0 at window_minutes before funding down to 0.0 at the funding
// timestamp, at which point the paying ladder is fully emptied. Outside the
// window, after the funding timestamp, or with no funding data, both ladders
// pass through unchanged.
func (g *FundingGuard) AdjustLadders(long, short Ladder, now time.Time) (Ladder, Ladder) {
	if !g.hasData {
		return long, short
	}

	minutesUntil := g.nextFunding.Sub(now).Minutes()
	if minutesUntil < 0 || minutesUntil > g.windowMinutes {
		return long, short
	}

	costBps := math.Abs(g.rate) * 10000 * (g.windowMinutes / 60 / fundingIntervalHours)
	if costBps <= g.maxCostBps {
		return long, short
	}

	scale := decimal.NewFromFloat(math.Max(0, minutesUntil/g.windowMinutes))
	switch g.PayingSide() {
	case SideLong:
		return long.ScaleQty(scale), short
	case SideShort:
		return long, short.ScaleQty(scale)
	default:
		return long, short
	}
}
