package grid

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ============================================================
// Side
// ============================================================

// Side is the direction of a grid ladder or order.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ParseSide converts a string to a Side, rejecting anything that is not an
// exact match.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideLong:
		return SideLong, nil
	case SideShort:
		return SideShort, nil
	default:
		return "", fmt.Errorf("invalid side %q (want LONG or SHORT)", s)
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// ============================================================
// Rung
// ============================================================

// Rung is one grid level: a price, a quantity and optional exit prices.
// Rungs are immutable value objects; the WithXxx methods return copies.
type Rung struct {
	Side       Side
	Level      int // 1-based distance from center, 1 = closest
	Price      decimal.Decimal
	Qty        decimal.Decimal
	TakeProfit decimal.Decimal // zero when no take-profit is attached
	StopLoss   decimal.Decimal // zero when no stop-loss is attached
	Tag        string
}

// NewRung validates and builds a rung. Exit prices are optional: pass the
// zero decimal to omit them.
func NewRung(side Side, level int, price, qty, tp, sl decimal.Decimal) (Rung, error) {
	if side != SideLong && side != SideShort {
		return Rung{}, fmt.Errorf("invalid rung side %q", side)
	}
	if level < 1 {
		return Rung{}, fmt.Errorf("rung level must be >= 1, got %d", level)
	}
	if !price.IsPositive() {
		return Rung{}, fmt.Errorf("rung price must be positive, got %s", price)
	}
	if !qty.IsPositive() {
		return Rung{}, fmt.Errorf("rung qty must be positive, got %s", qty)
	}
	if !tp.IsZero() && !tp.IsPositive() {
		return Rung{}, fmt.Errorf("rung take-profit must be positive, got %s", tp)
	}
	if !sl.IsZero() && !sl.IsPositive() {
		return Rung{}, fmt.Errorf("rung stop-loss must be positive, got %s", sl)
	}
	return Rung{Side: side, Level: level, Price: price, Qty: qty, TakeProfit: tp, StopLoss: sl}, nil
}

// WithTag returns a copy of the rung carrying the given free-text tag.
func (r Rung) WithTag(tag string) Rung {
	r.Tag = tag
	return r
}

// WithQty returns a copy of the rung with a different quantity. The caller
// must keep the quantity positive; scaling that reaches zero should drop the
// rung instead (see Ladder.ScaleQty).
func (r Rung) WithQty(qty decimal.Decimal) (Rung, error) {
	if !qty.IsPositive() {
		return Rung{}, fmt.Errorf("rung qty must be positive, got %s", qty)
	}
	r.Qty = qty
	return r, nil
}

// Notional returns qty * price in quote currency.
func (r Rung) Notional() decimal.Decimal {
	return r.Qty.Mul(r.Price)
}

// ============================================================
// Ladder
// ============================================================

// Ladder is an ordered, side-homogeneous sequence of rungs. Ladders are
// immutable; every transformation returns a new Ladder and leaves the
// receiver untouched.
type Ladder struct {
	side  Side
	rungs []Rung
}

// NewLadder builds a ladder, enforcing that every rung carries the ladder's
// side. An empty rung list is valid (a fully throttled side).
func NewLadder(side Side, rungs ...Rung) (Ladder, error) {
	if side != SideLong && side != SideShort {
		return Ladder{}, fmt.Errorf("invalid ladder side %q", side)
	}
	cp := make([]Rung, len(rungs))
	for i, r := range rungs {
		if r.Side != side {
			return Ladder{}, fmt.Errorf("rung %d has side %s, ladder is %s", i, r.Side, side)
		}
		cp[i] = r
	}
	return Ladder{side: side, rungs: cp}, nil
}

// EmptyLadder returns a ladder of the given side with no rungs.
func EmptyLadder(side Side) Ladder {
	return Ladder{side: side}
}

// Side returns the ladder's direction.
func (l Ladder) Side() Side { return l.side }

// Len returns the number of rungs.
func (l Ladder) Len() int { return len(l.rungs) }

// IsEmpty reports whether the ladder has no rungs.
func (l Ladder) IsEmpty() bool { return len(l.rungs) == 0 }

// Rungs returns a copy of the rung slice.
func (l Ladder) Rungs() []Rung {
	cp := make([]Rung, len(l.rungs))
	copy(cp, l.rungs)
	return cp
}

// Rung returns the i-th rung (0-based, closest to center first).
func (l Ladder) Rung(i int) Rung { return l.rungs[i] }

// Truncate returns a ladder keeping only the first n rungs (the ones closest
// to center). n <= 0 yields an empty ladder; n >= Len is a no-op copy.
func (l Ladder) Truncate(n int) Ladder {
	if n < 0 {
		n = 0
	}
	if n > len(l.rungs) {
		n = len(l.rungs)
	}
	cp := make([]Rung, n)
	copy(cp, l.rungs[:n])
	return Ladder{side: l.side, rungs: cp}
}

// ScaleQty returns a ladder with every quantity multiplied by factor. Rungs
// whose scaled quantity is not positive are dropped, since a zero-quantity
// rung is not representable.
func (l Ladder) ScaleQty(factor decimal.Decimal) Ladder {
	out := make([]Rung, 0, len(l.rungs))
	for _, r := range l.rungs {
		q := r.Qty.Mul(factor)
		if !q.IsPositive() {
			continue
		}
		r.Qty = q
		out = append(out, r)
	}
	return Ladder{side: l.side, rungs: out}
}

// SortedByLevel returns a ladder with rungs ordered by ascending level,
// i.e. closest to center first.
func (l Ladder) SortedByLevel() Ladder {
	cp := l.Rungs()
	sort.Slice(cp, func(i, j int) bool { return cp[i].Level < cp[j].Level })
	return Ladder{side: l.side, rungs: cp}
}

// TotalNotional returns the sum of qty * refPrice over all rungs. The
// inventory cap is checked against the center price, not per-rung prices,
// so the cap reads directly in quote currency at center.
func (l Ladder) TotalNotional(refPrice decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.rungs {
		total = total.Add(r.Qty.Mul(refPrice))
	}
	return total
}
