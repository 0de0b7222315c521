package trader

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"hedgegrid/grid"
	"hedgegrid/logger"
)

// ============================================================
// Order intents
// ============================================================

// IntentType enumerates the reconciliation commands.
type IntentType string

const (
	IntentCreate  IntentType = "CREATE"
	IntentCancel  IntentType = "CANCEL"
	IntentReplace IntentType = "REPLACE"
)

// OrderIntent is one reconciliation command. For CANCEL and REPLACE,
// ClientID targets the existing live order; REPLACE additionally carries
// ReplaceID, the fresh id for its replacement order.
type OrderIntent struct {
	Type      IntentType
	ClientID  string
	ReplaceID string
	Side      grid.Side
	Level     int
	Price     decimal.Decimal
	Qty       decimal.Decimal

	// Optional bracket exits forwarded to the venue on CREATE/REPLACE.
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// NewCreateIntent builds a validated CREATE command.
func NewCreateIntent(clientID string, r grid.Rung) (OrderIntent, error) {
	if clientID == "" {
		return OrderIntent{}, fmt.Errorf("create intent requires a client id")
	}
	if !r.Price.IsPositive() || !r.Qty.IsPositive() {
		return OrderIntent{}, fmt.Errorf("create intent requires positive price and qty, got %s @ %s", r.Qty, r.Price)
	}
	return OrderIntent{
		Type: IntentCreate, ClientID: clientID,
		Side: r.Side, Level: r.Level, Price: r.Price, Qty: r.Qty,
		TakeProfit: r.TakeProfit, StopLoss: r.StopLoss,
	}, nil
}

// NewCancelIntent builds a validated CANCEL command.
func NewCancelIntent(clientID string, side grid.Side, level int) (OrderIntent, error) {
	if clientID == "" {
		return OrderIntent{}, fmt.Errorf("cancel intent requires a client id")
	}
	return OrderIntent{Type: IntentCancel, ClientID: clientID, Side: side, Level: level}, nil
}

// NewReplaceIntent builds a validated REPLACE command: cancel clientID, then
// create replaceID with the rung's parameters.
func NewReplaceIntent(clientID, replaceID string, r grid.Rung) (OrderIntent, error) {
	if clientID == "" {
		return OrderIntent{}, fmt.Errorf("replace intent requires a client id")
	}
	if replaceID == "" {
		return OrderIntent{}, fmt.Errorf("replace intent requires a replacement id")
	}
	if !r.Price.IsPositive() || !r.Qty.IsPositive() {
		return OrderIntent{}, fmt.Errorf("replace intent requires positive price and qty, got %s @ %s", r.Qty, r.Price)
	}
	return OrderIntent{
		Type: IntentReplace, ClientID: clientID, ReplaceID: replaceID,
		Side: r.Side, Level: r.Level, Price: r.Price, Qty: r.Qty,
		TakeProfit: r.TakeProfit, StopLoss: r.StopLoss,
	}, nil
}

// DiffResult is the outcome of one reconciliation pass. Execution order is
// always cancels, then replaces, then adds.
type DiffResult struct {
	Cancels  []OrderIntent
	Replaces []OrderIntent
	Adds     []OrderIntent
}

// Empty reports whether no reconciliation action is needed.
func (d DiffResult) Empty() bool {
	return len(d.Cancels) == 0 && len(d.Replaces) == 0 && len(d.Adds) == 0
}

// Size returns the total number of intents.
func (d DiffResult) Size() int {
	return len(d.Cancels) + len(d.Replaces) + len(d.Adds)
}

// ============================================================
// Reconciler
// ============================================================

// Reconciler computes the minimal intent set that moves the live order book
// to the desired ladder state. Matching is by (side, level) decoded from the
// client order id; the id's timestamp is metadata only and legitimately
// differs across recompute cycles.
type Reconciler struct {
	strategy string
	tol      decimal.Decimal
	now      func() time.Time
}

// Relative price/qty tolerance under which a live order is considered
// unchanged and left alone.
var defaultTolerance = decimal.New(1, -6)

// NewReconciler builds a reconciler for one strategy tag.
func NewReconciler(strategyTag string) *Reconciler {
	return &Reconciler{strategy: strategyTag, tol: defaultTolerance, now: time.Now}
}

type rungKey struct {
	side  grid.Side
	level int
}

// Diff compares the desired ladders against the live order set.
//
// Live orders whose id does not parse, or that belong to a different
// strategy tag, are never touched. Orders that are live but absent from the
// desired set are canceled; desired rungs absent live are created; matches
// whose price or qty moved beyond tolerance are replaced with a fresh id.
// Running Diff again after applying its output yields an empty result.
func (r *Reconciler) Diff(long, short grid.Ladder, live []LiveOrder) DiffResult {
	desired := make(map[rungKey]grid.Rung)
	for _, l := range []grid.Ladder{long, short} {
		for _, rung := range l.Rungs() {
			desired[rungKey{rung.Side, rung.Level}] = rung
		}
	}

	var out DiffResult
	matched := make(map[rungKey]bool)
	nowMs := r.now().UnixMilli()

	for _, o := range live {
		id, err := ParseOrderID(o.ClientID)
		if err != nil {
			logger.Warnf("[Diff] leaving unrecognized order untouched: %v", err)
			continue
		}
		if id.Strategy != r.strategy {
			continue
		}

		key := rungKey{id.Side, id.Level}
		rung, wanted := desired[key]
		if !wanted || matched[key] {
			// Not in the desired set, or a stale duplicate of a slot that
			// is already covered by another live order.
			c, _ := NewCancelIntent(o.ClientID, id.Side, id.Level)
			out.Cancels = append(out.Cancels, c)
			continue
		}
		matched[key] = true

		if r.withinTolerance(o.Price, rung.Price) && r.withinTolerance(o.Qty, rung.Qty) {
			continue
		}
		freshID := FormatOrderID(r.strategy, rung.Side, rung.Level, nowMs)
		if freshID == o.ClientID {
			// Same-millisecond recompute: the replacement still needs an id
			// distinct from the order it cancels.
			freshID = FormatOrderID(r.strategy, rung.Side, rung.Level, nowMs+1)
		}
		rep, err := NewReplaceIntent(o.ClientID, freshID, rung)
		if err != nil {
			logger.Errorf("[Diff] skipping replace for %s: %v", o.ClientID, err)
			continue
		}
		out.Replaces = append(out.Replaces, rep)
	}

	for key, rung := range desired {
		if matched[key] {
			continue
		}
		freshID := FormatOrderID(r.strategy, rung.Side, rung.Level, nowMs)
		add, err := NewCreateIntent(freshID, rung)
		if err != nil {
			logger.Errorf("[Diff] skipping create for %s level %d: %v", key.side, key.level, err)
			continue
		}
		out.Adds = append(out.Adds, add)
	}

	sortIntents(out.Cancels)
	sortIntents(out.Replaces)
	sortIntents(out.Adds)
	return out
}

func (r *Reconciler) withinTolerance(a, b decimal.Decimal) bool {
	ref := b.Abs()
	if ref.IsZero() {
		ref = decimal.New(1, 0)
	}
	return a.Sub(b).Abs().LessThanOrEqual(ref.Mul(r.tol))
}

// sortIntents orders intents deterministically: LONG before SHORT, then by
// ascending level.
func sortIntents(intents []OrderIntent) {
	sort.Slice(intents, func(i, j int) bool {
		if intents[i].Side != intents[j].Side {
			return intents[i].Side == grid.SideLong
		}
		return intents[i].Level < intents[j].Level
	})
}
