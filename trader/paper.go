package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hedgegrid/grid"
	"hedgegrid/logger"
	"hedgegrid/market"
)

// PaperVenue is an in-memory venue with bar-driven fill simulation, used by
// the backtest runner and tests. Limit entries fill when a bar's range
// touches their price; filled entries become lots whose bracket exits are
// evaluated on subsequent bars.
type PaperVenue struct {
	mu sync.Mutex

	symbol    string
	cash      decimal.Decimal
	realized  decimal.Decimal
	lastPrice decimal.Decimal

	orders    map[string]*paperOrder
	positions map[grid.Side][]lot

	fundingRate float64
	nextFunding time.Time

	fills int
}

type paperOrder struct {
	LiveOrder
	tp, sl decimal.Decimal
}

// lot is one filled entry still open, with its bracket exits.
type lot struct {
	qty, entry, tp, sl decimal.Decimal
}

// NewPaperVenue creates a paper venue with the given starting cash in quote
// currency.
func NewPaperVenue(symbol string, startCash float64) *PaperVenue {
	return &PaperVenue{
		symbol:    symbol,
		cash:      decimal.NewFromFloat(startCash),
		orders:    make(map[string]*paperOrder),
		positions: make(map[grid.Side][]lot),
	}
}

func (v *PaperVenue) Name() string { return "paper" }

// OnBar advances the simulation by one bar: bracket exits on existing lots
// are evaluated first, then resting entries are filled against the bar's
// range, then the mark price moves to the close.
func (v *PaperVenue) OnBar(b market.Bar) {
	v.mu.Lock()
	defer v.mu.Unlock()

	low := decimal.NewFromFloat(b.Low)
	high := decimal.NewFromFloat(b.High)

	v.settleExits(low, high)
	v.fillEntries(low, high)
	v.lastPrice = decimal.NewFromFloat(b.Close)
}

func (v *PaperVenue) settleExits(low, high decimal.Decimal) {
	for side, lots := range v.positions {
		kept := lots[:0]
		for _, l := range lots {
			exit, ok := l.exitPrice(side, low, high)
			if !ok {
				kept = append(kept, l)
				continue
			}
			v.realized = v.realized.Add(lotPnL(side, l.entry, exit, l.qty))
		}
		v.positions[side] = kept
	}
}

// exitPrice returns the bracket price touched by this bar, stop before
// target when both are in range.
func (l lot) exitPrice(side grid.Side, low, high decimal.Decimal) (decimal.Decimal, bool) {
	if side == grid.SideLong {
		if !l.sl.IsZero() && low.LessThanOrEqual(l.sl) {
			return l.sl, true
		}
		if !l.tp.IsZero() && high.GreaterThanOrEqual(l.tp) {
			return l.tp, true
		}
		return decimal.Zero, false
	}
	if !l.sl.IsZero() && high.GreaterThanOrEqual(l.sl) {
		return l.sl, true
	}
	if !l.tp.IsZero() && low.LessThanOrEqual(l.tp) {
		return l.tp, true
	}
	return decimal.Zero, false
}

func lotPnL(side grid.Side, entry, exit, qty decimal.Decimal) decimal.Decimal {
	if side == grid.SideLong {
		return exit.Sub(entry).Mul(qty)
	}
	return entry.Sub(exit).Mul(qty)
}

func (v *PaperVenue) fillEntries(low, high decimal.Decimal) {
	for id, o := range v.orders {
		touched := (o.Side == grid.SideLong && low.LessThanOrEqual(o.Price)) ||
			(o.Side == grid.SideShort && high.GreaterThanOrEqual(o.Price))
		if !touched {
			continue
		}
		v.positions[o.Side] = append(v.positions[o.Side], lot{qty: o.Qty, entry: o.Price, tp: o.tp, sl: o.sl})
		v.fills++
		delete(v.orders, id)
		logger.Debugf("[Paper] filled %s %s %s @ %s", id, o.Side, o.Qty, o.Price)
	}
}

// ============================================================
// Venue implementation
// ============================================================

func (v *PaperVenue) OpenOrders(ctx context.Context, symbol string) ([]LiveOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]LiveOrder, 0, len(v.orders))
	for _, o := range v.orders {
		out = append(out, o.LiveOrder)
	}
	return out, nil
}

func (v *PaperVenue) SubmitOrder(ctx context.Context, req *OrderRequest) error {
	if req.ClientID == "" {
		return fmt.Errorf("paper: client id required")
	}
	if !req.Price.IsPositive() || !req.Qty.IsPositive() {
		return fmt.Errorf("paper: positive price and qty required, got %s @ %s", req.Qty, req.Price)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.orders[req.ClientID]; exists {
		return fmt.Errorf("paper: duplicate client id %s", req.ClientID)
	}
	v.orders[req.ClientID] = &paperOrder{
		LiveOrder: LiveOrder{
			ClientID: req.ClientID,
			Symbol:   req.Symbol,
			Side:     req.Side,
			Price:    req.Price,
			Qty:      req.Qty,
			Status:   OrderStatusNew,
		},
		tp: req.TakeProfit,
		sl: req.StopLoss,
	}
	return nil
}

func (v *PaperVenue) CancelOrder(ctx context.Context, symbol, clientID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.orders[clientID]; !ok {
		return fmt.Errorf("paper: %w: %s", ErrOrderNotFound, clientID)
	}
	delete(v.orders, clientID)
	return nil
}

func (v *PaperVenue) CancelAllOrders(ctx context.Context, symbol string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders = make(map[string]*paperOrder)
	return nil
}

func (v *PaperVenue) Position(ctx context.Context, symbol string, side grid.Side) (*Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	lots := v.positions[side]
	if len(lots) == 0 {
		return nil, nil
	}
	qty := decimal.Zero
	cost := decimal.Zero
	for _, l := range lots {
		qty = qty.Add(l.qty)
		cost = cost.Add(l.qty.Mul(l.entry))
	}
	return &Position{
		Symbol:   symbol,
		Side:     side,
		Qty:      qty,
		AvgPrice: cost.Div(qty),
	}, nil
}

func (v *PaperVenue) ClosePosition(ctx context.Context, symbol string, side grid.Side) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, l := range v.positions[side] {
		exit := v.lastPrice
		if exit.IsZero() {
			exit = l.entry
		}
		v.realized = v.realized.Add(lotPnL(side, l.entry, exit, l.qty))
	}
	v.positions[side] = nil
	return nil
}

func (v *PaperVenue) Balance(ctx context.Context) (map[string]float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	eq := v.equityLocked()
	return map[string]float64{
		"total_equity":      eq,
		"available_balance": eq,
	}, nil
}

func (v *PaperVenue) FundingInfo(ctx context.Context, symbol string) (float64, time.Time, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fundingRate, v.nextFunding, nil
}

// SetFunding injects funding data into the simulation.
func (v *PaperVenue) SetFunding(rate float64, next time.Time) {
	v.mu.Lock()
	v.fundingRate = rate
	v.nextFunding = next
	v.mu.Unlock()
}

// Equity returns cash plus realized and mark-to-market unrealized PnL.
func (v *PaperVenue) Equity() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.equityLocked()
}

// Fills returns the number of simulated entry fills.
func (v *PaperVenue) Fills() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fills
}

func (v *PaperVenue) equityLocked() float64 {
	eq := v.cash.Add(v.realized)
	if !v.lastPrice.IsZero() {
		for side, lots := range v.positions {
			for _, l := range lots {
				eq = eq.Add(lotPnL(side, l.entry, v.lastPrice, l.qty))
			}
		}
	}
	f, _ := eq.Float64()
	return f
}
