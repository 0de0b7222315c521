package trader

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"hedgegrid/grid"
)

// Order status values as reported by the venue.
const (
	OrderStatusNew      = "NEW"
	OrderStatusFilled   = "FILLED"
	OrderStatusCanceled = "CANCELED"
)

// ErrOrderNotFound is returned by CancelOrder when the order is already
// closed or unknown at the venue. Callers treat it as a no-op.
var ErrOrderNotFound = errors.New("order not found")

// LiveOrder is the reconciliation engine's read model of an open order.
// It is queried fresh from the venue every bar; a locally cached copy alone
// is never trusted.
type LiveOrder struct {
	ClientID string          `json:"client_id"`
	Symbol   string          `json:"symbol"`
	Side     grid.Side       `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	Status   string          `json:"status"`
}

// Position is the venue's view of one side of a hedge-mode position.
type Position struct {
	Symbol   string          `json:"symbol"`
	Side     grid.Side       `json:"side"`
	Qty      decimal.Decimal `json:"qty"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// OrderRequest carries one new order to the venue. TakeProfit/StopLoss are
// optional bracket exits (zero when absent); a venue may realize them as
// conditional reduce-only orders.
type OrderRequest struct {
	ClientID   string
	Symbol     string
	Side       grid.Side
	Price      decimal.Decimal
	Qty        decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	PostOnly   bool
	ReduceOnly bool
}

// Venue is the execution boundary: an already-built trading engine the
// strategy dispatches intents to. Submission is fire-and-forget from the
// pipeline's perspective; fills are learned by re-querying state.
type Venue interface {
	Name() string

	// OpenOrders returns the authoritative set of currently open orders.
	OpenOrders(ctx context.Context, symbol string) ([]LiveOrder, error)

	// SubmitOrder places a new order.
	SubmitOrder(ctx context.Context, req *OrderRequest) error

	// CancelOrder cancels by client order id. Returns ErrOrderNotFound when
	// the order is already gone.
	CancelOrder(ctx context.Context, symbol, clientID string) error

	// CancelAllOrders cancels every open order on the symbol.
	CancelAllOrders(ctx context.Context, symbol string) error

	// Position returns one side of the hedge-mode position, or nil when
	// flat on that side.
	Position(ctx context.Context, symbol string, side grid.Side) (*Position, error)

	// ClosePosition market-closes the full position on one side,
	// reduce-only.
	ClosePosition(ctx context.Context, symbol string, side grid.Side) error

	// Balance returns an account snapshot as key -> value lookups,
	// including "total_equity" and "available_balance".
	Balance(ctx context.Context) (map[string]float64, error)

	// FundingInfo returns the current funding rate and the next funding
	// timestamp for the symbol.
	FundingInfo(ctx context.Context, symbol string) (rate float64, nextFunding time.Time, err error)
}
