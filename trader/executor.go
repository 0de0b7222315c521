package trader

import (
	"context"
	"errors"

	"hedgegrid/logger"
)

// ExecReport summarizes one diff execution. Venue failures are logged and
// counted, never propagated: submission is fire-and-forget and outcomes
// arrive asynchronously by re-querying venue state next bar.
type ExecReport struct {
	Canceled int `json:"canceled"`
	Replaced int `json:"replaced"`
	Created  int `json:"created"`
	Blocked  int `json:"blocked"` // creates skipped by the pause gate
	Failed   int `json:"failed"`
}

// Executor dispatches reconciliation intents against the venue. The pause
// gate is read at the moment each create is submitted, so a mid-bar
// kill-switch trip takes effect immediately.
type Executor struct {
	venue    Venue
	symbol   string
	ops      *OpsState
	postOnly bool
}

// NewExecutor builds an executor bound to one symbol and one ops state.
func NewExecutor(venue Venue, symbol string, ops *OpsState, postOnly bool) *Executor {
	return &Executor{venue: venue, symbol: symbol, ops: ops, postOnly: postOnly}
}

// Execute runs a DiffResult in the fixed order cancels, replaces, adds.
func (e *Executor) Execute(ctx context.Context, d DiffResult) ExecReport {
	var rep ExecReport

	for _, intent := range d.Cancels {
		if e.cancel(ctx, intent.ClientID) {
			rep.Canceled++
		} else {
			rep.Failed++
		}
	}

	for _, intent := range d.Replaces {
		if !e.cancel(ctx, intent.ClientID) {
			rep.Failed++
			continue
		}
		switch e.create(ctx, intent, intent.ReplaceID) {
		case createOK:
			rep.Replaced++
		case createBlocked:
			rep.Blocked++
		case createFailed:
			rep.Failed++
		}
	}

	for _, intent := range d.Adds {
		switch e.create(ctx, intent, intent.ClientID) {
		case createOK:
			rep.Created++
		case createBlocked:
			rep.Blocked++
		case createFailed:
			rep.Failed++
		}
	}

	return rep
}

// cancel dispatches one cancel; an already-gone order is success.
func (e *Executor) cancel(ctx context.Context, clientID string) bool {
	err := e.venue.CancelOrder(ctx, e.symbol, clientID)
	if err == nil || errors.Is(err, ErrOrderNotFound) {
		return true
	}
	logger.Errorf("[Exec] cancel %s failed: %v", clientID, err)
	return false
}

type createResult int

const (
	createOK createResult = iota
	createBlocked
	createFailed
)

// create submits one new order, applying the risk gate synchronously at
// submission time. Throttle sizing happens upstream when the desired
// ladders are built, so intents arrive already scaled.
func (e *Executor) create(ctx context.Context, intent OrderIntent, clientID string) createResult {
	if paused, reason := e.ops.Paused(); paused {
		logger.Warnf("[Exec] create %s blocked: trading paused (%s)", clientID, reason)
		return createBlocked
	}

	req := &OrderRequest{
		ClientID:   clientID,
		Symbol:     e.symbol,
		Side:       intent.Side,
		Price:      intent.Price,
		Qty:        intent.Qty,
		TakeProfit: intent.TakeProfit,
		StopLoss:   intent.StopLoss,
		PostOnly:   e.postOnly,
	}
	if err := e.venue.SubmitOrder(ctx, req); err != nil {
		logger.Errorf("[Exec] submit %s failed: %v", clientID, err)
		return createFailed
	}
	return createOK
}
