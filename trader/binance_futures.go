package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"hedgegrid/grid"
	"hedgegrid/logger"
)

// Binance error code for cancel of an unknown/closed order.
const binanceUnknownOrderCode = -2011

// Conditional market order types for the exit legs. The SDK's futures
// OrderType enum stops at LIMIT/MARKET, so these carry the wire strings.
const (
	orderTypeTakeProfitMarket futures.OrderType = "TAKE_PROFIT_MARKET"
	orderTypeStopMarket       futures.OrderType = "STOP_MARKET"
)

// FuturesVenue is a thin Venue adapter over Binance USDT-M futures in hedge
// mode. Bracket exits are placed alongside the entry as reduce-side
// conditional market orders carrying a "-TP"/"-SL" id suffix; the suffix
// keeps them out of the reconciler's matching (it only touches ids it can
// parse) and lets CancelOrder sweep them together with their entry.
type FuturesVenue struct {
	client *futures.Client
}

// NewFuturesVenue creates a Binance futures venue adapter.
func NewFuturesVenue(apiKey, secretKey string) *FuturesVenue {
	return &FuturesVenue{client: futures.NewClient(apiKey, secretKey)}
}

func (v *FuturesVenue) Name() string { return "binance-futures" }

func sideToBinance(s grid.Side) (futures.SideType, futures.PositionSideType) {
	if s == grid.SideLong {
		return futures.SideTypeBuy, futures.PositionSideTypeLong
	}
	return futures.SideTypeSell, futures.PositionSideTypeShort
}

func (v *FuturesVenue) OpenOrders(ctx context.Context, symbol string) ([]LiveOrder, error) {
	orders, err := v.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: list open orders: %w", err)
	}

	out := make([]LiveOrder, 0, len(orders))
	for _, o := range orders {
		price, perr := decimal.NewFromString(o.Price)
		qty, qerr := decimal.NewFromString(o.OrigQuantity)
		if perr != nil || qerr != nil {
			logger.Warnf("[Binance] skipping order %s with unreadable price/qty %q/%q", o.ClientOrderID, o.Price, o.OrigQuantity)
			continue
		}
		side := grid.SideShort
		if o.Side == futures.SideTypeBuy {
			side = grid.SideLong
		}
		out = append(out, LiveOrder{
			ClientID: o.ClientOrderID,
			Symbol:   o.Symbol,
			Side:     side,
			Price:    price,
			Qty:      qty,
			Status:   string(o.Status),
		})
	}
	return out, nil
}

func (v *FuturesVenue) SubmitOrder(ctx context.Context, req *OrderRequest) error {
	side, posSide := sideToBinance(req.Side)

	tif := futures.TimeInForceTypeGTC
	if req.PostOnly {
		tif = futures.TimeInForceTypeGTX
	}

	svc := v.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		PositionSide(posSide).
		Type(futures.OrderTypeLimit).
		TimeInForce(tif).
		Price(req.Price.String()).
		Quantity(req.Qty.String()).
		NewClientOrderID(req.ClientID)
	if _, err := svc.Do(ctx); err != nil {
		return fmt.Errorf("binance: submit %s: %w", req.ClientID, err)
	}

	// Exit legs are best-effort: a failed bracket leaves the entry working
	// and is logged for the operator.
	exitSide, _ := sideToBinance(req.Side.Opposite())
	if !req.TakeProfit.IsZero() {
		v.placeExit(ctx, req, exitSide, posSide, orderTypeTakeProfitMarket, req.TakeProfit, req.ClientID+"-TP")
	}
	if !req.StopLoss.IsZero() {
		v.placeExit(ctx, req, exitSide, posSide, orderTypeStopMarket, req.StopLoss, req.ClientID+"-SL")
	}
	return nil
}

func (v *FuturesVenue) placeExit(ctx context.Context, req *OrderRequest, side futures.SideType, posSide futures.PositionSideType, typ futures.OrderType, trigger decimal.Decimal, clientID string) {
	_, err := v.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		PositionSide(posSide).
		Type(typ).
		StopPrice(trigger.String()).
		Quantity(req.Qty.String()).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		logger.Warnf("[Binance] exit leg %s failed: %v", clientID, err)
	}
}

func (v *FuturesVenue) CancelOrder(ctx context.Context, symbol, clientID string) error {
	if err := v.cancelOne(ctx, symbol, clientID); err != nil {
		return err
	}
	// Sweep the bracket legs; they may legitimately not exist.
	for _, suffix := range []string{"-TP", "-SL"} {
		if err := v.cancelOne(ctx, symbol, clientID+suffix); err != nil && !errors.Is(err, ErrOrderNotFound) {
			logger.Warnf("[Binance] cancel exit leg %s%s failed: %v", clientID, suffix, err)
		}
	}
	return nil
}

func (v *FuturesVenue) cancelOne(ctx context.Context, symbol, clientID string) error {
	_, err := v.client.NewCancelOrderService().Symbol(symbol).OrigClientOrderID(clientID).Do(ctx)
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == binanceUnknownOrderCode {
		return fmt.Errorf("binance: %w: %s", ErrOrderNotFound, clientID)
	}
	return fmt.Errorf("binance: cancel %s: %w", clientID, err)
}

func (v *FuturesVenue) CancelAllOrders(ctx context.Context, symbol string) error {
	if err := v.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("binance: cancel all orders: %w", err)
	}
	return nil
}

func (v *FuturesVenue) Position(ctx context.Context, symbol string, side grid.Side) (*Position, error) {
	risks, err := v.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: position risk: %w", err)
	}

	_, posSide := sideToBinance(side)
	for _, r := range risks {
		if r.PositionSide != string(posSide) {
			continue
		}
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}
		entry, err := decimal.NewFromString(r.EntryPrice)
		if err != nil {
			return nil, fmt.Errorf("binance: unreadable entry price %q", r.EntryPrice)
		}
		return &Position{Symbol: symbol, Side: side, Qty: amt.Abs(), AvgPrice: entry}, nil
	}
	return nil, nil
}

func (v *FuturesVenue) ClosePosition(ctx context.Context, symbol string, side grid.Side) error {
	pos, err := v.Position(ctx, symbol, side)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}

	// Hedge mode: closing a side means sending the opposite order side with
	// the same position side.
	oppSide, _ := sideToBinance(side.Opposite())
	_, samePosSide := sideToBinance(side)

	_, err = v.client.NewCreateOrderService().
		Symbol(symbol).
		Side(oppSide).
		PositionSide(samePosSide).
		Type(futures.OrderTypeMarket).
		Quantity(pos.Qty.String()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: close %s position: %w", side, err)
	}
	return nil
}

func (v *FuturesVenue) Balance(ctx context.Context) (map[string]float64, error) {
	acct, err := v.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: account: %w", err)
	}

	wallet, err1 := decimal.NewFromString(acct.TotalWalletBalance)
	unrealized, err2 := decimal.NewFromString(acct.TotalUnrealizedProfit)
	available, err3 := decimal.NewFromString(acct.AvailableBalance)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("binance: unreadable account balances")
	}

	equity, _ := wallet.Add(unrealized).Float64()
	avail, _ := available.Float64()
	return map[string]float64{
		"total_equity":      equity,
		"available_balance": avail,
	}, nil
}

func (v *FuturesVenue) FundingInfo(ctx context.Context, symbol string) (float64, time.Time, error) {
	idx, err := v.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("binance: premium index: %w", err)
	}
	if len(idx) == 0 {
		return 0, time.Time{}, fmt.Errorf("binance: no premium index for %s", symbol)
	}

	rate, err := decimal.NewFromString(idx[0].LastFundingRate)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("binance: unreadable funding rate %q", idx[0].LastFundingRate)
	}
	f, _ := rate.Float64()
	return f, time.UnixMilli(idx[0].NextFundingTime), nil
}
