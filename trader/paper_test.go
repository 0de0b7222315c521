package trader

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgegrid/grid"
	"hedgegrid/market"
)

func paperBar(t *testing.T, open, high, low, close float64) market.Bar {
	t.Helper()
	b, err := market.NewBar(time.Now(), open, high, low, close, 1)
	require.NoError(t, err)
	return b
}

func submitPaper(t *testing.T, v *PaperVenue, side grid.Side, id, price, qty, tp, sl string) {
	t.Helper()
	req := &OrderRequest{
		ClientID: id,
		Symbol:   "TEST",
		Side:     side,
		Price:    decimal.RequireFromString(price),
		Qty:      decimal.RequireFromString(qty),
	}
	if tp != "" {
		req.TakeProfit = decimal.RequireFromString(tp)
	}
	if sl != "" {
		req.StopLoss = decimal.RequireFromString(sl)
	}
	require.NoError(t, v.SubmitOrder(context.Background(), req))
}

func TestPaperLongFillAndTakeProfit(t *testing.T) {
	v := NewPaperVenue("TEST", 100000)
	submitPaper(t, v, grid.SideLong, "HG1-LONG-01-1700000000000", "99.75", "0.1", "100.25", "99")

	// Bar trades down through the entry price.
	v.OnBar(paperBar(t, 100, 100.5, 99.7, 100))
	assert.Equal(t, 1, v.Fills())

	open, _ := v.OpenOrders(context.Background(), "TEST")
	assert.Empty(t, open)

	pos, err := v.Position(context.Background(), "TEST", grid.SideLong)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, decimal.RequireFromString("0.1").Equal(pos.Qty))
	assert.True(t, decimal.RequireFromString("99.75").Equal(pos.AvgPrice))

	// Next bar tags the take-profit.
	v.OnBar(paperBar(t, 100, 100.3, 99.9, 100.2))
	pos, err = v.Position(context.Background(), "TEST", grid.SideLong)
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.InDelta(t, 100000.05, v.Equity(), 1e-9) // (100.25-99.75)*0.1
}

func TestPaperShortFillAndStopLoss(t *testing.T) {
	v := NewPaperVenue("TEST", 100000)
	submitPaper(t, v, grid.SideShort, "HG1-SHORT-01-1700000000000", "100.25", "0.1", "", "101")

	v.OnBar(paperBar(t, 100, 100.3, 99.9, 100))
	assert.Equal(t, 1, v.Fills())

	v.OnBar(paperBar(t, 100.5, 101.2, 100.4, 101))
	pos, err := v.Position(context.Background(), "TEST", grid.SideShort)
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.InDelta(t, 99999.925, v.Equity(), 1e-9) // (100.25-101)*0.1
}

func TestPaperUntouchedOrderRests(t *testing.T) {
	v := NewPaperVenue("TEST", 100000)
	submitPaper(t, v, grid.SideLong, "HG1-LONG-02-1700000000000", "98", "0.1", "", "")

	v.OnBar(paperBar(t, 100, 100.5, 99.5, 100))
	assert.Zero(t, v.Fills())
	open, _ := v.OpenOrders(context.Background(), "TEST")
	assert.Len(t, open, 1)
}

func TestPaperClosePositionMarksAtLastPrice(t *testing.T) {
	v := NewPaperVenue("TEST", 100000)
	submitPaper(t, v, grid.SideLong, "HG1-LONG-01-1700000000000", "100", "1", "", "")

	v.OnBar(paperBar(t, 100, 100.2, 99.9, 100))
	v.OnBar(paperBar(t, 99, 99.1, 98.9, 99))

	require.NoError(t, v.ClosePosition(context.Background(), "TEST", grid.SideLong))
	pos, _ := v.Position(context.Background(), "TEST", grid.SideLong)
	assert.Nil(t, pos)
	assert.InDelta(t, 99999, v.Equity(), 1e-9) // closed 1 @ 99 against 100 entry
}

func TestPaperRejectsDuplicateAndInvalidOrders(t *testing.T) {
	v := NewPaperVenue("TEST", 100000)
	submitPaper(t, v, grid.SideLong, "dup", "100", "1", "", "")

	err := v.SubmitOrder(context.Background(), &OrderRequest{
		ClientID: "dup", Side: grid.SideLong,
		Price: decimal.RequireFromString("100"), Qty: decimal.RequireFromString("1"),
	})
	assert.Error(t, err)

	err = v.SubmitOrder(context.Background(), &OrderRequest{
		ClientID: "bad", Side: grid.SideLong,
		Price: decimal.Zero, Qty: decimal.RequireFromString("1"),
	})
	assert.Error(t, err)

	err = v.CancelOrder(context.Background(), "TEST", "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
