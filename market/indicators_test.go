package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBarValidation(t *testing.T) {
	now := time.Now()

	_, err := NewBar(now, 10, 9, 11, 10, 1) // high < low
	assert.Error(t, err)

	_, err = NewBar(now, 12, 11, 9, 10, 1) // open above high
	assert.Error(t, err)

	_, err = NewBar(now, 10, 11, 9, 8, 1) // close below low
	assert.Error(t, err)

	_, err = NewBar(now, 10, 11, 0, 10, 1) // non-positive low
	assert.Error(t, err)

	b, err := NewBar(now, 10, 11, 9, 10.5, 3)
	require.NoError(t, err)
	assert.Equal(t, 10.5, b.Close)
}

func TestEMAWarmupSeedsWithSimpleAverage(t *testing.T) {
	ema, err := NewEMA(3)
	require.NoError(t, err)

	ema.Update(10)
	ema.Update(20)
	assert.False(t, ema.Warm())

	ema.Update(30)
	require.True(t, ema.Warm())
	assert.InDelta(t, 20.0, ema.Value(), 1e-9)

	// k = 2/(3+1) = 0.5
	ema.Update(40)
	assert.InDelta(t, 30.0, ema.Value(), 1e-9)
}

func TestEMARejectsBadPeriod(t *testing.T) {
	_, err := NewEMA(0)
	assert.Error(t, err)
	_, err = NewEMA(-5)
	assert.Error(t, err)
}

func TestATRWilderSmoothing(t *testing.T) {
	atr, err := NewATR(2)
	require.NoError(t, err)

	// Bar 1: TR = high - low = 2
	atr.Update(12, 10, 11)
	assert.False(t, atr.Warm())

	// Bar 2: TR = max(13-11, |13-11|, |11-11|) = 2 -> seed avg = 2
	atr.Update(13, 11, 12)
	require.True(t, atr.Warm())
	assert.InDelta(t, 2.0, atr.Value(), 1e-9)

	// Bar 3: TR = max(18-14, |18-12|, |14-12|) = 6
	// Wilder: (2*1 + 6)/2 = 4
	atr.Update(18, 14, 16)
	assert.InDelta(t, 4.0, atr.Value(), 1e-9)
}

func TestATRRejectsBadPeriod(t *testing.T) {
	_, err := NewATR(0)
	assert.Error(t, err)
}

func TestADXWarmsAfterTwoPeriods(t *testing.T) {
	adx, err := NewADX(5)
	require.NoError(t, err)

	// Steadily rising bars: strong +DM every bar.
	price := 100.0
	for i := 0; i < 9; i++ {
		adx.Update(price+1, price-1, price)
		price += 2
		assert.False(t, adx.Warm(), "bar %d should not be warm", i+1)
	}
	adx.Update(price+1, price-1, price)
	assert.True(t, adx.Warm())

	// A one-directional market has DX near 100.
	assert.Greater(t, adx.Value(), 50.0)
}

func TestADXRejectsBadPeriod(t *testing.T) {
	_, err := NewADX(-1)
	assert.Error(t, err)
}

func TestADXZeroRangeBarsDeferWarmup(t *testing.T) {
	adx, err := NewADX(3)
	require.NoError(t, err)

	// Dead tape: every bar is a point, so there is no true range and no DX
	// sample to smooth. Bar count alone must not make the ADX warm.
	for i := 0; i < 6; i++ {
		adx.Update(100, 100, 100)
		assert.False(t, adx.Warm(), "bar %d: no DX samples yet", i+1)
	}

	// Real bars resume; the ADX warms only after a full period of samples.
	price := 100.0
	for i := 0; i < 2; i++ {
		adx.Update(price+1, price-1, price)
		price += 2
		assert.False(t, adx.Warm())
	}
	adx.Update(price+1, price-1, price)
	assert.True(t, adx.Warm())
	assert.Greater(t, adx.Value(), 0.0)
}

func TestADXCountsFlatDirectionAsZeroSample(t *testing.T) {
	adx, err := NewADX(3)
	require.NoError(t, err)

	// Range without drift: highs and lows never advance, so +DM and -DM
	// are both zero while TR stays positive. Each bar is a legitimate DX
	// sample of zero and warm-up proceeds on schedule.
	for i := 0; i < 5; i++ {
		adx.Update(101, 99, 100)
		assert.False(t, adx.Warm(), "bar %d should not be warm", i+1)
	}
	adx.Update(101, 99, 100)
	assert.True(t, adx.Warm(), "2*period bars of ranging data must warm the ADX")
	assert.Zero(t, adx.Value())
}
