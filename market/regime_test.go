package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBar(t *testing.T, open, high, low, close float64) Bar {
	t.Helper()
	b, err := NewBar(time.Now(), open, high, low, close, 1)
	require.NoError(t, err)
	return b
}

func TestRegimeStaysSidewaysBeforeWarmup(t *testing.T) {
	d, err := NewRegimeDetector(2, 4, 14, 14, 30)
	require.NoError(t, err)

	// Strongly rising bars, but the slow EMA is not warm yet.
	price := 100.0
	for i := 0; i < 3; i++ {
		r := d.Update(mustBar(t, price, price+1, price-1, price))
		assert.Equal(t, RegimeSideways, r)
		price += 4
	}
}

func TestRegimeUpAndDownClassification(t *testing.T) {
	up, err := NewRegimeDetector(2, 4, 14, 14, 30)
	require.NoError(t, err)
	price := 100.0
	var r Regime
	for i := 0; i < 6; i++ {
		r = up.Update(mustBar(t, price, price+1, price-1, price))
		price += 4
	}
	assert.Equal(t, RegimeUp, r)

	down, err := NewRegimeDetector(2, 4, 14, 14, 30)
	require.NoError(t, err)
	price = 100.0
	for i := 0; i < 6; i++ {
		r = down.Update(mustBar(t, price, price+1, price-1, price))
		price -= 4
	}
	assert.Equal(t, RegimeDown, r)
}

func TestHysteresisKeepsRegimeSticky(t *testing.T) {
	// ADX period long enough that it never warms during this test, so the
	// spread/hysteresis path is exercised in isolation.
	d, err := NewRegimeDetector(2, 4, 14, 14, 30)
	require.NoError(t, err)

	price := 100.0
	for i := 0; i < 4; i++ {
		d.Update(mustBar(t, price, price+1, price-1, price))
		price += 4
	}
	require.Equal(t, RegimeUp, d.Current())

	// Oscillate closes a few cents around a flat level: the EMA spread
	// shrinks into the hysteresis band and flips sign, but the committed
	// regime must not move.
	level := price
	for i := 0; i < 20; i++ {
		close := level + 0.05
		if i%2 == 1 {
			close = level - 0.05
		}
		r := d.Update(mustBar(t, level, level+1, level-1, close))
		assert.Equal(t, RegimeUp, r, "bar %d flipped regime inside hysteresis band", i)
	}
}

func TestWeakADXForcesSideways(t *testing.T) {
	// Zero hysteresis: without the ADX override the alternating closes
	// would flip the regime every bar.
	d, err := NewRegimeDetector(2, 4, 5, 5, 0)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		close := 101.0
		if i%2 == 1 {
			close = 99.0
		}
		d.Update(mustBar(t, 100, 101, 99, close))
	}
	require.True(t, d.Warm())

	for i := 0; i < 10; i++ {
		close := 101.0
		if i%2 == 1 {
			close = 99.0
		}
		r := d.Update(mustBar(t, 100, 101, 99, close))
		assert.Equal(t, RegimeSideways, r)
	}
}

func TestDetectorWarmRequiresAllIndicators(t *testing.T) {
	d, err := NewRegimeDetector(2, 4, 5, 5, 10)
	require.NoError(t, err)

	// ADX needs 2*5 bars, the slowest warm-up of the set.
	for i := 0; i < 9; i++ {
		d.Update(mustBar(t, 100, 101, 99, 100))
		assert.False(t, d.Warm(), "bar %d", i+1)
	}
	d.Update(mustBar(t, 100, 101, 99, 100))
	assert.True(t, d.Warm())
}

func TestNewRegimeDetectorValidation(t *testing.T) {
	_, err := NewRegimeDetector(50, 20, 14, 14, 10)
	assert.Error(t, err, "fast >= slow must be rejected")

	_, err = NewRegimeDetector(20, 50, 0, 14, 10)
	assert.Error(t, err, "zero adx period must be rejected")

	_, err = NewRegimeDetector(20, 50, 14, 14, -1)
	assert.Error(t, err, "negative hysteresis must be rejected")
}

func TestParseRegime(t *testing.T) {
	r, err := ParseRegime("UP")
	require.NoError(t, err)
	assert.Equal(t, RegimeUp, r)

	_, err = ParseRegime("sideways")
	assert.Error(t, err)
}
