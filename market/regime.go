package market

import (
	"fmt"
)

// Regime is the classified market trend state.
type Regime string

const (
	RegimeUp       Regime = "UP"
	RegimeDown     Regime = "DOWN"
	RegimeSideways Regime = "SIDEWAYS"
)

// adxTrendThreshold is the fixed ADX level below which the market is
// considered trendless regardless of EMA spread.
const adxTrendThreshold = 20.0

// ParseRegime converts a string to a Regime.
func ParseRegime(s string) (Regime, error) {
	switch Regime(s) {
	case RegimeUp, RegimeDown, RegimeSideways:
		return Regime(s), nil
	default:
		return "", fmt.Errorf("invalid regime %q", s)
	}
}

// RegimeDetector classifies the market into UP/DOWN/SIDEWAYS from a stream
// of bars. The classification is sticky: while the EMA spread stays inside
// the hysteresis band the last committed regime is kept, which prevents
// flip-flopping around the zero line.
type RegimeDetector struct {
	fast *EMA
	slow *EMA
	adx  *ADX
	atr  *ATR

	hysteresisBps float64
	current       Regime
}

// NewRegimeDetector builds a detector from indicator periods. Periods must
// be positive; fast must be shorter than slow.
func NewRegimeDetector(fastPeriod, slowPeriod, adxPeriod, atrPeriod int, hysteresisBps float64) (*RegimeDetector, error) {
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("fast ema period %d must be smaller than slow ema period %d", fastPeriod, slowPeriod)
	}
	if hysteresisBps < 0 {
		return nil, fmt.Errorf("hysteresis must be >= 0, got %.2f", hysteresisBps)
	}
	fast, err := NewEMA(fastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := NewEMA(slowPeriod)
	if err != nil {
		return nil, err
	}
	adx, err := NewADX(adxPeriod)
	if err != nil {
		return nil, err
	}
	atr, err := NewATR(atrPeriod)
	if err != nil {
		return nil, err
	}
	return &RegimeDetector{
		fast:          fast,
		slow:          slow,
		adx:           adx,
		atr:           atr,
		hysteresisBps: hysteresisBps,
		current:       RegimeSideways,
	}, nil
}

// Update feeds one bar to all indicators and reclassifies the regime.
// Until both EMAs are warm the regime stays SIDEWAYS.
func (d *RegimeDetector) Update(b Bar) Regime {
	d.fast.Update(b.Close)
	d.slow.Update(b.Close)
	d.adx.Update(b.High, b.Low, b.Close)
	d.atr.Update(b.High, b.Low, b.Close)

	if !d.fast.Warm() || !d.slow.Warm() {
		return d.current
	}

	// A weak trend reading overrides the spread entirely.
	if d.adx.Warm() && d.adx.Value() < adxTrendThreshold {
		d.current = RegimeSideways
		return d.current
	}

	spreadBps := (d.fast.Value() - d.slow.Value()) / d.slow.Value() * 10000

	// Inside the hysteresis band the last committed regime sticks.
	if spreadBps > -d.hysteresisBps && spreadBps < d.hysteresisBps {
		return d.current
	}

	if spreadBps > 0 {
		d.current = RegimeUp
	} else {
		d.current = RegimeDown
	}
	return d.current
}

// Current returns the last committed regime.
func (d *RegimeDetector) Current() Regime { return d.current }

// Warm reports whether all four indicators have consumed enough bars.
func (d *RegimeDetector) Warm() bool {
	return d.fast.Warm() && d.slow.Warm() && d.adx.Warm() && d.atr.Warm()
}

// ATRValue exposes the current ATR for reporting.
func (d *RegimeDetector) ATRValue() float64 { return d.atr.Value() }

// SpreadBps returns the current EMA spread in basis points, 0 before warm-up.
func (d *RegimeDetector) SpreadBps() float64 {
	if !d.fast.Warm() || !d.slow.Warm() || d.slow.Value() == 0 {
		return 0
	}
	return (d.fast.Value() - d.slow.Value()) / d.slow.Value() * 10000
}
