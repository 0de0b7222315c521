package market

import (
	"fmt"
	"math"
)

// ============================================================================
// Streaming indicators
// ============================================================================
//
// All indicators here are O(1) per update. Each one reports Warm() only
// after it has consumed enough bars to produce a meaningful value; callers
// must not read Value() before that.

// EMA is a streaming exponential moving average. It seeds itself with the
// simple average of the first `period` prices, then applies standard
// exponential smoothing with multiplier 2/(period+1).
type EMA struct {
	period int
	k      float64
	count  int
	sum    float64
	value  float64
}

// NewEMA creates an EMA; the period must be positive.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period must be positive, got %d", period)
	}
	return &EMA{period: period, k: 2.0 / float64(period+1)}, nil
}

// Update feeds one price.
func (e *EMA) Update(price float64) {
	e.count++
	if e.count <= e.period {
		e.sum += price
		if e.count == e.period {
			e.value = e.sum / float64(e.period)
		}
		return
	}
	e.value += (price - e.value) * e.k
}

// Warm reports whether the EMA has consumed at least `period` prices.
func (e *EMA) Warm() bool { return e.count >= e.period }

// Value returns the current EMA value; only meaningful once Warm.
func (e *EMA) Value() float64 { return e.value }

// ATR is a streaming average true range using Wilder's smoothing.
// TR = max(high-low, |high-prevClose|, |low-prevClose|).
type ATR struct {
	period    int
	count     int
	sum       float64
	value     float64
	prevClose float64
}

// NewATR creates an ATR; the period must be positive.
func NewATR(period int) (*ATR, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr period must be positive, got %d", period)
	}
	return &ATR{period: period}, nil
}

// Update feeds one bar's high/low/close.
func (a *ATR) Update(high, low, close float64) {
	tr := high - low
	if a.count > 0 {
		tr = math.Max(tr, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	}
	a.prevClose = close

	a.count++
	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.value = a.sum / float64(a.period)
		}
		return
	}
	// Wilder smoothing
	a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
}

// Warm reports whether the ATR has consumed at least `period` bars.
func (a *ATR) Warm() bool { return a.count >= a.period }

// Value returns the current ATR; only meaningful once Warm.
func (a *ATR) Value() float64 { return a.value }

// ADX is a streaming average directional index. It Wilder-smooths +DM/-DM
// and TR into +DI/-DI, derives DX = |+DI - -DI| / (+DI + -DI) * 100, and
// Wilder-smooths DX into ADX. On regular data it warms after 2*period
// bars: period bars to seed the DM/TR sums and another period of DX
// samples to seed ADX.
type ADX struct {
	period    int
	count     int // bars consumed
	prevHigh  float64
	prevLow   float64
	prevClose float64

	smTR      float64
	smPlusDM  float64
	smMinusDM float64

	dxCount int
	dxSum   float64
	value   float64
}

// NewADX creates an ADX; the period must be positive.
func NewADX(period int) (*ADX, error) {
	if period <= 0 {
		return nil, fmt.Errorf("adx period must be positive, got %d", period)
	}
	return &ADX{period: period}, nil
}

// Update feeds one bar's high/low/close.
func (x *ADX) Update(high, low, close float64) {
	x.count++
	if x.count == 1 {
		x.prevHigh, x.prevLow, x.prevClose = high, low, close
		return
	}

	upMove := high - x.prevHigh
	downMove := x.prevLow - low
	plusDM, minusDM := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	tr := math.Max(high-low, math.Max(math.Abs(high-x.prevClose), math.Abs(low-x.prevClose)))
	x.prevHigh, x.prevLow, x.prevClose = high, low, close

	// DM/TR samples start on the second bar; seed with plain sums.
	samples := x.count - 1
	if samples <= x.period {
		x.smTR += tr
		x.smPlusDM += plusDM
		x.smMinusDM += minusDM
		if samples < x.period {
			return
		}
	} else {
		x.smTR = x.smTR - x.smTR/float64(x.period) + tr
		x.smPlusDM = x.smPlusDM - x.smPlusDM/float64(x.period) + plusDM
		x.smMinusDM = x.smMinusDM - x.smMinusDM/float64(x.period) + minusDM
	}

	// A zero-range stretch yields no TR and therefore no DX sample.
	if x.smTR == 0 {
		return
	}
	plusDI := x.smPlusDM / x.smTR * 100
	minusDI := x.smMinusDM / x.smTR * 100
	// No directional movement is a valid DX reading of zero, not a gap.
	dx := 0.0
	if diSum := plusDI + minusDI; diSum > 0 {
		dx = math.Abs(plusDI-minusDI) / diSum * 100
	}

	x.dxCount++
	if x.dxCount <= x.period {
		x.dxSum += dx
		if x.dxCount == x.period {
			x.value = x.dxSum / float64(x.period)
		}
		return
	}
	x.value = (x.value*float64(x.period-1) + dx) / float64(x.period)
}

// Warm reports whether a full period of DX samples has been smoothed into
// the value. On regular data that happens after 2*period bars; zero-range
// bars contribute no sample and push warm-up out accordingly.
func (x *ADX) Warm() bool { return x.dxCount >= x.period }

// Value returns the current ADX; only meaningful once Warm.
func (x *ADX) Value() float64 { return x.value }
