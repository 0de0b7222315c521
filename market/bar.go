package market

import (
	"fmt"
	"time"
)

// Bar is a single validated OHLCV candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// NewBar validates OHLC ordering and returns the bar. Invalid bars are
// rejected here, before they can reach any indicator.
func NewBar(ts time.Time, open, high, low, close, volume float64) (Bar, error) {
	if low <= 0 {
		return Bar{}, fmt.Errorf("invalid bar: low must be positive, got %.8f", low)
	}
	if high < low {
		return Bar{}, fmt.Errorf("invalid bar: high %.8f < low %.8f", high, low)
	}
	if open < low || open > high {
		return Bar{}, fmt.Errorf("invalid bar: open %.8f outside [low %.8f, high %.8f]", open, low, high)
	}
	if close < low || close > high {
		return Bar{}, fmt.Errorf("invalid bar: close %.8f outside [low %.8f, high %.8f]", close, low, high)
	}
	if volume < 0 {
		return Bar{}, fmt.Errorf("invalid bar: volume must be >= 0, got %.8f", volume)
	}
	return Bar{Time: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}, nil
}
