package backtest

import "math"

// EquityPoint is one sampled equity value along a run.
type EquityPoint struct {
	Bar    int     `json:"bar"`
	Equity float64 `json:"equity"`
}

// Metrics summarizes one backtest run.
type Metrics struct {
	Bars           int     `json:"bars"`
	Fills          int     `json:"fills"`
	StartEquity    float64 `json:"start_equity"`
	FinalEquity    float64 `json:"final_equity"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

// maxDrawdown returns the largest peak-to-trough equity decline in percent.
func maxDrawdown(points []EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range points {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpeRatio computes an annualization-free Sharpe ratio over per-bar
// returns, risk-free rate taken as zero.
func sharpeRatio(points []EquityPoint) float64 {
	// Too few points make the ratio noise.
	if len(points) < 10 {
		return 0
	}

	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (points[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}
