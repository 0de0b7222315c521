package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"hedgegrid/config"
	"hedgegrid/logger"
	"hedgegrid/market"
	"hedgegrid/trader"
)

// Runner replays historical bars through the full pipeline against a paper
// venue. The parameter-search harness is intentionally not part of this
// package; a single run with fixed parameters is.
type Runner struct {
	cfg       *config.StrategyConfig
	startCash float64
}

// NewRunner creates a backtest runner.
func NewRunner(cfg *config.StrategyConfig, startCash float64) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}
	if startCash <= 0 {
		return nil, fmt.Errorf("start cash must be positive, got %.2f", startCash)
	}
	return &Runner{cfg: cfg, startCash: startCash}, nil
}

// Result carries the run summary and the sampled equity curve.
type Result struct {
	Metrics Metrics       `json:"metrics"`
	Equity  []EquityPoint `json:"equity"`
}

// Run replays the bars in order. Pipeline errors on individual bars are
// logged and skipped; the replay continues.
func (r *Runner) Run(ctx context.Context, bars []market.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to replay")
	}

	venue := trader.NewPaperVenue(r.cfg.Symbol, r.startCash)
	s, err := trader.NewStrategy(r.cfg, venue, nil)
	if err != nil {
		return nil, err
	}

	points := make([]EquityPoint, 0, len(bars))
	for i, b := range bars {
		// Fills settle against the book left by the previous bar before the
		// strategy reshapes it.
		venue.OnBar(b)
		if err := s.OnBar(ctx, b); err != nil {
			logger.Warnf("[Backtest] bar %d skipped: %v", i+1, err)
		}
		points = append(points, EquityPoint{Bar: i + 1, Equity: venue.Equity()})
	}

	final := venue.Equity()
	res := &Result{
		Metrics: Metrics{
			Bars:           len(bars),
			Fills:          venue.Fills(),
			StartEquity:    r.startCash,
			FinalEquity:    final,
			ReturnPct:      (final - r.startCash) / r.startCash * 100,
			MaxDrawdownPct: maxDrawdown(points),
			SharpeRatio:    sharpeRatio(points),
		},
		Equity: points,
	}
	logger.Infof("[Backtest] %d bars, %d fills, return %.2f%%, max drawdown %.2f%%",
		res.Metrics.Bars, res.Metrics.Fills, res.Metrics.ReturnPct, res.Metrics.MaxDrawdownPct)
	return res, nil
}

// LoadBarsCSV reads bars from a CSV file with the header
// timestamp,open,high,low,close,volume where timestamp is epoch
// milliseconds.
func LoadBarsCSV(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	var (
		bars []market.Bar
		row  int
	)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, row+1, err)
		}
		row++
		if row == 1 && rec[0] == "timestamp" {
			continue
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("%s row %d: want 6 columns, got %d", path, row, len(rec))
		}

		vals := make([]float64, 5)
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad timestamp %q", path, row, rec[0])
		}
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %d: %w", path, row, i+2, err)
			}
			vals[i] = v
		}

		b, err := market.NewBar(time.UnixMilli(ts), vals[0], vals[1], vals[2], vals[3], vals[4])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, row, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}
