package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hedgegrid/api"
	"hedgegrid/backtest"
	"hedgegrid/config"
	"hedgegrid/logger"
	"hedgegrid/provider"
	"hedgegrid/store"
	"hedgegrid/trader"
)

const (
	defaultInterval  = "1m"
	defaultPaperCash = 100000.0

	fundingPollInterval = 5 * time.Minute
	shutdownTimeout     = 10 * time.Second
)

func main() {
	// Load environment variables from .env if present. In Docker Compose the
	// runtime injects them and this is harmless.
	_ = godotenv.Load()

	if err := logger.Init(nil); err != nil {
		logger.Fatalf("logger init failed: %v", err)
	}
	config.Init()
	appCfg := config.Get()

	cfg, err := config.LoadStrategyConfig("strategy.json")
	if err != nil {
		logger.Fatalf("load strategy config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid strategy config: %v", err)
	}

	mode := strings.ToLower(strings.TrimSpace(os.Getenv("TRADING_MODE")))
	if mode == "" {
		mode = "paper"
	}
	logger.Infof("hedgegrid starting: symbol=%s tag=%s mode=%s", cfg.Symbol, cfg.Tag, mode)

	if mode == "backtest" {
		runBacktest(cfg)
		return
	}

	st, err := store.New(appCfg.DBPath)
	if err != nil {
		logger.Fatalf("open store %s: %v", appCfg.DBPath, err)
	}

	var (
		venue trader.Venue
		paper *trader.PaperVenue
	)
	switch mode {
	case "live":
		apiKey := os.Getenv("BINANCE_API_KEY")
		secretKey := os.Getenv("BINANCE_SECRET_KEY")
		if apiKey == "" || secretKey == "" {
			logger.Fatal("live mode requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
		}
		venue = trader.NewFuturesVenue(apiKey, secretKey)
	case "paper":
		paper = trader.NewPaperVenue(cfg.Symbol, paperStartCash())
		venue = paper
	default:
		logger.Fatalf("unknown TRADING_MODE %q (want backtest, paper or live)", mode)
	}

	s, err := trader.NewStrategy(cfg, venue, st)
	if err != nil {
		logger.Fatalf("build strategy: %v", err)
	}

	interval := strings.TrimSpace(os.Getenv("KLINE_INTERVAL"))
	if interval == "" {
		interval = defaultInterval
	}
	feed, err := provider.NewKlineFeed(cfg.Symbol, interval)
	if err != nil {
		logger.Fatalf("build kline feed: %v", err)
	}

	kill := trader.NewKillSwitch(s, st, 0)
	srv := api.NewServer(s, st, appCfg.APIServerPort)

	ctx, cancel := context.WithCancel(context.Background())
	feed.Start()
	kill.Start()
	srv.Start()
	go pollFunding(ctx, s)
	go runBars(ctx, s, paper, feed)

	logger.Infof("running on %s venue, kline interval %s, API port %d; Ctrl+C to stop",
		venue.Name(), interval, appCfg.APIServerPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()
	feed.Stop()
	kill.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warnf("API server shutdown: %v", err)
	}
	if err := st.Close(); err != nil {
		logger.Errorf("close store: %v", err)
	}
	logger.Info("hedgegrid stopped")
}

// runBars drives the pipeline from the kline feed. In paper mode the venue
// settles fills against each bar before the strategy reshapes the book,
// matching the backtest replay order.
func runBars(ctx context.Context, s *trader.Strategy, paper *trader.PaperVenue, feed *provider.KlineFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-feed.Bars():
			if !ok {
				return
			}
			if paper != nil {
				paper.OnBar(b)
			}
			if err := s.OnBar(ctx, b); err != nil {
				logger.Errorf("bar cycle failed: %v", err)
			}
		}
	}
}

// pollFunding refreshes the funding guard from the venue.
func pollFunding(ctx context.Context, s *trader.Strategy) {
	ticker := time.NewTicker(fundingPollInterval)
	defer ticker.Stop()
	for {
		refreshFunding(ctx, s)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func refreshFunding(ctx context.Context, s *trader.Strategy) {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rate, next, err := s.Venue().FundingInfo(callCtx, s.Symbol())
	if err != nil {
		logger.Warnf("funding info unavailable: %v", err)
		return
	}
	s.OnFundingUpdate(rate, next)
}

func runBacktest(cfg *config.StrategyConfig) {
	csvPath := strings.TrimSpace(os.Getenv("BACKTEST_CSV"))
	if csvPath == "" && len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	if csvPath == "" {
		logger.Fatal("backtest mode requires BACKTEST_CSV or a CSV path argument")
	}

	bars, err := backtest.LoadBarsCSV(csvPath)
	if err != nil {
		logger.Fatalf("load bars: %v", err)
	}

	r, err := backtest.NewRunner(cfg, paperStartCash())
	if err != nil {
		logger.Fatalf("build runner: %v", err)
	}
	res, err := r.Run(context.Background(), bars)
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	m := res.Metrics
	logger.Infof("backtest complete: bars=%d fills=%d equity %.2f -> %.2f (%.2f%%)",
		m.Bars, m.Fills, m.StartEquity, m.FinalEquity, m.ReturnPct)
	logger.Infof("max drawdown %.2f%%, sharpe %.3f", m.MaxDrawdownPct, m.SharpeRatio)
}

func paperStartCash() float64 {
	if v := os.Getenv("PAPER_START_CASH"); v != "" {
		if cash, err := strconv.ParseFloat(v, 64); err == nil && cash > 0 {
			return cash
		}
		logger.Warnf("ignoring invalid PAPER_START_CASH %q", v)
	}
	return defaultPaperCash
}
