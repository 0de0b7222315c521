package trader

import (
	"context"
	"sync"
	"time"

	"hedgegrid/logger"
	"hedgegrid/store"
)

// KillSwitch is the background circuit-breaker monitor. On its own schedule
// it samples venue equity and trips the strategy's pause flag when the
// max-drawdown or daily-loss limit is breached; a drawdown breach also
// flattens both sides immediately. It talks to the strategy only through
// the shared operational state and the flatten entry point, so a trip taken
// mid-bar blocks that bar's remaining creates.
type KillSwitch struct {
	strategy *Strategy
	st       *store.Store // optional equity persistence, nil in tests

	interval          time.Duration
	maxDrawdownPct    float64
	dailyLossLimitPct float64

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	peakEquity float64
	dayStart   time.Time
	dayEquity  float64
}

// NewKillSwitch builds the monitor from the strategy's config limits. A zero
// limit disables the corresponding check.
func NewKillSwitch(s *Strategy, st *store.Store, interval time.Duration) *KillSwitch {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &KillSwitch{
		strategy:          s,
		st:                st,
		interval:          interval,
		maxDrawdownPct:    s.cfg.MaxDrawdownPct,
		dailyLossLimitPct: s.cfg.DailyLossLimitPct,
		stopCh:            make(chan struct{}),
	}
}

// Start launches the monitor loop.
func (k *KillSwitch) Start() {
	k.wg.Add(1)
	go k.run()
	logger.Infof("[KillSwitch] started (interval %s, max drawdown %.1f%%, daily loss %.1f%%)",
		k.interval, k.maxDrawdownPct, k.dailyLossLimitPct)
}

// Stop shuts the monitor down and waits for the loop to exit.
func (k *KillSwitch) Stop() {
	close(k.stopCh)
	k.wg.Wait()
	logger.Info("[KillSwitch] stopped")
}

func (k *KillSwitch) run() {
	defer k.wg.Done()

	k.check()

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			k.check()
		}
	}
}

// check samples equity once and evaluates both limits.
func (k *KillSwitch) check() {
	ctx, cancel := context.WithTimeout(context.Background(), k.interval)
	defer cancel()

	bal, err := k.strategy.Venue().Balance(ctx)
	if err != nil {
		logger.Warnf("[KillSwitch] balance query failed: %v", err)
		return
	}
	equity := bal["total_equity"]
	if equity <= 0 {
		return
	}

	k.persistEquity(equity, bal["available_balance"])

	if tripped, dd := k.checkMaxDrawdown(equity); tripped {
		logger.Errorf("[KillSwitch] max drawdown exceeded: %.2f%% >= %.2f%%, pausing and flattening", dd, k.maxDrawdownPct)
		k.strategy.Ops().Pause("max drawdown exceeded")
		if _, err := k.strategy.FlattenAll(ctx); err != nil {
			logger.Errorf("[KillSwitch] emergency flatten failed: %v", err)
		}
		return
	}

	if tripped, loss := k.checkDailyLossLimit(equity); tripped {
		logger.Errorf("[KillSwitch] daily loss limit exceeded: %.2f%% >= %.2f%%, pausing new entries", loss, k.dailyLossLimitPct)
		k.strategy.Ops().Pause("daily loss limit exceeded")
	}
}

// checkMaxDrawdown tracks peak equity and returns whether the drawdown from
// peak breaches the limit.
func (k *KillSwitch) checkMaxDrawdown(equity float64) (bool, float64) {
	if k.maxDrawdownPct <= 0 {
		return false, 0
	}

	k.mu.Lock()
	if equity > k.peakEquity {
		k.peakEquity = equity
	}
	peak := k.peakEquity
	k.mu.Unlock()

	if peak <= 0 {
		return false, 0
	}
	dd := (peak - equity) / peak * 100
	return dd >= k.maxDrawdownPct, dd
}

// checkDailyLossLimit compares equity against the day's starting equity,
// resetting the baseline at each calendar-day change.
func (k *KillSwitch) checkDailyLossLimit(equity float64) (bool, float64) {
	if k.dailyLossLimitPct <= 0 {
		return false, 0
	}

	k.mu.Lock()
	now := time.Now()
	if k.dayStart.IsZero() || now.YearDay() != k.dayStart.YearDay() || now.Year() != k.dayStart.Year() {
		k.dayStart = now
		k.dayEquity = equity
	}
	base := k.dayEquity
	k.mu.Unlock()

	if base <= 0 {
		return false, 0
	}
	loss := (base - equity) / base * 100
	return loss >= k.dailyLossLimitPct, loss
}

func (k *KillSwitch) persistEquity(equity, available float64) {
	if k.st == nil {
		return
	}
	snap := &store.EquitySnapshot{Time: time.Now(), Equity: equity, Available: available}
	if err := k.st.Equity().Insert(snap); err != nil {
		logger.Warnf("[KillSwitch] failed to persist equity snapshot: %v", err)
	}
}
