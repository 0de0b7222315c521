package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// StrategyConfig carries every tunable of the grid strategy. It is loaded
// once at startup, validated, and handed to the pipeline as an immutable
// record; the core packages never re-validate individual fields.
type StrategyConfig struct {
	// Identity
	Symbol string `json:"symbol"` // e.g. "BTCUSDT"
	Tag    string `json:"tag"`    // strategy tag embedded in client order ids, e.g. "HG1"

	// Grid parameters
	GridStepBps float64 `json:"grid_step_bps"` // ladder spacing in basis points of center
	LevelsLong  int     `json:"levels_long"`   // rungs below center
	LevelsShort int     `json:"levels_short"`  // rungs above center
	BaseQty     float64 `json:"base_qty"`      // level-1 quantity
	QtyScale    float64 `json:"qty_scale"`     // geometric per-level quantity multiplier

	// Exit parameters
	TPSteps int `json:"tp_steps"` // take-profit distance in grid steps
	SLSteps int `json:"sl_steps"` // stop-loss distance in grid steps

	// Rebalance parameters
	RecenterTriggerBps float64 `json:"recenter_trigger_bps"`
	MaxInventoryQuote  float64 `json:"max_inventory_quote"` // per-side notional cap in quote currency

	// Regime parameters
	EMAFastPeriod int     `json:"ema_fast_period"`
	EMASlowPeriod int     `json:"ema_slow_period"`
	ADXPeriod     int     `json:"adx_period"`
	ATRPeriod     int     `json:"atr_period"`
	HysteresisBps float64 `json:"hysteresis_bps"`

	// Placement policy parameters
	CounterLevels   int     `json:"counter_levels"`    // rungs kept on the counter-trend side
	CounterQtyScale float64 `json:"counter_qty_scale"` // quantity multiplier on the counter-trend side

	// Funding guard parameters
	FundingWindowMinutes int     `json:"funding_window_minutes"`
	MaxFundingCostBps    float64 `json:"max_funding_cost_bps"`

	// Execution
	UseMakerOnly bool `json:"use_maker_only"` // post-only limit orders

	// Kill-switch limits (0 disables the corresponding check)
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
	DailyLossLimitPct float64 `json:"daily_loss_limit_pct"`
}

// DefaultStrategyConfig returns a conservative baseline configuration.
func DefaultStrategyConfig() *StrategyConfig {
	return &StrategyConfig{
		Symbol:               "BTCUSDT",
		Tag:                  "HG1",
		GridStepBps:          25.0,
		LevelsLong:           5,
		LevelsShort:          5,
		BaseQty:              0.1,
		QtyScale:             1.2,
		TPSteps:              2,
		SLSteps:              3,
		RecenterTriggerBps:   100.0,
		MaxInventoryQuote:    250000,
		EMAFastPeriod:        20,
		EMASlowPeriod:        50,
		ADXPeriod:            14,
		ATRPeriod:            14,
		HysteresisBps:        10.0,
		CounterLevels:        2,
		CounterQtyScale:      0.5,
		FundingWindowMinutes: 120,
		MaxFundingCostBps:    2.0,
		UseMakerOnly:         true,
		MaxDrawdownPct:       15.0,
		DailyLossLimitPct:    5.0,
	}
}

// LoadStrategyConfig reads the strategy config file, falling back to
// defaults when the file does not exist.
func LoadStrategyConfig(path string) (*StrategyConfig, error) {
	cfg := DefaultStrategyConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every parameter group and returns a human-readable error
// naming the offending parameter. Strategy construction refuses invalid
// configs outright; nothing is silently clamped.
func (c *StrategyConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if c.Tag == "" {
		return fmt.Errorf("tag must not be empty (it is embedded in client order ids)")
	}

	// Grid
	if c.GridStepBps <= 0 {
		return fmt.Errorf("grid_step_bps must be positive, got %.2f", c.GridStepBps)
	}
	if c.LevelsLong <= 0 {
		return fmt.Errorf("levels_long must be positive, got %d", c.LevelsLong)
	}
	if c.LevelsShort <= 0 {
		return fmt.Errorf("levels_short must be positive, got %d", c.LevelsShort)
	}
	if c.BaseQty <= 0 {
		return fmt.Errorf("base_qty must be positive, got %.6f", c.BaseQty)
	}
	if c.QtyScale <= 0 || c.QtyScale > 3 {
		return fmt.Errorf("qty_scale must be in (0, 3], got %.2f", c.QtyScale)
	}

	// Exits
	if c.TPSteps < 1 {
		return fmt.Errorf("tp_steps must be >= 1, got %d", c.TPSteps)
	}
	if c.SLSteps < 1 {
		return fmt.Errorf("sl_steps must be >= 1, got %d", c.SLSteps)
	}

	// Rebalance
	if c.RecenterTriggerBps <= 0 {
		return fmt.Errorf("recenter_trigger_bps must be positive, got %.2f", c.RecenterTriggerBps)
	}
	if c.MaxInventoryQuote <= 0 {
		return fmt.Errorf("max_inventory_quote must be positive, got %.2f", c.MaxInventoryQuote)
	}

	// Regime
	if c.EMAFastPeriod <= 0 || c.EMASlowPeriod <= 0 {
		return fmt.Errorf("ema periods must be positive, got fast=%d slow=%d", c.EMAFastPeriod, c.EMASlowPeriod)
	}
	if c.EMAFastPeriod >= c.EMASlowPeriod {
		return fmt.Errorf("ema_fast_period (%d) must be smaller than ema_slow_period (%d)", c.EMAFastPeriod, c.EMASlowPeriod)
	}
	if c.ADXPeriod < 5 {
		return fmt.Errorf("adx_period must be >= 5, got %d", c.ADXPeriod)
	}
	if c.ATRPeriod < 5 {
		return fmt.Errorf("atr_period must be >= 5, got %d", c.ATRPeriod)
	}
	if c.HysteresisBps < 0 {
		return fmt.Errorf("hysteresis_bps must be >= 0, got %.2f", c.HysteresisBps)
	}

	// Placement policy
	if c.CounterLevels < 0 || c.CounterLevels > 20 {
		return fmt.Errorf("counter_levels must be in [0, 20], got %d", c.CounterLevels)
	}
	if c.CounterQtyScale < 0 || c.CounterQtyScale > 1 {
		return fmt.Errorf("counter_qty_scale must be in [0, 1], got %.2f", c.CounterQtyScale)
	}

	// Funding guard
	if c.FundingWindowMinutes < 60 || c.FundingWindowMinutes > 1440 {
		return fmt.Errorf("funding_window_minutes must be in [60, 1440], got %d", c.FundingWindowMinutes)
	}
	if c.MaxFundingCostBps < 0 || c.MaxFundingCostBps > 100 {
		return fmt.Errorf("max_funding_cost_bps must be in [0, 100], got %.2f", c.MaxFundingCostBps)
	}

	// Kill-switch
	if c.MaxDrawdownPct < 0 {
		return fmt.Errorf("max_drawdown_pct must be >= 0, got %.2f", c.MaxDrawdownPct)
	}
	if c.DailyLossLimitPct < 0 {
		return fmt.Errorf("daily_loss_limit_pct must be >= 0, got %.2f", c.DailyLossLimitPct)
	}

	return nil
}
