package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hedgegrid/config"
	"hedgegrid/grid"
	"hedgegrid/logger"
	"hedgegrid/market"
	"hedgegrid/store"
)

// Strategy is the shell around the per-bar pipeline:
//
//	regime -> grid -> policy -> funding -> diff -> execute
//
// The pipeline runs synchronously, one bar at a time. Operational state
// shared with the control API and kill-switch lives in OpsState; everything
// else here is touched only from the bar path.
type Strategy struct {
	id  string
	cfg *config.StrategyConfig

	venue Venue
	st    *store.Store // optional persistence, nil in tests

	detector *market.RegimeDetector
	engine   *grid.Engine
	policy   *grid.Policy
	funding  *grid.FundingGuard
	rec      *Reconciler
	exec     *Executor
	ops      *OpsState

	lastCenter decimal.Decimal
	barCount   int64
}

// NewStrategy wires the full pipeline. The store may be nil to run without
// persistence.
func NewStrategy(cfg *config.StrategyConfig, venue Venue, st *store.Store) (*Strategy, error) {
	if venue == nil {
		return nil, fmt.Errorf("venue is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}

	detector, err := market.NewRegimeDetector(cfg.EMAFastPeriod, cfg.EMASlowPeriod, cfg.ADXPeriod, cfg.ATRPeriod, cfg.HysteresisBps)
	if err != nil {
		return nil, err
	}
	engine, err := grid.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	ops := NewOpsState()
	return &Strategy{
		id:       uuid.NewString(),
		cfg:      cfg,
		venue:    venue,
		st:       st,
		detector: detector,
		engine:   engine,
		policy:   grid.NewPolicy(cfg),
		funding:  grid.NewFundingGuard(cfg),
		rec:      NewReconciler(cfg.Tag),
		exec:     NewExecutor(venue, cfg.Symbol, ops, cfg.UseMakerOnly),
		ops:      ops,
	}, nil
}

// ID returns the strategy instance id.
func (s *Strategy) ID() string { return s.id }

// Symbol returns the traded symbol.
func (s *Strategy) Symbol() string { return s.cfg.Symbol }

// Ops exposes the shared operational state for the control surface.
func (s *Strategy) Ops() *OpsState { return s.ops }

// Venue returns the execution venue.
func (s *Strategy) Venue() Venue { return s.venue }

// OnFundingUpdate forwards the latest funding rate and next funding
// timestamp to the funding guard. Called from the live runner's polling
// loop before the next bar is processed.
func (s *Strategy) OnFundingUpdate(rate float64, nextFunding time.Time) {
	s.funding.OnFundingUpdate(rate, nextFunding)
}

// OnBar runs one full pipeline pass. Errors abort this bar only; the caller
// logs and keeps feeding bars.
func (s *Strategy) OnBar(ctx context.Context, b market.Bar) error {
	s.barCount++
	regime := s.detector.Update(b)

	if !s.detector.Warm() {
		logger.Debugf("[%s] bar %d: indicators warming up, no trading yet", s.cfg.Tag, s.barCount)
		return nil
	}

	mid := decimal.NewFromFloat(b.Close)
	center := s.lastCenter
	if s.engine.RecenterNeeded(mid, center) {
		logger.Infof("[%s] recentering grid: %s -> %s", s.cfg.Tag, center, mid)
		center = mid
	}

	long, short, err := s.engine.BuildLadders(center)
	if err != nil {
		return fmt.Errorf("build ladders at center %s: %w", center, err)
	}
	long, short = s.policy.ShapeLadders(long, short, regime)
	long, short = s.funding.AdjustLadders(long, short, b.Time)

	// The throttle shapes the desired book before diffing, not at
	// submission: live orders already sized by it must diff clean, or every
	// bar would churn the whole book while throttled.
	if th := s.ops.Throttle(); !th.Equal(decimal.New(1, 0)) {
		long, short = long.ScaleQty(th), short.ScaleQty(th)
	}

	live, err := s.venue.OpenOrders(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("query open orders: %w", err)
	}

	d := s.rec.Diff(long, short, live)
	rep := s.exec.Execute(ctx, d)

	s.lastCenter = center
	s.ops.PublishLadders(center, regime, long, short)

	// Publish the post-execution order book when the diff changed anything.
	if !d.Empty() {
		if refreshed, err := s.venue.OpenOrders(ctx, s.cfg.Symbol); err == nil {
			live = refreshed
		}
	}
	s.ops.PublishOrders(live)

	if !d.Empty() {
		logger.Infof("[%s] bar %d %s center=%s regime=%s spread=%.1fbps: -%d ~%d +%d (blocked %d, failed %d)",
			s.cfg.Tag, s.barCount, s.cfg.Symbol, center, regime, s.detector.SpreadBps(),
			rep.Canceled, rep.Replaced, rep.Created, rep.Blocked, rep.Failed)
	}

	s.recordCycle(b, regime, center, d, rep)
	s.recordOrders(b.Time, d)
	return nil
}

func (s *Strategy) recordCycle(b market.Bar, regime market.Regime, center decimal.Decimal, d DiffResult, rep ExecReport) {
	if s.st == nil {
		return
	}
	rec := &store.CycleRecord{
		Time:      b.Time,
		Symbol:    s.cfg.Symbol,
		Regime:    string(regime),
		Center:    center.String(),
		SpreadBps: s.detector.SpreadBps(),
		Cancels:   len(d.Cancels),
		Replaces:  len(d.Replaces),
		Creates:   len(d.Adds),
		Blocked:   rep.Blocked,
		Failed:    rep.Failed,
	}
	if err := s.st.Cycle().Insert(rec); err != nil {
		logger.Warnf("[%s] failed to persist cycle record: %v", s.cfg.Tag, err)
	}
}

// recordOrders appends the dispatched intents to the audit log. A REPLACE is
// logged under its replacement id so the audit trail follows the live order.
func (s *Strategy) recordOrders(t time.Time, d DiffResult) {
	if s.st == nil || d.Empty() {
		return
	}
	audit := func(action, clientID string, in OrderIntent) {
		rec := &store.OrderRecord{
			Time:     t,
			ClientID: clientID,
			Symbol:   s.cfg.Symbol,
			Side:     string(in.Side),
			Action:   action,
		}
		if in.Qty.IsPositive() {
			rec.Price = in.Price.String()
			rec.Qty = in.Qty.String()
		}
		if err := s.st.Orders().Insert(rec); err != nil {
			logger.Warnf("[%s] failed to persist order audit: %v", s.cfg.Tag, err)
		}
	}
	for _, in := range d.Cancels {
		audit("CANCEL", in.ClientID, in)
	}
	for _, in := range d.Replaces {
		audit("REPLACE", in.ReplaceID, in)
	}
	for _, in := range d.Adds {
		audit("CREATE", in.ClientID, in)
	}
}

// Flatten cancels this strategy's open orders on one side and market-closes
// that side's position, bypassing the pause gate. A concurrent call while a
// flatten is already running is a no-op reporting FlattenAlreadyInProgress.
func (s *Strategy) Flatten(ctx context.Context, side grid.Side) (FlattenStatus, error) {
	if !s.ops.beginFlatten() {
		logger.Warnf("[%s] flatten %s requested while another flatten is in flight", s.cfg.Tag, side)
		return FlattenAlreadyInProgress, nil
	}
	defer s.ops.endFlatten()

	return FlattenStarted, s.flattenSide(ctx, side, uuid.NewString())
}

// FlattenAll flattens both sides under a single flatten claim.
func (s *Strategy) FlattenAll(ctx context.Context) (FlattenStatus, error) {
	if !s.ops.beginFlatten() {
		logger.Warnf("[%s] flatten-all requested while another flatten is in flight", s.cfg.Tag)
		return FlattenAlreadyInProgress, nil
	}
	defer s.ops.endFlatten()

	opID := uuid.NewString()
	if err := s.flattenSide(ctx, grid.SideLong, opID); err != nil {
		return FlattenStarted, err
	}
	return FlattenStarted, s.flattenSide(ctx, grid.SideShort, opID)
}

func (s *Strategy) flattenSide(ctx context.Context, side grid.Side, opID string) error {
	logger.Warnf("[%s] FLATTEN %s (op %s)", s.cfg.Tag, side, opID)

	live, err := s.venue.OpenOrders(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("flatten %s: query open orders: %w", side, err)
	}
	for _, o := range live {
		id, err := ParseOrderID(o.ClientID)
		if err != nil || id.Strategy != s.cfg.Tag || id.Side != side {
			continue
		}
		if err := s.venue.CancelOrder(ctx, s.cfg.Symbol, o.ClientID); err != nil && !errors.Is(err, ErrOrderNotFound) {
			logger.Errorf("[%s] flatten %s: cancel %s failed: %v", s.cfg.Tag, side, o.ClientID, err)
		}
	}

	pos, err := s.venue.Position(ctx, s.cfg.Symbol, side)
	if err != nil {
		return fmt.Errorf("flatten %s: query position: %w", side, err)
	}
	if pos == nil || !pos.Qty.IsPositive() {
		logger.Infof("[%s] flatten %s: no position to close (op %s)", s.cfg.Tag, side, opID)
		return nil
	}
	if err := s.venue.ClosePosition(ctx, s.cfg.Symbol, side); err != nil {
		return fmt.Errorf("flatten %s: close position: %w", side, err)
	}
	logger.Warnf("[%s] flatten %s: closed %s @ market (op %s)", s.cfg.Tag, side, pos.Qty, opID)
	return nil
}
