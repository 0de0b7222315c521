package trader

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hedgegrid/grid"
	"hedgegrid/market"
)

// FlattenStatus distinguishes a flatten that this call started from one that
// was already running when the call arrived.
type FlattenStatus string

const (
	FlattenStarted           FlattenStatus = "started"
	FlattenAlreadyInProgress FlattenStatus = "already_in_progress"
)

// RungSnapshot is the read-only view of one rung for reporting.
type RungSnapshot struct {
	Side  grid.Side `json:"side"`
	Level int       `json:"level"`
	Price string    `json:"price"`
	Qty   string    `json:"qty"`
}

// LadderSnapshot is the read-only view of the last published grid.
type LadderSnapshot struct {
	Center    string         `json:"center"`
	Regime    market.Regime  `json:"regime"`
	Long      []RungSnapshot `json:"long"`
	Short     []RungSnapshot `json:"short"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// OpsState is the operational state shared between the per-bar pipeline and
// external control contexts (API handlers, kill-switch monitor). Every field
// lives behind the single mutex; nothing is exposed by reference.
type OpsState struct {
	mu sync.Mutex

	throttle    decimal.Decimal
	paused      bool
	pauseReason string
	flattening  bool

	ladders LadderSnapshot
	orders  []LiveOrder
}

// NewOpsState returns operational state with throttle 1.0, unpaused.
func NewOpsState() *OpsState {
	return &OpsState{throttle: decimal.New(1, 0)}
}

// SetThrottle updates the global quantity multiplier for newly created
// orders. Values outside [0, 1] are rejected.
func (s *OpsState) SetThrottle(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("throttle must be in [0, 1], got %.4f", v)
	}
	s.mu.Lock()
	s.throttle = decimal.NewFromFloat(v)
	s.mu.Unlock()
	return nil
}

// Throttle returns the current quantity multiplier.
func (s *OpsState) Throttle() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.throttle
}

/// Pause trips the circuit breaker: new order creation is blocked until
// Resume. Cancels and flatten are unaffected.
func (s *OpsState) Pause(reason string) {
	s.mu.Lock()
	s.paused = true
	s.pauseReason = reason
	s.mu.Unlock()
}

// Resume clears the circuit breaker.
func (s *OpsState) Resume() {
	s.mu.Lock()
	s.paused = false
	s.pauseReason = ""
	s.mu.Unlock()
}

// Paused returns the circuit-breaker flag and the reason it was set.
func (s *OpsState) Paused() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, s.pauseReason
}

// beginFlatten attempts to claim the flatten-in-progress flag. It returns
// false when another flatten is already running; the caller must report
// FlattenAlreadyInProgress and do nothing.
func (s *OpsState) beginFlatten() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flattening {
		return false
	}
	s.flattening = true
	return true
}

func (s *OpsState) endFlatten() {
	s.mu.Lock()
	s.flattening = false
	s.mu.Unlock()
}

// Flattening reports whether a flatten is currently in flight.
func (s *OpsState) Flattening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flattening
}

// PublishLadders stores the per-bar grid snapshot for reporting. Called by
// the pipeline once its transient ladders are final.
func (s *OpsState) PublishLadders(center decimal.Decimal, regime market.Regime, long, short grid.Ladder) {
	snap := LadderSnapshot{
		Center:    center.String(),
		Regime:    regime,
		Long:      rungSnapshots(long),
		Short:     rungSnapshots(short),
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.ladders = snap
	s.mu.Unlock()
}

// PublishOrders stores the latest authoritative open-order set.
func (s *OpsState) PublishOrders(orders []LiveOrder) {
	cp := make([]LiveOrder, len(orders))
	copy(cp, orders)
	s.mu.Lock()
	s.orders = cp
	s.mu.Unlock()
}

// Ladders returns a copy of the last published grid snapshot.
func (s *OpsState) Ladders() LadderSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ladders
}

// Orders returns a copy of the last published open-order set.
func (s *OpsState) Orders() []LiveOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]LiveOrder, len(s.orders))
	copy(cp, s.orders)
	return cp
}

func rungSnapshots(l grid.Ladder) []RungSnapshot {
	out := make([]RungSnapshot, 0, l.Len())
	for _, r := range l.Rungs() {
		out = append(out, RungSnapshot{
			Side:  r.Side,
			Level: r.Level,
			Price: r.Price.String(),
			Qty:   r.Qty.String(),
		})
	}
	return out
}
