package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionState is the lifecycle state of a position.
type PositionState string

const (
	// StateMonitoring means the position is held and price is being watched.
	StateMonitoring PositionState = "monitoring"
	// StateSelling means a sell for this position is in flight. It also acts
	// as the mutual-exclusion flag: a position never has two sells at once.
	StateSelling PositionState = "selling"
	// StateClosed means all configured tiers executed or nothing remains.
	StateClosed PositionState = "closed"
	// StateAbandoned means the position was administratively terminated
	// (max hold duration exceeded or shutdown liquidation).
	StateAbandoned PositionState = "abandoned"
)

// validTransitions defines the allowed lifecycle transitions.
var validTransitions = map[PositionState][]PositionState{
	StateMonitoring: {StateSelling, StateClosed, StateAbandoned},
	StateSelling:    {StateMonitoring, StateClosed, StateAbandoned},
	StateClosed:     {},
	StateAbandoned:  {},
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to PositionState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends monitoring.
func (s PositionState) Terminal() bool {
	return s == StateClosed || s == StateAbandoned
}

// amountTolerance absorbs decimal rounding when comparing amounts to zero
// and when checking the sold+remaining accounting invariant.
var amountTolerance = decimal.New(1, -9)

// Position is an open or closing holding of one asset acquired through one
// entry trade. It is owned exclusively by its monitoring task; concurrent
// readers receive copies via Snapshot.
type Position struct {
	Asset       Asset           `json:"asset"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	EntryAmount decimal.Decimal `json:"entry_amount"`
	Remaining   decimal.Decimal `json:"remaining"`
	Sold        decimal.Decimal `json:"sold"`

	// TiersCompleted holds executed tier indices in ascending order.
	// A tier, once recorded here, is never executed again.
	TiersCompleted []int `json:"tiers_completed"`

	State            PositionState `json:"state"`
	CreatedAt        time.Time     `json:"created_at"`
	LastPriceCheckAt time.Time     `json:"last_price_check_at"`
}

// NewPosition constructs a position from a confirmed entry trade. Price and
// amount come from the trade receipt, never from estimates.
func NewPosition(asset Asset, entryPrice, entryAmount decimal.Decimal, createdAt time.Time) (*Position, error) {
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}
	if entryAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry amount must be greater than zero")
	}

	return &Position{
		Asset:       asset,
		EntryPrice:  entryPrice,
		EntryAmount: entryAmount,
		Remaining:   entryAmount,
		Sold:        decimal.Zero,
		State:       StateMonitoring,
		CreatedAt:   createdAt,
	}, nil
}

// Transition moves the position to the given state, rejecting moves the
// lifecycle does not allow.
func (p *Position) Transition(to PositionState) error {
	if !CanTransition(p.State, to) {
		return errors.Errorf("invalid position transition %s -> %s for %s", p.State, to, p.Asset.String())
	}
	p.State = to
	return nil
}

// TierCompleted reports whether the tier index was already executed.
func (p *Position) TierCompleted(tier int) bool {
	for _, done := range p.TiersCompleted {
		if done == tier {
			return true
		}
	}
	return false
}

// NextTier returns the lowest uncompleted tier whose profit threshold the
// multiplier meets. Only one tier triggers per evaluation even when the
// price jumped past several thresholds; the next cycle evaluates the next
// tier against the already-advanced state, so tiers fire in order.
func (p *Position) NextTier(multiplier decimal.Decimal, tiers []TierRule) (int, bool) {
	for i, tier := range tiers {
		if p.TierCompleted(i) {
			continue
		}
		if multiplier.GreaterThanOrEqual(tier.ProfitMultiplier) {
			return i, true
		}
		return 0, false
	}
	return 0, false
}

// ApplyFill records a confirmed partial sell for the given tier: remaining
// decreases, sold increases and the tier is marked complete, atomically from
// the owner's point of view. Tiers must complete in ascending order and at
// most once each.
func (p *Position) ApplyFill(tier int, amount decimal.Decimal) error {
	if tier < 0 {
		return errors.Errorf("negative tier index %d", tier)
	}
	if p.TierCompleted(tier) {
		return errors.Errorf("tier %d already completed for %s", tier, p.Asset.String())
	}
	if len(p.TiersCompleted) > 0 && p.TiersCompleted[len(p.TiersCompleted)-1] > tier {
		return errors.Errorf("tier %d would complete out of order for %s", tier, p.Asset.String())
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("fill amount must be greater than zero")
	}
	if amount.GreaterThan(p.Remaining.Add(amountTolerance)) {
		return errors.Errorf("fill amount %s exceeds remaining %s for %s", amount.String(), p.Remaining.String(), p.Asset.String())
	}

	p.Remaining = p.Remaining.Sub(amount)
	if p.Remaining.LessThan(decimal.Zero) {
		p.Remaining = decimal.Zero
	}
	p.Sold = p.EntryAmount.Sub(p.Remaining)
	p.TiersCompleted = append(p.TiersCompleted, tier)

	return p.CheckInvariant()
}

// CheckInvariant verifies sold + remaining == entry within rounding tolerance.
func (p *Position) CheckInvariant() error {
	diff := p.Sold.Add(p.Remaining).Sub(p.EntryAmount).Abs()
	if diff.GreaterThan(amountTolerance) {
		return errors.Errorf("position accounting broken for %s: sold %s + remaining %s != entry %s",
			p.Asset.String(), p.Sold.String(), p.Remaining.String(), p.EntryAmount.String())
	}
	return nil
}

// Exhausted reports whether every configured tier executed or nothing
// tradeable remains.
func (p *Position) Exhausted(tiers []TierRule) bool {
	if p.Remaining.LessThanOrEqual(amountTolerance) {
		return true
	}
	return len(tiers) > 0 && len(p.TiersCompleted) >= len(tiers)
}

// Age returns how long the position has been held.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Snapshot returns a copy safe to hand to other goroutines.
func (p *Position) Snapshot() Position {
	cp := *p
	cp.TiersCompleted = append([]int(nil), p.TiersCompleted...)
	return cp
}
