// Package breaker implements the process-wide circuit breaker that gates all
// trade execution. Every entry and exit attempt consults CanTrade first and
// reports its outcome through RecordTrade; all state lives behind one mutex
// so concurrent positions cannot corrupt the rolling statistics or consume
// the same half-open probe.
package breaker

import (
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// Limits configures the three independent opening thresholds and the
// cooldown applied once the breaker opens.
type Limits struct {
	// MaxDailyLoss opens the breaker once accumulated losses for the day
	// exceed it (quote currency units).
	MaxDailyLoss decimal.Decimal
	// MaxSingleLoss opens the breaker when one trade loses more than it.
	MaxSingleLoss decimal.Decimal
	// MaxConsecutiveFailures opens the breaker when that many trades fail
	// in a row.
	MaxConsecutiveFailures int
	// Cooldown is how long trading stays blocked before a half-open probe
	// is permitted.
	Cooldown time.Duration
}

// Decision is the answer to "may I trade now".
type Decision struct {
	Allowed bool
	// Probe marks the single half-open trial trade after a cooldown.
	Probe  bool
	Reason string
}

// Snapshot is a read-only copy of the breaker state.
type Snapshot struct {
	Open                bool            `json:"open"`
	Reason              string          `json:"reason,omitempty"`
	DailyLoss           decimal.Decimal `json:"daily_loss"`
	DailyTradeCount     int             `json:"daily_trade_count"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	OpenedAt            time.Time       `json:"opened_at,omitzero"`
	CooldownUntil       time.Time       `json:"cooldown_until,omitzero"`
}

// StateChange describes an open or close transition.
type StateChange struct {
	Opened bool
	Reason string
	At     time.Time
}

// Breaker is the process-wide trading gate. Create one at startup and share
// it between the snipe coordinator and every position monitor.
type Breaker struct {
	limits Limits
	logger *zap.Logger
	now    func() time.Time

	mu                  sync.Mutex
	open                bool
	reason              string
	openedAt            time.Time
	cooldownUntil       time.Time
	probeInFlight       bool
	dailyLoss           decimal.Decimal
	dailyTradeCount     int
	consecutiveFailures int
	day                 time.Time // midnight UTC of the current accounting day

	nextCallbackID int
	callbacks      map[int]func(StateChange)
}

// New creates a closed breaker with zeroed statistics.
func New(limits Limits, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		limits:    limits,
		logger:    logger,
		now:       time.Now,
		dailyLoss: decimal.Zero,
		day:       midnightUTC(time.Now()),
		callbacks: make(map[int]func(StateChange)),
	}
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// rolloverLocked resets the daily counters at the UTC day boundary. The
// open/closed state and the failure streak survive rollover.
func (b *Breaker) rolloverLocked(now time.Time) {
	day := midnightUTC(now)
	if day.After(b.day) {
		b.day = day
		b.dailyLoss = decimal.Zero
		b.dailyTradeCount = 0
	}
}

// CanTrade decides whether a trade may proceed right now. While open and
// cooling down it always denies. Once the cooldown has elapsed it grants
// exactly one half-open probe; further callers are denied until that probe's
// outcome arrives via RecordTrade.
func (b *Breaker) CanTrade() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.rolloverLocked(now)

	if !b.open {
		return Decision{Allowed: true}
	}

	if now.Before(b.cooldownUntil) {
		return Decision{Allowed: false, Reason: b.reason}
	}

	if b.probeInFlight {
		return Decision{Allowed: false, Reason: "half-open probe already in flight"}
	}

	b.probeInFlight = true
	return Decision{Allowed: true, Probe: true}
}

// RecordTrade folds one trade outcome into the rolling statistics and
// recomputes the open/closed state. Call it exactly once per attempted
// trade, after retries are exhausted, not once per retry.
func (b *Breaker) RecordTrade(outcome domain.TradeOutcome) {
	b.mu.Lock()

	now := b.now()
	b.rolloverLocked(now)

	b.dailyTradeCount++

	var singleLoss decimal.Decimal
	if outcome.ProfitLoss.IsNegative() {
		singleLoss = outcome.ProfitLoss.Neg()
		b.dailyLoss = b.dailyLoss.Add(singleLoss)
	}

	if outcome.Success {
		b.consecutiveFailures = 0
	} else {
		b.consecutiveFailures++
	}

	var change *StateChange

	if b.open && b.probeInFlight {
		b.probeInFlight = false
		if outcome.Success {
			change = b.closeLocked(now)
		} else {
			// failed probe: fresh cooldown, stays open
			b.cooldownUntil = now.Add(b.limits.Cooldown)
		}
	}

	if !b.open {
		if reason, breached := b.breachedLocked(singleLoss); breached {
			change = b.openLocked(now, reason)
		}
	}

	b.mu.Unlock()

	if change != nil {
		b.fire(*change)
	}
}

// breachedLocked checks the three opening thresholds. Any single breach
// opens the breaker.
func (b *Breaker) breachedLocked(singleLoss decimal.Decimal) (string, bool) {
	if b.limits.MaxSingleLoss.IsPositive() && singleLoss.GreaterThan(b.limits.MaxSingleLoss) {
		return "single trade loss " + singleLoss.String() + " exceeds limit " + b.limits.MaxSingleLoss.String(), true
	}
	if b.limits.MaxDailyLoss.IsPositive() && b.dailyLoss.GreaterThan(b.limits.MaxDailyLoss) {
		return "daily loss " + b.dailyLoss.String() + " exceeds limit " + b.limits.MaxDailyLoss.String(), true
	}
	if b.limits.MaxConsecutiveFailures > 0 && b.consecutiveFailures >= b.limits.MaxConsecutiveFailures {
		return "consecutive failures reached limit " + strconv.Itoa(b.limits.MaxConsecutiveFailures), true
	}
	return "", false
}

func (b *Breaker) openLocked(now time.Time, reason string) *StateChange {
	b.open = true
	b.reason = reason
	b.openedAt = now
	b.cooldownUntil = now.Add(b.limits.Cooldown)
	b.probeInFlight = false

	b.logger.Warn("circuit breaker opened",
		zap.String("reason", reason),
		zap.Time("cooldown_until", b.cooldownUntil))

	return &StateChange{Opened: true, Reason: reason, At: now}
}

func (b *Breaker) closeLocked(now time.Time) *StateChange {
	b.open = false
	b.reason = ""
	b.openedAt = time.Time{}
	b.cooldownUntil = time.Time{}

	b.logger.Info("circuit breaker closed")

	return &StateChange{Opened: false, At: now}
}

// Status returns a read-only snapshot of the breaker state.
func (b *Breaker) Status() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rolloverLocked(b.now())

	return Snapshot{
		Open:                b.open,
		Reason:              b.reason,
		DailyLoss:           b.dailyLoss,
		DailyTradeCount:     b.dailyTradeCount,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
		CooldownUntil:       b.cooldownUntil,
	}
}

// Reset clears all statistics and closes the breaker. Administrative only:
// nothing resets the open state automatically except a successful probe.
func (b *Breaker) Reset() {
	b.mu.Lock()

	wasOpen := b.open
	now := b.now()
	b.open = false
	b.reason = ""
	b.openedAt = time.Time{}
	b.cooldownUntil = time.Time{}
	b.probeInFlight = false
	b.dailyLoss = decimal.Zero
	b.dailyTradeCount = 0
	b.consecutiveFailures = 0

	b.mu.Unlock()

	b.logger.Info("circuit breaker reset")
	if wasOpen {
		b.fire(StateChange{Opened: false, Reason: "manual reset", At: now})
	}
}

// OnStateChange registers a callback fired on every open/close transition.
// The returned id removes it via RemoveStateChangeCallback. Callbacks run
// outside the breaker lock; an opened transition fires exactly once per open.
func (b *Breaker) OnStateChange(fn func(StateChange)) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextCallbackID++
	id := b.nextCallbackID
	b.callbacks[id] = fn
	return id
}

// RemoveStateChangeCallback unregisters a callback by id.
func (b *Breaker) RemoveStateChangeCallback(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.callbacks, id)
}

func (b *Breaker) fire(change StateChange) {
	b.mu.Lock()
	fns := make([]func(StateChange), 0, len(b.callbacks))
	for _, fn := range b.callbacks {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
