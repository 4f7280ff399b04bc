// Package manager runs the exit side of the engine: one monitoring task per
// open position, tier evaluation, forced liquidation on max hold and on
// shutdown, and restart reconciliation against venue balances.
package manager

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sniper/internal/domain"
	"github.com/vadiminshakov/sniper/internal/metrics"
	"github.com/vadiminshakov/sniper/internal/services/breaker"
	"github.com/vadiminshakov/sniper/internal/services/executor"
	"github.com/vadiminshakov/sniper/internal/services/pricer"
	"github.com/vadiminshakov/sniper/pkg/retrier"
)

// Safety is the trading gate every sell consults. *breaker.Breaker
// implements it.
type Safety interface {
	CanTrade() breaker.Decision
	RecordTrade(outcome domain.TradeOutcome)
}

// Journal persists position snapshots so open positions survive restarts.
type Journal interface {
	Save(p *domain.Position) error
}

// History archives terminal positions and individual trades.
type History interface {
	SavePosition(ctx context.Context, p *domain.Position, realizedPnL decimal.Decimal, closedAt time.Time) error
	SaveTrade(ctx context.Context, o domain.TradeOutcome) error
}

// Alerter pushes operator notifications without blocking.
type Alerter interface {
	NotifyAsync(message string)
}

// Config holds the exit policy shared by all positions.
type Config struct {
	// Tiers are the profit ladder, ascending. Each SellFraction applies to
	// the remaining amount at execution time.
	Tiers []domain.TierRule
	// CheckInterval is the price polling period per position.
	CheckInterval time.Duration
	// MaxHold forces liquidation of positions older than this.
	MaxHold time.Duration
	// MaxSlippage is passed through to sell orders.
	MaxSlippage decimal.Decimal
	// SellRetry governs ordinary tier sells.
	SellRetry retrier.Policy
	// LiquidateRetry governs forced exits; usually more aggressive.
	LiquidateRetry retrier.Policy
}

// Deps are the manager's collaborators. Journal, History and Alerts may be
// nil.
type Deps struct {
	Pricer   pricer.Pricer
	Executor executor.Executor
	Safety   Safety
	Journal  Journal
	History  History
	Alerts   Alerter
	Logger   *zap.Logger
}

// tracked pairs a position with its monitor's lifecycle. The position is
// mutated only under mu.
type tracked struct {
	mu       sync.Mutex
	pos      *domain.Position
	realized decimal.Decimal
	cancel   context.CancelFunc
}

// Manager owns all open positions and their monitoring goroutines.
type Manager struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	mu        sync.Mutex
	positions map[domain.Asset]*tracked
	stopped   bool
	wg        sync.WaitGroup
}

func New(cfg Config, deps Deps) (*Manager, error) {
	if err := domain.ValidateTiers(cfg.Tiers); err != nil {
		return nil, err
	}
	if cfg.CheckInterval <= 0 {
		return nil, errors.New("check interval must be positive")
	}
	if cfg.MaxHold <= 0 {
		return nil, errors.New("max hold duration must be positive")
	}
	if deps.Pricer == nil || deps.Executor == nil || deps.Safety == nil {
		return nil, errors.New("pricer, executor and safety gate are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.SellRetry.MaxAttempts == 0 {
		cfg.SellRetry = retrier.DefaultPolicy("sell")
	}
	if cfg.LiquidateRetry.MaxAttempts == 0 {
		cfg.LiquidateRetry = retrier.AggressivePolicy("liquidate")
	}
	cfg.SellRetry.RetryIf = domain.IsRetryable
	cfg.LiquidateRetry.RetryIf = domain.IsRetryable

	return &Manager{
		cfg:       cfg,
		deps:      deps,
		now:       time.Now,
		positions: make(map[domain.Asset]*tracked),
	}, nil
}

// Register takes ownership of a freshly opened position and starts its
// monitor. At most one position per asset may be open.
func (m *Manager) Register(p *domain.Position) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return errors.New("position manager is stopped")
	}
	if _, exists := m.positions[p.Asset]; exists {
		m.mu.Unlock()
		return errors.Errorf("position already open for %s", p.Asset.String())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &tracked{pos: p, realized: decimal.Zero, cancel: cancel}
	m.positions[p.Asset] = t
	metrics.OpenPositions.Set(float64(len(m.positions)))
	m.wg.Add(1)
	m.mu.Unlock()

	m.journal(p)

	m.deps.Logger.Info("position registered",
		zap.String("asset", p.Asset.String()),
		zap.String("entry_price", p.EntryPrice.String()),
		zap.String("amount", p.EntryAmount.String()))

	go m.monitor(runCtx, t)
	return nil
}

// Has reports whether a position for the asset is currently open.
func (m *Manager) Has(asset domain.Asset) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[asset]
	return ok
}

// ActivePositions returns snapshots of all open positions.
func (m *Manager) ActivePositions() []domain.Position {
	m.mu.Lock()
	ts := make([]*tracked, 0, len(m.positions))
	for _, t := range m.positions {
		ts = append(ts, t)
	}
	m.mu.Unlock()

	out := make([]domain.Position, 0, len(ts))
	for _, t := range ts {
		t.mu.Lock()
		out = append(out, t.pos.Snapshot())
		t.mu.Unlock()
	}
	return out
}

func (m *Manager) monitor(ctx context.Context, t *tracked) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.checkOnce(ctx, t) {
				return
			}
		}
	}
}

// checkOnce runs one monitoring cycle and reports whether the position
// reached a terminal state. The Selling state, not the mutex, is the
// long-hold exclusion: t.mu is released around price fetches and order
// submission so snapshot readers never wait behind a slow venue.
func (m *Manager) checkOnce(ctx context.Context, t *tracked) bool {
	t.mu.Lock()
	if t.pos.State.Terminal() {
		t.mu.Unlock()
		return true
	}
	asset := t.pos.Asset
	entry := t.pos.EntryPrice
	overdue := t.pos.Age(m.now()) >= m.cfg.MaxHold
	t.mu.Unlock()

	if overdue {
		m.liquidate(ctx, t, "max hold duration exceeded")
		return true
	}

	price, err := m.deps.Pricer.GetPrice(ctx, asset)
	if err != nil {
		// no price this cycle: the position is left untouched and the
		// next tick tries again
		metrics.PriceCheckFailures.Inc()
		m.deps.Logger.Debug("price check skipped",
			zap.String("asset", asset.String()),
			zap.Error(err))
		return false
	}

	t.mu.Lock()
	t.pos.LastPriceCheckAt = m.now()

	tier, ok := t.pos.NextTier(price.Div(entry), m.cfg.Tiers)
	if !ok {
		t.mu.Unlock()
		return false
	}

	if err := t.pos.Transition(domain.StateSelling); err != nil {
		terminal := t.pos.State.Terminal()
		t.mu.Unlock()
		m.deps.Logger.Error("cannot begin tier sell", zap.Error(err))
		return terminal
	}
	sellAmount := t.pos.Remaining.Mul(m.cfg.Tiers[tier].SellFraction)
	t.mu.Unlock()

	return m.executeTier(ctx, t, tier, sellAmount)
}

// executeTier sells the tier's fraction of the remaining amount. The
// position is in Selling; no lock is held across the venue call.
func (m *Manager) executeTier(ctx context.Context, t *tracked, tier int, sellAmount decimal.Decimal) bool {
	asset := t.pos.Asset

	decision := m.deps.Safety.CanTrade()
	if !decision.Allowed {
		// back to monitoring; the uncompleted tier is re-evaluated on the
		// next cycle once the breaker permits trading again
		m.deps.Logger.Warn("tier sell blocked by circuit breaker",
			zap.String("asset", asset.String()),
			zap.Int("tier", tier),
			zap.String("reason", decision.Reason))
		t.mu.Lock()
		_ = t.pos.Transition(domain.StateMonitoring)
		t.mu.Unlock()
		return false
	}

	receipt, err := m.sell(ctx, asset, sellAmount, m.cfg.SellRetry)

	outcome := domain.TradeOutcome{
		Asset:     asset,
		Direction: domain.DirectionSell,
		Success:   err == nil,
		Timestamp: m.now(),
	}

	if err != nil {
		m.deps.Safety.RecordTrade(outcome)
		m.saveTrade(outcome)
		metrics.SellsTotal.WithLabelValues("failed").Inc()

		m.deps.Logger.Error("tier sell failed",
			zap.String("asset", asset.String()),
			zap.Int("tier", tier),
			zap.Error(err))

		t.mu.Lock()
		_ = t.pos.Transition(domain.StateMonitoring)
		t.mu.Unlock()
		return false
	}

	t.mu.Lock()
	pnl := receipt.Price.Sub(t.pos.EntryPrice).Mul(receipt.Amount)
	outcome.ProfitLoss = pnl
	t.realized = t.realized.Add(pnl)

	if err := t.pos.ApplyFill(tier, receipt.Amount); err != nil {
		// the fill is real even if bookkeeping rejects it; surface loudly
		m.deps.Logger.Error("fill bookkeeping failed",
			zap.String("asset", asset.String()),
			zap.Error(err))
	}

	exhausted := t.pos.Exhausted(m.cfg.Tiers)
	if exhausted {
		_ = t.pos.Transition(domain.StateClosed)
	} else {
		_ = t.pos.Transition(domain.StateMonitoring)
	}
	snap := t.pos.Snapshot()
	remaining := t.pos.Remaining
	t.mu.Unlock()

	m.deps.Safety.RecordTrade(outcome)
	m.saveTrade(outcome)
	metrics.SellsTotal.WithLabelValues("success").Inc()
	metrics.TierExecutions.WithLabelValues(strconv.Itoa(tier)).Inc()

	m.deps.Logger.Info("tier sold",
		zap.String("asset", asset.String()),
		zap.Int("tier", tier),
		zap.String("price", receipt.Price.String()),
		zap.String("amount", receipt.Amount.String()),
		zap.String("pnl", pnl.String()),
		zap.String("remaining", remaining.String()))

	if exhausted {
		m.finalize(t)
		return true
	}

	m.journal(&snap)
	return false
}

// liquidate sells everything remaining through the same gated path as tier
// sells, then abandons the position. A breaker denial strands the tokens:
// the position is abandoned without a sell and the operator is alerted.
// No lock is held across the venue call.
func (m *Manager) liquidate(ctx context.Context, t *tracked, reason string) {
	t.mu.Lock()
	if t.pos.State.Terminal() {
		t.mu.Unlock()
		return
	}
	if t.pos.State == domain.StateMonitoring {
		_ = t.pos.Transition(domain.StateSelling)
	}
	asset := t.pos.Asset
	entry := t.pos.EntryPrice
	remaining := t.pos.Remaining
	t.mu.Unlock()

	m.deps.Logger.Warn("forcing liquidation",
		zap.String("asset", asset.String()),
		zap.String("reason", reason),
		zap.String("remaining", remaining.String()))

	if remaining.GreaterThan(decimal.Zero) {
		if decision := m.deps.Safety.CanTrade(); !decision.Allowed {
			m.deps.Logger.Error("forced liquidation blocked, tokens stranded",
				zap.String("asset", asset.String()),
				zap.String("reason", decision.Reason))
			m.alert("liquidation BLOCKED for " + asset.String() + " (" + decision.Reason + "), tokens may be stranded")
		} else {
			receipt, err := m.sell(ctx, asset, remaining, m.cfg.LiquidateRetry)

			outcome := domain.TradeOutcome{
				Asset:     asset,
				Direction: domain.DirectionSell,
				Success:   err == nil,
				Timestamp: m.now(),
			}

			if err != nil {
				m.deps.Logger.Error("forced liquidation failed, tokens stranded",
					zap.String("asset", asset.String()),
					zap.Error(err))
				m.alert("liquidation FAILED for " + asset.String() + " (" + reason + "), tokens may be stranded")
			} else {
				pnl := receipt.Price.Sub(entry).Mul(receipt.Amount)
				outcome.ProfitLoss = pnl
				t.mu.Lock()
				t.realized = t.realized.Add(pnl)
				t.pos.Remaining = t.pos.Remaining.Sub(receipt.Amount)
				if t.pos.Remaining.IsNegative() {
					t.pos.Remaining = decimal.Zero
				}
				t.pos.Sold = t.pos.EntryAmount.Sub(t.pos.Remaining)
				t.mu.Unlock()
			}

			m.deps.Safety.RecordTrade(outcome)
			m.saveTrade(outcome)
		}
	}

	t.mu.Lock()
	_ = t.pos.Transition(domain.StateAbandoned)
	t.mu.Unlock()
	metrics.AbandonedPositions.Inc()
	m.alert("position abandoned: " + asset.String() + " (" + reason + ")")
	m.finalize(t)
}

// finalize journals the terminal snapshot, archives it and drops the
// position from the active set.
func (m *Manager) finalize(t *tracked) {
	t.mu.Lock()
	snap := t.pos.Snapshot()
	realized := t.realized
	t.mu.Unlock()

	m.journal(&snap)

	if m.deps.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.deps.History.SavePosition(ctx, &snap, realized, m.now()); err != nil {
			m.deps.Logger.Warn("archive position failed", zap.Error(err))
		}
		cancel()
	}

	m.mu.Lock()
	delete(m.positions, snap.Asset)
	metrics.OpenPositions.Set(float64(len(m.positions)))
	m.mu.Unlock()

	m.deps.Logger.Info("position finished",
		zap.String("asset", snap.Asset.String()),
		zap.String("state", string(snap.State)),
		zap.String("realized_pnl", realized.String()))
}

func (m *Manager) sell(ctx context.Context, asset domain.Asset, amount decimal.Decimal, policy retrier.Policy) (*executor.Receipt, error) {
	order := executor.Order{
		Asset:         asset,
		Direction:     domain.DirectionSell,
		Amount:        amount,
		MaxSlippage:   m.cfg.MaxSlippage,
		ClientOrderID: uuid.NewString(),
	}

	started := m.now()
	receipt, err := retrier.DoWithData(ctx, policy, func(ctx context.Context) (*executor.Receipt, error) {
		return m.deps.Executor.Submit(ctx, order)
	})
	metrics.ExecutionLatency.WithLabelValues(string(domain.DirectionSell)).Observe(m.now().Sub(started).Seconds())
	return receipt, err
}

// Stop cancels all monitors, waits for them to finish and then makes one
// best-effort liquidation attempt per still-open position.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.stopped = true
	ts := make([]*tracked, 0, len(m.positions))
	for _, t := range m.positions {
		ts = append(ts, t)
		t.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()

	for _, t := range ts {
		m.liquidate(ctx, t, "shutdown")
	}

	m.deps.Logger.Info("position manager stopped")
}

// Recover re-registers journaled open positions after a restart. The venue
// balance is authoritative: a journaled amount that disagrees with the
// balance is corrected to the balance, and a zero balance closes the
// position instead of resuming it.
func (m *Manager) Recover(ctx context.Context, journaled []*domain.Position, balancer executor.Balancer) error {
	for _, p := range journaled {
		if balancer != nil {
			balance, err := balancer.GetBalance(ctx, p.Asset)
			if err != nil {
				m.deps.Logger.Warn("balance check failed during recovery, resuming from journal",
					zap.String("asset", p.Asset.String()),
					zap.Error(err))
			} else if balance.LessThanOrEqual(decimal.Zero) {
				m.deps.Logger.Warn("journaled position has no balance on venue, closing",
					zap.String("asset", p.Asset.String()))
				m.alert("recovery: no balance left for " + p.Asset.String() + ", position closed")
				_ = p.Transition(domain.StateClosed)
				m.journal(p)
				continue
			} else if !balance.Equal(p.Remaining) {
				m.deps.Logger.Warn("journaled amount disagrees with venue balance, trusting the venue",
					zap.String("asset", p.Asset.String()),
					zap.String("journaled", p.Remaining.String()),
					zap.String("balance", balance.String()))
				m.alert("recovery: balance mismatch for " + p.Asset.String() +
					" (journal " + p.Remaining.String() + ", venue " + balance.String() + ")")
				p.Remaining = balance
				if p.Remaining.GreaterThan(p.EntryAmount) {
					p.EntryAmount = p.Remaining.Add(p.Sold)
				}
				p.Sold = p.EntryAmount.Sub(p.Remaining)
			}
		}

		// a restart interrupts any in-flight sell; resume from monitoring
		if p.State == domain.StateSelling {
			if err := p.Transition(domain.StateMonitoring); err != nil {
				return err
			}
		}

		if err := m.Register(p); err != nil {
			return errors.Wrapf(err, "recover position %s", p.Asset.String())
		}
	}
	return nil
}

func (m *Manager) alert(message string) {
	if m.deps.Alerts != nil {
		m.deps.Alerts.NotifyAsync(message)
	}
}

func (m *Manager) journal(p *domain.Position) {
	if m.deps.Journal == nil {
		return
	}
	if err := m.deps.Journal.Save(p); err != nil {
		m.deps.Logger.Error("journal write failed",
			zap.String("asset", p.Asset.String()),
			zap.Error(err))
	}
}

func (m *Manager) saveTrade(o domain.TradeOutcome) {
	if m.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.deps.History.SaveTrade(ctx, o); err != nil {
		m.deps.Logger.Warn("trade archive failed", zap.Error(err))
	}
}
