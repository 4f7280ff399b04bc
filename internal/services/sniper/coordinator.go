// Package sniper implements the entry side of the engine: it consumes new
// asset events, screens them, and turns confirmed buys into registered
// positions.
package sniper

import (
	"context"
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
	"github.com/vadiminshakov/sniper/internal/services/manager"
	"github.com/vadiminshakov/sniper/internal/services/security"
	"github.com/vadiminshakov/sniper/pkg/retrier"
)

// Safety mirrors the manager's trading gate. *breaker.Breaker implements it.
type Safety interface {
	CanTrade() breaker.Decision
	RecordTrade(outcome domain.TradeOutcome)
}

// Registry is where successful entries end up. *manager.Manager implements
// it.
type Registry interface {
	Register(p *domain.Position) error
	Has(asset domain.Asset) bool
}

// Config holds the entry policy.
type Config struct {
	// BuyAmount is spent per snipe, in quote currency.
	BuyAmount decimal.Decimal
	// MaxSlippage is passed through to buy orders.
	MaxSlippage decimal.Decimal
	// BuyRetry governs entry submissions.
	BuyRetry retrier.Policy
}

// Coordinator screens candidates and opens positions. Safe for concurrent
// use; each event is handled on its own goroutine.
type Coordinator struct {
	cfg      Config
	gates    security.Gates
	safety   Safety
	executor executor.Executor
	registry Registry
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[domain.Asset]struct{}
	wg       sync.WaitGroup
}

func New(cfg Config, gates security.Gates, safety Safety, exec executor.Executor, registry Registry, logger *zap.Logger) (*Coordinator, error) {
	if cfg.BuyAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("buy amount must be positive")
	}
	if safety == nil || exec == nil || registry == nil {
		return nil, errors.New("safety gate, executor and registry are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BuyRetry.MaxAttempts == 0 {
		cfg.BuyRetry = retrier.DefaultPolicy("buy")
	}
	cfg.BuyRetry.RetryIf = domain.IsRetryable

	return &Coordinator{
		cfg:      cfg,
		gates:    gates,
		safety:   safety,
		executor: exec,
		registry: registry,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[domain.Asset]struct{}),
	}, nil
}

// Run consumes events until the channel closes or ctx ends, then waits for
// in-flight snipes to finish.
func (c *Coordinator) Run(ctx context.Context, events <-chan domain.NewAssetEvent) {
	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return
		case event, ok := <-events:
			if !ok {
				c.wg.Wait()
				return
			}
			c.wg.Add(1)
			go func(event domain.NewAssetEvent) {
				defer c.wg.Done()
				c.OnCandidate(ctx, event)
			}(event)
		}
	}
}

// OnCandidate processes one discovered asset: dedupe, security screening,
// breaker check, buy, register. Gate and breaker denials are not trades and
// leave the breaker statistics untouched; a failed buy is a trade and is
// recorded.
func (c *Coordinator) OnCandidate(ctx context.Context, event domain.NewAssetEvent) {
	asset := event.Asset
	logger := c.logger.With(zap.String("asset", asset.String()))

	if !c.claim(asset) {
		logger.Debug("candidate skipped, position already open or snipe in flight")
		return
	}
	defer c.release(asset)

	if err := c.gates.Screen(ctx, event, c.cfg.BuyAmount); err != nil {
		metrics.SnipesTotal.WithLabelValues("denied").Inc()
		logger.Info("candidate rejected by security screening", zap.Error(err))
		return
	}

	decision := c.safety.CanTrade()
	if !decision.Allowed {
		metrics.SnipesTotal.WithLabelValues("denied").Inc()
		logger.Warn("snipe blocked by circuit breaker", zap.String("reason", decision.Reason))
		return
	}
	if decision.Probe {
		logger.Info("snipe proceeding as half-open probe")
	}

	receipt, err := c.buy(ctx, asset)

	outcome := domain.TradeOutcome{
		Asset:     asset,
		Direction: domain.DirectionBuy,
		Success:   err == nil,
		Timestamp: c.now(),
	}
	c.safety.RecordTrade(outcome)

	if err != nil {
		metrics.SnipesTotal.WithLabelValues("failed").Inc()
		logger.Error("entry buy failed", zap.Error(err))
		return
	}

	// the position is seeded from the confirmed receipt, never from the
	// requested amounts
	pos, err := domain.NewPosition(asset, receipt.Price, receipt.Amount, receipt.ExecutedAt)
	if err != nil {
		metrics.SnipesTotal.WithLabelValues("failed").Inc()
		logger.Error("receipt rejected", zap.Error(err))
		return
	}

	if err := c.registry.Register(pos); err != nil {
		metrics.SnipesTotal.WithLabelValues("failed").Inc()
		logger.Error("position registration failed", zap.Error(err))
		return
	}

	metrics.SnipesTotal.WithLabelValues("success").Inc()
	logger.Info("sniped",
		zap.String("price", receipt.Price.String()),
		zap.String("amount", receipt.Amount.String()),
		zap.String("spent", c.cfg.BuyAmount.String()))
}

func (c *Coordinator) buy(ctx context.Context, asset domain.Asset) (*executor.Receipt, error) {
	order := executor.Order{
		Asset:         asset,
		Direction:     domain.DirectionBuy,
		Amount:        c.cfg.BuyAmount,
		MaxSlippage:   c.cfg.MaxSlippage,
		ClientOrderID: uuid.NewString(),
	}

	started := c.now()
	receipt, err := retrier.DoWithData(ctx, c.cfg.BuyRetry, func(ctx context.Context) (*executor.Receipt, error) {
		return c.executor.Submit(ctx, order)
	})
	metrics.ExecutionLatency.WithLabelValues(string(domain.DirectionBuy)).Observe(c.now().Sub(started).Seconds())
	return receipt, err
}

// claim reserves the asset so only one snipe runs per asset at a time, and
// never while a position for it is open.
func (c *Coordinator) claim(asset domain.Asset) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inflight[asset]; busy {
		return false
	}
	if c.registry.Has(asset) {
		return false
	}
	c.inflight[asset] = struct{}{}
	return true
}

func (c *Coordinator) release(asset domain.Asset) {
	c.mu.Lock()
	delete(c.inflight, asset)
	c.mu.Unlock()
}

var _ Registry = (*manager.Manager)(nil)
