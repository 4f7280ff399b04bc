package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sniper/internal/domain"
	"github.com/vadiminshakov/sniper/internal/services/pricer"
)

// SimulateExecutor fills orders at the simulated pricer's current quote and
// tracks per-asset balances in memory. Used in dry-run mode and tests.
type SimulateExecutor struct {
	mu       sync.Mutex
	pricer   pricer.Pricer
	logger   *zap.Logger
	balances map[domain.Asset]decimal.Decimal
	quote    decimal.Decimal // free quote currency

	// failNext, when positive, fails that many subsequent submissions
	// with a transient error.
	failNext int
}

// NewSimulateExecutor creates a simulator funded with the given quote
// currency balance.
func NewSimulateExecutor(p pricer.Pricer, quoteBalance decimal.Decimal, logger *zap.Logger) *SimulateExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulateExecutor{
		pricer:   p,
		logger:   logger,
		balances: make(map[domain.Asset]decimal.Decimal),
		quote:    quoteBalance,
	}
}

// FailNext makes the next n submissions fail with a transient error.
func (e *SimulateExecutor) FailNext(n int) {
	e.mu.Lock()
	e.failNext = n
	e.mu.Unlock()
}

// Submit fills the order at the current simulated price.
func (e *SimulateExecutor) Submit(ctx context.Context, order Order) (*Receipt, error) {
	price, err := e.pricer.GetPrice(ctx, order.Asset)
	if err != nil {
		return nil, domain.Transient(errors.Wrap(err, "simulate fill price"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failNext > 0 {
		e.failNext--
		return nil, domain.Transient(errors.New("simulated venue failure"))
	}

	if order.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.Terminal(errors.New("non-positive order amount"))
	}

	receipt := &Receipt{
		OrderID:    uuid.NewString(),
		Price:      price,
		ExecutedAt: time.Now(),
	}

	switch order.Direction {
	case domain.DirectionBuy:
		if order.Amount.GreaterThan(e.quote) {
			return nil, domain.Terminal(errors.Errorf("insufficient quote balance: have %s, need %s", e.quote.String(), order.Amount.String()))
		}
		tokens := order.Amount.Div(price)
		e.quote = e.quote.Sub(order.Amount)
		e.balances[order.Asset] = e.balances[order.Asset].Add(tokens)
		receipt.Amount = tokens

	case domain.DirectionSell:
		held := e.balances[order.Asset]
		if order.Amount.GreaterThan(held) {
			return nil, domain.Terminal(errors.Errorf("insufficient %s balance: have %s, need %s", order.Asset.String(), held.String(), order.Amount.String()))
		}
		e.balances[order.Asset] = held.Sub(order.Amount)
		e.quote = e.quote.Add(order.Amount.Mul(price))
		receipt.Amount = order.Amount

	default:
		return nil, domain.Terminal(errors.Errorf("unknown direction %q", order.Direction))
	}

	e.logger.Debug("simulated fill",
		zap.String("asset", order.Asset.String()),
		zap.String("direction", string(order.Direction)),
		zap.String("price", price.String()),
		zap.String("amount", receipt.Amount.String()))

	return receipt, nil
}

// GetBalance returns the simulated token balance for the asset.
func (e *SimulateExecutor) GetBalance(_ context.Context, asset domain.Asset) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[asset], nil
}

// QuoteBalance returns the free quote currency balance.
func (e *SimulateExecutor) QuoteBalance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote
}

// SetBalance overrides the held amount for an asset (restart scenarios).
func (e *SimulateExecutor) SetBalance(asset domain.Asset, amount decimal.Decimal) {
	e.mu.Lock()
	e.balances[asset] = amount
	e.mu.Unlock()
}
