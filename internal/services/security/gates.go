// Package security holds the pre-entry screening gates. The engine consults
// them synchronously before every entry buy; a denial short-circuits the
// snipe. Gate contents (blacklists, scoring models) are collaborator
// concerns; only the decision surface lives here.
package security

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// AddressChecker screens originator/mint addresses. A denial is returned as
// a domain.SafetyDeniedError.
type AddressChecker interface {
	CheckAddress(ctx context.Context, address string) error
}

// TradeDetails describes the trade to be risk-scored before entry.
type TradeDetails struct {
	Asset      domain.Asset
	Originator string
	Amount     decimal.Decimal
}

// TransactionChecker scores a prospective trade; higher means riskier.
type TransactionChecker interface {
	CheckTransaction(ctx context.Context, details TradeDetails) (float64, error)
}

// Confirmer approves or rejects a prospective trade. Implementations may
// auto-approve below a size threshold or route to an operator.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, details TradeDetails) error
}

// Gates bundles the screening collaborators. Nil members are skipped.
type Gates struct {
	Blacklist AddressChecker
	Risk      TransactionChecker
	Confirm   Confirmer
	// MaxRiskScore rejects trades scored strictly above it. Zero disables
	// the risk gate.
	MaxRiskScore float64
	Logger       *zap.Logger
}

// Screen runs all configured gates in order: blacklist, risk score,
// confirmation. The first denial wins.
func (g Gates) Screen(ctx context.Context, event domain.NewAssetEvent, amount decimal.Decimal) error {
	if g.Blacklist != nil {
		if err := g.Blacklist.CheckAddress(ctx, event.Asset.Mint); err != nil {
			return err
		}
		if event.Originator != "" {
			if err := g.Blacklist.CheckAddress(ctx, event.Originator); err != nil {
				return err
			}
		}
	}

	details := TradeDetails{Asset: event.Asset, Originator: event.Originator, Amount: amount}

	if g.Risk != nil && g.MaxRiskScore > 0 {
		score, err := g.Risk.CheckTransaction(ctx, details)
		if err != nil {
			return err
		}
		if score > g.MaxRiskScore {
			return domain.SafetyDenied("risk", "transaction risk score above threshold")
		}
		if g.Logger != nil {
			g.Logger.Debug("risk score", zap.String("asset", event.Asset.String()), zap.Float64("score", score))
		}
	}

	if g.Confirm != nil {
		if err := g.Confirm.RequestConfirmation(ctx, details); err != nil {
			return err
		}
	}

	return nil
}

// StaticBlacklist is an in-memory address blacklist.
type StaticBlacklist struct {
	mu        sync.RWMutex
	addresses map[string]struct{}
}

// NewStaticBlacklist builds a blacklist from the given addresses.
func NewStaticBlacklist(addresses []string) *StaticBlacklist {
	set := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		set[a] = struct{}{}
	}
	return &StaticBlacklist{addresses: set}
}

// Add inserts an address into the blacklist.
func (b *StaticBlacklist) Add(address string) {
	b.mu.Lock()
	b.addresses[address] = struct{}{}
	b.mu.Unlock()
}

// CheckAddress denies blacklisted addresses.
func (b *StaticBlacklist) CheckAddress(_ context.Context, address string) error {
	b.mu.RLock()
	_, banned := b.addresses[address]
	b.mu.RUnlock()

	if banned {
		return domain.SafetyDenied("blacklist", "address "+address+" is blacklisted")
	}
	return nil
}

// AutoConfirmer approves every trade at or below its size limit.
type AutoConfirmer struct {
	MaxAmount decimal.Decimal
}

// RequestConfirmation rejects trades above the configured size.
func (c AutoConfirmer) RequestConfirmation(_ context.Context, details TradeDetails) error {
	if c.MaxAmount.IsPositive() && details.Amount.GreaterThan(c.MaxAmount) {
		return domain.SafetyDenied("confirmation", "trade size above auto-confirm limit")
	}
	return nil
}
