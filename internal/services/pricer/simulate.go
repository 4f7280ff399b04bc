package pricer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// SimulatePricer serves prices from an in-memory table. Used for dry runs
// and as the price source of the simulated venue.
type SimulatePricer struct {
	mu     sync.RWMutex
	prices map[domain.Asset]decimal.Decimal
}

// NewSimulatePricer creates an empty simulated price source.
func NewSimulatePricer() *SimulatePricer {
	return &SimulatePricer{prices: make(map[domain.Asset]decimal.Decimal)}
}

// SetPrice sets the current price for an asset.
func (p *SimulatePricer) SetPrice(asset domain.Asset, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[asset] = price
	p.mu.Unlock()
}

// Walk multiplies the asset's current price by factor every interval until
// ctx ends. Dry runs use it to drive quotes through the exit ladder.
func (p *SimulatePricer) Walk(ctx context.Context, asset domain.Asset, factor decimal.Decimal, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			if current, ok := p.prices[asset]; ok {
				p.prices[asset] = current.Mul(factor)
			}
			p.mu.Unlock()
		}
	}
}

// Drop removes the asset's quote so GetPrice reports it unavailable.
func (p *SimulatePricer) Drop(asset domain.Asset) {
	p.mu.Lock()
	delete(p.prices, asset)
	p.mu.Unlock()
}

// GetPrice returns the configured price or domain.ErrPriceUnavailable.
func (p *SimulatePricer) GetPrice(_ context.Context, asset domain.Asset) (decimal.Decimal, error) {
	p.mu.RLock()
	price, ok := p.prices[asset]
	p.mu.RUnlock()

	if !ok {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrPriceUnavailable, "no simulated quote for %s", asset.String())
	}
	return price, nil
}
