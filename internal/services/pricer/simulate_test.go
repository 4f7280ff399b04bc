package pricer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sniper/internal/domain"
)

func TestSimulatePricer_SetAndDrop(t *testing.T) {
	p := NewSimulatePricer()
	asset := domain.Asset{Mint: "MintAAA", Venue: domain.VenueSimulate}

	_, err := p.GetPrice(context.Background(), asset)
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)

	p.SetPrice(asset, decimal.NewFromInt(3))
	price, err := p.GetPrice(context.Background(), asset)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(3)))

	p.Drop(asset)
	_, err = p.GetPrice(context.Background(), asset)
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestSimulatePricer_WalkDrivesQuoteUpward(t *testing.T) {
	p := NewSimulatePricer()
	asset := domain.Asset{Mint: "MintBBB", Venue: domain.VenueSimulate}
	p.SetPrice(asset, decimal.NewFromInt(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Walk(ctx, asset, decimal.NewFromInt(2), time.Millisecond)

	require.Eventually(t, func() bool {
		price, err := p.GetPrice(context.Background(), asset)
		return err == nil && price.GreaterThanOrEqual(decimal.NewFromInt(8))
	}, time.Second, time.Millisecond, "quote must climb past the thresholds")
}
