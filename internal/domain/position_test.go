package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAsset() Asset {
	return Asset{Mint: "So11111111111111111111111111111111111111112", Venue: VenueRaydium}
}

func testTiers() []TierRule {
	return []TierRule{
		{ProfitMultiplier: decimal.NewFromInt(10), SellFraction: decimal.NewFromFloat(0.35)},
		{ProfitMultiplier: decimal.NewFromInt(100), SellFraction: decimal.NewFromFloat(0.35)},
	}
}

func TestNewPosition(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		p, err := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
		require.NoError(t, err)
		assert.Equal(t, StateMonitoring, p.State)
		assert.True(t, p.Remaining.Equal(decimal.NewFromInt(1000)))
		assert.True(t, p.Sold.IsZero())
		require.NoError(t, p.CheckInvariant())
	})

	t.Run("rejects non-positive price", func(t *testing.T) {
		_, err := NewPosition(testAsset(), decimal.Zero, decimal.NewFromInt(1000), time.Now())
		assert.Error(t, err)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.Zero, time.Now())
		assert.Error(t, err)
	})
}

func TestPosition_Transition(t *testing.T) {
	p, err := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
	require.NoError(t, err)

	require.NoError(t, p.Transition(StateSelling))
	require.NoError(t, p.Transition(StateMonitoring))
	require.NoError(t, p.Transition(StateAbandoned))

	// terminal states accept no further transitions
	assert.Error(t, p.Transition(StateMonitoring))
	assert.Error(t, p.Transition(StateClosed))
	assert.True(t, p.State.Terminal())
}

func TestPosition_NextTier(t *testing.T) {
	tiers := testTiers()

	t.Run("below first threshold", func(t *testing.T) {
		p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
		_, ok := p.NextTier(decimal.NewFromInt(9), tiers)
		assert.False(t, ok)
	})

	t.Run("first threshold met", func(t *testing.T) {
		p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
		tier, ok := p.NextTier(decimal.NewFromInt(10), tiers)
		require.True(t, ok)
		assert.Equal(t, 0, tier)
	})

	t.Run("price jumps past several thresholds, lowest uncompleted fires", func(t *testing.T) {
		p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
		tier, ok := p.NextTier(decimal.NewFromInt(500), tiers)
		require.True(t, ok)
		assert.Equal(t, 0, tier)

		require.NoError(t, p.ApplyFill(0, decimal.NewFromInt(350)))

		tier, ok = p.NextTier(decimal.NewFromInt(500), tiers)
		require.True(t, ok)
		assert.Equal(t, 1, tier)
	})
}

func TestPosition_ApplyFill(t *testing.T) {
	t.Run("keeps sold plus remaining equal to entry", func(t *testing.T) {
		p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())

		require.NoError(t, p.ApplyFill(0, decimal.NewFromInt(350)))
		assert.True(t, p.Remaining.Equal(decimal.NewFromInt(650)), "remaining %s", p.Remaining)
		assert.True(t, p.Sold.Equal(decimal.NewFromInt(350)))

		sell := p.Remaining.Mul(decimal.NewFromFloat(0.35))
		require.NoError(t, p.ApplyFill(1, sell))
		assert.True(t, p.Remaining.Equal(decimal.NewFromFloat(422.5)), "remaining %s", p.Remaining)
		require.NoError(t, p.CheckInvariant())
	})

	t.Run("tier executes at most once", func(t *testing.T) {
		p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
		require.NoError(t, p.ApplyFill(0, decimal.NewFromInt(100)))
		assert.Error(t, p.ApplyFill(0, decimal.NewFromInt(100)))
	})

	t.Run("tiers complete in ascending order", func(t *testing.T) {
		p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
		require.NoError(t, p.ApplyFill(1, decimal.NewFromInt(100)))
		assert.Error(t, p.ApplyFill(0, decimal.NewFromInt(100)))
	})

	t.Run("rejects overselling", func(t *testing.T) {
		p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
		assert.Error(t, p.ApplyFill(0, decimal.NewFromInt(1001)))
	})
}

func TestPosition_Exhausted(t *testing.T) {
	tiers := testTiers()

	p, _ := NewPosition(testAsset(), decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
	assert.False(t, p.Exhausted(tiers))

	require.NoError(t, p.ApplyFill(0, decimal.NewFromInt(350)))
	assert.False(t, p.Exhausted(tiers))

	require.NoError(t, p.ApplyFill(1, decimal.NewFromFloat(227.5)))
	assert.True(t, p.Exhausted(tiers))
}

func TestValidateTiers(t *testing.T) {
	assert.NoError(t, ValidateTiers(testTiers()))

	t.Run("descending thresholds rejected", func(t *testing.T) {
		bad := []TierRule{
			{ProfitMultiplier: decimal.NewFromInt(100), SellFraction: decimal.NewFromFloat(0.5)},
			{ProfitMultiplier: decimal.NewFromInt(10), SellFraction: decimal.NewFromFloat(0.5)},
		}
		assert.Error(t, ValidateTiers(bad))
	})

	t.Run("fraction above one rejected", func(t *testing.T) {
		bad := []TierRule{{ProfitMultiplier: decimal.NewFromInt(2), SellFraction: decimal.NewFromFloat(1.5)}}
		assert.Error(t, ValidateTiers(bad))
	})

	t.Run("multiplier below one rejected", func(t *testing.T) {
		bad := []TierRule{{ProfitMultiplier: decimal.NewFromFloat(0.5), SellFraction: decimal.NewFromFloat(0.5)}}
		assert.Error(t, ValidateTiers(bad))
	})
}
