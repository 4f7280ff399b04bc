package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TierRule describes one exit rung: when the current price reaches
// ProfitMultiplier times the entry price, sell SellFraction of the amount
// still held. The implicit final tier is "hold the remainder indefinitely".
type TierRule struct {
	// ProfitMultiplier is the price/entry threshold that triggers the tier.
	ProfitMultiplier decimal.Decimal `yaml:"profit_multiplier" json:"profit_multiplier"`
	// SellFraction is the fraction of the remaining amount to sell (0..1].
	SellFraction decimal.Decimal `yaml:"sell_fraction" json:"sell_fraction"`
}

// ValidateTiers checks that tiers are well-formed: multipliers above 1 and
// strictly ascending, fractions within (0, 1].
func ValidateTiers(tiers []TierRule) error {
	one := decimal.NewFromInt(1)
	prev := decimal.Zero

	for i, tier := range tiers {
		if tier.ProfitMultiplier.LessThanOrEqual(one) {
			return fmt.Errorf("tier %d: profit multiplier %s must be greater than 1", i, tier.ProfitMultiplier.String())
		}
		if tier.ProfitMultiplier.LessThanOrEqual(prev) {
			return fmt.Errorf("tier %d: profit multiplier %s must be greater than previous %s", i, tier.ProfitMultiplier.String(), prev.String())
		}
		if tier.SellFraction.LessThanOrEqual(decimal.Zero) || tier.SellFraction.GreaterThan(one) {
			return fmt.Errorf("tier %d: sell fraction %s must be within (0, 1]", i, tier.SellFraction.String())
		}
		prev = tier.ProfitMultiplier
	}

	return nil
}
