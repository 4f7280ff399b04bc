// Package pricer provides current unit prices for assets on their venues.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// Pricer returns the current unit price of an asset on its venue. A venue
// that cannot quote right now returns domain.ErrPriceUnavailable (possibly
// wrapped); callers treat that as "skip this cycle", not as a failure.
type Pricer interface {
	GetPrice(ctx context.Context, asset domain.Asset) (decimal.Decimal, error)
}
