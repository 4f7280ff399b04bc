// Package executor defines the trade submission boundary. Implementations
// talk to one or more venues; the engine only sees Orders and Receipts.
package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// Order describes one trade to attempt.
type Order struct {
	Asset     domain.Asset
	Direction domain.TradeDirection
	// Amount is in quote currency for buys and in token units for sells.
	Amount decimal.Decimal
	// MaxSlippage is the tolerated price impact fraction (e.g. 0.05).
	MaxSlippage decimal.Decimal
	// ClientOrderID makes retried submissions identifiable venue-side.
	ClientOrderID string
}

// Receipt reports a confirmed fill. Price and Amount are the realized
// values: entry positions are seeded from them, never from estimates.
type Receipt struct {
	OrderID    string
	Price      decimal.Decimal
	Amount     decimal.Decimal // token units actually bought or sold
	ExecutedAt time.Time
}

// Executor submits one trade and returns a confirmed receipt or a typed
// failure (domain.Transient or domain.Terminal). May be slow; implementations
// must respect ctx deadlines so a stalled venue surfaces as an error instead
// of hanging the caller.
type Executor interface {
	Submit(ctx context.Context, order Order) (*Receipt, error)
}

// Balancer reports the actually held token balance on a venue. Used by the
// restart reconciliation pass, which prefers on-chain truth over journaled
// state.
type Balancer interface {
	GetBalance(ctx context.Context, asset domain.Asset) (decimal.Decimal, error)
}
