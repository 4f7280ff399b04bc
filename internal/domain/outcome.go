package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeDirection is the side of a trade.
type TradeDirection string

const (
	DirectionBuy  TradeDirection = "buy"
	DirectionSell TradeDirection = "sell"
)

// TradeOutcome is the immutable record of one attempted trade handed to the
// circuit breaker: one outcome per trade, not per retry attempt.
type TradeOutcome struct {
	Asset     Asset           `json:"asset"`
	Direction TradeDirection  `json:"direction"`
	Success   bool            `json:"success"`
	// ProfitLoss is the realized result in quote currency units, signed.
	// Zero for entry buys and failed attempts.
	ProfitLoss decimal.Decimal `json:"profit_loss"`
	Timestamp  time.Time       `json:"timestamp"`
}
