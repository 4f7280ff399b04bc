package pricer

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// ReferencePricer fetches a reference quote-currency price (e.g. SOLUSDT)
// from the Binance public API. It is used only to express PnL in USD on
// operator-facing surfaces; it never sits on the trade path.
type ReferencePricer struct {
	client *binance.Client
	symbol string
}

// NewReferencePricer creates a reference pricer for the given ticker symbol.
// The public price endpoint needs no credentials.
func NewReferencePricer(symbol string) *ReferencePricer {
	return &ReferencePricer{client: binance.NewClient("", ""), symbol: symbol}
}

// QuoteUSD returns the current USD price of the quote currency.
func (p *ReferencePricer) QuoteUSD(ctx context.Context) (decimal.Decimal, error) {
	prices, err := p.client.NewListPricesService().Symbol(p.symbol).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("binance API returned empty prices for %s", p.symbol)
	}

	return decimal.NewFromString(prices[0].Price)
}
