package pricer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sniper/internal/domain"
)

const defaultRequestTimeout = 10 * time.Second

// DexPricer quotes tokens through a price aggregator HTTP API
// (one price endpoint serving all supported on-chain venues).
type DexPricer struct {
	baseURL string
	client  *http.Client
}

// NewDexPricer creates a pricer for the given aggregator base URL.
func NewDexPricer(baseURL string) *DexPricer {
	return &DexPricer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

type priceResponse struct {
	Price string `json:"price"`
}

// GetPrice fetches the current unit price for the asset's mint. Missing
// quotes (unknown or not-yet-indexed tokens) surface as
// domain.ErrPriceUnavailable so monitoring skips the cycle.
func (p *DexPricer) GetPrice(ctx context.Context, asset domain.Asset) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/price?mint=%s&venue=%s", p.baseURL, url.QueryEscape(asset.Mint), url.QueryEscape(string(asset.Venue)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "build price request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrPriceUnavailable, "price request for %s: %v", asset.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrPriceUnavailable, "no quote for %s", asset.String())
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrPriceUnavailable, "price API returned %d for %s", resp.StatusCode, asset.String())
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "decode price response")
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse price %q for %s", body.Price, asset.String())
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, errors.Wrapf(domain.ErrPriceUnavailable, "non-positive quote for %s", asset.String())
	}

	return price, nil
}
