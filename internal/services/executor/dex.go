package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sniper/internal/domain"
)

const dexRequestTimeout = 30 * time.Second

// DexExecutor submits swaps through a trade aggregator HTTP API (one swap
// endpoint routing to the supported on-chain venues). The aggregator signs
// and lands the transaction; the engine only sees confirmed fills.
type DexExecutor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewDexExecutor(baseURL, apiKey string) *DexExecutor {
	return &DexExecutor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: dexRequestTimeout},
	}
}

type swapRequest struct {
	Mint          string `json:"mint"`
	Venue         string `json:"venue"`
	Direction     string `json:"direction"`
	Amount        string `json:"amount"`
	MaxSlippage   string `json:"max_slippage"`
	ClientOrderID string `json:"client_order_id"`
}

type swapResponse struct {
	OrderID    string    `json:"order_id"`
	Price      string    `json:"price"`
	Amount     string    `json:"amount"`
	ExecutedAt time.Time `json:"executed_at"`
	Error      string    `json:"error,omitempty"`
}

// Submit posts the swap and waits for confirmation. HTTP 4xx responses are
// terminal (the same order will never succeed); transport errors and 5xx are
// transient and safe to retry because the aggregator deduplicates on
// ClientOrderID.
func (e *DexExecutor) Submit(ctx context.Context, order Order) (*Receipt, error) {
	payload, err := json.Marshal(swapRequest{
		Mint:          order.Asset.Mint,
		Venue:         string(order.Asset.Venue),
		Direction:     string(order.Direction),
		Amount:        order.Amount.String(),
		MaxSlippage:   order.MaxSlippage.String(),
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		return nil, domain.Terminal(errors.Wrap(err, "marshal swap request"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Terminal(errors.Wrap(err, "build swap request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.Transient(errors.Wrapf(err, "swap request for %s", order.Asset.String()))
	}
	defer resp.Body.Close()

	var body swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.Transient(errors.Wrap(err, "decode swap response"))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, domain.Terminal(errors.Errorf("swap rejected (%d) for %s: %s", resp.StatusCode, order.Asset.String(), body.Error))
	default:
		return nil, domain.Transient(errors.Errorf("swap failed (%d) for %s: %s", resp.StatusCode, order.Asset.String(), body.Error))
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return nil, domain.Terminal(errors.Wrapf(err, "parse fill price %q", body.Price))
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return nil, domain.Terminal(errors.Wrapf(err, "parse fill amount %q", body.Amount))
	}
	if price.LessThanOrEqual(decimal.Zero) || amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.Terminal(errors.Errorf("non-positive fill for %s: price %s amount %s", order.Asset.String(), body.Price, body.Amount))
	}

	executedAt := body.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	return &Receipt{
		OrderID:    body.OrderID,
		Price:      price,
		Amount:     amount,
		ExecutedAt: executedAt,
	}, nil
}

type balanceResponse struct {
	Amount string `json:"amount"`
}

// GetBalance reports the wallet's current token balance for the asset.
func (e *DexExecutor) GetBalance(ctx context.Context, asset domain.Asset) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.baseURL+"/balance?mint="+asset.Mint+"&venue="+string(asset.Venue), nil)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "build balance request")
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "balance request for %s", asset.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, nil
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, errors.Errorf("balance API returned %d for %s", resp.StatusCode, asset.String())
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "decode balance response")
	}

	return decimal.NewFromString(body.Amount)
}
