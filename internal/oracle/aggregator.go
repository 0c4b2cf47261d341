package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// AggregatorClient fetches fallback quotes from an external pair aggregator
// once a token has migrated off its bonding curve.
type AggregatorClient struct {
	baseURL string
	client  *http.Client
}

// NewAggregatorClient creates an AggregatorClient with a 10-second timeout.
func NewAggregatorClient(baseURL string) *AggregatorClient {
	return &AggregatorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// aggregatorResponse is the subset of the aggregator payload we consume.
type aggregatorResponse struct {
	Pairs []struct {
		PriceNative string `json:"priceNative"`
		Liquidity   struct {
			Usd float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

// Quote returns the best-liquidity pair price for a mint in the base
// currency. It returns domain.ErrPriceUnavailable when the aggregator knows
// no pair, and domain.ErrRateLimited on HTTP 429 so callers can back off.
func (a *AggregatorClient) Quote(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s/%s", a.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: aggregator request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle: aggregator fetch %s: %w", mint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, domain.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("oracle: aggregator status %d: %s", resp.StatusCode, string(body))
	}

	var payload aggregatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("oracle: decode aggregator response: %w", err)
	}
	if len(payload.Pairs) == 0 {
		return 0, domain.ErrPriceUnavailable
	}

	best, bestLiq := 0.0, -1.0
	for _, pair := range payload.Pairs {
		price, err := strconv.ParseFloat(pair.PriceNative, 64)
		if err != nil {
			continue
		}
		price = numeric.SafeNumber(price, 0)
		if price > 0 && pair.Liquidity.Usd > bestLiq {
			best, bestLiq = price, pair.Liquidity.Usd
		}
	}
	if best <= 0 {
		return 0, domain.ErrPriceUnavailable
	}
	return best, nil
}
