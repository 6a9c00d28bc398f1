package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/zenlend/zenlend/internal/domain"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	coinGeckoTimeout        = 10 * time.Second
)

// coinIDs maps asset symbols to CoinGecko coin identifiers.
var coinIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
}

// CoinGecko fetches prices from the CoinGecko public API, including the
// 24-hour change. It needs no credentials, which makes it the default
// source for the dashboard.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGecko creates a CoinGecko source. An empty baseURL selects the
// public API endpoint.
func NewCoinGecko(baseURL string) *CoinGecko {
	if baseURL == "" {
		baseURL = defaultCoinGeckoBaseURL
	}
	return &CoinGecko{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: coinGeckoTimeout},
	}
}

// Fetch queries /simple/price for the asset and returns a validated
// observation.
func (c *CoinGecko) Fetch(ctx context.Context, asset string) (domain.PricePoint, error) {
	id, ok := coinIDs[strings.ToUpper(asset)]
	if !ok {
		return domain.PricePoint{}, errors.Errorf("no coingecko id known for asset %s", asset)
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.PricePoint{}, errors.Wrap(err, "build coingecko request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PricePoint{}, errors.Wrap(err, "coingecko request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.PricePoint{}, errors.Errorf("coingecko API returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]struct {
		USD          float64 `json:"usd"`
		USD24hChange float64 `json:"usd_24h_change"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.PricePoint{}, errors.Wrap(err, "decode coingecko response")
	}

	quote, ok := payload[id]
	if !ok {
		return domain.PricePoint{}, errors.Errorf("coingecko response missing %s", id)
	}

	return domain.NewPricePoint(
		strings.ToUpper(asset),
		decimal.NewFromFloat(quote.USD),
		decimal.NewFromFloat(quote.USD24hChange),
		time.Now(),
	)
}
