package pricesource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/zenlend/zenlend/internal/domain"
)

// Hyperliquid fetches mid prices from the Hyperliquid public Info API.
// The API reports no 24-hour change, so observations carry zero change.
type Hyperliquid struct {
	info *hyperliquid.Info
}

func NewHyperliquid(info *hyperliquid.Info) *Hyperliquid {
	return &Hyperliquid{info: info}
}

func (h *Hyperliquid) Fetch(ctx context.Context, asset string) (domain.PricePoint, error) {
	if h.info == nil {
		return domain.PricePoint{}, fmt.Errorf("hyperliquid info client is nil")
	}

	mids, err := h.info.AllMids(ctx)
	if err != nil {
		return domain.PricePoint{}, err
	}

	// Hyperliquid mids are keyed by base coin (e.g., "BTC").
	coin := strings.ToUpper(asset)
	mid, ok := mids[coin]
	if !ok || mid == "" {
		return domain.PricePoint{}, fmt.Errorf("hyperliquid API returned empty mid price for %s", coin)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return domain.PricePoint{}, err
	}

	return domain.NewPricePoint(coin, price, decimal.Zero, time.Now())
}
