package pricesource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/zenlend/zenlend/internal/domain"
)

// Binance fetches prices from the Binance public API. The 24h ticker
// endpoint carries both the last price and the 24-hour change.
type Binance struct {
	client *binance.Client
	quote  string
}

// NewBinance creates a Binance source quoting against USDT.
func NewBinance(client *binance.Client) *Binance {
	return &Binance{client: client, quote: "USDT"}
}

func (b *Binance) Fetch(ctx context.Context, asset string) (domain.PricePoint, error) {
	symbol := strings.ToUpper(asset) + b.quote

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.PricePoint{}, err
	}
	if len(stats) == 0 {
		return domain.PricePoint{}, fmt.Errorf("binance API returned empty stats for %s", symbol)
	}

	price, err := decimal.NewFromString(stats[0].LastPrice)
	if err != nil {
		return domain.PricePoint{}, err
	}
	change, err := decimal.NewFromString(stats[0].PriceChangePercent)
	if err != nil {
		change = decimal.Zero
	}

	return domain.NewPricePoint(strings.ToUpper(asset), price, change, time.Now())
}
