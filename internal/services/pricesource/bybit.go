package pricesource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"

	"github.com/zenlend/zenlend/internal/domain"
)

// Bybit fetches prices from the Bybit V5 spot ticker API.
type Bybit struct {
	client *bybit.Client
	quote  string
}

// NewBybit creates a Bybit source quoting against USDT.
func NewBybit(client *bybit.Client) *Bybit {
	return &Bybit{client: client, quote: "USDT"}
}

func (b *Bybit) Fetch(ctx context.Context, asset string) (domain.PricePoint, error) {
	symbol := bybit.SymbolV5(strings.ToUpper(asset) + b.quote)

	result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.PricePoint{}, err
	}
	if len(result.Result.Spot.List) == 0 {
		return domain.PricePoint{}, fmt.Errorf("bybit API returned empty tickers for %s", symbol)
	}

	ticker := result.Result.Spot.List[0]
	price, err := decimal.NewFromString(ticker.LastPrice)
	if err != nil {
		return domain.PricePoint{}, err
	}

	// price24hPcnt is a fraction ("0.0234"), the dashboard expects percent.
	change := decimal.Zero
	if pcnt, err := decimal.NewFromString(ticker.Price24HPcnt); err == nil {
		change = pcnt.Mul(decimal.NewFromInt(100))
	}

	return domain.NewPricePoint(strings.ToUpper(asset), price, change, time.Now())
}
