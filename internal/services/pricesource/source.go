// Package pricesource implements clients of external collateral price
// APIs. Every source is treated as untrusted and unreliable: callers
// (the price feed) decide what to do when a fetch fails.
package pricesource

import (
	"context"

	"github.com/zenlend/zenlend/internal/domain"
)

// Source performs a single fetch of the current price of an asset.
type Source interface {
	Fetch(ctx context.Context, asset string) (domain.PricePoint, error)
}
