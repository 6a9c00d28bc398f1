// Package domain defines core data structures used throughout the lending engine.
package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PricePoint is a single observation of the collateral asset price.
// It is immutable once created; newer observations supersede it, they
// never mutate it.
type PricePoint struct {
	// Asset is the collateral asset symbol, e.g. "BTC".
	Asset string
	// Price is the observed price in USD. Always positive.
	Price decimal.Decimal
	// Change24hPct is the 24-hour price change in percent. Zero when the
	// source does not report it.
	Change24hPct decimal.Decimal
	// ObservedAt is when the observation was made.
	ObservedAt time.Time
	// Stale marks a fallback reading produced after a source failure.
	Stale bool
}

// NewPricePoint constructs a validated price observation.
func NewPricePoint(asset string, price, change24hPct decimal.Decimal, observedAt time.Time) (PricePoint, error) {
	if asset == "" {
		return PricePoint{}, errors.New("asset symbol is required")
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return PricePoint{}, errors.Errorf("price must be greater than zero, got %s", price.String())
	}

	return PricePoint{
		Asset:        asset,
		Price:        price,
		Change24hPct: change24hPct,
		ObservedAt:   observedAt,
	}, nil
}
