package domain

import "github.com/shopspring/decimal"

// Tier is a discrete risk classification bucket derived from health factor.
type Tier int

const (
	// TierHealthy means health factor >= 1.5.
	TierHealthy Tier = iota
	// TierWarning means health factor in [1.2, 1.5).
	TierWarning
	// TierAtRisk means health factor in [1.0, 1.2).
	TierAtRisk
	// TierLiquidatable means health factor < 1.0.
	TierLiquidatable
	// TierUnknown means the tier cannot be derived yet: the position
	// carries debt but no price has been observed.
	TierUnknown
)

func (t Tier) String() string {
	switch t {
	case TierHealthy:
		return "healthy"
	case TierWarning:
		return "warning"
	case TierAtRisk:
		return "at_risk"
	case TierLiquidatable:
		return "liquidatable"
	default:
		return "unknown"
	}
}

// RiskSnapshot is the derived risk picture of a position at one price
// observation. It is recomputed on demand and never cached across price
// ticks, since a stale snapshot would misstate liquidation risk.
// Every field is derived from the same PricePoint.
type RiskSnapshot struct {
	CollateralValue    decimal.Decimal
	CollateralRatioPct decimal.Decimal
	HealthFactor       decimal.Decimal
	// RatioUnbounded is set for debt-free positions, whose ratio and
	// health factor are unbounded rather than any finite number.
	RatioUnbounded bool
	// LiquidationPrice is meaningful only when HasLiquidationPrice is
	// set; an empty position has no price at which it liquidates.
	LiquidationPrice    decimal.Decimal
	HasLiquidationPrice bool
	Tier                Tier
	// HasPrice is cleared when the snapshot was produced before any
	// price observation; value, ratio and health factor are then
	// meaningless and the tier is TierUnknown for indebted positions.
	HasPrice bool
	// PriceUsed is the observation every field above was derived from.
	PriceUsed PricePoint
}

// ProtocolStats aggregates all open positions at the latest price.
type ProtocolStats struct {
	TotalCollateral      decimal.Decimal
	TotalCollateralValue decimal.Decimal
	TotalDebt            decimal.Decimal
	ActivePositionCount  int
	GlobalRatioPct       decimal.Decimal
	// GlobalRatioUnbounded is set when there is open collateral but no
	// debt anywhere in the protocol.
	GlobalRatioUnbounded bool
	Price                PricePoint
	HasPrice             bool
}
