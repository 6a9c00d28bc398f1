// Package riskengine derives collateral value, collateralization ratio,
// health factor and liquidation price for lending positions. It is a
// stateless function module: all inputs are supplied by the caller and
// nothing is cached between calls.
package riskengine

import (
	"github.com/shopspring/decimal"

	"github.com/zenlend/zenlend/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)

	healthyBound = decimal.RequireFromString("1.5")
	warningBound = decimal.RequireFromString("1.2")
	atRiskBound  = decimal.NewFromInt(1)
)

// Params carries the protocol risk parameters.
type Params struct {
	// MinRatioPct is the minimum collateralization ratio in percent
	// required to mint debt.
	MinRatioPct decimal.Decimal
	// LiquidationRatio is the collateral-to-debt multiple at which a
	// position becomes liquidatable.
	LiquidationRatio decimal.Decimal
}

// DefaultParams returns the protocol defaults: 150% minimum ratio and a
// 1.2 liquidation ratio.
func DefaultParams() Params {
	return Params{
		MinRatioPct:      decimal.NewFromInt(150),
		LiquidationRatio: decimal.RequireFromString("1.2"),
	}
}

// Ratio is a collateralization ratio in percent. A debt-free position has
// an unbounded ratio, which is distinguishable from any finite value.
type Ratio struct {
	Pct       decimal.Decimal
	Unbounded bool
}

// Health is a health factor derived from a Ratio. Unbounded carries over
// from the ratio: a position without debt is safe at any price.
type Health struct {
	Factor    decimal.Decimal
	Unbounded bool
}

// CollateralValue returns collateralAmount * price.
func CollateralValue(collateralAmount, price decimal.Decimal) (decimal.Decimal, error) {
	if collateralAmount.IsNegative() || price.IsNegative() {
		return decimal.Decimal{}, domain.ErrNegativeInput
	}
	return collateralAmount.Mul(price), nil
}

// CollateralRatioPct returns (collateralValue / debtAmount) * 100, or an
// unbounded ratio when there is no debt.
func CollateralRatioPct(collateralValue, debtAmount decimal.Decimal) (Ratio, error) {
	if collateralValue.IsNegative() || debtAmount.IsNegative() {
		return Ratio{}, domain.ErrNegativeInput
	}
	if debtAmount.IsZero() {
		return Ratio{Unbounded: true}, nil
	}
	return Ratio{Pct: collateralValue.Div(debtAmount).Mul(hundred)}, nil
}

// HealthFactor returns ratio / minRatioPct.
func HealthFactor(ratio Ratio, minRatioPct decimal.Decimal) (Health, error) {
	if minRatioPct.LessThanOrEqual(decimal.Zero) {
		return Health{}, domain.ErrNegativeInput
	}
	if ratio.Unbounded {
		return Health{Unbounded: true}, nil
	}
	if ratio.Pct.IsNegative() {
		return Health{}, domain.ErrNegativeInput
	}
	return Health{Factor: ratio.Pct.Div(minRatioPct)}, nil
}

// LiquidationPrice returns the collateral price at which the position
// crosses health factor 1.0: (debtAmount * liquidationRatio) /
// collateralAmount. An empty position has no such price; ok is false.
func LiquidationPrice(collateralAmount, debtAmount, liquidationRatio decimal.Decimal) (price decimal.Decimal, ok bool, err error) {
	if collateralAmount.IsNegative() || debtAmount.IsNegative() || liquidationRatio.IsNegative() {
		return decimal.Decimal{}, false, domain.ErrNegativeInput
	}
	if collateralAmount.IsZero() {
		return decimal.Decimal{}, false, nil
	}
	return debtAmount.Mul(liquidationRatio).Div(collateralAmount), true, nil
}

// TierFor maps a health factor onto its risk tier. Band bounds are
// inclusive on the lower side: exactly 1.5 is healthy, exactly 1.2 is
// warning, exactly 1.0 is at risk.
func TierFor(h Health) domain.Tier {
	switch {
	case h.Unbounded, h.Factor.GreaterThanOrEqual(healthyBound):
		return domain.TierHealthy
	case h.Factor.GreaterThanOrEqual(warningBound):
		return domain.TierWarning
	case h.Factor.GreaterThanOrEqual(atRiskBound):
		return domain.TierAtRisk
	default:
		return domain.TierLiquidatable
	}
}

// Snapshot derives the full risk picture for a position at one price
// observation. Every field of the result comes from the same PricePoint.
func Snapshot(pos domain.Position, price domain.PricePoint, params Params) (domain.RiskSnapshot, error) {
	value, err := CollateralValue(pos.CollateralAmount, price.Price)
	if err != nil {
		return domain.RiskSnapshot{}, err
	}

	ratio, err := CollateralRatioPct(value, pos.DebtAmount)
	if err != nil {
		return domain.RiskSnapshot{}, err
	}

	health, err := HealthFactor(ratio, params.MinRatioPct)
	if err != nil {
		return domain.RiskSnapshot{}, err
	}

	liqPrice, hasLiq, err := LiquidationPrice(pos.CollateralAmount, pos.DebtAmount, params.LiquidationRatio)
	if err != nil {
		return domain.RiskSnapshot{}, err
	}

	return domain.RiskSnapshot{
		CollateralValue:     value,
		CollateralRatioPct:  ratio.Pct,
		HealthFactor:        health.Factor,
		RatioUnbounded:      ratio.Unbounded,
		LiquidationPrice:    liqPrice,
		HasLiquidationPrice: hasLiq,
		Tier:                TierFor(health),
		HasPrice:            true,
		PriceUsed:           price,
	}, nil
}
