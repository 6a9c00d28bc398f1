package riskengine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenlend/zenlend/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCollateralValue(t *testing.T) {
	value, err := CollateralValue(dec("1.5"), dec("67450.32"))
	require.NoError(t, err)
	assert.True(t, value.Equal(dec("101175.48")), "got %s", value)

	_, err = CollateralValue(dec("-1"), dec("100"))
	require.ErrorIs(t, err, domain.ErrNegativeInput)
}

func TestCollateralRatioPct(t *testing.T) {
	tests := []struct {
		name          string
		value         string
		debt          string
		wantPct       string
		wantUnbounded bool
	}{
		{name: "simple", value: "60000", debt: "40000", wantPct: "150"},
		{name: "no debt is unbounded", value: "60000", debt: "0", wantUnbounded: true},
		{name: "zero collateral with debt", value: "0", debt: "100", wantPct: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratio, err := CollateralRatioPct(dec(tt.value), dec(tt.debt))
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnbounded, ratio.Unbounded)
			if !tt.wantUnbounded {
				assert.True(t, ratio.Pct.Equal(dec(tt.wantPct)), "got %s", ratio.Pct)
			}
		})
	}

	_, err := CollateralRatioPct(dec("-1"), dec("100"))
	require.ErrorIs(t, err, domain.ErrNegativeInput)
}

func TestHealthFactor_DebtFreeAlwaysHealthy(t *testing.T) {
	ratio, err := CollateralRatioPct(decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	require.True(t, ratio.Unbounded)

	health, err := HealthFactor(ratio, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.True(t, health.Unbounded)
	assert.Equal(t, domain.TierHealthy, TierFor(health))
}

func TestTierFor_Boundaries(t *testing.T) {
	tests := []struct {
		factor string
		want   domain.Tier
	}{
		{factor: "2.5", want: domain.TierHealthy},
		{factor: "1.5", want: domain.TierHealthy},
		{factor: "1.499999", want: domain.TierWarning},
		{factor: "1.2", want: domain.TierWarning},
		{factor: "1.199999", want: domain.TierAtRisk},
		{factor: "1.0", want: domain.TierAtRisk},
		{factor: "0.999999", want: domain.TierLiquidatable},
		{factor: "0.5", want: domain.TierLiquidatable},
	}

	for _, tt := range tests {
		t.Run(tt.factor, func(t *testing.T) {
			got := TierFor(Health{Factor: dec(tt.factor)})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiquidationPrice(t *testing.T) {
	price, ok, err := LiquidationPrice(dec("1.5"), dec("28000"), dec("1.2"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, price.Equal(dec("22400")), "got %s", price)

	_, ok, err = LiquidationPrice(decimal.Zero, dec("100"), dec("1.2"))
	require.NoError(t, err)
	assert.False(t, ok, "empty position has no liquidation price")
}

// The reference scenario: 1.5 BTC at $67,450.32 against $28,000 debt.
func TestSnapshot_ReferenceScenario(t *testing.T) {
	point, err := domain.NewPricePoint("BTC", dec("67450.32"), dec("2.34"), time.Now())
	require.NoError(t, err)

	pos := domain.Position{
		Owner:            "0xabc",
		CollateralAmount: dec("1.5"),
		DebtAmount:       dec("28000"),
	}

	snap, err := Snapshot(pos, point, DefaultParams())
	require.NoError(t, err)

	assert.True(t, snap.CollateralValue.Equal(dec("101175.48")), "value %s", snap.CollateralValue)
	assert.True(t, snap.CollateralRatioPct.Sub(dec("361.34")).Abs().LessThan(dec("0.01")), "ratio %s", snap.CollateralRatioPct)
	assert.True(t, snap.HealthFactor.Sub(dec("2.41")).Abs().LessThan(dec("0.01")), "health %s", snap.HealthFactor)
	assert.Equal(t, domain.TierHealthy, snap.Tier)
	require.True(t, snap.HasLiquidationPrice)
	assert.True(t, snap.LiquidationPrice.Equal(dec("22400")), "liq price %s", snap.LiquidationPrice)
	assert.False(t, snap.RatioUnbounded)
	assert.True(t, snap.PriceUsed.Price.Equal(point.Price))
}

func TestSnapshot_MintBoundary(t *testing.T) {
	// 1 unit of collateral at price 60000: debt 40000 is exactly 150%,
	// debt 40001 is just below and must not pass the minimum ratio.
	value, err := CollateralValue(decimal.NewFromInt(1), decimal.NewFromInt(60000))
	require.NoError(t, err)

	ratio, err := CollateralRatioPct(value, decimal.NewFromInt(40000))
	require.NoError(t, err)
	assert.True(t, ratio.Pct.GreaterThanOrEqual(decimal.NewFromInt(150)))

	ratio, err = CollateralRatioPct(value, decimal.NewFromInt(40001))
	require.NoError(t, err)
	assert.True(t, ratio.Pct.LessThan(decimal.NewFromInt(150)), "ratio %s", ratio.Pct)
}
