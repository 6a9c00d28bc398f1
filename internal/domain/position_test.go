package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		owner      string
		collateral decimal.Decimal
		wantErr    error
	}{
		{
			name:       "valid first deposit",
			owner:      "0xabc",
			collateral: decimal.NewFromFloat(1.5),
		},
		{
			name:       "zero collateral rejected",
			owner:      "0xabc",
			collateral: decimal.Zero,
			wantErr:    ErrInvalidAmount,
		},
		{
			name:       "negative collateral rejected",
			owner:      "0xabc",
			collateral: decimal.NewFromInt(-1),
			wantErr:    ErrInvalidAmount,
		},
		{
			name:       "empty owner rejected",
			owner:      "",
			collateral: decimal.NewFromInt(1),
			wantErr:    ErrEmptyOwner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := NewPosition(tt.owner, tt.collateral, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, pos.CollateralAmount.Equal(tt.collateral))
			assert.True(t, pos.DebtAmount.IsZero())
			assert.Equal(t, now, pos.CreatedAt)
		})
	}
}

func TestPosition_ReduceDebt_ClampsAtZero(t *testing.T) {
	now := time.Now()
	pos, err := NewPosition("0xabc", decimal.NewFromInt(1), now)
	require.NoError(t, err)
	require.NoError(t, pos.AddDebt(decimal.NewFromInt(100), now))

	repaid, err := pos.ReduceDebt(decimal.NewFromInt(250), now)
	require.NoError(t, err)
	assert.True(t, repaid.Equal(decimal.NewFromInt(100)), "repaid %s", repaid)
	assert.True(t, pos.DebtAmount.IsZero(), "debt must never go negative, got %s", pos.DebtAmount)
}

func TestPosition_IsEmpty(t *testing.T) {
	now := time.Now()
	pos, err := NewPosition("0xabc", decimal.NewFromInt(1), now)
	require.NoError(t, err)
	assert.False(t, pos.IsEmpty())

	pos.CollateralAmount = decimal.Zero
	assert.True(t, pos.IsEmpty())
}
