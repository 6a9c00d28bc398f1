package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents a single owner's lending position tracked in memory.
// Exactly one Position exists per owner. It is created on the first
// successful deposit and mutated in place by deposit, mint and repay.
type Position struct {
	Owner            string
	CollateralAmount decimal.Decimal
	DebtAmount       decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPosition constructs a position opened by a first deposit.
func NewPosition(owner string, collateralAmount decimal.Decimal, openedAt time.Time) (*Position, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if collateralAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	return &Position{
		Owner:            owner,
		CollateralAmount: collateralAmount,
		DebtAmount:       decimal.Zero,
		CreatedAt:        openedAt,
		UpdatedAt:        openedAt,
	}, nil
}

// AddCollateral increases the collateral amount.
func (p *Position) AddCollateral(amount decimal.Decimal, at time.Time) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	p.CollateralAmount = p.CollateralAmount.Add(amount)
	p.UpdatedAt = at
	return nil
}

// AddDebt increases the debt amount. Ratio checks belong to the caller;
// the position itself only guards basic input validity.
func (p *Position) AddDebt(amount decimal.Decimal, at time.Time) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	p.DebtAmount = p.DebtAmount.Add(amount)
	p.UpdatedAt = at
	return nil
}

// ReduceDebt repays up to amount of debt, clamped so debt never goes
// negative. Returns the amount actually repaid.
func (p *Position) ReduceDebt(amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	repaid := amount
	if repaid.GreaterThan(p.DebtAmount) {
		repaid = p.DebtAmount
	}
	p.DebtAmount = p.DebtAmount.Sub(repaid)
	p.UpdatedAt = at
	return repaid, nil
}

// IsEmpty reports whether both collateral and debt have returned to zero,
// which is the close condition for the position.
func (p *Position) IsEmpty() bool {
	return p.CollateralAmount.IsZero() && p.DebtAmount.IsZero()
}

// Clone returns a copy safe to hand out to readers.
func (p *Position) Clone() Position {
	return *p
}
