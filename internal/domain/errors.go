package domain

import "github.com/pkg/errors"

// Typed errors shared across the engine. All of them are local to the
// failing operation; none is fatal to the process.
var (
	// ErrInvalidAmount rejects non-positive or otherwise malformed amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrNegativeInput rejects negative values fed to risk computations.
	ErrNegativeInput = errors.New("negative input")

	// ErrEmptyOwner rejects transitions without an owner account.
	ErrEmptyOwner = errors.New("owner account is required")

	// ErrNoPosition is returned when an operation requires an open position.
	ErrNoPosition = errors.New("no open position for owner")

	// ErrNoDebt is returned when repay is attempted on a debt-free position.
	ErrNoDebt = errors.New("position has no outstanding debt")

	// ErrUnderCollateralized is returned when a mint would breach the
	// minimum collateral ratio. The caller must reduce the requested
	// amount or add collateral first.
	ErrUnderCollateralized = errors.New("mint would breach minimum collateral ratio")

	// ErrPositionBusy signals that a previous transition for the same
	// owner has not settled yet. The caller may retry.
	ErrPositionBusy = errors.New("position busy, retry")

	// ErrPriceUnavailable is returned when an operation needs a price
	// observation and none has been made yet.
	ErrPriceUnavailable = errors.New("no price observed yet")
)
