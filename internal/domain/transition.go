package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransitionKind enumerates position state transitions.
type TransitionKind string

const (
	TransitionDeposit TransitionKind = "deposit"
	TransitionMint    TransitionKind = "mint"
	TransitionRepay   TransitionKind = "repay"
	TransitionClose   TransitionKind = "close"
)

// TransitionRecord is an applied position transition as persisted in the
// journal. Closed positions are never physically destroyed: their full
// history stays in the log.
type TransitionRecord struct {
	ID              string          `json:"id"`
	Owner           string          `json:"owner"`
	Kind            TransitionKind  `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	CollateralAfter decimal.Decimal `json:"collateral_after"`
	DebtAfter       decimal.Decimal `json:"debt_after"`
	At              time.Time       `json:"at"`
}

// TransitionEntry pairs a record with its journal index for streaming
// consumers that resume from a known index.
type TransitionEntry struct {
	Index  uint64
	Record TransitionRecord
}
