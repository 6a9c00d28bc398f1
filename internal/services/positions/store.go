// Package positions holds the authoritative in-memory position set and
// mutates it only through deposit, mint and repay transitions. Every
// transition is atomic for its owner: either the full amount change and
// its invariant checks succeed, or the position is unchanged.
package positions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenlend/zenlend/internal/domain"
	"github.com/zenlend/zenlend/internal/services/commitments"
	"github.com/zenlend/zenlend/internal/services/riskengine"
)

// PriceProvider supplies the latest cached price observation.
type PriceProvider interface {
	Current() (domain.PricePoint, bool)
}

// Committer obtains a commitment artifact for a deposit. Deposits
// succeed iff this call returns a well-formed commitment.
type Committer interface {
	Generate(ctx context.Context, amount decimal.Decimal, secret string) (commitments.Commitment, error)
}

// journalWriter records applied transitions for history and recovery.
type journalWriter interface {
	Append(record domain.TransitionRecord) error
}

// Store is the single owner of the position map. Transitions for the
// same owner are serialized: a second transition arriving while the
// first has not settled is rejected with ErrPositionBusy. Different
// owners proceed independently.
type Store struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	busy      map[string]struct{}

	prices    PriceProvider
	committer Committer
	journal   journalWriter
	params    riskengine.Params
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCommitter wires the commitment backend into deposits.
func WithCommitter(c Committer) Option {
	return func(s *Store) { s.committer = c }
}

// WithJournal wires transition persistence.
func WithJournal(j journalWriter) Option {
	return func(s *Store) { s.journal = j }
}

// WithRestoredPositions seeds the store with positions recovered from
// the journal.
func WithRestoredPositions(positions map[string]*domain.Position) Option {
	return func(s *Store) {
		for owner, pos := range positions {
			s.positions[owner] = pos
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a position store reading prices from the provider.
func NewStore(prices PriceProvider, params riskengine.Params, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		positions: make(map[string]*domain.Position),
		busy:      make(map[string]struct{}),
		prices:    prices,
		params:    params,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire marks the owner busy for the duration of one transition.
func (s *Store) acquire(owner string) error {
	if owner == "" {
		return domain.ErrEmptyOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.busy[owner]; taken {
		return domain.ErrPositionBusy
	}
	s.busy[owner] = struct{}{}
	return nil
}

func (s *Store) release(owner string) {
	s.mu.Lock()
	delete(s.busy, owner)
	s.mu.Unlock()
}

// Deposit adds collateral to the owner's position, creating it on first
// deposit. When a committer is configured, the deposit only succeeds
// after the backend returns a well-formed commitment for the amount.
func (s *Store) Deposit(ctx context.Context, owner string, amount decimal.Decimal, secret string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	if err := s.acquire(owner); err != nil {
		return err
	}
	defer s.release(owner)

	// the commitment call is the only suspension point; it runs outside
	// the map lock so other owners are not blocked on the backend
	if s.committer != nil {
		if _, err := s.committer.Generate(ctx, amount, secret); err != nil {
			return err
		}
	}

	now := s.now()

	s.mu.Lock()
	pos, ok := s.positions[owner]
	if !ok {
		created, err := domain.NewPosition(owner, amount, now)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.positions[owner] = created
		pos = created
	} else {
		if err := pos.AddCollateral(amount, now); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	record := s.record(pos, domain.TransitionDeposit, amount, now)
	s.mu.Unlock()

	s.appendJournal(record)
	s.logger.Info("collateral deposited",
		zap.String("owner", owner),
		zap.String("amount", amount.String()),
		zap.String("collateral", record.CollateralAfter.String()))
	return nil
}

// Mint borrows debt against the position. The transition is
// all-or-nothing: if the ratio after adding amount would fall below the
// minimum at the latest price, nothing is mutated.
func (s *Store) Mint(ctx context.Context, owner string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	if err := s.acquire(owner); err != nil {
		return err
	}
	defer s.release(owner)

	price, hasPrice := s.prices.Current()
	if !hasPrice {
		// the ratio check cannot run without a price observation
		return domain.ErrPriceUnavailable
	}

	now := s.now()

	s.mu.Lock()
	pos, ok := s.positions[owner]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNoPosition
	}

	value, err := riskengine.CollateralValue(pos.CollateralAmount, price.Price)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	ratio, err := riskengine.CollateralRatioPct(value, pos.DebtAmount.Add(amount))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !ratio.Unbounded && ratio.Pct.LessThan(s.params.MinRatioPct) {
		s.mu.Unlock()
		return domain.ErrUnderCollateralized
	}

	if err := pos.AddDebt(amount, now); err != nil {
		s.mu.Unlock()
		return err
	}
	record := s.record(pos, domain.TransitionMint, amount, now)
	s.mu.Unlock()

	s.appendJournal(record)
	s.logger.Info("debt minted",
		zap.String("owner", owner),
		zap.String("amount", amount.String()),
		zap.String("ratio_pct", ratio.Pct.StringFixed(2)))
	return nil
}

// Repay reduces the owner's debt by min(amount, debt); excess is
// silently clamped, never overdrawn. When both debt and collateral
// reach zero the position closes and leaves the active set.
func (s *Store) Repay(ctx context.Context, owner string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	if err := s.acquire(owner); err != nil {
		return decimal.Zero, err
	}
	defer s.release(owner)

	now := s.now()

	s.mu.Lock()
	pos, ok := s.positions[owner]
	if !ok {
		s.mu.Unlock()
		return decimal.Zero, domain.ErrNoPosition
	}
	if pos.DebtAmount.IsZero() {
		s.mu.Unlock()
		return decimal.Zero, domain.ErrNoDebt
	}

	repaid, err := pos.ReduceDebt(amount, now)
	if err != nil {
		s.mu.Unlock()
		return decimal.Zero, err
	}

	records := []domain.TransitionRecord{s.record(pos, domain.TransitionRepay, repaid, now)}
	closed := pos.IsEmpty()
	if closed {
		delete(s.positions, owner)
		records = append(records, s.record(pos, domain.TransitionClose, decimal.Zero, now))
	}
	s.mu.Unlock()

	for _, record := range records {
		s.appendJournal(record)
	}
	s.logger.Info("debt repaid",
		zap.String("owner", owner),
		zap.String("repaid", repaid.String()),
		zap.Bool("closed", closed))
	return repaid, nil
}

// Get returns a copy of the owner's open position.
func (s *Store) Get(owner string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[owner]
	if !ok {
		return domain.Position{}, false
	}
	return pos.Clone(), true
}

// All returns copies of every open position, ordered by owner for
// deterministic iteration.
func (s *Store) All() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// Count returns the number of open positions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

func (s *Store) record(pos *domain.Position, kind domain.TransitionKind, amount decimal.Decimal, at time.Time) domain.TransitionRecord {
	return domain.TransitionRecord{
		ID:              uuid.New().String(),
		Owner:           pos.Owner,
		Kind:            kind,
		Amount:          amount,
		CollateralAfter: pos.CollateralAmount,
		DebtAfter:       pos.DebtAmount,
		At:              at,
	}
}

// appendJournal persists a record best-effort: history must not undo an
// already-applied transition.
func (s *Store) appendJournal(record domain.TransitionRecord) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(record); err != nil {
		s.logger.Warn("failed to journal transition",
			zap.String("owner", record.Owner),
			zap.String("kind", string(record.Kind)),
			zap.Error(err))
	}
}
