package positions

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenlend/zenlend/internal/domain"
	"github.com/zenlend/zenlend/internal/services/commitments"
	"github.com/zenlend/zenlend/internal/services/riskengine"
)

type stubPrices struct {
	mu    sync.Mutex
	point domain.PricePoint
	has   bool
}

func (p *stubPrices) Current() (domain.PricePoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.point, p.has
}

func (p *stubPrices) set(price int64) {
	p.mu.Lock()
	p.point = domain.PricePoint{Asset: "BTC", Price: decimal.NewFromInt(price)}
	p.has = true
	p.mu.Unlock()
}

type stubCommitter struct {
	err   error
	calls int
}

func (c *stubCommitter) Generate(ctx context.Context, amount decimal.Decimal, secret string) (commitments.Commitment, error) {
	c.calls++
	if c.err != nil {
		return commitments.Commitment{}, c.err
	}
	return commitments.Commitment{Commitment: "0xabc"}, nil
}

func newTestStore(opts ...Option) (*Store, *stubPrices) {
	prices := &stubPrices{}
	store := NewStore(prices, riskengine.DefaultParams(), nil, opts...)
	return store, prices
}

func TestStore_Deposit_CreatesAndTopsUp(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Deposit(ctx, "alice", decimal.NewFromInt(1), ""))
	pos, ok := store.Get("alice")
	require.True(t, ok)
	assert.True(t, pos.CollateralAmount.Equal(decimal.NewFromInt(1)))
	assert.True(t, pos.DebtAmount.IsZero())

	require.NoError(t, store.Deposit(ctx, "alice", decimal.NewFromInt(2), ""))
	pos, _ = store.Get("alice")
	assert.True(t, pos.CollateralAmount.Equal(decimal.NewFromInt(3)))
	assert.True(t, pos.DebtAmount.IsZero(), "deposit must not touch debt")
}

func TestStore_Deposit_RejectsNonPositive(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	require.ErrorIs(t, store.Deposit(ctx, "alice", decimal.Zero, ""), domain.ErrInvalidAmount)
	require.ErrorIs(t, store.Deposit(ctx, "alice", decimal.NewFromInt(-5), ""), domain.ErrInvalidAmount)
	assert.Equal(t, 0, store.Count())
}

func TestStore_Deposit_RequiresCommitment(t *testing.T) {
	committer := &stubCommitter{err: errors.New("backend down")}
	store, _ := newTestStore(WithCommitter(committer))

	err := store.Deposit(context.Background(), "alice", decimal.NewFromInt(1), "hunter2hunter2")
	require.Error(t, err)
	assert.Equal(t, 0, store.Count(), "failed commitment must leave no position")

	committer.err = nil
	require.NoError(t, store.Deposit(context.Background(), "alice", decimal.NewFromInt(1), "hunter2hunter2"))
	assert.Equal(t, 2, committer.calls)
}

func TestStore_Mint_RatioBoundary(t *testing.T) {
	store, prices := newTestStore()
	ctx := context.Background()
	prices.set(60000)

	require.NoError(t, store.Deposit(ctx, "alice", decimal.NewFromInt(1), ""))

	// 60000 / 40001 * 100 is just under 150% and must be rejected with
	// no mutation
	err := store.Mint(ctx, "alice", decimal.NewFromInt(40001))
	require.ErrorIs(t, err, domain.ErrUnderCollateralized)
	pos, _ := store.Get("alice")
	assert.True(t, pos.DebtAmount.IsZero(), "rejected mint must not mutate debt")

	// exactly 150% passes
	require.NoError(t, store.Mint(ctx, "alice", decimal.NewFromInt(40000)))
	pos, _ = store.Get("alice")
	assert.True(t, pos.DebtAmount.Equal(decimal.NewFromInt(40000)))
}

func TestStore_Mint_RequiresPositionAndPrice(t *testing.T) {
	store, prices := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Deposit(ctx, "alice", decimal.NewFromInt(1), ""))
	require.ErrorIs(t, store.Mint(ctx, "alice", decimal.NewFromInt(1)), domain.ErrPriceUnavailable)

	prices.set(60000)
	require.ErrorIs(t, store.Mint(ctx, "bob", decimal.NewFromInt(1)), domain.ErrNoPosition)
	require.ErrorIs(t, store.Mint(ctx, "alice", decimal.Zero), domain.ErrInvalidAmount)
}

func TestStore_Repay_ClampsAtDebt(t *testing.T) {
	store, prices := newTestStore()
	ctx := context.Background()
	prices.set(60000)

	require.NoError(t, store.Deposit(ctx, "alice", decimal.NewFromInt(1), ""))
	require.NoError(t, store.Mint(ctx, "alice", decimal.NewFromInt(10000)))

	repaid, err := store.Repay(ctx, "alice", decimal.NewFromInt(99999))
	require.NoError(t, err)
	assert.True(t, repaid.Equal(decimal.NewFromInt(10000)), "repaid %s", repaid)

	pos, ok := store.Get("alice")
	require.True(t, ok, "position with collateral stays open after full repay")
	assert.True(t, pos.DebtAmount.IsZero())

	_, err = store.Repay(ctx, "alice", decimal.NewFromInt(1))
	require.ErrorIs(t, err, domain.ErrNoDebt)
}

func TestStore_Repay_ClosesEmptyPosition(t *testing.T) {
	store, prices := newTestStore()
	ctx := context.Background()
	prices.set(60000)

	require.NoError(t, store.Deposit(ctx, "alice", decimal.NewFromInt(1), ""))
	require.NoError(t, store.Mint(ctx, "alice", decimal.NewFromInt(1000)))

	// simulate full collateral withdrawal so the close condition can
	// trigger on the final repay
	store.mu.Lock()
	store.positions["alice"].CollateralAmount = decimal.Zero
	store.mu.Unlock()

	_, err := store.Repay(ctx, "alice", decimal.NewFromInt(1000))
	require.NoError(t, err)

	_, ok := store.Get("alice")
	assert.False(t, ok, "empty position must leave the active set")
	assert.Equal(t, 0, store.Count())
}

func TestStore_BusyOwnerRejected(t *testing.T) {
	store, _ := newTestStore()

	require.NoError(t, store.acquire("alice"))
	err := store.Deposit(context.Background(), "alice", decimal.NewFromInt(1), "")
	require.ErrorIs(t, err, domain.ErrPositionBusy)

	// other owners are unaffected
	require.NoError(t, store.Deposit(context.Background(), "bob", decimal.NewFromInt(1), ""))

	store.release("alice")
	require.NoError(t, store.Deposit(context.Background(), "alice", decimal.NewFromInt(1), ""))
}

type recordingJournal struct {
	mu      sync.Mutex
	records []domain.TransitionRecord
}

func (j *recordingJournal) Append(record domain.TransitionRecord) error {
	j.mu.Lock()
	j.records = append(j.records, record)
	j.mu.Unlock()
	return nil
}

func TestStore_JournalsTransitions(t *testing.T) {
	journal := &recordingJournal{}
	prices := &stubPrices{}
	store := NewStore(prices, riskengine.DefaultParams(), nil, WithJournal(journal))
	prices.set(60000)
	ctx := context.Background()

	require.NoError(t, store.Deposit(ctx, "alice", decimal.NewFromInt(1), ""))
	require.NoError(t, store.Mint(ctx, "alice", decimal.NewFromInt(1000)))
	_, err := store.Repay(ctx, "alice", decimal.NewFromInt(400))
	require.NoError(t, err)

	require.Len(t, journal.records, 3)
	assert.Equal(t, domain.TransitionDeposit, journal.records[0].Kind)
	assert.Equal(t, domain.TransitionMint, journal.records[1].Kind)
	assert.Equal(t, domain.TransitionRepay, journal.records[2].Kind)
	assert.True(t, journal.records[2].DebtAfter.Equal(decimal.NewFromInt(600)))
	assert.NotEmpty(t, journal.records[0].ID)
}

func TestStore_RestoredPositions(t *testing.T) {
	restored := map[string]*domain.Position{
		"alice": {Owner: "alice", CollateralAmount: decimal.NewFromInt(2), DebtAmount: decimal.NewFromInt(500)},
	}
	store, prices := newTestStore(WithRestoredPositions(restored))
	prices.set(60000)

	pos, ok := store.Get("alice")
	require.True(t, ok)
	assert.True(t, pos.DebtAmount.Equal(decimal.NewFromInt(500)))

	require.NoError(t, store.Mint(context.Background(), "alice", decimal.NewFromInt(100)))
	pos, _ = store.Get("alice")
	assert.True(t, pos.DebtAmount.Equal(decimal.NewFromInt(600)))
}
