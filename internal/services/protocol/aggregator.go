// Package protocol composes the price feed, position store and risk
// engine into the protocol-wide view the dashboard reads. It is the only
// surface outer layers are allowed to query.
package protocol

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenlend/zenlend/internal/domain"
	"github.com/zenlend/zenlend/internal/services/analytics"
	"github.com/zenlend/zenlend/internal/services/positions"
	"github.com/zenlend/zenlend/internal/services/pricefeed"
	"github.com/zenlend/zenlend/internal/services/riskengine"
)

// Aggregator owns the price feed lifecycle and exposes protocol-wide
// statistics and per-owner risk views.
type Aggregator struct {
	feed    *pricefeed.Feed
	store   *positions.Store
	history *analytics.History
	params  riskengine.Params
	logger  *zap.Logger
}

// New creates an aggregator over the given feed and store.
func New(feed *pricefeed.Feed, store *positions.Store, history *analytics.History, params riskengine.Params, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		feed:    feed,
		store:   store,
		history: history,
		params:  params,
		logger:  logger,
	}
}

// Run starts the price feed and consumes its updates until ctx is done.
// The feed's lifecycle is tied to the aggregator: stopping Run stops
// polling.
func (a *Aggregator) Run(ctx context.Context, pollInterval time.Duration) error {
	a.feed.Start(ctx, pollInterval)
	defer a.feed.Stop()

	updates := a.feed.Subscribe()
	defer a.feed.Unsubscribe(updates)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case point, ok := <-updates:
			if !ok {
				return nil
			}
			a.onPrice(point)
		}
	}
}

func (a *Aggregator) onPrice(point domain.PricePoint) {
	if a.history != nil {
		a.history.Append(point)
	}

	for _, pos := range a.store.All() {
		snap, err := riskengine.Snapshot(pos, point, a.params)
		if err != nil {
			a.logger.Error("risk recomputation failed",
				zap.String("owner", pos.Owner), zap.Error(err))
			continue
		}
		if snap.Tier != domain.TierHealthy {
			a.logger.Warn("position below healthy tier",
				zap.String("owner", pos.Owner),
				zap.String("tier", snap.Tier.String()),
				zap.String("health_factor", snap.HealthFactor.StringFixed(4)),
				zap.String("price", point.Price.String()))
		}
	}
}

// Stats folds all open positions with the latest price. Before the
// first observation it returns zeroed stats rather than failing.
func (a *Aggregator) Stats() domain.ProtocolStats {
	price, hasPrice := a.feed.Current()
	if !hasPrice {
		return domain.ProtocolStats{}
	}

	all := a.store.All()

	totalCollateral := decimal.Zero
	totalDebt := decimal.Zero
	for _, pos := range all {
		totalCollateral = totalCollateral.Add(pos.CollateralAmount)
		totalDebt = totalDebt.Add(pos.DebtAmount)
	}
	totalValue := totalCollateral.Mul(price.Price)

	stats := domain.ProtocolStats{
		TotalCollateral:      totalCollateral,
		TotalCollateralValue: totalValue,
		TotalDebt:            totalDebt,
		ActivePositionCount:  len(all),
		Price:                price,
		HasPrice:             true,
	}
	if totalDebt.IsZero() {
		stats.GlobalRatioUnbounded = len(all) > 0
		return stats
	}
	stats.GlobalRatioPct = totalValue.Div(totalDebt).Mul(decimal.NewFromInt(100))
	return stats
}

// PositionView derives the owner's risk snapshot at the latest price.
// It returns nil when the owner has no open position. Before the first
// price observation the snapshot carries no derived numbers: a debt-free
// position is still healthy at any price, an indebted one gets
// TierUnknown rather than a tier no price can back. Every field of the
// snapshot comes from the same price observation.
func (a *Aggregator) PositionView(owner string) (*domain.RiskSnapshot, error) {
	pos, ok := a.store.Get(owner)
	if !ok {
		return nil, nil
	}

	price, hasPrice := a.feed.Current()
	if !hasPrice {
		snap := domain.RiskSnapshot{RatioUnbounded: pos.DebtAmount.IsZero()}
		if snap.RatioUnbounded {
			snap.Tier = domain.TierHealthy
		} else {
			snap.Tier = domain.TierUnknown
		}
		return &snap, nil
	}

	snap, err := riskengine.Snapshot(pos, price, a.params)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// CurrentPrice exposes the feed's cached observation.
func (a *Aggregator) CurrentPrice() (domain.PricePoint, bool) {
	return a.feed.Current()
}

// Analytics returns the trend summary over the observed price history.
func (a *Aggregator) Analytics() analytics.Summary {
	if a.history == nil {
		return analytics.Summary{}
	}
	return a.history.Summarize()
}

// Deposit, Mint and Repay pass through to the store so the outer layers
// only ever talk to the aggregator.

func (a *Aggregator) Deposit(ctx context.Context, owner string, amount decimal.Decimal, secret string) error {
	return a.store.Deposit(ctx, owner, amount, secret)
}

func (a *Aggregator) Mint(ctx context.Context, owner string, amount decimal.Decimal) error {
	return a.store.Mint(ctx, owner, amount)
}

func (a *Aggregator) Repay(ctx context.Context, owner string, amount decimal.Decimal) (decimal.Decimal, error) {
	return a.store.Repay(ctx, owner, amount)
}
