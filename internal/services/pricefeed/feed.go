// Package pricefeed polls an external price source on a fixed interval,
// caches the latest observation and fans it out to subscribers. Source
// failures never surface to dependents: the feed falls back to a fixed
// last-known-good constant so position rendering is never blocked on
// price availability.
package pricefeed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenlend/zenlend/internal/domain"
	"github.com/zenlend/zenlend/internal/events"
	"github.com/zenlend/zenlend/internal/services/pricesource"
)

const (
	defaultFetchTimeout = 10 * time.Second
	broadcastBuffer     = 64
)

// DefaultFallbackPrice is the fixed observation used when the source
// fails. It is a constant, not the previous cache, so a long outage is
// visible as a stale flat line instead of a frozen "live" price.
var DefaultFallbackPrice = decimal.RequireFromString("67450.32")

// Feed owns the cached PricePoint: it is the single writer, everyone
// else reads through Current or a subscription.
type Feed struct {
	source        pricesource.Source
	asset         string
	fallbackPrice decimal.Decimal
	fetchTimeout  time.Duration
	logger        *zap.Logger

	broadcaster *events.PriceBroadcaster
	inFlight    atomic.Bool

	mu        sync.RWMutex
	latest    domain.PricePoint
	hasLatest bool
	running   bool
	cancel    context.CancelFunc
}

// New creates a feed for the given asset. A zero fallbackPrice selects
// DefaultFallbackPrice.
func New(source pricesource.Source, asset string, fallbackPrice decimal.Decimal, logger *zap.Logger) *Feed {
	if fallbackPrice.LessThanOrEqual(decimal.Zero) {
		fallbackPrice = DefaultFallbackPrice
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		source:        source,
		asset:         asset,
		fallbackPrice: fallbackPrice,
		fetchTimeout:  defaultFetchTimeout,
		logger:        logger.With(zap.String("asset", asset)),
		broadcaster:   events.NewPriceBroadcaster(broadcastBuffer),
	}
}

// SetFetchTimeout overrides the per-fetch deadline. Call before Start.
func (f *Feed) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		f.fetchTimeout = d
	}
}

// FetchOnce performs a single fetch from the source. It never returns an
// error: network failures, timeouts, malformed responses and invalid
// prices all fold into the fallback observation, marked stale.
func (f *Feed) FetchOnce(ctx context.Context) domain.PricePoint {
	fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	point, err := f.source.Fetch(fetchCtx, f.asset)
	if err != nil {
		f.logger.Warn("price fetch failed, using fallback", zap.Error(err))
		return f.fallbackPoint()
	}
	if point.Price.LessThanOrEqual(decimal.Zero) {
		f.logger.Warn("price source returned non-positive price, using fallback",
			zap.String("price", point.Price.String()))
		return f.fallbackPoint()
	}
	return point
}

func (f *Feed) fallbackPoint() domain.PricePoint {
	return domain.PricePoint{
		Asset:      f.asset,
		Price:      f.fallbackPrice,
		ObservedAt: time.Now(),
		Stale:      true,
	}
}

// Start begins periodic polling: one immediate fetch, then one per
// interval. Only one Start may be active; a second call without Stop is
// a no-op with a warning. A tick whose previous fetch has not completed
// is skipped so fetches never overlap.
func (f *Feed) Start(ctx context.Context, interval time.Duration) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		f.logger.Warn("price feed already started, ignoring Start")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.running = true
	f.cancel = cancel
	f.mu.Unlock()

	go f.poll(runCtx, interval)
}

func (f *Feed) poll(ctx context.Context, interval time.Duration) {
	f.logger.Info("price feed started", zap.Duration("interval", interval))

	f.fetchAndPublish(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("price feed stopped")
			return
		case <-ticker.C:
			if !f.inFlight.CompareAndSwap(false, true) {
				f.logger.Debug("previous fetch still in flight, skipping tick")
				continue
			}
			go func() {
				defer f.inFlight.Store(false)
				f.fetchAndPublish(ctx)
			}()
		}
	}
}

// fetchAndPublish fetches one observation and delivers it, unless the
// feed was stopped while the fetch was in flight. A late fetch must
// neither update the cache nor reach subscribers.
func (f *Feed) fetchAndPublish(ctx context.Context) {
	point := f.FetchOnce(ctx)

	if ctx.Err() != nil {
		return
	}

	f.mu.Lock()
	f.latest = point
	f.hasLatest = true
	f.mu.Unlock()

	f.broadcaster.Publish(point)
	f.logger.Debug("price updated",
		zap.String("price", point.Price.String()),
		zap.Bool("stale", point.Stale))
}

// Stop cancels the polling timer without waiting for an in-flight fetch.
// Calling Stop on an already-stopped feed is a no-op.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	f.cancel()
	f.cancel = nil
}

// Current returns the most recently cached observation without fetching.
// ok is false before the first fetch (successful or fallback) completes.
func (f *Feed) Current() (domain.PricePoint, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, f.hasLatest
}

// Subscribe returns a channel receiving every published observation.
func (f *Feed) Subscribe() chan domain.PricePoint {
	return f.broadcaster.Subscribe()
}

// Unsubscribe removes and closes a subscription channel.
func (f *Feed) Unsubscribe(ch chan domain.PricePoint) {
	f.broadcaster.Unsubscribe(ch)
}
