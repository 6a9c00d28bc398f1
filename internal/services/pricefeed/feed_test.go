package pricefeed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenlend/zenlend/internal/domain"
)

type stubSource struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	delay time.Duration
	calls int
}

func (s *stubSource) Fetch(ctx context.Context, asset string) (domain.PricePoint, error) {
	s.mu.Lock()
	s.calls++
	price, err, delay := s.price, s.err, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.PricePoint{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.PricePoint{}, err
	}
	return domain.NewPricePoint(asset, price, decimal.Zero, time.Now())
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFeed_FetchOnce_Success(t *testing.T) {
	source := &stubSource{price: decimal.NewFromInt(60000)}
	feed := New(source, "BTC", decimal.Decimal{}, zap.NewNop())

	point := feed.FetchOnce(context.Background())
	assert.True(t, point.Price.Equal(decimal.NewFromInt(60000)))
	assert.False(t, point.Stale)
}

func TestFeed_FetchOnce_FallbackOnError(t *testing.T) {
	source := &stubSource{err: errors.New("network down")}
	feed := New(source, "BTC", decimal.NewFromInt(50000), zap.NewNop())

	point := feed.FetchOnce(context.Background())
	assert.True(t, point.Stale, "fallback reading must be marked stale")
	assert.True(t, point.Price.Equal(decimal.NewFromInt(50000)), "fallback is the fixed constant, got %s", point.Price)
}

func TestFeed_Current_NilBeforeFirstFetch(t *testing.T) {
	feed := New(&stubSource{price: decimal.NewFromInt(1)}, "BTC", decimal.Decimal{}, zap.NewNop())

	_, ok := feed.Current()
	assert.False(t, ok)

	feed.Start(context.Background(), time.Hour)
	defer feed.Stop()

	require.Eventually(t, func() bool {
		_, ok := feed.Current()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestFeed_Start_DeliversToSubscribers(t *testing.T) {
	source := &stubSource{price: decimal.NewFromInt(60000)}
	feed := New(source, "BTC", decimal.Decimal{}, zap.NewNop())

	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	feed.Start(context.Background(), 20*time.Millisecond)
	defer feed.Stop()

	select {
	case point := <-ch:
		assert.True(t, point.Price.Equal(decimal.NewFromInt(60000)))
	case <-time.After(time.Second):
		t.Fatal("no price delivered after Start")
	}
}

func TestFeed_Start_Twice_IsNoOp(t *testing.T) {
	source := &stubSource{price: decimal.NewFromInt(1)}
	feed := New(source, "BTC", decimal.Decimal{}, zap.NewNop())

	feed.Start(context.Background(), time.Hour)
	defer feed.Stop()
	feed.Start(context.Background(), time.Millisecond) // ignored

	require.Eventually(t, func() bool { return source.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, source.callCount(), "second Start must not add a polling loop")
}

func TestFeed_Stop_Idempotent(t *testing.T) {
	feed := New(&stubSource{price: decimal.NewFromInt(1)}, "BTC", decimal.Decimal{}, zap.NewNop())
	feed.Start(context.Background(), time.Hour)

	feed.Stop()
	feed.Stop() // must not panic or error

	// feed can be started again after a full stop
	feed.Start(context.Background(), time.Hour)
	feed.Stop()
}

func TestFeed_NoDeliveryAfterStop(t *testing.T) {
	source := &stubSource{price: decimal.NewFromInt(1), delay: 50 * time.Millisecond}
	feed := New(source, "BTC", decimal.Decimal{}, zap.NewNop())

	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	feed.Start(context.Background(), time.Hour)
	// stop while the initial fetch is still in flight
	time.Sleep(10 * time.Millisecond)
	feed.Stop()

	select {
	case point, ok := <-ch:
		if ok {
			t.Fatalf("in-flight fetch delivered %s after Stop", point.Price)
		}
	case <-time.After(200 * time.Millisecond):
	}

	_, ok := feed.Current()
	assert.False(t, ok, "in-flight fetch must not update the cache after Stop")
}

func TestFeed_OverlappingFetchSkipsTick(t *testing.T) {
	source := &stubSource{price: decimal.NewFromInt(1), delay: 120 * time.Millisecond}
	feed := New(source, "BTC", decimal.Decimal{}, zap.NewNop())

	feed.Start(context.Background(), 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	feed.Stop()

	// initial fetch takes 120ms; during it every 20ms tick must be
	// skipped, so at most the initial call plus one follow-up ran.
	assert.LessOrEqual(t, source.callCount(), 2)
}
