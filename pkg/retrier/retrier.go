// Package retrier retries failing calls with exponential backoff and
// jitter. It is transport-agnostic: callers wrap whatever operation they
// want retried in a closure.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 10 * time.Second
	defaultAttempts   = 3
	defaultJitterFrac = 0.2
)

// Retrier retries an operation up to a fixed number of attempts, with
// the delay doubling between attempts up to a cap.
type Retrier struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	attempts   int
	jitterFrac float64
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Retrier) { r.baseDelay = d }
}

// WithMaxDelay caps the delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) { r.maxDelay = d }
}

// WithAttempts sets the total number of attempts, including the first.
func WithAttempts(n int) Option {
	return func(r *Retrier) { r.attempts = n }
}

// WithJitter sets the jitter fraction (0.0 to 1.0) applied to each delay.
func WithJitter(frac float64) Option {
	return func(r *Retrier) { r.jitterFrac = frac }
}

// New creates a Retrier with defaults overridden by opts.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		attempts:   defaultAttempts,
		jitterFrac: defaultJitterFrac,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	return r
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned when all attempts fail.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.baseDelay

	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.jittered(delay)):
		}

		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
	return err
}

func (r *Retrier) jittered(d time.Duration) time.Duration {
	if r.jitterFrac <= 0 {
		return d
	}
	jitter := (rand.Float64()*2 - 1) * r.jitterFrac * float64(d)
	out := time.Duration(float64(d) + jitter)
	if out < 0 {
		return 0
	}
	return out
}

// DoWithData runs fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
