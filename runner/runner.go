// Package runner retries transient store failures with bounded
// exponential backoff. Validation outcomes pass through untouched on
// the first attempt; only errors classified transient consume the
// retry budget.
package runner

import (
	"context"
	"time"

	lifecycle "github.com/goliatone/go-lifecycle"
)

// Defaults for the retry budget.
const (
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = 250 * time.Millisecond
	DefaultBackoffFactor = 2
	DefaultMaxDelay      = 5 * time.Second
)

// Retry runs operations against the retry budget.
type Retry struct {
	maxAttempts int
	strategy    Strategy
	retryable   func(error) bool
	logger      lifecycle.Logger
}

type Option func(*Retry)

// WithMaxAttempts caps total attempts, first call included.
func WithMaxAttempts(max int) Option {
	return func(r *Retry) {
		if max > 0 {
			r.maxAttempts = max
		}
	}
}

// WithStrategy sets the delay strategy between attempts.
func WithStrategy(s Strategy) Option {
	return func(r *Retry) {
		if s != nil {
			r.strategy = s
		}
	}
}

// WithRetryable overrides the error classifier deciding which failures
// consume the budget.
func WithRetryable(fn func(error) bool) Option {
	return func(r *Retry) {
		if fn != nil {
			r.retryable = fn
		}
	}
}

func WithLogger(l lifecycle.Logger) Option {
	return func(r *Retry) {
		r.logger = lifecycle.NormalizeLogger(l)
	}
}

// New constructs a Retry, applying defaults if unset.
func New(opts ...Option) *Retry {
	r := &Retry{
		maxAttempts: DefaultMaxAttempts,
		strategy: ExponentialBackoffStrategy{
			Base:   DefaultInitialDelay,
			Factor: DefaultBackoffFactor,
			Max:    DefaultMaxDelay,
		},
		retryable: lifecycle.IsTransient,
		logger:    lifecycle.NormalizeLogger(nil),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// Do runs fn until it succeeds, returns a non-retryable error, the
// context ends, or the attempt budget is exhausted. Exhaustion returns
// a max-retries error wrapping the last failure.
func (r *Retry) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.retryable(lastErr) {
			return lastErr
		}

		if attempt < r.maxAttempts-1 {
			delay := r.strategy.SleepDuration(attempt, lastErr)
			lifecycle.WithLoggerFields(r.logger, map[string]any{
				"attempt":      attempt + 1,
				"max_attempts": r.maxAttempts,
				"delay":        delay.String(),
			}).Debug("retrying after transient failure: %v", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lifecycle.NewMaxRetriesExceeded(r.maxAttempts, lastErr)
}

// Query runs a value-returning operation under retry.
func Query[R any](ctx context.Context, r *Retry, fn func(context.Context) (R, error)) (R, error) {
	var result R
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
