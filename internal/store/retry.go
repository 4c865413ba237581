package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds how long a write keeps retrying under contention.
type RetryPolicy struct {
	Attempts  int           // Total tries including the first (default: 5)
	BaseDelay time.Duration // Delay after the first failure, doubled each time (default: 50ms)
	MaxDelay  time.Duration // Upper bound for a single delay (default: 2s)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  5,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  2 * time.Second,
	}
}

// Delay returns the pause that follows the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// Retrier runs store writes and retries those that fail with ErrBusy.
// Every mutating store operation goes through one Retrier; callers never
// retry store calls themselves.
type Retrier struct {
	policy RetryPolicy
	logger *slog.Logger

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(op string, attempt int, delay time.Duration, err error)
}

// NewRetrier creates a Retrier. Zero fields in policy take their defaults.
func NewRetrier(policy RetryPolicy, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		policy: policy.withDefaults(),
		logger: logger,
	}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() RetryPolicy { return r.policy }

// Do runs fn until it succeeds, fails with a non-busy error, the attempts run
// out, or ctx is done. The returned error wraps the last failure.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Do for operations that produce a value.
func RetryValue[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		tries   uint
		lastErr error
	)
	attempts := uint(r.policy.Attempts)

	out, err := retry.DoWithData(
		func() (T, error) {
			tries++
			v, err := fn(ctx)
			lastErr = err
			return v, err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(r.policy.BaseDelay),
		retry.MaxDelay(r.policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrBusy) }),
		retry.OnRetry(func(n uint, err error) {
			// retry-go reports the final failure too; no sleep follows it.
			if n+1 >= attempts {
				return
			}
			delay := r.policy.Delay(int(n) + 1)
			r.logger.Warn("database busy, retrying",
				"op", op,
				"attempt", n+1,
				"delay", delay,
			)
			if r.OnRetry != nil {
				r.OnRetry(op, int(n)+1, delay, err)
			}
		}),
	)

	switch {
	case err == nil:
		if tries > 1 {
			r.logger.Debug("store write succeeded after retry", "op", op, "attempt", tries)
		}
		return out, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return out, fmt.Errorf("%s: %w", op, errors.Join(ctx.Err(), lastErr))
	case errors.Is(err, ErrBusy):
		r.logger.Error("database busy, giving up", "op", op, "attempts", tries)
		return out, fmt.Errorf("%s: gave up after %d attempts: %w", op, tries, err)
	default:
		return out, err
	}
}
