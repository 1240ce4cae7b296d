package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxRetryDelay = 10 * time.Minute

// TimeoutStage bounds every attempt with d. An attempt cut by this stage reports
// ErrTimeout; a cancellation coming from the caller's context is returned as the
// caller's context error instead.
func TimeoutStage(d time.Duration) Stage {
	return Stage{Name: "timeout", Wrap: func(next Attempt) Attempt {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			err := next(attemptCtx)
			if err == nil {
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("%w: %v", cerr, err)
			}
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s: %v", ErrTimeout, d, err)
			}
			return err
		}
	}}
}

// BreakerStage rejects attempts while b is open and feeds outcomes back into it.
func BreakerStage(b *Breaker) Stage {
	return Stage{Name: "circuit-breaker", Wrap: func(next Attempt) Attempt {
		return func(ctx context.Context) error {
			return b.Execute(ctx, next)
		}
	}}
}

// RetryStage retries qualifying failures up to count times. The delay before
// retry n is base*2^n (200ms, 400ms, 800ms for the 100ms default).
func RetryStage(count int, base time.Duration, notify func(context.Context, RetryEvent)) Stage {
	return Stage{Name: "retry", Wrap: func(next Attempt) Attempt {
		if count <= 0 {
			return next
		}
		return func(ctx context.Context) error {
			retries := 0
			op := func() error {
				err := next(ctx)
				if err != nil && (!Qualifies(err) || ctx.Err() != nil) {
					return backoff.Permanent(err)
				}
				return err
			}

			b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(base), uint64(count)), ctx)
			err := backoff.RetryNotify(op, b, func(err error, d time.Duration) {
				retries++
				if notify != nil {
					notify(ctx, RetryEvent{Retry: retries, Of: count, Delay: d, Err: err})
				}
			})
			if err != nil && retries > 0 && Qualifies(err) {
				return &RetryError{Retries: retries, Err: err}
			}
			return err
		}
	}}
}

func newBackOff(base time.Duration) *backoff.ExponentialBackOff {
	if base <= 0 {
		base = DefaultRetryBase
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
