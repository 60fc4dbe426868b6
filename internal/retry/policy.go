// Package retry provides the bounded exponential backoff shared by the task poller,
// the API transport and the database export loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gridconnect/gridconnect/internal/constants"
)

// Policy computes retry intervals as min(Base * Multiplier^attempt, Cap).
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Base is the interval before the first retry.
	Base time.Duration
	// Multiplier is the growth factor per attempt (default: 1.5).
	Multiplier float64
	// Cap bounds every computed interval.
	Cap time.Duration
	// OnRetry is an optional callback invoked before each retry sleep.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Sleep waits for d or until ctx is done. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return NewPolicy(constants.DefaultMaxRetryCount, constants.DefaultRetryBase,
		constants.DefaultRetryMultiplier, constants.DefaultRetryCap)
}

// NewPolicy builds a policy with maxRetries clamped to [3, 15] and base clamped to
// [1s, 60s]. A non-positive multiplier or cap falls back to the default.
func NewPolicy(maxRetries int, base time.Duration, multiplier float64, cap time.Duration) Policy {
	if multiplier <= 0 {
		multiplier = constants.DefaultRetryMultiplier
	}
	if cap <= 0 {
		cap = constants.DefaultRetryCap
	}
	return Policy{
		MaxRetries: ClampRetries(maxRetries),
		Base:       ClampBase(base),
		Multiplier: multiplier,
		Cap:        cap,
	}
}

// ClampRetries bounds a configured retry count.
func ClampRetries(n int) int {
	if n < constants.MinMaxRetryCount {
		return constants.MinMaxRetryCount
	}
	if n > constants.MaxMaxRetryCount {
		return constants.MaxMaxRetryCount
	}
	return n
}

// ClampBase bounds a configured base interval.
func ClampBase(d time.Duration) time.Duration {
	if d < constants.MinRetryBase {
		return constants.MinRetryBase
	}
	if d > constants.MaxRetryBase {
		return constants.MaxRetryBase
	}
	return d
}

// Interval returns the wait before retry number attempt (0-based).
func (p Policy) Interval(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = constants.DefaultRetryMultiplier
	}

	d := float64(p.Base) * math.Pow(mult, float64(attempt))
	if p.Cap > 0 && d > float64(p.Cap) {
		return p.Cap
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Do runs op until it succeeds, returns a non-retryable error, or MaxRetries
// retries have been spent. Context cancellation stops it immediately.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsNonRetryable(err) || errors.Is(err, context.Canceled) {
			return err
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("operation failed after %d attempts: %w", attempt+1, err)
		}

		wait := p.Interval(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, wait)
		}
		if err := p.wait(ctx, wait); err != nil {
			return err
		}
	}
}

// wait sleeps for d using the policy's sleeper.
func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
