// Package retry provides a bounded retry combinator.
package retry

import (
	"context"
	"time"
)

// BackoffFunc returns the delay before the next attempt. attempt is the
// zero-based index of the attempt that just failed.
type BackoffFunc func(attempt int, err error) time.Duration

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxAttempts includes the first call; values below 1 mean a single call.
	MaxAttempts int
	Backoff     BackoffFunc
	Retryable   func(err error) bool
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) || attempt == maxAttempts-1 {
			return err
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt, err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if sleepErr := Sleep(ctx, wait); sleepErr != nil {
			return err
		}
	}
	return err
}

// Exponential returns base * 2^attempt.
func Exponential(base time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		return base * time.Duration(1<<uint(attempt))
	}
}

// Constant always waits d.
func Constant(d time.Duration) BackoffFunc {
	return func(int, error) time.Duration { return d }
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
