package services

import (
	"context"
	"fmt"
	"time"
)

// Policy declares the retry budget for one kind of remote call. Budgets are
// owned by the caller so business logic never encodes attempt counts.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Refresher renews credentials after an authorization failure.
type Refresher func(context.Context) error

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
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

// Retry executes fn under the supplied policy. Transient failures are retried
// with fixed backoff until the attempt budget is exhausted. An authorization
// failure triggers one credential refresh followed by one retry of the same
// call; a second authorization failure is returned as-is. Fatal and unknown
// errors return immediately.
func Retry(ctx context.Context, policy Policy, refresh Refresher, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	refreshed := false
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		switch {
		case Unauthorized(err):
			if refreshed || refresh == nil {
				return err
			}
			if refreshErr := refresh(ctx); refreshErr != nil {
				return fmt.Errorf("refresh credentials: %w", refreshErr)
			}
			refreshed = true
			// The refreshed retry does not consume a transient attempt.
			attempt--
		case Retryable(err):
			if attempt == attempts {
				return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
			}
			if sleepErr := SleepWithContext(ctx, policy.Backoff); sleepErr != nil {
				return sleepErr
			}
		default:
			return err
		}
	}
	return lastErr
}
