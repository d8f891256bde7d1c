package agent

import (
	"context"
	"time"
)

// RetryPolicy retries with linear backoff: the wait before retry n is
// n × Delay.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	Delay       time.Duration
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. onRetry, if set, is called before each wait. The last
// error is returned; a cancelled ctx during a wait returns ctx.Err().
func (p RetryPolicy) Do(
	ctx context.Context,
	isRetryable func(error) bool,
	onRetry func(attempt int, wait time.Duration, err error),
	sleep func(context.Context, time.Duration) error,
	op func(attempt int) error,
) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == attempts {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := p.Delay * time.Duration(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, lastErr)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
