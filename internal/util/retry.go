package util

import (
	"context"
	"fmt"
	"time"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay and capped at maxDelay (no cap when maxDelay is zero). fn receives
// the 1-based attempt number. It returns nil on the first successful call, or
// the last error wrapped with the attempt count. Context cancellation between
// attempts aborts the loop.
func Retry(ctx context.Context, maxAttempts int, baseDelay, maxDelay time.Duration, fn func(attempt int) error) error {
	var err error
	delay := baseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
