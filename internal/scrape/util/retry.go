package util

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to attempts times with exponential back-off, respecting ctx
// between attempts. No outbound fetch hangs: the caller wraps fn's own work in
// a deadline and this bounds how often it is tried again.
func Retry(ctx context.Context, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	delay := baseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last attempt error: %v)", name, ctx.Err(), lastErr)
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}
