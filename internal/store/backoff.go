package store

import (
	"context"
	"math/rand"
	"time"
)

// Retry runs fn, retrying transient failures with bounded exponential
// backoff (base 50ms, capped at 1s, full jitter) before giving up after
// maxAttempts. Callers surface the final error as
// protocol.ErrBackingStoreUnavailable.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	const base = 50 * time.Millisecond
	const maxDelay = 1 * time.Second

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := base << attempt
		if delay > maxDelay || delay <= 0 {
			delay = maxDelay
		}
		jittered := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
