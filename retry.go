package warmcache

import (
	"context"
	"time"
)

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Backoff retries an operation with exponentially growing delays
// (BaseDelay, 2x, 4x, ...). Used uniformly around source reads and cache
// writes instead of per-call-site retry loops.
type Backoff struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // first retry delay; doubles each retry
	Retryable  Classifier    // nil => every error is retryable
}

// Do runs fn until it succeeds, the error is classified non-retryable,
// retries are exhausted, or ctx is done. Returns the last error.
func (b Backoff) Do(ctx context.Context, fn func(context.Context) error) error {
	delay := b.BaseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= b.MaxRetries {
			return err
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
			delay *= 2
		}
	}
}
