package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/mkarczewski/bookrag/pkg/types"
)

// RetryConfig controls backoff for transient service failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches the embedding service's published rate-limit
// guidance: a few retries with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// retryWithBackoff runs fn, retrying only on ErrServiceUnavailable. Token
// limit errors are never retried here: they are the adaptive batcher's
// signal to shrink the batch, and retrying the same payload cannot help.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, types.ErrServiceUnavailable) {
			return zero, err
		}
	}
	return zero, lastErr
}
