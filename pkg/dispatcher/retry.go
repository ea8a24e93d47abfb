package dispatcher

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/goran-ethernal/chainobserver/pkg/config"
)

// calculateBackoff computes the exponential backoff duration for a given
// attempt with jitter, mirroring internal/rpc/retry.go's formula.
func calculateBackoff(attempt int, cfg *config.RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	backoff := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))
	if backoff > float64(cfg.MaxBackoff.Duration) {
		backoff = float64(cfg.MaxBackoff.Duration)
	}

	jitterRange := backoff * 0.25
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	backoff += jitter
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// deliverWithRetry runs fn up to cfg.MaxAttempts times with exponential
// backoff between attempts. Unlike internal/rpc/retry.go's retryWithBackoff,
// every non-nil error is treated as retryable: per spec.md §4.6, any non-2xx
// response or transport failure counts as a failed attempt, with no
// idempotency class to protect the way RPC reads have.
func deliverWithRetry(ctx context.Context, cfg *config.RetryConfig, predicateName string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		deliveryAttemptsInc(predicateName)
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			break
		}

		backoffDuration := calculateBackoff(attempt, cfg)
		if backoffDuration > 0 {
			select {
			case <-time.After(backoffDuration):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d): %w", attempt, cfg.MaxAttempts, ctx.Err())
			}
		}
	}

	return fmt.Errorf("%w: %d attempts, last error: %v", ErrDeliveryFailed, cfg.MaxAttempts, lastErr)
}
