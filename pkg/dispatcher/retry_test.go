package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/common"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxAttempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestDeliverWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := deliverWithRetry(context.Background(), fastRetryConfig(3), "p", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDeliverWithRetry_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := deliverWithRetry(context.Background(), fastRetryConfig(3), "p", func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDeliverWithRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := deliverWithRetry(context.Background(), fastRetryConfig(3), "p", func() error {
		calls++
		return errors.New("permanent failure")
	})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.Equal(t, 3, calls)
}

func TestDeliverWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := deliverWithRetry(ctx, fastRetryConfig(5), "p", func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("fail")
	})
	require.Error(t, err)
	require.Less(t, calls, 5)
}

func TestCalculateBackoff_FirstAttemptIsZero(t *testing.T) {
	require.Equal(t, time.Duration(0), calculateBackoff(1, fastRetryConfig(3)))
}

func TestCalculateBackoff_CapsAtMaxBackoff(t *testing.T) {
	cfg := fastRetryConfig(10)
	d := calculateBackoff(9, cfg)
	require.LessOrEqual(t, d, cfg.MaxBackoff.Duration+cfg.MaxBackoff.Duration/4)
}
