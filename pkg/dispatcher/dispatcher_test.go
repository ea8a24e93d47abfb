package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/common"
	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testDispatcherConfig() *config.DispatcherConfig {
	return &config.DispatcherConfig{
		Retry: config.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    common.NewDuration(time.Millisecond),
			MaxBackoff:        common.NewDuration(5 * time.Millisecond),
			BackoffMultiplier: 2.0,
		},
		RequestTimeout: common.NewDuration(time.Second),
		Workers:        2,
	}
}

func TestDispatcher_DeliversSuccessfully(t *testing.T) {
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(testDispatcherConfig(), logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	pred := &predicate.Predicate{UUID: uuid.New(), Name: "test-hook", Action: predicate.HookAction{URL: server.URL, Method: http.MethodPost}}
	require.NoError(t, d.Dispatch(Job{Predicate: pred, Trigger: predicate.Trigger{PredicateUUID: pred.UUID}}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	d.Close()
	<-done
}

func TestDispatcher_DropsAfterRetryExhaustion(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(testDispatcherConfig(), logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	pred := &predicate.Predicate{UUID: uuid.New(), Name: "test-hook", Action: predicate.HookAction{URL: server.URL, Method: http.MethodPost}}
	require.NoError(t, d.Dispatch(Job{Predicate: pred, Trigger: predicate.Trigger{PredicateUUID: pred.UUID}}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == int32(testDispatcherConfig().Retry.MaxAttempts)
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	d.Close()
	<-done
}

func TestDispatcher_Dispatch_DropsWhenQueueFull(t *testing.T) {
	cfg := testDispatcherConfig()
	cfg.Workers = 1
	d := NewDispatcher(cfg, logger.NewNopLogger())
	// Do not start Run: the job channel fills up and the next Dispatch call
	// must return ErrQueueFull rather than block.
	pred := &predicate.Predicate{UUID: uuid.New(), Name: "test-hook", Action: predicate.HookAction{URL: "http://example.invalid", Method: http.MethodPost}}

	capacity := cap(d.jobs)
	for i := 0; i < capacity; i++ {
		require.NoError(t, d.Dispatch(Job{Predicate: pred, Trigger: predicate.Trigger{PredicateUUID: pred.UUID}}))
	}

	err := d.Dispatch(Job{Predicate: pred, Trigger: predicate.Trigger{PredicateUUID: pred.UUID}})
	require.ErrorIs(t, err, ErrQueueFull)
}
