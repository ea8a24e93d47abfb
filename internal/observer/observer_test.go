package observer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/common"
	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/blockpool"
	"github.com/goran-ethernal/chainobserver/pkg/chain"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/goran-ethernal/chainobserver/pkg/dispatcher"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Observer.TerminateDrainDeadline = common.NewDuration(200 * time.Millisecond)
	cfg.Dispatcher.Retry.MaxAttempts = 2
	cfg.Dispatcher.Retry.InitialBackoff = common.NewDuration(time.Millisecond)
	cfg.Dispatcher.Retry.MaxBackoff = common.NewDuration(5 * time.Millisecond)
	cfg.Dispatcher.Workers = 2
	return cfg
}

func newTestObserver(t *testing.T, hookURL string) (*Observer, *predicate.Registry, func()) {
	t.Helper()
	cfg := testConfig()
	log := logger.NewNopLogger()

	l1Pool := blockpool.New("bitcoin", 1, log)
	l2Pool := blockpool.New("stacks", 1, log)
	registry := predicate.NewRegistry()
	dispatch := dispatcher.NewDispatcher(&cfg.Dispatcher, log)

	obs := New(cfg, l1Pool, l2Pool, registry, dispatch, log)

	ctx, cancel := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		_ = dispatch.Run(ctx)
		close(dispatchDone)
	}()
	obsDone := make(chan struct{})
	go func() {
		_ = obs.Run(ctx)
		close(obsDone)
	}()

	cleanup := func() {
		cancel()
		dispatch.Close()
		<-dispatchDone
		<-obsDone
	}
	return obs, registry, cleanup
}

func scriptMatcherPredicate(t *testing.T, url string) *predicate.Predicate {
	t.Helper()
	return &predicate.Predicate{
		UUID:  uuid.New(),
		Name:  "all-outputs",
		Chain: predicate.ChainBitcoin,
		Matcher: predicate.Matcher{
			Kind:  predicate.MatcherScript,
			Scope: predicate.ScopeOutputs,
			Rule:  predicate.ScriptRule{Kind: predicate.ScriptRuleHex, HexKind: predicate.HexStartsWith, HexStr: ""},
		},
		Action: predicate.HookAction{URL: url, Method: http.MethodPost},
	}
}

func TestObserver_IngestL1Block_DeliversTriggerAndBroadcasts(t *testing.T) {
	var delivered int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	obs, registry, cleanup := newTestObserver(t, server.URL)
	defer cleanup()

	pred := scriptMatcherPredicate(t, server.URL)
	require.NoError(t, registry.Register(pred))

	sub := obs.Subscribe()

	block := chain.BitcoinBlock{
		BlockIdentifier: chain.BlockIdentifier{Index: 0, Hash: "A"},
		Transactions: []chain.BitcoinTransaction{
			{TxID: "tx1", Outputs: []chain.BitcoinTxOutput{{ScriptHex: "abcd"}}},
		},
	}

	ctx := context.Background()
	receipt, err := obs.IngestL1Block(ctx, block)
	require.NoError(t, err)
	require.NotZero(t, receipt)

	select {
	case event := <-sub:
		require.Equal(t, blockpool.EventAppend, event.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&delivered) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestObserver_Register_RejectsInvalidPredicate(t *testing.T) {
	obs, _, cleanup := newTestObserver(t, "http://example.invalid")
	defer cleanup()

	bad := &predicate.Predicate{UUID: uuid.New(), Chain: predicate.ChainBitcoin}
	err := obs.Register(context.Background(), bad)
	require.Error(t, err)
}

func TestObserver_Register_BackfillsPastBlocks(t *testing.T) {
	var delivered int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&delivered, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	obs, _, cleanup := newTestObserver(t, server.URL)
	defer cleanup()

	ctx := context.Background()
	block := chain.BitcoinBlock{
		BlockIdentifier: chain.BlockIdentifier{Index: 0, Hash: "A"},
		Transactions: []chain.BitcoinTransaction{
			{TxID: "tx1", Outputs: []chain.BitcoinTxOutput{{ScriptHex: "abcd"}}},
		},
	}
	_, err := obs.IngestL1Block(ctx, block)
	require.NoError(t, err)

	// Give the observer loop a moment to process the ingest before
	// registering a predicate whose start_block precedes it.
	require.Eventually(t, func() bool {
		return obs.l1Pool.CanonicalSegment().Len() == 1
	}, time.Second, 5*time.Millisecond)

	start := uint64(0)
	pred := scriptMatcherPredicate(t, server.URL)
	pred.StartBlock = &start

	require.NoError(t, obs.Register(ctx, pred))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&delivered) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestObserver_Unregister_Idempotent(t *testing.T) {
	obs, registry, cleanup := newTestObserver(t, "http://example.invalid")
	defer cleanup()

	pred := scriptMatcherPredicate(t, "http://example.invalid")
	require.NoError(t, registry.Register(pred))

	ctx := context.Background()
	require.NoError(t, obs.Unregister(ctx, pred.UUID))
	require.NoError(t, obs.Unregister(ctx, pred.UUID))

	_, ok := registry.Get(pred.UUID)
	require.False(t, ok)
}

func TestObserver_Terminate_DrainsAndExits(t *testing.T) {
	cfg := testConfig()
	log := logger.NewNopLogger()
	l1Pool := blockpool.New("bitcoin", 1, log)
	l2Pool := blockpool.New("stacks", 1, log)
	registry := predicate.NewRegistry()
	dispatch := dispatcher.NewDispatcher(&cfg.Dispatcher, log)

	obs := New(cfg, l1Pool, l2Pool, registry, dispatch, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatchDone := make(chan struct{})
	go func() {
		_ = dispatch.Run(ctx)
		close(dispatchDone)
	}()

	runDone := make(chan error, 1)
	go func() {
		runDone <- obs.Run(context.Background())
	}()

	block := chain.BitcoinBlock{BlockIdentifier: chain.BlockIdentifier{Index: 0, Hash: "A"}}
	_, err := obs.IngestL1Block(ctx, block)
	require.NoError(t, err)

	require.NoError(t, obs.Terminate(context.Background()))

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("observer did not exit after Terminate")
	}

	dispatch.Close()
	<-dispatchDone
}
