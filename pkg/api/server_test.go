package api

import (
	"context"
	"testing"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"github.com/stretchr/testify/require"
)

func testAPIConfig(addr string) *config.APIConfig {
	cfg := &config.APIConfig{Enabled: true, ListenAddr: addr}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewServer_RoutesRegistered(t *testing.T) {
	registry := predicate.NewRegistry()
	ctrl := &fakeController{registry: registry}
	server := NewServer(testAPIConfig("localhost:0"), ctrl, registry, logger.NewNopLogger())

	require.NotNil(t, server.server.Handler)
}

func TestServer_StartAndShutdown(t *testing.T) {
	registry := predicate.NewRegistry()
	ctrl := &fakeController{registry: registry}
	server := NewServer(testAPIConfig("localhost:0"), ctrl, registry, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestServer_Disabled_StartReturnsImmediately(t *testing.T) {
	registry := predicate.NewRegistry()
	ctrl := &fakeController{registry: registry}
	cfg := testAPIConfig("localhost:0")
	cfg.Enabled = false
	server := NewServer(cfg, ctrl, registry, logger.NewNopLogger())

	require.NoError(t, server.Start(context.Background()))
}

func TestServer_ListenAddr(t *testing.T) {
	registry := predicate.NewRegistry()
	ctrl := &fakeController{registry: registry}
	server := NewServer(testAPIConfig(":18080"), ctrl, registry, logger.NewNopLogger())

	require.Equal(t, ":18080", server.config.ListenAddr)
}

func TestServer_CORSEnabled(t *testing.T) {
	registry := predicate.NewRegistry()
	ctrl := &fakeController{registry: registry}
	cfg := testAPIConfig("localhost:0")
	cfg.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"http://example.com"}}
	server := NewServer(cfg, ctrl, registry, logger.NewNopLogger())

	require.NotNil(t, server.server.Handler)
}
