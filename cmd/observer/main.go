package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/chainobserver/internal/common"
	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/internal/metrics"
	"github.com/goran-ethernal/chainobserver/internal/observer"
	"github.com/goran-ethernal/chainobserver/pkg/api"
	"github.com/goran-ethernal/chainobserver/pkg/blockpool"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/goran-ethernal/chainobserver/pkg/dispatcher"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║          chainobserver v%s                 ║
║   Fork-aware chain-event observer core     ║
╚═══════════════════════════════════════════╝
`
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "observer",
	Short: "chainobserver - fork-aware chain-event observer",
	Long: `chainobserver tracks two anchored chains through a fork-aware block
pool, derives canonical append/reorg events, and evaluates registered
chainhook predicates against the canonical stream, delivering webhook
triggers to their configured HTTP sinks.`,
	Version: version,
	RunE:    runObserver,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(predicatesCmd)
}

func runObserver(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentObserver, &cfg.Logging)

	l1Pool := blockpool.New(
		cfg.Chains.L1.Name,
		cfg.Chains.L1.ConfirmationDepth,
		logger.NewComponentLoggerFromConfig(common.ComponentBlockPoolL1, &cfg.Logging),
	)
	l2Pool := blockpool.New(
		cfg.Chains.L2.Name,
		cfg.Chains.L2.ConfirmationDepth,
		logger.NewComponentLoggerFromConfig(common.ComponentBlockPoolL2, &cfg.Logging),
	)

	registry := predicate.NewRegistry()

	dispatch := dispatcher.NewDispatcher(&cfg.Dispatcher, logger.NewComponentLoggerFromConfig(common.ComponentDispatcher, &cfg.Logging))
	defer dispatch.Close()

	obs := observer.New(cfg, l1Pool, l2Pool, registry, dispatch, log)

	// SIGINT/SIGTERM maps to Observer.Terminate, a graceful command-queue
	// drain, rather than an abrupt context cancellation: spec.md §6 treats
	// Terminate as the process-level shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		if err := obs.Terminate(context.Background()); err != nil {
			log.Warnf("observer terminate: %v", err)
		}
		cancel()
	}()

	metricsServer := metrics.NewServer(&cfg.Metrics, logger.NewComponentLoggerFromConfig(common.ComponentMetrics, &cfg.Logging))
	if err := metricsServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	defer func() {
		if err := metricsServer.Stop(context.Background()); err != nil {
			log.Warnf("failed to stop metrics server: %v", err)
		}
	}()
	log.Infof("metrics server started on %s%s", cfg.Metrics.ListenAddr, cfg.Metrics.Path)

	apiServer := api.NewServer(&cfg.API, obs, registry, logger.NewComponentLoggerFromConfig(common.ComponentAPI, &cfg.Logging))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatch.Run(gctx) })
	g.Go(func() error { return obs.Run(gctx) })
	g.Go(func() error { return apiServer.Start(gctx) })

	log.Info("chainobserver started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("observer stopped with error: %w", err)
	}

	log.Info("chainobserver stopped successfully")
	return nil
}
