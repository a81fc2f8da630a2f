package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"remitlend/internal/activity"
	"remitlend/internal/api"
	"remitlend/internal/chain"
	"remitlend/internal/config"
	"remitlend/internal/keys"
	"remitlend/internal/lending"
	"remitlend/internal/metrics"
	"remitlend/internal/tokencache"
	"remitlend/internal/txflow"
	"remitlend/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	passphrase := os.Getenv(cfg.KeyStore.PassphraseEnv)
	if passphrase == "" {
		logger.Warn("keystore passphrase env is empty", "env", cfg.KeyStore.PassphraseEnv)
	}
	keysManager, err := keys.NewManager(cfg.KeyStore.Dir, passphrase)
	if err != nil {
		logger.Error("keystore init failed", "error", err)
		os.Exit(1)
	}

	dialer := chain.NewDialer(cfg.RPC.HTTP, cfg.Performance.RequestTimeout.Duration)
	var handle *chain.Handle
	err = util.Retry(ctx, cfg.Performance.DialRetryMax, cfg.Performance.DialBackoff.Duration, func() error {
		var dialErr error
		handle, dialErr = dialer.Handle(ctx)
		return dialErr
	})
	if err != nil {
		logger.Error("node dial failed", "url", cfg.RPC.HTTP, "error", err)
		os.Exit(1)
	}
	defer handle.Close()
	logger.Info("node connected", "chain", cfg.Chain, "chain_id", cfg.ChainID)

	contracts, err := lending.ContractsFromConfig(cfg)
	if err != nil {
		logger.Error("contract config invalid", "error", err)
		os.Exit(1)
	}

	pipeline, err := txflow.NewPipelineFromConfig(handle.Eth, cfg, logger)
	if err != nil {
		logger.Error("pipeline init failed", "error", err)
		os.Exit(1)
	}
	m := metrics.New()
	pipeline.SetRecorder(m)
	pipeline.Start(ctx)

	cache := tokencache.New(cfg.Cache.LastTokenPath)
	if _, err := cache.Load(); err != nil {
		logger.Warn("token cache load failed", "error", err)
	}

	svc := lending.NewService(pipeline, handle.RPC, contracts, keysManager, cache, logger)

	var feed *activity.Feed
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Activity.Enabled {
		decoder, err := activity.NewDecoder(cfg.Activity.ABIPath)
		if err != nil {
			logger.Error("activity decoder init failed", "error", err)
			os.Exit(1)
		}
		feed = activity.NewFeed(cfg.Activity.FeedSize)
		watcher := activity.NewWatcher(handle.Eth, decoder, feed, activity.WatcherConfig{
			Contracts: []common.Address{
				contracts.OracleVerifier,
				contracts.LoanManager,
				contracts.LendingPool,
				contracts.RemittanceNFT,
				contracts.TestToken,
			},
			PollInterval: cfg.Activity.PollInterval.Duration,
			Lookback:     cfg.Activity.Lookback,
		}, logger)
		watcher.SetDepthObserver(m)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	server := api.NewServer(cfg, logger, keysManager, svc, feed, m)
	g.Go(func() error {
		logger.Info("api starting", "listen", cfg.API.Listen)
		if err := server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
