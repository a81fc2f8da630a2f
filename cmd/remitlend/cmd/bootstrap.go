package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"remitlend/internal/chain"
	"remitlend/internal/config"
	"remitlend/internal/keys"
	"remitlend/internal/lending"
	"remitlend/internal/tokencache"
	"remitlend/internal/txflow"
)

type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	handle *chain.Handle
	svc    *lending.Service
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	keysManager, err := keys.NewManager(cfg.KeyStore.Dir, os.Getenv(cfg.KeyStore.PassphraseEnv))
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}

	dialer := chain.NewDialer(cfg.RPC.HTTP, cfg.Performance.RequestTimeout.Duration)
	handle, err := dialer.Handle(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial node: %w", err)
	}

	contracts, err := lending.ContractsFromConfig(cfg)
	if err != nil {
		handle.Close()
		return nil, err
	}
	pipeline, err := txflow.NewPipelineFromConfig(handle.Eth, cfg, logger)
	if err != nil {
		handle.Close()
		return nil, err
	}

	cache := tokencache.New(cfg.Cache.LastTokenPath)
	_, _ = cache.Load()

	svc := lending.NewService(pipeline, handle.RPC, contracts, keysManager, cache, logger)
	return &runtime{cfg: cfg, logger: logger, handle: handle, svc: svc}, nil
}

func (r *runtime) close() {
	if r != nil {
		r.handle.Close()
	}
}

func dumpJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
