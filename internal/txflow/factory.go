package txflow

import (
	"log/slog"
	"math/big"
	"time"

	"remitlend/internal/config"
)

func NewOracleFromConfig(client NodeClient, cfg *config.Config) (*FeeOracle, error) {
	minTipWei, err := GweiToWei(cfg.Tx.MinPriorityFeeGwei)
	if err != nil {
		return nil, err
	}
	oracleCfg := FeeOracleConfig{
		RefreshInterval:   time.Duration(cfg.Tx.FeeRefreshSeconds) * time.Second,
		MaxFeeMultiplier:  cfg.Tx.MaxFeeMultiplier,
		MinPriorityFeeWei: minTipWei,
	}
	return NewFeeOracle(client, oracleCfg), nil
}

func NewPipelineFromConfig(client NodeClient, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	oracle, err := NewOracleFromConfig(client, cfg)
	if err != nil {
		return nil, err
	}
	chainID := new(big.Int).SetUint64(cfg.ChainID)
	builder := NewBuilder(client, time.Duration(cfg.Tx.ExpiryWindowSeconds)*time.Second)
	simulator := NewSimulator(client)
	preparer := NewPreparer(client, oracle, chainID, cfg.Tx.GasLimitMultiplier)
	submitter := NewSubmitter(client, cfg.Submit.PollInterval.Duration, cfg.Submit.PollAttempts)
	return NewPipeline(builder, simulator, preparer, submitter, logger), nil
}
