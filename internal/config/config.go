package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	if value.Tag == "!!int" {
		var v int64
		if err := value.Decode(&v); err != nil {
			return err
		}
		d.Duration = time.Duration(v) * time.Millisecond
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = dur
	return nil
}

type Config struct {
	Chain   string `yaml:"chain"`
	ChainID uint64 `yaml:"chain_id"`

	RPC struct {
		HTTP string `yaml:"http"`
	} `yaml:"rpc"`

	// The five platform contracts. Deployment constants, never computed.
	Contracts struct {
		OracleVerifier string `yaml:"oracle_verifier"`
		LoanManager    string `yaml:"loan_manager"`
		LendingPool    string `yaml:"lending_pool"`
		RemittanceNFT  string `yaml:"remittance_nft"`
		TestToken      string `yaml:"test_token"`
	} `yaml:"contracts"`

	Tx struct {
		ExpiryWindowSeconds uint64  `yaml:"expiry_window_seconds"`
		GasLimitMultiplier  float64 `yaml:"gas_limit_multiplier"`
		MaxFeeMultiplier    float64 `yaml:"max_fee_multiplier"`
		MinPriorityFeeGwei  float64 `yaml:"min_priority_fee_gwei"`
		FeeRefreshSeconds   uint64  `yaml:"fee_refresh_seconds"`
	} `yaml:"tx"`

	Submit struct {
		PollInterval Duration `yaml:"poll_interval"`
		PollAttempts int      `yaml:"poll_attempts"`
	} `yaml:"submit"`

	Performance struct {
		RequestTimeout Duration `yaml:"request_timeout"`
		DialRetryMax   int      `yaml:"dial_retry_max"`
		DialBackoff    Duration `yaml:"dial_backoff"`
	} `yaml:"performance"`

	KeyStore struct {
		Dir           string `yaml:"dir"`
		PassphraseEnv string `yaml:"passphrase_env"`
	} `yaml:"keystore"`

	API struct {
		Listen    string `yaml:"listen"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"api"`

	Activity struct {
		Enabled      bool     `yaml:"enabled"`
		ABIPath      string   `yaml:"abi_path"`
		PollInterval Duration `yaml:"poll_interval"`
		Lookback     uint64   `yaml:"lookback_blocks"`
		FeedSize     int      `yaml:"feed_size"`
	} `yaml:"activity"`

	Cache struct {
		LastTokenPath string `yaml:"last_token_path"`
	} `yaml:"cache"`
}

// Overrides are environment values that take precedence over the file,
// keeping per-deployment endpoints and secrets off disk.
type Overrides struct {
	RPCHTTP   string `envconfig:"RPC_HTTP"`
	AuthToken string `envconfig:"API_AUTH_TOKEN"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	var env Overrides
	if err := envconfig.Process("remitlend", &env); err != nil {
		return nil, err
	}
	cfg.applyOverrides(env)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyOverrides(env Overrides) {
	if env.RPCHTTP != "" {
		c.RPC.HTTP = env.RPCHTTP
	}
	if env.AuthToken != "" {
		c.API.AuthToken = env.AuthToken
	}
}

func (c *Config) applyDefaults() {
	if c.Chain == "" {
		c.Chain = "testnet"
	}
	if c.Tx.ExpiryWindowSeconds == 0 {
		c.Tx.ExpiryWindowSeconds = 120
	}
	if c.Tx.GasLimitMultiplier == 0 {
		c.Tx.GasLimitMultiplier = 1.2
	}
	if c.Tx.MaxFeeMultiplier == 0 {
		c.Tx.MaxFeeMultiplier = 2.0
	}
	if c.Tx.FeeRefreshSeconds == 0 {
		c.Tx.FeeRefreshSeconds = 5
	}
	if c.Submit.PollInterval.Duration == 0 {
		c.Submit.PollInterval = Duration{Duration: time.Second}
	}
	if c.Submit.PollAttempts == 0 {
		c.Submit.PollAttempts = 20
	}
	if c.Performance.RequestTimeout.Duration == 0 {
		c.Performance.RequestTimeout = Duration{Duration: 15 * time.Second}
	}
	if c.Performance.DialRetryMax == 0 {
		c.Performance.DialRetryMax = 3
	}
	if c.Performance.DialBackoff.Duration == 0 {
		c.Performance.DialBackoff = Duration{Duration: 500 * time.Millisecond}
	}
	if c.KeyStore.Dir == "" {
		c.KeyStore.Dir = "data/keystore"
	}
	if c.KeyStore.PassphraseEnv == "" {
		c.KeyStore.PassphraseEnv = "REMITLEND_KEYSTORE_PASSPHRASE"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Activity.PollInterval.Duration == 0 {
		c.Activity.PollInterval = Duration{Duration: 5 * time.Second}
	}
	if c.Activity.Lookback == 0 {
		c.Activity.Lookback = 100
	}
	if c.Activity.FeedSize == 0 {
		c.Activity.FeedSize = 200
	}
	if c.Cache.LastTokenPath == "" {
		c.Cache.LastTokenPath = "data/last_token.json"
	}
}

func (c *Config) validate() error {
	if c.RPC.HTTP == "" {
		return fmt.Errorf("rpc.http is required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id is required")
	}
	required := []struct {
		key   string
		value string
	}{
		{"contracts.oracle_verifier", c.Contracts.OracleVerifier},
		{"contracts.loan_manager", c.Contracts.LoanManager},
		{"contracts.lending_pool", c.Contracts.LendingPool},
		{"contracts.remittance_nft", c.Contracts.RemittanceNFT},
		{"contracts.test_token", c.Contracts.TestToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	if c.Submit.PollAttempts < 1 {
		return fmt.Errorf("submit.poll_attempts must be >= 1")
	}
	return nil
}
