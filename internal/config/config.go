// Package config defines all configuration for the betting agent.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via SX_* environment variables.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun   bool           `mapstructure:"dry_run"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	API      APIConfig      `mapstructure:"api"`
	Venue    VenueConfig    `mapstructure:"venue"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Operator OperatorConfig `mapstructure:"operator"`
}

// WalletConfig holds the signing identity. The private key signs order
// and cancellation payloads; the derived address is the bot's maker id
// ("self") that the mirror excludes from metrics.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int    `mapstructure:"chain_id"`
}

// APIConfig holds venue endpoints and the session API key. The WS URL is
// the push channel; if it cannot be established the transport falls back
// to snapshot polling against the base URL.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
	ApiKey  string `mapstructure:"api_key"`
}

// VenueConfig holds the venue's wire-format constants as decimal strings
// (they exceed int64 on mainnet: the odds unit is 10^20).
type VenueConfig struct {
	OddsUnit   string `mapstructure:"odds_unit"`
	LadderStep string `mapstructure:"ladder_step"`
	StakeUnit  string `mapstructure:"stake_unit"`
}

// Constants parses the wire-format constants.
func (v VenueConfig) Constants() (oddsUnit, ladderStep, stakeUnit *big.Int, err error) {
	oddsUnit, ok := new(big.Int).SetString(v.OddsUnit, 10)
	if !ok || oddsUnit.Sign() <= 0 {
		return nil, nil, nil, fmt.Errorf("venue.odds_unit %q is not a positive integer", v.OddsUnit)
	}
	ladderStep, ok = new(big.Int).SetString(v.LadderStep, 10)
	if !ok || ladderStep.Sign() <= 0 {
		return nil, nil, nil, fmt.Errorf("venue.ladder_step %q is not a positive integer", v.LadderStep)
	}
	stakeUnit, ok = new(big.Int).SetString(v.StakeUnit, 10)
	if !ok || stakeUnit.Sign() <= 0 {
		return nil, nil, nil, fmt.Errorf("venue.stake_unit %q is not a positive integer", v.StakeUnit)
	}
	return oddsUnit, ladderStep, stakeUnit, nil
}

// TradingConfig tunes position-controller behavior.
//
//   - CompleteFraction: fraction of maxStake at which a position counts
//     as done (the venue rarely fills the last dust).
//   - RecentCancelTTL: how long a cancelled order hash stays mapped to
//     its position so late fills are still credited.
//   - MinOrderUpdateInterval: floor between consecutive post/cancel
//     actions for one position.
//   - PollFallbackInterval: snapshot poll cadence when the push channel
//     is unavailable.
//   - MaxRetries / RetryBaseDelay / RetryBackoff: gateway retry policy
//     for transient errors.
type TradingConfig struct {
	CompleteFraction       float64       `mapstructure:"complete_fraction"`
	RecentCancelTTL        time.Duration `mapstructure:"recent_cancel_ttl"`
	MinOrderUpdateInterval time.Duration `mapstructure:"min_order_update_interval"`
	PollFallbackInterval   time.Duration `mapstructure:"poll_fallback_interval"`
	MaxRetries             int           `mapstructure:"max_retries"`
	RetryBaseDelay         time.Duration `mapstructure:"retry_base_delay"`
	RetryBackoff           float64       `mapstructure:"retry_backoff"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OperatorConfig controls the operator HTTP API server.
type OperatorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: SX_PRIVATE_KEY, SX_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("SX_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("SX_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if os.Getenv("SX_DRY_RUN") == "true" || os.Getenv("SX_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// SX mainnet wire constants
	v.SetDefault("venue.odds_unit", "100000000000000000000")
	v.SetDefault("venue.ladder_step", "250000000000000000")
	v.SetDefault("venue.stake_unit", "1000000000000000000")

	v.SetDefault("trading.complete_fraction", 0.99)
	v.SetDefault("trading.recent_cancel_ttl", time.Minute)
	v.SetDefault("trading.min_order_update_interval", 2500*time.Millisecond)
	v.SetDefault("trading.poll_fallback_interval", 10*time.Second)
	v.SetDefault("trading.max_retries", 3)
	v.SetDefault("trading.retry_base_delay", time.Second)
	v.SetDefault("trading.retry_backoff", 2.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("operator.port", 8080)
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set SX_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.WSURL == "" {
		return fmt.Errorf("api.ws_url is required")
	}
	if _, _, _, err := c.Venue.Constants(); err != nil {
		return err
	}
	if c.Trading.CompleteFraction <= 0 || c.Trading.CompleteFraction > 1 {
		return fmt.Errorf("trading.complete_fraction must be in (0, 1]")
	}
	if c.Trading.RecentCancelTTL <= 0 {
		return fmt.Errorf("trading.recent_cancel_ttl must be > 0")
	}
	if c.Trading.MinOrderUpdateInterval < 0 {
		return fmt.Errorf("trading.min_order_update_interval must be >= 0")
	}
	if c.Trading.PollFallbackInterval <= 0 {
		return fmt.Errorf("trading.poll_fallback_interval must be > 0")
	}
	if c.Trading.MaxRetries < 0 {
		return fmt.Errorf("trading.max_retries must be >= 0")
	}
	if c.Trading.RetryBackoff < 1 {
		return fmt.Errorf("trading.retry_backoff must be >= 1")
	}
	return nil
}
