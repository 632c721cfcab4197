// Package config defines all configuration for the whale-follower bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via WHALE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
	Whales    WhalesConfig    `mapstructure:"whales"`
	Sizing    SizingConfig    `mapstructure:"sizing"`
	Resubmit  ResubmitConfig  `mapstructure:"resubmit"`
	Risk      RiskConfig      `mapstructure:"risk"`
	TradeLog  TradeLogConfig  `mapstructure:"trade_log"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds Polymarket API endpoints, the whale-fill intake WS URL,
// and optional pre-derived L2 credentials. If ApiKey/Secret/Passphrase are
// empty, the bot derives them via L1 auth on startup.
type APIConfig struct {
	CLOBBaseURL  string        `mapstructure:"clob_base_url"`
	GammaBaseURL string        `mapstructure:"gamma_base_url"`
	FillFeedURL  string        `mapstructure:"fill_feed_url"`
	ApiKey       string        `mapstructure:"api_key"`
	Secret       string        `mapstructure:"secret"`
	Passphrase   string        `mapstructure:"passphrase"`
	BookTimeout  time.Duration `mapstructure:"book_timeout"`
	WSPingTimeout     time.Duration `mapstructure:"ws_ping_timeout"`
	WSReconnectDelay  time.Duration `mapstructure:"ws_reconnect_delay"`
}

// WhalesConfig lists the monitored addresses and reply/queue timing.
type WhalesConfig struct {
	Addresses          []string      `mapstructure:"addresses"`
	QueueCapacity      int           `mapstructure:"queue_capacity"`
	OrderReplyTimeout  time.Duration `mapstructure:"order_reply_timeout"`
}

// SizingConfig holds the baseline follower-to-whale sizing ratio and the
// minimum-order thresholds shared by the sizing and resubmit packages.
//
//   - ScalingRatio: baseline follower-to-whale share ratio (before tier multiplier).
//   - MinShareCount / MinCashValue: minimum resubmit/initial order thresholds.
type SizingConfig struct {
	ScalingRatio  float64 `mapstructure:"scaling_ratio"`
	MinShareCount float64 `mapstructure:"min_share_count"`
	MinCashValue  float64 `mapstructure:"min_cash_value"`
}

// ResubmitConfig tunes the resubmit engine's chase and fallback behaviour.
//
//   - PriceIncrement: single chase tick (typically 0.01).
//   - GTDExpiryLiveSecs / GTDExpiryNonLiveSecs: terminal GTD expiry, longer
//     when the underlying market is not in its live event window.
//   - SmallWhaleSleep: pause between attempts for whales below
//     SmallWhaleThreshold shares (defaults: 50ms below 1000 shares), to let
//     the book refresh before re-chasing.
type ResubmitConfig struct {
	PriceIncrement       float64       `mapstructure:"price_increment"`
	GTDExpiryLiveSecs    int64         `mapstructure:"gtd_expiry_live_secs"`
	GTDExpiryNonLiveSecs int64         `mapstructure:"gtd_expiry_non_live_secs"`
	SmallWhaleSleep      time.Duration `mapstructure:"small_whale_sleep"`
	SmallWhaleThreshold  float64       `mapstructure:"small_whale_threshold"`
}

// RiskConfig sets hard limits enforced by the risk guard before any initial
// submission, plus the kill-switch cooldown carried from the teacher's risk
// manager for aggregate exposure protection.
type RiskConfig struct {
	MaxPositionPerMarket float64       `mapstructure:"max_position_per_market"`
	MaxGlobalExposure    float64       `mapstructure:"max_global_exposure"`
	KillSwitchDropPct    float64       `mapstructure:"kill_switch_drop_pct"`
	KillSwitchWindowSec  int           `mapstructure:"kill_switch_window_sec"`
	CooldownAfterKill    time.Duration `mapstructure:"cooldown_after_kill"`
}

// TradeLogConfig sets where terminal resubmit outcomes are logged (CSV).
type TradeLogConfig struct {
	Path            string `mapstructure:"path"`
	DebugFullErrors bool   `mapstructure:"debug_full_errors"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// DashboardConfig controls the optional status dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: WHALE_PRIVATE_KEY, WHALE_API_KEY, WHALE_API_SECRET, WHALE_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("WHALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults for knobs a config file may omit. The WS ping and reconnect
	// values are the constants the upstream market maker hardcoded; the book
	// timeout, order-reply timeout, event-queue capacity and small-whale
	// pause are this follower's own defaults. None of them zero-values when
	// omitted.
	v.SetDefault("api.book_timeout", 500*time.Millisecond)
	v.SetDefault("api.ws_ping_timeout", 50*time.Second)
	v.SetDefault("api.ws_reconnect_delay", time.Second)
	v.SetDefault("whales.order_reply_timeout", 5*time.Second)
	v.SetDefault("whales.queue_capacity", 1024)
	v.SetDefault("resubmit.small_whale_threshold", 1000.0)
	v.SetDefault("resubmit.small_whale_sleep", 50*time.Millisecond)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("WHALE_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("WHALE_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("WHALE_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("WHALE_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if os.Getenv("WHALE_DRY_RUN") == "true" || os.Getenv("WHALE_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set WHALE_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required (137 for mainnet)")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (POLY_PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if c.API.FillFeedURL == "" {
		return fmt.Errorf("api.fill_feed_url is required")
	}
	if len(c.Whales.Addresses) == 0 {
		return fmt.Errorf("whales.addresses must list at least one monitored address")
	}
	if c.Sizing.ScalingRatio <= 0 {
		return fmt.Errorf("sizing.scaling_ratio must be > 0")
	}
	if c.Resubmit.PriceIncrement <= 0 {
		return fmt.Errorf("resubmit.price_increment must be > 0")
	}
	if c.Risk.MaxPositionPerMarket <= 0 {
		return fmt.Errorf("risk.max_position_per_market must be > 0")
	}
	if c.Risk.MaxGlobalExposure <= 0 {
		return fmt.Errorf("risk.max_global_exposure must be > 0")
	}
	return nil
}
