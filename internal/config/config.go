// Package config defines the top-level configuration for the copy-trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by COPYBOT_* environment
// variables.
type Config struct {
	Solana   SolanaConfig   `toml:"solana"`
	Wallet   WalletConfig   `toml:"wallet"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Copy     CopyConfig     `toml:"copy"`
	Exit     ExitConfig     `toml:"exit"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"` // "trade", "sim", "monitor"
	LogLevel string         `toml:"log_level"`
}

// SolanaConfig holds RPC endpoints and read parameters.
type SolanaConfig struct {
	RPCURL     string `toml:"rpc_url"`
	WSURL      string `toml:"ws_url"`
	Commitment string `toml:"commitment"`
	// AggregatorURL is the fallback quote endpoint used once a token has
	// migrated off its bonding curve.
	AggregatorURL string `toml:"aggregator_url"`
	// TradeAPIURL builds unsigned swap transactions for the live adapter.
	TradeAPIURL string `toml:"trade_api_url"`
}

// WalletConfig holds the trading wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"` // base58, dev only
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds the optional durable trade archive connection.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds the optional ledger archival bucket.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CopyConfig holds admission-control parameters for mirroring buys.
type CopyConfig struct {
	TrackedWallets   []string `toml:"tracked_wallets"`
	BuySizeSol       float64  `toml:"buy_size_sol"`
	Slippage         float64  `toml:"slippage"` // fraction, clamped by numeric.ClampSlippage
	MinWalletsToBuy  int      `toml:"min_wallets_to_buy"`
	MaxPositions     int      `toml:"max_positions"`
	RebuyWindowHours int      `toml:"rebuy_window_hours"`
	RebuyScanDays    int      `toml:"rebuy_scan_days"`
	CooldownSeconds  int      `toml:"cooldown_seconds"`
	TrackerTTLMin    int      `toml:"tracker_ttl_minutes"` // buyer/seller set TTL
}

// PartialLevel is one partial take-profit rung: at PnLPercent, sell
// SellFraction of the remaining quantity. Levels fire in order, once each.
type PartialLevel struct {
	PnLPercent   float64 `toml:"pnl_percent"`
	SellFraction float64 `toml:"sell_fraction"`
}

// ExitConfig holds the exit-ladder parameters.
type ExitConfig struct {
	TakeProfitPercent float64 `toml:"take_profit_percent"`
	TrailingPercent   float64 `toml:"trailing_percent"`
	StopLossPercent   float64 `toml:"stop_loss_percent"`
	MaxHoldMinutes    int     `toml:"max_hold_minutes"`

	// Take-profit deferral: within GraceSeconds of entry, defer to the
	// trailing stop unless peak PnL reached MegaPumpMultiple x target.
	GraceSeconds     int     `toml:"grace_seconds"`
	MegaPumpMultiple float64 `toml:"mega_pump_multiple"`

	// Wallet-mirroring phase boundaries.
	Phase1Minutes int `toml:"phase1_minutes"` // unconditional copy below this
	Phase2Minutes int `toml:"phase2_minutes"` // loss-protection copy below this

	MinSellersToExit int `toml:"min_sellers_to_exit"`

	// MigrationExitPercent forces an exit when a token migrates off its
	// bonding curve while PnL is at or above this percentage.
	MigrationExitPercent float64 `toml:"migration_exit_percent"`

	VolumeDecay VolumeDecayConfig `toml:"volume_decay"`
	PartialTP   []PartialLevel    `toml:"partial_tp"`
	FeeEstimate float64           `toml:"fee_estimate_sol"`
}

// VolumeDecayConfig tunes the price-velocity exit.
type VolumeDecayConfig struct {
	Enabled        bool    `toml:"enabled"`
	DecayFraction  float64 `toml:"decay_fraction"`   // exit when velocity < fraction of peak
	DecayWindowSec int     `toml:"decay_window_sec"` // sustained at least this long past the peak
	MinHoldSec     int     `toml:"min_hold_sec"`
}

// MonitorConfig tunes the evaluation loop.
type MonitorConfig struct {
	IntervalMS       int `toml:"interval_ms"`
	PriceTTLSeconds  int `toml:"price_ttl_seconds"`
	MaxConcurrent    int `toml:"max_concurrent"` // bounded price-fetch parallelism per cycle
	ArchiveHourUTC   int `toml:"archive_hour_utc"`
	StaleQuoteSecond int `toml:"stale_quote_seconds"` // diagnostics threshold
}

// ServerConfig holds the operational HTTP surface.
type ServerConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	AuthToken string `toml:"auth_token"`
}

// NotifyConfig holds notification channel credentials and event filters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with sane defaults for simulation.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:        "https://api.mainnet-beta.solana.com",
			WSURL:         "wss://api.mainnet-beta.solana.com",
			Commitment:    "confirmed",
			AggregatorURL: "https://api.dexscreener.com/latest/dex/tokens",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Copy: CopyConfig{
			BuySizeSol:       0.1,
			Slippage:         0.05,
			MinWalletsToBuy:  2,
			MaxPositions:     5,
			RebuyWindowHours: 24,
			RebuyScanDays:    3,
			CooldownSeconds:  300,
			TrackerTTLMin:    30,
		},
		Exit: ExitConfig{
			TakeProfitPercent:    100,
			TrailingPercent:      20,
			StopLossPercent:      15,
			MaxHoldMinutes:       60,
			GraceSeconds:         60,
			MegaPumpMultiple:     2,
			Phase1Minutes:        3,
			Phase2Minutes:        10,
			MinSellersToExit:     2,
			MigrationExitPercent: 50,
			VolumeDecay: VolumeDecayConfig{
				DecayFraction:  0.3,
				DecayWindowSec: 90,
				MinHoldSec:     120,
			},
			PartialTP: []PartialLevel{
				{PnLPercent: 100, SellFraction: 0.25},
				{PnLPercent: 200, SellFraction: 0.33},
			},
			FeeEstimate: 0.000105,
		},
		Monitor: MonitorConfig{
			IntervalMS:       2000,
			PriceTTLSeconds:  15,
			MaxConcurrent:    8,
			ArchiveHourUTC:   0,
			StaleQuoteSecond: 120,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// MonitorInterval returns the evaluation cycle period.
func (c *Config) MonitorInterval() time.Duration {
	if c.Monitor.IntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Monitor.IntervalMS) * time.Millisecond
}

// PriceTTL returns the quote cache TTL.
func (c *Config) PriceTTL() time.Duration {
	if c.Monitor.PriceTTLSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Monitor.PriceTTLSeconds) * time.Second
}

// RebuyWindow returns the minimum separation before re-entering a
// previously-traded (wallet, mint) pair.
func (c *Config) RebuyWindow() time.Duration {
	return time.Duration(c.Copy.RebuyWindowHours) * time.Hour
}

// Cooldown returns the per-mint buy cooldown.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Copy.CooldownSeconds) * time.Second
}

// Validate checks the configuration for fatal errors. Missing credentials or
// endpoints required by the selected mode abort startup.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "trade", "sim", "monitor":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("config: solana.rpc_url is required")
	}

	if strings.ToLower(c.Mode) == "trade" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			return fmt.Errorf("config: trade mode requires wallet.private_key or wallet.encrypted_key_path")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			return fmt.Errorf("config: wallet.key_password is required with encrypted_key_path")
		}
		if len(c.Copy.TrackedWallets) == 0 {
			return fmt.Errorf("config: trade mode requires copy.tracked_wallets")
		}
		if c.Solana.TradeAPIURL == "" {
			return fmt.Errorf("config: trade mode requires solana.trade_api_url")
		}
	}

	if c.Copy.BuySizeSol <= 0 {
		return fmt.Errorf("config: copy.buy_size_sol must be positive")
	}
	if c.Copy.MaxPositions <= 0 {
		return fmt.Errorf("config: copy.max_positions must be positive")
	}
	if c.Exit.TakeProfitPercent <= 0 || c.Exit.StopLossPercent <= 0 || c.Exit.TrailingPercent <= 0 {
		return fmt.Errorf("config: exit thresholds must be positive percentages")
	}
	if c.Exit.Phase1Minutes >= c.Exit.Phase2Minutes {
		return fmt.Errorf("config: exit.phase1_minutes must be below exit.phase2_minutes")
	}
	for i, lvl := range c.Exit.PartialTP {
		if lvl.SellFraction <= 0 || lvl.SellFraction >= 1 {
			return fmt.Errorf("config: exit.partial_tp[%d].sell_fraction must be in (0,1)", i)
		}
		if i > 0 && lvl.PnLPercent <= c.Exit.PartialTP[i-1].PnLPercent {
			return fmt.Errorf("config: exit.partial_tp levels must be strictly increasing")
		}
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required when postgres.enabled")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3.bucket is required when s3.enabled")
	}
	if c.Server.Enabled && c.Server.AuthToken == "" {
		return fmt.Errorf("config: server.auth_token is required when server.enabled")
	}

	return nil
}
