package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COPYBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COPYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "COPYBOT_SOLANA_RPC_URL")
	setStr(&cfg.Solana.WSURL, "COPYBOT_SOLANA_WS_URL")
	setStr(&cfg.Solana.Commitment, "COPYBOT_SOLANA_COMMITMENT")
	setStr(&cfg.Solana.AggregatorURL, "COPYBOT_SOLANA_AGGREGATOR_URL")
	setStr(&cfg.Solana.TradeAPIURL, "COPYBOT_SOLANA_TRADE_API_URL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "COPYBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "COPYBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "COPYBOT_WALLET_KEY_PASSWORD")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "COPYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COPYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COPYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COPYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COPYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COPYBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "COPYBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "COPYBOT_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "COPYBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "COPYBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "COPYBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "COPYBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "COPYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "COPYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "COPYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "COPYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "COPYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "COPYBOT_S3_FORCE_PATH_STYLE")

	// ── Copy ──
	setStrSlice(&cfg.Copy.TrackedWallets, "COPYBOT_COPY_TRACKED_WALLETS")
	setFloat64(&cfg.Copy.BuySizeSol, "COPYBOT_COPY_BUY_SIZE_SOL")
	setFloat64(&cfg.Copy.Slippage, "COPYBOT_COPY_SLIPPAGE")
	setInt(&cfg.Copy.MinWalletsToBuy, "COPYBOT_COPY_MIN_WALLETS_TO_BUY")
	setInt(&cfg.Copy.MaxPositions, "COPYBOT_COPY_MAX_POSITIONS")
	setInt(&cfg.Copy.RebuyWindowHours, "COPYBOT_COPY_REBUY_WINDOW_HOURS")
	setInt(&cfg.Copy.RebuyScanDays, "COPYBOT_COPY_REBUY_SCAN_DAYS")
	setInt(&cfg.Copy.CooldownSeconds, "COPYBOT_COPY_COOLDOWN_SECONDS")
	setInt(&cfg.Copy.TrackerTTLMin, "COPYBOT_COPY_TRACKER_TTL_MINUTES")

	// ── Exit ──
	setFloat64(&cfg.Exit.TakeProfitPercent, "COPYBOT_EXIT_TAKE_PROFIT_PERCENT")
	setFloat64(&cfg.Exit.TrailingPercent, "COPYBOT_EXIT_TRAILING_PERCENT")
	setFloat64(&cfg.Exit.StopLossPercent, "COPYBOT_EXIT_STOP_LOSS_PERCENT")
	setInt(&cfg.Exit.MaxHoldMinutes, "COPYBOT_EXIT_MAX_HOLD_MINUTES")
	setInt(&cfg.Exit.GraceSeconds, "COPYBOT_EXIT_GRACE_SECONDS")
	setFloat64(&cfg.Exit.MegaPumpMultiple, "COPYBOT_EXIT_MEGA_PUMP_MULTIPLE")
	setInt(&cfg.Exit.Phase1Minutes, "COPYBOT_EXIT_PHASE1_MINUTES")
	setInt(&cfg.Exit.Phase2Minutes, "COPYBOT_EXIT_PHASE2_MINUTES")
	setInt(&cfg.Exit.MinSellersToExit, "COPYBOT_EXIT_MIN_SELLERS_TO_EXIT")
	setFloat64(&cfg.Exit.MigrationExitPercent, "COPYBOT_EXIT_MIGRATION_EXIT_PERCENT")
	setBool(&cfg.Exit.VolumeDecay.Enabled, "COPYBOT_EXIT_VOLUME_DECAY_ENABLED")
	setFloat64(&cfg.Exit.FeeEstimate, "COPYBOT_EXIT_FEE_ESTIMATE_SOL")

	// ── Monitor ──
	setInt(&cfg.Monitor.IntervalMS, "COPYBOT_MONITOR_INTERVAL_MS")
	setInt(&cfg.Monitor.PriceTTLSeconds, "COPYBOT_MONITOR_PRICE_TTL_SECONDS")
	setInt(&cfg.Monitor.MaxConcurrent, "COPYBOT_MONITOR_MAX_CONCURRENT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "COPYBOT_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "COPYBOT_SERVER_ADDR")
	setStr(&cfg.Server.AuthToken, "COPYBOT_SERVER_AUTH_TOKEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COPYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COPYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COPYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStrSlice(&cfg.Notify.Events, "COPYBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "COPYBOT_MODE")
	setStr(&cfg.LogLevel, "COPYBOT_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
