package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/copybot/internal/blob/s3"
	"github.com/alanyoungcy/copybot/internal/cache/redis"
	"github.com/alanyoungcy/copybot/internal/config"
	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/notify"
	"github.com/alanyoungcy/copybot/internal/oracle"
	"github.com/alanyoungcy/copybot/internal/store/postgres"
	"github.com/gagliardetto/solana-go/rpc"
)

// Dependencies bundles every mode-independent dependency. The executor and
// the engine are mode-specific and built in modes.go.
type Dependencies struct {
	Redis *redis.Client

	// Positions is kept concrete so the diagnostics endpoint can reach
	// the consistency scan alongside the domain.PositionStore surface.
	Positions *redis.PositionStore
	Ledger    domain.TradeLedger
	Wallets   domain.WalletTracker
	Cooldowns domain.CooldownTracker
	Quotes    domain.QuoteCache
	Queue     domain.SignalQueue
	Velocity  *redis.VelocityTracker

	Oracle domain.PriceOracle

	// Archive and Audit stay nil unless Postgres is enabled.
	Archive domain.TradeArchive
	Audit   domain.AuditStore

	// Archiver stays nil unless S3 is enabled.
	Archiver *s3blob.LedgerArchiver

	Notifier *notify.Notifier
}

// Wire constructs every concrete dependency from the configuration and
// returns them with a cleanup function releasing resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient

	trackerTTL := 30 * time.Minute
	if cfg.Copy.TrackerTTLMin > 0 {
		trackerTTL = time.Duration(cfg.Copy.TrackerTTLMin) * time.Minute
	}
	// Velocity state is only useful while a position can still be open,
	// so it expires at twice the maximum hold.
	velocityTTL := 2 * time.Duration(cfg.Exit.MaxHoldMinutes) * time.Minute
	if velocityTTL <= 0 {
		velocityTTL = 2 * time.Hour
	}

	ledger := redis.NewTradeLedger(redisClient)
	deps.Ledger = ledger
	deps.Positions = redis.NewPositionStore(redisClient, ledger, cfg.Exit.FeeEstimate)
	deps.Wallets = redis.NewWalletTracker(redisClient, trackerTTL)
	deps.Cooldowns = redis.NewCooldownTracker(redisClient)
	deps.Quotes = redis.NewQuoteCache(redisClient)
	deps.Queue = redis.NewSignalQueue(redisClient)
	deps.Velocity = redis.NewVelocityTracker(redisClient, velocityTTL)

	// --- Price oracle ---
	curve := oracle.NewCurveReader(cfg.Solana.RPCURL, rpc.CommitmentType(cfg.Solana.Commitment))
	aggregator := oracle.NewAggregatorClient(cfg.Solana.AggregatorURL)
	deps.Oracle = oracle.New(curve, aggregator, deps.Quotes, cfg.PriceTTL(), logger)

	// --- PostgreSQL (optional durable archive) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Archive = postgres.NewTradeArchive(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}

	// --- S3 (optional ledger archival) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewLedgerArchiver(s3blob.NewWriter(s3Client), deps.Ledger, deps.Audit)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
