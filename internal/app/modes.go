package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/copybot/internal/crypto"
	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/engine"
	"github.com/alanyoungcy/copybot/internal/intake"
	"github.com/alanyoungcy/copybot/internal/notify"
	"github.com/alanyoungcy/copybot/internal/server"
	"github.com/alanyoungcy/copybot/internal/server/handler"
	"github.com/alanyoungcy/copybot/internal/trading"
)

// TradeMode runs the full pipeline with the live Solana executor: wallet
// watcher, signal consumer, exit engine, HTTP server, and ledger archiver.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Int("tracked_wallets", len(a.cfg.Copy.TrackedWallets)),
	)

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("trade mode: load wallet key: %w", err)
	}

	exec := trading.NewSolanaAdapter(
		a.cfg.Solana.RPCURL,
		a.cfg.Solana.TradeAPIURL,
		key,
		a.cfg.Copy.Slippage,
		deps.Oracle,
		a.logger,
	)
	return a.runBot(ctx, deps, exec, false)
}

// SimMode runs the same pipeline against the simulated executor. Fills come
// from oracle quotes with modeled slippage, and the corroboration minimum is
// waived so a single tracked wallet produces activity to observe.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulation mode")

	exec := trading.NewSimAdapter(deps.Oracle, a.cfg.Copy.Slippage, a.logger)
	return a.runBot(ctx, deps, exec, true)
}

// MonitorMode starts only the read-only HTTP surface. No signals are
// consumed and no orders are placed; exit routes are not registered.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// runBot starts the goroutines shared by trade and sim mode. Everything runs
// under one errgroup: the first fatal error cancels the rest.
func (a *App) runBot(ctx context.Context, deps *Dependencies, exec domain.ExecutionAdapter, simulation bool) error {
	g, ctx := errgroup.WithContext(ctx)

	eng := engine.New(
		a.logger,
		a.cfg,
		deps.Positions,
		deps.Ledger,
		deps.Oracle,
		exec,
		deps.Wallets,
		deps.Velocity,
		deps.Archive,
		deps.Notifier,
	)

	admission := intake.NewAdmission(deps.Positions, deps.Ledger, deps.Cooldowns, deps.Archive,
		intake.AdmissionConfig{
			Simulation:      simulation,
			MinWalletsToBuy: a.cfg.Copy.MinWalletsToBuy,
			MaxPositions:    a.cfg.Copy.MaxPositions,
			RebuyWindow:     a.cfg.RebuyWindow(),
			RebuyScanDays:   a.cfg.Copy.RebuyScanDays,
			Cooldown:        a.cfg.Cooldown(),
		}, a.logger)

	consumer := intake.NewConsumer(
		deps.Queue,
		deps.Wallets,
		admission,
		exec,
		deps.Positions,
		deps.Cooldowns,
		deps.Audit,
		deps.Notifier,
		intake.ConsumerConfig{
			BuySizeSol: a.cfg.Copy.BuySizeSol,
			Slippage:   a.cfg.Copy.Slippage,
			Cooldown:   a.cfg.Cooldown(),
		},
		a.logger,
	)

	watcher := intake.NewWalletWatcher(
		a.cfg.Solana.WSURL,
		a.cfg.Copy.TrackedWallets,
		intake.NewCurveLogParser(),
		deps.Queue,
		a.logger,
	).WithNotifier(deps.Notifier)

	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunDaily(ctx, a.cfg.Monitor.ArchiveHourUTC, func(date string, count int, err error) {
				if err != nil {
					a.logger.Error("ledger archive failed",
						slog.String("date", date),
						slog.String("error", err.Error()),
					)
					return
				}
				a.logger.Info("ledger archived",
					slog.String("date", date),
					slog.Int("records", count),
				)
				_ = deps.Notifier.Notify(ctx, notify.EventArchiveComplete,
					"Ledger archived",
					fmt.Sprintf("%s: %d records", date, count),
				)
			})
		})
	}

	a.startDailySummary(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}

	return g.Wait()
}

// startDailySummary delivers yesterday's ledger summary shortly after the
// archive hour each day.
func (a *App) startDailySummary(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		for {
			now := time.Now().UTC()
			next := time.Date(now.Year(), now.Month(), now.Day(), a.cfg.Monitor.ArchiveHourUTC, 5, 0, 0, time.UTC)
			if !next.After(now) {
				next = next.Add(24 * time.Hour)
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}

			date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
			sum, err := deps.Ledger.Summary(ctx, date)
			if err != nil {
				a.logger.Warn("daily summary failed",
					slog.String("date", date),
					slog.String("error", err.Error()),
				)
				continue
			}
			if sum.Trades == 0 {
				continue
			}
			_ = deps.Notifier.Notify(ctx, notify.EventDailySummary,
				"Daily summary "+date,
				fmt.Sprintf("%d trades, %d wins / %d losses, %.4f SOL realized",
					sum.Trades, sum.Wins, sum.Losses, sum.PnLSol),
			)
		}
	})
}

// startHTTPServer adds the HTTP server and its shutdown watcher to the
// errgroup. exits may be nil for read-only deployments.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, exits handler.ExitRequester) {
	staleAfter := time.Duration(a.cfg.Monitor.StaleQuoteSecond) * time.Second

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Redis),
		Status:      handler.NewStatusHandler(deps.Positions, deps.Queue, a.cfg.Mode, len(a.cfg.Copy.TrackedWallets), a.logger),
		Diagnostics: handler.NewDiagnosticsHandler(deps.Positions, staleAfter, a.logger),
	}
	if exits != nil {
		handlers.Positions = handler.NewPositionHandler(deps.Positions, exits, a.logger)
	}

	srv := server.New(server.Config{
		Addr:      a.cfg.Server.Addr,
		AuthToken: a.cfg.Server.AuthToken,
	}, handlers, a.logger)

	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
