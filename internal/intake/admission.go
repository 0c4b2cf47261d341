package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// AdmissionConfig holds the tunable parameters of the buy-admission ladder.
type AdmissionConfig struct {
	Simulation      bool
	MinWalletsToBuy int
	MaxPositions    int
	RebuyWindow     time.Duration
	RebuyScanDays   int
	Cooldown        time.Duration
}

// Admission filters inbound buy signals before any capital is committed. The
// checks run in a fixed order and short-circuit on the first failure; only a
// signal passing every rung is admitted. The ladder also makes redelivered
// signals harmless: a duplicate replay fails the cooldown or open-position
// check instead of opening twice.
type Admission struct {
	positions domain.PositionStore
	ledger    domain.TradeLedger
	cooldowns domain.CooldownTracker
	archive   domain.TradeArchive // optional long-window rebuy scan
	cfg       AdmissionConfig
	logger    *slog.Logger
}

// NewAdmission creates an Admission with all required dependencies. archive
// may be nil; the ledger scan then covers the whole rebuy window.
func NewAdmission(
	positions domain.PositionStore,
	ledger domain.TradeLedger,
	cooldowns domain.CooldownTracker,
	archive domain.TradeArchive,
	cfg AdmissionConfig,
	logger *slog.Logger,
) *Admission {
	return &Admission{
		positions: positions,
		ledger:    ledger,
		cooldowns: cooldowns,
		archive:   archive,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "admission")),
	}
}

// EvaluateBuy runs the admission ladder for one buy signal.
//
// Order:
//  1. corroboration minimum (waived in simulation)
//  2. rebuy block for this (mint, wallet) pair
//  3. per-mint buy cooldown
//  4. duplicate open position for the mint (any wallet)
//  5. max concurrent open positions
func (a *Admission) EvaluateBuy(ctx context.Context, sig domain.Signal) (domain.Admission, error) {
	log := a.logger.With(
		slog.String("mint", sig.Mint),
		slog.String("wallet", sig.Wallet),
	)

	// 1. Corroboration.
	if !a.cfg.Simulation && sig.CorroborationCount < a.cfg.MinWalletsToBuy {
		log.Debug("rejected: corroboration below minimum",
			slog.Int("count", sig.CorroborationCount),
			slog.Int("min", a.cfg.MinWalletsToBuy),
		)
		return domain.Admission{Reason: domain.RejectLowCorroboration}, nil
	}

	// 2. Rebuy block.
	blocked, err := a.rebuyBlocked(ctx, sig.Mint, sig.Wallet)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("intake: rebuy check: %w", err)
	}
	if blocked {
		log.Debug("rejected: rebuy window active")
		return domain.Admission{Reason: domain.RejectRebuyBlocked}, nil
	}

	// 3. Per-mint cooldown.
	cooling, err := a.cooldowns.InCooldown(ctx, sig.Mint)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("intake: cooldown check: %w", err)
	}
	if cooling {
		log.Debug("rejected: mint cooldown active")
		return domain.Admission{Reason: domain.RejectCooldown}, nil
	}

	// 4. Duplicate position (covers a second tracked wallet buying the same
	// mint we already hold).
	pos, err := a.positions.Get(ctx, sig.Mint)
	switch {
	case err == nil:
		if pos.Status == domain.PositionStatusOpen {
			log.Debug("rejected: position already open")
			return domain.Admission{Reason: domain.RejectDuplicate}, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Admission{}, fmt.Errorf("intake: duplicate check: %w", err)
	}

	// 5. Max concurrent positions.
	open, err := a.positions.OpenCount(ctx)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("intake: open count: %w", err)
	}
	if open >= a.cfg.MaxPositions {
		log.Debug("rejected: max positions reached",
			slog.Int("open", open),
			slog.Int("max", a.cfg.MaxPositions),
		)
		return domain.Admission{Reason: domain.RejectMaxPositions}, nil
	}

	conf := domain.ConfidenceFor(sig.CorroborationCount)
	log.Info("buy signal admitted",
		slog.Int("corroboration", sig.CorroborationCount),
		slog.String("confidence", string(conf)),
	)
	return domain.Admission{Admit: true, Confidence: conf}, nil
}

// rebuyBlocked reports whether this (mint, wallet) pair was bought too
// recently: either an open position already attributed to the wallet, or a
// closed trade inside the rebuy window found in the ledger scan (and the
// durable archive when configured).
func (a *Admission) rebuyBlocked(ctx context.Context, mint, wallet string) (bool, error) {
	pos, err := a.positions.Get(ctx, mint)
	if err == nil && pos.Status == domain.PositionStatusOpen && pos.SourceWallet == wallet {
		return true, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	cutoff := time.Now().UTC().Add(-a.cfg.RebuyWindow)

	days := a.cfg.RebuyScanDays
	if days <= 0 {
		days = 1
	}
	records, err := a.ledger.History(ctx, days)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.Mint == mint && rec.Wallet == wallet && rec.ClosedAt.After(cutoff) {
			return true, nil
		}
	}

	if a.archive != nil {
		archived, err := a.archive.ListWindow(ctx, mint, wallet, cutoff)
		if err != nil {
			// The archive is best-effort; the ledger scan already covered
			// the recent window.
			a.logger.Warn("archive rebuy scan failed",
				slog.String("mint", mint),
				slog.String("error", err.Error()),
			)
			return false, nil
		}
		if len(archived) > 0 {
			return true, nil
		}
	}

	return false, nil
}
