package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/copybot/internal/config"
	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// VelocityTracker records price observations and reports the velocity proxy
// used by the volume-decay rule.
type VelocityTracker interface {
	Observe(ctx context.Context, mint string, price float64, at time.Time) (domain.VelocityStats, error)
	Forget(ctx context.Context, mint string) error
}

// Notifier delivers operational events. A nil Notifier disables delivery.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Engine runs the monitor loop: every interval it snapshots open positions,
// refreshes prices, ratchets extrema, and walks each position through the
// partial take-profit check and the exit ladder. Exits execute through the
// adapter first and only then mutate the store, so a failed sell leaves the
// position open for the next cycle.
type Engine struct {
	log       *slog.Logger
	cfg       *config.Config
	eval      *Evaluator
	positions domain.PositionStore
	ledger    domain.TradeLedger
	oracle    domain.PriceOracle
	exec      domain.ExecutionAdapter
	wallets   domain.WalletTracker
	velocity  VelocityTracker
	archive   domain.TradeArchive // optional
	notify    Notifier            // optional

	mu     sync.Mutex
	forced map[string]string // mint -> detail, consumed on evaluation
}

// New creates an Engine. archive and notify may be nil.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	positions domain.PositionStore,
	ledger domain.TradeLedger,
	oracle domain.PriceOracle,
	exec domain.ExecutionAdapter,
	wallets domain.WalletTracker,
	velocity VelocityTracker,
	archive domain.TradeArchive,
	notify Notifier,
) *Engine {
	return &Engine{
		log:       logger.With("component", "engine"),
		cfg:       cfg,
		eval:      NewEvaluator(cfg.Exit),
		positions: positions,
		ledger:    ledger,
		oracle:    oracle,
		exec:      exec,
		wallets:   wallets,
		velocity:  velocity,
		archive:   archive,
		notify:    notify,
		forced:    make(map[string]string),
	}
}

// Run drives evaluation cycles on a fixed ticker until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.MonitorInterval()
	e.log.Info("monitor loop starting", "interval", interval, "simulated", e.exec.Simulated())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("monitor loop stopping")
			return ctx.Err()
		case now := <-ticker.C:
			if err := e.Cycle(ctx, now.UTC()); err != nil {
				e.log.Error("evaluation cycle failed", "error", err)
			}
		}
	}
}

// Cycle evaluates every open position once. Per-position failures are logged
// and skipped so one bad mint cannot stall the rest of the book.
func (e *Engine) Cycle(ctx context.Context, now time.Time) error {
	open, err := e.positions.GetOpen(ctx)
	if err != nil {
		return fmt.Errorf("engine: snapshot open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.Monitor.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, pos := range open {
		pos := pos
		g.Go(func() error {
			if err := e.evaluateOne(gctx, pos, now); err != nil {
				e.log.Error("position evaluation failed", "mint", pos.Mint, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RequestExit flags a position for a forced exit on its next evaluation.
func (e *Engine) RequestExit(mint, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.forced[mint]; !ok {
		e.forced[mint] = detail
	}
}

// RequestExitAll flags every open position for a forced exit and returns how
// many were flagged.
func (e *Engine) RequestExitAll(ctx context.Context, detail string) (int, error) {
	open, err := e.positions.GetOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: snapshot open positions: %w", err)
	}
	for _, pos := range open {
		e.RequestExit(pos.Mint, detail)
	}
	return len(open), nil
}

func (e *Engine) consumeForced(mint string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	detail, ok := e.forced[mint]
	if ok {
		delete(e.forced, mint)
	}
	return detail, ok
}

func (e *Engine) evaluateOne(ctx context.Context, pos domain.Position, now time.Time) error {
	quote, err := e.oracle.GetPrice(ctx, pos.Mint)
	if err != nil || !quote.Known {
		e.log.Debug("price unknown, holding", "mint", pos.Mint, "error", err)
		return nil
	}
	price := quote.Price
	entry := pos.AvgEntryPrice()
	pnl := numeric.SafePercent(price, entry, 0)

	if err := e.positions.RatchetMaxPrice(ctx, pos.Mint, price); err != nil {
		e.log.Warn("max price ratchet failed", "mint", pos.Mint, "error", err)
	}
	if err := e.positions.RecordObservation(ctx, pos.Mint, price, pnl, now); err != nil {
		e.log.Warn("observation write failed", "mint", pos.Mint, "error", err)
	}
	// Mirror the ratchet locally so this cycle's decision sees it without a
	// second store read.
	if price > pos.MaxPrice {
		pos.MaxPrice = price
	}
	if pnl > pos.MaxPnLPercent {
		pos.MaxPnLPercent = pnl
	}

	vel, err := e.velocity.Observe(ctx, pos.Mint, price, now)
	if err != nil {
		e.log.Warn("velocity observation failed", "mint", pos.Mint, "error", err)
		vel = domain.VelocityStats{}
	}

	if quote.Migrated && pnl >= e.cfg.Exit.MigrationExitPercent {
		e.RequestExit(pos.Mint, fmt.Sprintf("migrated at %.1f%% pnl", pnl))
	}

	forcedDetail, forced := e.consumeForced(pos.Mint)

	// Partial take-profit is live-only; simulated runs exercise the plain
	// exit ladder. A fired level consumes the whole cycle for this position,
	// full exit rules run again next tick against the reduced holding, and a
	// forced exit pre-empts it.
	if !forced && !e.exec.Simulated() {
		if lvl, stage, ok := NextPartial(pos, pnl, e.cfg.Exit.PartialTP); ok {
			return e.partialSell(ctx, pos, lvl, stage, price, pnl, now)
		}
	}

	var sourceSold bool
	var sourceSoldAt time.Time
	if pos.SourceWallet != "" {
		sourceSold, sourceSoldAt, err = e.wallets.HasSold(ctx, pos.Mint, pos.SourceWallet)
		if err != nil {
			e.log.Warn("seller lookup failed", "mint", pos.Mint, "error", err)
		}
	}
	sellers, err := e.wallets.SellerCount(ctx, pos.Mint)
	if err != nil {
		e.log.Warn("seller count failed", "mint", pos.Mint, "error", err)
	}

	decision := e.eval.Evaluate(EvalInput{
		Position:     pos,
		Price:        price,
		Now:          now,
		Forced:       forced,
		ForcedDetail: forcedDetail,
		SourceSold:   sourceSold,
		SourceSoldAt: sourceSoldAt,
		SellerCount:  sellers,
		Velocity:     vel,
	})
	if !decision.Exit {
		return nil
	}
	return e.executeExit(ctx, pos, decision, price, now)
}

func (e *Engine) partialSell(ctx context.Context, pos domain.Position, lvl config.PartialLevel, stage int, price, pnl float64, now time.Time) error {
	tokens := pos.TokensAmount * lvl.SellFraction
	res, err := e.exec.Sell(ctx, pos.Mint, tokens, pos.Venue)
	if err != nil || !res.Success {
		e.log.Warn("partial sell failed, will retry",
			"mint", pos.Mint, "stage", stage, "error", err, "adapter_error", res.Error)
		return nil
	}

	if err := e.positions.ApplyPartialSell(ctx, pos.Mint, tokens, res.SolReceived, stage+1); err != nil {
		return fmt.Errorf("engine: apply partial sell %s: %w", pos.Mint, err)
	}

	basis := pos.SolSpent * lvl.SellFraction
	rec := domain.TradeRecord{
		Mint:        pos.Mint,
		Strategy:    pos.Strategy,
		Wallet:      pos.SourceWallet,
		EntryPrice:  pos.AvgEntryPrice(),
		ClosePrice:  price,
		TokensSold:  tokens,
		SolSpent:    basis,
		SolReceived: res.SolReceived,
		PnLSol:      res.SolReceived - basis,
		PnLPercent:  pnl,
		Reason:      domain.ExitPartialTP,
		TxRef:       res.Signature,
		Venue:       res.Venue,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    now,
		Partial:     true,
		Simulated:   e.exec.Simulated(),
	}
	if err := e.ledger.Append(ctx, rec); err != nil {
		e.log.Error("partial ledger append failed", "mint", pos.Mint, "error", err)
	}
	e.archiveRecord(ctx, rec)

	e.log.Info("partial take-profit filled",
		"mint", pos.Mint, "stage", stage+1, "tokens", tokens, "received_sol", res.SolReceived, "pnl_pct", pnl)
	e.send(ctx, "partial_take_profit", "Partial take-profit",
		fmt.Sprintf("%s: sold %.0f%% at %.1f%% PnL (+%.4f SOL)", pos.Mint, lvl.SellFraction*100, pnl, res.SolReceived-basis))
	return nil
}

func (e *Engine) executeExit(ctx context.Context, pos domain.Position, decision domain.ExitDecision, price float64, now time.Time) error {
	res, err := e.exec.Sell(ctx, pos.Mint, pos.TokensAmount, pos.Venue)
	if err != nil || !res.Success {
		e.log.Warn("exit execution failed, position stays open",
			"mint", pos.Mint, "reason", decision.Reason, "error", err, "adapter_error", res.Error)
		// The forced flag was consumed on evaluation; re-arm it so the
		// operator's request survives the failed sell into the next cycle.
		if decision.Reason == domain.ExitForced {
			e.RequestExit(pos.Mint, decision.Detail)
		}
		return nil
	}

	summary, err := e.positions.Close(ctx, domain.CloseRequest{
		Mint:        pos.Mint,
		ClosePrice:  price,
		TokensSold:  pos.TokensAmount,
		SolReceived: res.SolReceived,
		Reason:      decision.Reason,
		TxRef:       res.Signature,
		Simulated:   e.exec.Simulated(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotOpen) {
			e.log.Debug("position already closed elsewhere", "mint", pos.Mint)
			return nil
		}
		return fmt.Errorf("engine: close %s: %w", pos.Mint, err)
	}

	if err := e.velocity.Forget(ctx, pos.Mint); err != nil {
		e.log.Warn("velocity cleanup failed", "mint", pos.Mint, "error", err)
	}

	e.archiveRecord(ctx, domain.TradeRecord{
		Mint:        summary.Mint,
		Strategy:    summary.Strategy,
		Wallet:      summary.Wallet,
		EntryPrice:  summary.EntryPrice,
		ClosePrice:  summary.ClosePrice,
		TokensSold:  summary.TokensSold,
		SolSpent:    summary.SolSpent,
		SolReceived: summary.SolReceived,
		PnLSol:      summary.PnLSol,
		PnLPercent:  summary.PnLPercent,
		Reason:      summary.Reason,
		TxRef:       summary.TxRef,
		OpenedAt:    summary.OpenedAt,
		ClosedAt:    summary.ClosedAt,
		Simulated:   summary.Simulated,
	})

	e.log.Info("position closed",
		"mint", pos.Mint, "reason", decision.Reason, "pnl_sol", summary.PnLSol,
		"pnl_pct", summary.PnLPercent, "held", summary.ClosedAt.Sub(summary.OpenedAt).Round(time.Second),
		"detail", decision.Detail)
	e.send(ctx, "position_closed", fmt.Sprintf("Closed %s", pos.Mint),
		fmt.Sprintf("%s at %.1f%% (%.4f SOL), reason %s", pos.Mint, summary.PnLPercent, summary.PnLSol, decision.Reason))
	return nil
}

func (e *Engine) archiveRecord(ctx context.Context, rec domain.TradeRecord) {
	if e.archive == nil {
		return
	}
	if err := e.archive.Insert(ctx, rec); err != nil {
		e.log.Warn("trade archive insert failed", "mint", rec.Mint, "error", err)
	}
}

func (e *Engine) send(ctx context.Context, event, title, message string) {
	if e.notify == nil {
		return
	}
	if err := e.notify.Notify(ctx, event, title, message); err != nil {
		e.log.Warn("notification failed", "event", event, "error", err)
	}
}
