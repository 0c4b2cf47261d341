// Package engine evaluates open positions against the exit ladder and drives
// confirmed exits through the execution adapter and the position store.
package engine

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/copybot/internal/config"
	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// EvalInput is one position's snapshot for a single ladder evaluation.
type EvalInput struct {
	Position domain.Position
	Price    float64
	Now      time.Time

	Forced       bool
	ForcedDetail string

	// Source-wallet mirror state for this mint.
	SourceSold   bool
	SourceSoldAt time.Time

	SellerCount int

	Velocity domain.VelocityStats
}

// Evaluator applies the exit ladder in strict priority order. Rules are
// checked top to bottom and the first match wins, so a stop-loss can never
// pre-empt a forced exit and a max-hold can never pre-empt a stop-loss.
type Evaluator struct {
	cfg config.ExitConfig
}

// NewEvaluator creates an Evaluator over a fixed exit configuration.
func NewEvaluator(cfg config.ExitConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate returns at most one exit decision for the snapshot. A zero
// decision means hold.
func (e *Evaluator) Evaluate(in EvalInput) domain.ExitDecision {
	pos := in.Position
	entry := pos.AvgEntryPrice()
	pnl := numeric.SafePercent(in.Price, entry, 0)
	hold := pos.HoldDuration(in.Now)

	if in.Forced {
		return domain.ExitDecision{
			Exit:       true,
			Reason:     domain.ExitForced,
			PnLPercent: pnl,
			Detail:     in.ForcedDetail,
		}
	}

	if d, ok := e.walletMirror(in, pnl, hold); ok {
		return d
	}

	if d, ok := e.takeProfit(pos, pnl, hold); ok {
		return d
	}

	if d, ok := e.trailingStop(pos, in.Price, pnl); ok {
		return d
	}

	if pnl <= -e.cfg.StopLossPercent {
		return domain.ExitDecision{
			Exit:       true,
			Reason:     domain.ExitStopLoss,
			PnLPercent: pnl,
			Detail:     fmt.Sprintf("pnl %.1f%% breached -%.1f%%", pnl, e.cfg.StopLossPercent),
		}
	}

	if d, ok := e.volumeDecay(in, pnl, hold); ok {
		return d
	}

	if e.cfg.MinSellersToExit > 0 && in.SellerCount >= e.cfg.MinSellersToExit {
		return domain.ExitDecision{
			Exit:       true,
			Reason:     domain.ExitSellers,
			PnLPercent: pnl,
			Detail:     fmt.Sprintf("%d tracked wallets sold", in.SellerCount),
		}
	}

	if maxHold := time.Duration(e.cfg.MaxHoldMinutes) * time.Minute; maxHold > 0 && hold >= maxHold {
		return domain.ExitDecision{
			Exit:       true,
			Reason:     domain.ExitMaxHold,
			PnLPercent: pnl,
			Detail:     fmt.Sprintf("held %s, limit %s", hold.Round(time.Second), maxHold),
		}
	}

	return domain.HoldDecision
}

// walletMirror copies a tracked wallet's sell in phases keyed to hold time:
// unconditionally while fresh, only as loss protection mid-hold, and not at
// all once the position is mature. Sells recorded before our own entry are
// stale and never mirrored.
func (e *Evaluator) walletMirror(in EvalInput, pnl float64, hold time.Duration) (domain.ExitDecision, bool) {
	if !in.SourceSold || in.Position.SourceWallet == "" {
		return domain.HoldDecision, false
	}
	if !in.SourceSoldAt.After(in.Position.OpenedAt) {
		return domain.HoldDecision, false
	}

	phase1 := time.Duration(e.cfg.Phase1Minutes) * time.Minute
	phase2 := time.Duration(e.cfg.Phase2Minutes) * time.Minute

	switch {
	case hold < phase1:
		return domain.ExitDecision{
			Exit:       true,
			Reason:     domain.ExitWalletCopy,
			PnLPercent: pnl,
			Detail:     fmt.Sprintf("source %s sold within %s of entry", in.Position.SourceWallet, phase1),
		}, true
	case hold < phase2 && pnl < 0:
		return domain.ExitDecision{
			Exit:       true,
			Reason:     domain.ExitWalletCopy,
			PnLPercent: pnl,
			Detail:     fmt.Sprintf("source %s sold while position at %.1f%%", in.Position.SourceWallet, pnl),
		}, true
	}
	return domain.HoldDecision, false
}

// takeProfit exits at the target, except during the mega-pump grace window:
// a position that crossed the target within GraceSeconds of entry is left to
// the trailing stop unless its peak already reached MegaPumpMultiple times
// the target.
func (e *Evaluator) takeProfit(pos domain.Position, pnl float64, hold time.Duration) (domain.ExitDecision, bool) {
	if pnl < e.cfg.TakeProfitPercent {
		return domain.HoldDecision, false
	}
	grace := time.Duration(e.cfg.GraceSeconds) * time.Second
	if grace > 0 && hold < grace && pos.MaxPnLPercent < e.cfg.TakeProfitPercent*e.cfg.MegaPumpMultiple {
		return domain.HoldDecision, false
	}
	return domain.ExitDecision{
		Exit:       true,
		Reason:     domain.ExitTakeProfit,
		PnLPercent: pnl,
		Detail:     fmt.Sprintf("pnl %.1f%% reached target %.1f%%", pnl, e.cfg.TakeProfitPercent),
	}, true
}

// trailingStop exits when the position has been profitable at some point and
// price has retraced by the trailing percentage from the ratcheted max.
func (e *Evaluator) trailingStop(pos domain.Position, price, pnl float64) (domain.ExitDecision, bool) {
	if pos.MaxPnLPercent <= 0 || pos.MaxPrice <= 0 {
		return domain.HoldDecision, false
	}
	drop := numeric.SafeDivide(pos.MaxPrice-price, pos.MaxPrice, 0) * 100
	if drop < e.cfg.TrailingPercent {
		return domain.HoldDecision, false
	}
	return domain.ExitDecision{
		Exit:       true,
		Reason:     domain.ExitTrailingStop,
		PnLPercent: pnl,
		Detail:     fmt.Sprintf("%.1f%% off max price %.8g", drop, pos.MaxPrice),
	}, true
}

// volumeDecay exits when the price-velocity proxy has collapsed relative to
// its peak and stayed collapsed past the decay window.
func (e *Evaluator) volumeDecay(in EvalInput, pnl float64, hold time.Duration) (domain.ExitDecision, bool) {
	vd := e.cfg.VolumeDecay
	if !vd.Enabled || !in.Velocity.Observed || in.Velocity.Peak <= 0 {
		return domain.HoldDecision, false
	}
	if hold < time.Duration(vd.MinHoldSec)*time.Second {
		return domain.HoldDecision, false
	}
	if in.Velocity.Current >= vd.DecayFraction*in.Velocity.Peak {
		return domain.HoldDecision, false
	}
	if in.Velocity.SincePeak < time.Duration(vd.DecayWindowSec)*time.Second {
		return domain.HoldDecision, false
	}
	return domain.ExitDecision{
		Exit:       true,
		Reason:     domain.ExitVolumeDecay,
		PnLPercent: pnl,
		Detail: fmt.Sprintf("velocity %.3g below %.0f%% of peak %.3g for %s",
			in.Velocity.Current, vd.DecayFraction*100, in.Velocity.Peak, in.Velocity.SincePeak.Round(time.Second)),
	}, true
}
