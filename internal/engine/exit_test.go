package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/copybot/internal/config"
	"github.com/alanyoungcy/copybot/internal/domain"
)

func ladderConfig() config.ExitConfig {
	return config.ExitConfig{
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
		VolumeDecay: config.VolumeDecayConfig{
			Enabled:        true,
			DecayFraction:  0.3,
			DecayWindowSec: 90,
			MinHoldSec:     120,
		},
	}
}

func openPosition(openedAt time.Time) domain.Position {
	return domain.Position{
		Mint:         "So11111111111111111111111111111111111111112",
		Strategy:     domain.StrategyCopy,
		SourceWallet: "trackedWallet1",
		EntryPrice:   0.00001,
		SolSpent:     0.1,
		TokensAmount: 10000,
		OpenedAt:     openedAt,
		Status:       domain.PositionStatusOpen,
	}
}

func TestEvaluateHoldsByDefault(t *testing.T) {
	now := time.Now().UTC()
	ev := NewEvaluator(ladderConfig())

	d := ev.Evaluate(EvalInput{
		Position: openPosition(now.Add(-time.Minute)),
		Price:    0.00001,
		Now:      now,
	})
	assert.False(t, d.Exit)
}

func TestForcedExitWinsOverEverything(t *testing.T) {
	now := time.Now().UTC()
	ev := NewEvaluator(ladderConfig())
	pos := openPosition(now.Add(-2 * time.Hour))

	d := ev.Evaluate(EvalInput{
		Position:     pos,
		Price:        0.000008, // simultaneously in stop-loss and max-hold territory
		Now:          now,
		Forced:       true,
		ForcedDetail: "operator request",
		SellerCount:  5,
	})
	require.True(t, d.Exit)
	assert.Equal(t, domain.ExitForced, d.Reason)
	assert.Equal(t, "operator request", d.Detail)
	assert.InDelta(t, -20, d.PnLPercent, 0.01)
}

func TestWalletMirrorPhases(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()

	t.Run("phase1 mirrors unconditionally", func(t *testing.T) {
		pos := openPosition(now.Add(-2 * time.Minute))
		d := ev.Evaluate(EvalInput{
			Position:     pos,
			Price:        0.000012, // +20%, profitable
			Now:          now,
			SourceSold:   true,
			SourceSoldAt: pos.OpenedAt.Add(time.Minute),
		})
		require.True(t, d.Exit)
		assert.Equal(t, domain.ExitWalletCopy, d.Reason)
	})

	t.Run("phase2 mirrors only at a loss", func(t *testing.T) {
		pos := openPosition(now.Add(-5 * time.Minute))
		in := EvalInput{
			Position:     pos,
			Price:        0.000011, // +10%
			Now:          now,
			SourceSold:   true,
			SourceSoldAt: pos.OpenedAt.Add(time.Minute),
		}
		assert.False(t, ev.Evaluate(in).Exit)

		in.Price = 0.0000095 // -5%
		d := ev.Evaluate(in)
		require.True(t, d.Exit)
		assert.Equal(t, domain.ExitWalletCopy, d.Reason)
	})

	t.Run("mature positions ignore the source", func(t *testing.T) {
		pos := openPosition(now.Add(-15 * time.Minute))
		d := ev.Evaluate(EvalInput{
			Position:     pos,
			Price:        0.000009, // -10%, above the stop
			Now:          now,
			SourceSold:   true,
			SourceSoldAt: pos.OpenedAt.Add(12 * time.Minute),
		})
		assert.False(t, d.Exit)
	})

	t.Run("sell before our entry is stale", func(t *testing.T) {
		pos := openPosition(now.Add(-time.Minute))
		d := ev.Evaluate(EvalInput{
			Position:     pos,
			Price:        0.00001,
			Now:          now,
			SourceSold:   true,
			SourceSoldAt: pos.OpenedAt.Add(-time.Second),
		})
		assert.False(t, d.Exit)
	})
}

func TestTakeProfit(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()

	t.Run("fires past the grace window", func(t *testing.T) {
		pos := openPosition(now.Add(-5 * time.Minute))
		d := ev.Evaluate(EvalInput{Position: pos, Price: 0.000021, Now: now}) // +110%
		require.True(t, d.Exit)
		assert.Equal(t, domain.ExitTakeProfit, d.Reason)
		assert.InDelta(t, 110, d.PnLPercent, 0.01)
	})

	t.Run("defers inside the grace window", func(t *testing.T) {
		pos := openPosition(now.Add(-30 * time.Second))
		pos.MaxPrice = 0.000022
		pos.MaxPnLPercent = 120
		d := ev.Evaluate(EvalInput{Position: pos, Price: 0.000022, Now: now}) // +120%, 30s in
		assert.False(t, d.Exit)
	})

	t.Run("mega pump overrides the deferral", func(t *testing.T) {
		pos := openPosition(now.Add(-30 * time.Second))
		pos.MaxPrice = 0.000031
		pos.MaxPnLPercent = 210 // past 2x the target
		d := ev.Evaluate(EvalInput{Position: pos, Price: 0.00003, Now: now})
		require.True(t, d.Exit)
		assert.Equal(t, domain.ExitTakeProfit, d.Reason)
	})
}

func TestTrailingStop(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()

	pos := openPosition(now.Add(-5 * time.Minute))
	pos.MaxPrice = 0.00003
	pos.MaxPnLPercent = 200

	d := ev.Evaluate(EvalInput{Position: pos, Price: 0.0000175, Now: now}) // 41.7% off max, +75% overall
	require.True(t, d.Exit)
	assert.Equal(t, domain.ExitTrailingStop, d.Reason)
	assert.InDelta(t, 75, d.PnLPercent, 0.01)

	// Never-profitable positions are left to the stop-loss.
	pos.MaxPrice = 0.00001
	pos.MaxPnLPercent = 0
	d = ev.Evaluate(EvalInput{Position: pos, Price: 0.0000092, Now: now})
	assert.False(t, d.Exit)
}

func TestStopLoss(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()
	pos := openPosition(now.Add(-5 * time.Minute))

	d := ev.Evaluate(EvalInput{Position: pos, Price: 0.0000084, Now: now}) // -16%
	require.True(t, d.Exit)
	assert.Equal(t, domain.ExitStopLoss, d.Reason)

	d = ev.Evaluate(EvalInput{Position: pos, Price: 0.0000086, Now: now}) // -14%
	assert.False(t, d.Exit)
}

func TestVolumeDecay(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()

	decayed := domain.VelocityStats{
		Observed:  true,
		Current:   0.01,
		Peak:      1.0,
		SincePeak: 2 * time.Minute,
	}

	t.Run("exits after sustained collapse", func(t *testing.T) {
		pos := openPosition(now.Add(-5 * time.Minute))
		d := ev.Evaluate(EvalInput{Position: pos, Price: 0.0000105, Now: now, Velocity: decayed})
		require.True(t, d.Exit)
		assert.Equal(t, domain.ExitVolumeDecay, d.Reason)
	})

	t.Run("respects the minimum hold", func(t *testing.T) {
		pos := openPosition(now.Add(-time.Minute))
		d := ev.Evaluate(EvalInput{Position: pos, Price: 0.0000105, Now: now, Velocity: decayed})
		assert.False(t, d.Exit)
	})

	t.Run("needs the full decay window", func(t *testing.T) {
		short := decayed
		short.SincePeak = 30 * time.Second
		pos := openPosition(now.Add(-5 * time.Minute))
		d := ev.Evaluate(EvalInput{Position: pos, Price: 0.0000105, Now: now, Velocity: short})
		assert.False(t, d.Exit)
	})
}

func TestCorroboratedSellers(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()
	pos := openPosition(now.Add(-5 * time.Minute))

	d := ev.Evaluate(EvalInput{Position: pos, Price: 0.0000102, Now: now, SellerCount: 2})
	require.True(t, d.Exit)
	assert.Equal(t, domain.ExitSellers, d.Reason)

	d = ev.Evaluate(EvalInput{Position: pos, Price: 0.0000102, Now: now, SellerCount: 1})
	assert.False(t, d.Exit)
}

func TestMaxHold(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()
	pos := openPosition(now.Add(-61 * time.Minute))

	d := ev.Evaluate(EvalInput{Position: pos, Price: 0.00001, Now: now})
	require.True(t, d.Exit)
	assert.Equal(t, domain.ExitMaxHold, d.Reason)
}

func TestStopLossOutranksMaxHold(t *testing.T) {
	ev := NewEvaluator(ladderConfig())
	now := time.Now().UTC()
	pos := openPosition(now.Add(-61 * time.Minute))

	d := ev.Evaluate(EvalInput{Position: pos, Price: 0.000008, Now: now})
	require.True(t, d.Exit)
	assert.Equal(t, domain.ExitStopLoss, d.Reason)
}

func TestNextPartialFiresLevelsInOrder(t *testing.T) {
	levels := []config.PartialLevel{
		{PnLPercent: 100, SellFraction: 0.25},
		{PnLPercent: 200, SellFraction: 0.33},
	}
	pos := openPosition(time.Now().UTC())

	_, _, ok := NextPartial(pos, 80, levels)
	assert.False(t, ok)

	lvl, stage, ok := NextPartial(pos, 120, levels)
	require.True(t, ok)
	assert.Equal(t, 0, stage)
	assert.Equal(t, 0.25, lvl.SellFraction)

	// Even a gap over both rungs sells only the next one.
	lvl, stage, ok = NextPartial(pos, 250, levels)
	require.True(t, ok)
	assert.Equal(t, 0, stage)
	assert.Equal(t, 0.25, lvl.SellFraction)

	pos.PartialStage = 1
	lvl, stage, ok = NextPartial(pos, 250, levels)
	require.True(t, ok)
	assert.Equal(t, 1, stage)
	assert.Equal(t, 0.33, lvl.SellFraction)

	pos.PartialStage = 2
	_, _, ok = NextPartial(pos, 500, levels)
	assert.False(t, ok)
}
