package intake

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/copybot/internal/domain"
)

const (
	admMint   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	admWallet = "trackedWallet1"
)

// stubPositions answers Get and OpenCount; the ladder touches nothing else.
type stubPositions struct {
	domain.PositionStore
	byMint map[string]domain.Position
	open   int
}

func (s *stubPositions) Get(ctx context.Context, mint string) (domain.Position, error) {
	p, ok := s.byMint[mint]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *stubPositions) OpenCount(ctx context.Context) (int, error) {
	return s.open, nil
}

type stubLedger struct {
	domain.TradeLedger
	history []domain.TradeRecord
}

func (s *stubLedger) History(ctx context.Context, days int) ([]domain.TradeRecord, error) {
	return s.history, nil
}

type stubCooldowns struct {
	cooling map[string]bool
}

func (s *stubCooldowns) SetCooldown(ctx context.Context, mint string, ttl time.Duration) error {
	if s.cooling == nil {
		s.cooling = make(map[string]bool)
	}
	s.cooling[mint] = true
	return nil
}

func (s *stubCooldowns) InCooldown(ctx context.Context, mint string) (bool, error) {
	return s.cooling[mint], nil
}

type stubArchive struct {
	domain.TradeArchive
	window []domain.TradeRecord
	err    error
}

func (s *stubArchive) ListWindow(ctx context.Context, mint, wallet string, since time.Time) ([]domain.TradeRecord, error) {
	return s.window, s.err
}

func admissionFixture() (*stubPositions, *stubLedger, *stubCooldowns, AdmissionConfig) {
	return &stubPositions{byMint: make(map[string]domain.Position)},
		&stubLedger{},
		&stubCooldowns{},
		AdmissionConfig{
			MinWalletsToBuy: 2,
			MaxPositions:    5,
			RebuyWindow:     24 * time.Hour,
			RebuyScanDays:   3,
			Cooldown:        5 * time.Minute,
		}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buySignal(corroboration int) domain.Signal {
	return domain.Signal{
		ID:                 "sig-1",
		Mint:               admMint,
		Wallet:             admWallet,
		TxType:             domain.TxBuy,
		AmountSol:          0.5,
		Timestamp:          time.Now().UTC(),
		CorroborationCount: corroboration,
	}
}

func TestEvaluateBuyCorroboration(t *testing.T) {
	positions, ledger, cooldowns, cfg := admissionFixture()
	adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())
	ctx := context.Background()

	// First tracked wallet alone is not enough.
	res, err := adm.EvaluateBuy(ctx, buySignal(1))
	require.NoError(t, err)
	assert.False(t, res.Admit)
	assert.Equal(t, domain.RejectLowCorroboration, res.Reason)

	// A second wallet's buy arrives and the count reaches the minimum.
	res, err = adm.EvaluateBuy(ctx, buySignal(2))
	require.NoError(t, err)
	assert.True(t, res.Admit)
	assert.Equal(t, domain.ConfidenceMedium, res.Confidence)

	res, err = adm.EvaluateBuy(ctx, buySignal(3))
	require.NoError(t, err)
	assert.True(t, res.Admit)
	assert.Equal(t, domain.ConfidenceHigh, res.Confidence)
}

func TestEvaluateBuySimulationWaivesCorroboration(t *testing.T) {
	positions, ledger, cooldowns, cfg := admissionFixture()
	cfg.Simulation = true
	adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())

	res, err := adm.EvaluateBuy(context.Background(), buySignal(1))
	require.NoError(t, err)
	assert.True(t, res.Admit)
}

func TestEvaluateBuyRebuyBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("open position attributed to the wallet", func(t *testing.T) {
		positions, ledger, cooldowns, cfg := admissionFixture()
		positions.byMint[admMint] = domain.Position{
			Mint:         admMint,
			SourceWallet: admWallet,
			Status:       domain.PositionStatusOpen,
		}
		adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())

		res, err := adm.EvaluateBuy(ctx, buySignal(2))
		require.NoError(t, err)
		assert.Equal(t, domain.RejectRebuyBlocked, res.Reason)
	})

	t.Run("closed trade inside the window", func(t *testing.T) {
		positions, ledger, cooldowns, cfg := admissionFixture()
		ledger.history = []domain.TradeRecord{{
			Mint:     admMint,
			Wallet:   admWallet,
			ClosedAt: time.Now().UTC().Add(-time.Hour),
		}}
		adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())

		res, err := adm.EvaluateBuy(ctx, buySignal(2))
		require.NoError(t, err)
		assert.Equal(t, domain.RejectRebuyBlocked, res.Reason)
	})

	t.Run("closed trade outside the window admits", func(t *testing.T) {
		positions, ledger, cooldowns, cfg := admissionFixture()
		ledger.history = []domain.TradeRecord{{
			Mint:     admMint,
			Wallet:   admWallet,
			ClosedAt: time.Now().UTC().Add(-48 * time.Hour),
		}}
		adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())

		res, err := adm.EvaluateBuy(ctx, buySignal(2))
		require.NoError(t, err)
		assert.True(t, res.Admit)
	})

	t.Run("archive hit blocks", func(t *testing.T) {
		positions, ledger, cooldowns, cfg := admissionFixture()
		archive := &stubArchive{window: []domain.TradeRecord{{Mint: admMint, Wallet: admWallet}}}
		adm := NewAdmission(positions, ledger, cooldowns, archive, cfg, testLogger())

		res, err := adm.EvaluateBuy(ctx, buySignal(2))
		require.NoError(t, err)
		assert.Equal(t, domain.RejectRebuyBlocked, res.Reason)
	})

	t.Run("archive failure is not fatal", func(t *testing.T) {
		positions, ledger, cooldowns, cfg := admissionFixture()
		archive := &stubArchive{err: domain.ErrRateLimited}
		adm := NewAdmission(positions, ledger, cooldowns, archive, cfg, testLogger())

		res, err := adm.EvaluateBuy(ctx, buySignal(2))
		require.NoError(t, err)
		assert.True(t, res.Admit)
	})
}

func TestEvaluateBuyCooldown(t *testing.T) {
	positions, ledger, cooldowns, cfg := admissionFixture()
	require.NoError(t, cooldowns.SetCooldown(context.Background(), admMint, cfg.Cooldown))
	adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())

	res, err := adm.EvaluateBuy(context.Background(), buySignal(2))
	require.NoError(t, err)
	assert.Equal(t, domain.RejectCooldown, res.Reason)
}

func TestEvaluateBuyDuplicateOpenPosition(t *testing.T) {
	positions, ledger, cooldowns, cfg := admissionFixture()
	// Held, but entered from a different wallet: not a rebuy, still a dup.
	positions.byMint[admMint] = domain.Position{
		Mint:         admMint,
		SourceWallet: "someOtherWallet",
		Status:       domain.PositionStatusOpen,
	}
	adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())

	res, err := adm.EvaluateBuy(context.Background(), buySignal(2))
	require.NoError(t, err)
	assert.Equal(t, domain.RejectDuplicate, res.Reason)
}

func TestEvaluateBuyMaxPositions(t *testing.T) {
	positions, ledger, cooldowns, cfg := admissionFixture()
	positions.open = cfg.MaxPositions
	adm := NewAdmission(positions, ledger, cooldowns, nil, cfg, testLogger())

	res, err := adm.EvaluateBuy(context.Background(), buySignal(2))
	require.NoError(t, err)
	assert.Equal(t, domain.RejectMaxPositions, res.Reason)
}
