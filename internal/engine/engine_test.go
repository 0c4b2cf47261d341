package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/copybot/internal/config"
	"github.com/alanyoungcy/copybot/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	closes    []domain.CloseRequest
	closeErr  error
}

func newMemStore() *memStore {
	return &memStore{positions: make(map[string]domain.Position)}
}

func (s *memStore) Open(ctx context.Context, req domain.OpenRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.positions[req.Mint]; ok && p.Status == domain.PositionStatusOpen {
		return domain.ErrDuplicatePosition
	}
	s.positions[req.Mint] = domain.Position{
		Mint:         req.Mint,
		Strategy:     req.Strategy,
		SourceWallet: req.SourceWallet,
		EntryPrice:   req.EntryPrice,
		SolSpent:     req.SolSpent,
		TokensAmount: req.TokensAmount,
		OpenedAt:     time.Now().UTC(),
		Venue:        req.Venue,
		MaxPrice:     req.EntryPrice,
		Status:       domain.PositionStatusOpen,
	}
	return nil
}

func (s *memStore) Get(ctx context.Context, mint string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[mint]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) OpenCount(ctx context.Context) (int, error) {
	open, _ := s.GetOpen(ctx)
	return len(open), nil
}

func (s *memStore) RatchetMaxPrice(ctx context.Context, mint string, observed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[mint]
	if !ok || p.Status != domain.PositionStatusOpen {
		return nil
	}
	if observed > p.MaxPrice {
		p.MaxPrice = observed
		s.positions[mint] = p
	}
	return nil
}

func (s *memStore) RecordObservation(ctx context.Context, mint string, price, pnlPct float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[mint]
	if !ok || p.Status != domain.PositionStatusOpen {
		return nil
	}
	p.LastPrice = price
	p.LastPriceAt = at
	if pnlPct > p.MaxPnLPercent {
		p.MaxPnLPercent = pnlPct
	}
	if pnlPct < p.MinPnLPercent {
		p.MinPnLPercent = pnlPct
	}
	s.positions[mint] = p
	return nil
}

func (s *memStore) ApplyPartialSell(ctx context.Context, mint string, tokensSold, solReceived float64, stage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[mint]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrPositionNotOpen
	}
	frac := tokensSold / p.TokensAmount
	p.SolSpent *= 1 - frac
	p.TokensAmount -= tokensSold
	p.PartialStage = stage
	s.positions[mint] = p
	return nil
}

func (s *memStore) Close(ctx context.Context, req domain.CloseRequest) (domain.ClosedSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return domain.ClosedSummary{}, s.closeErr
	}
	p, ok := s.positions[req.Mint]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ClosedSummary{}, domain.ErrPositionNotOpen
	}
	entry := p.AvgEntryPrice()
	pnlSol := req.SolReceived - p.SolSpent
	p.Status = domain.PositionStatusClosed
	p.ClosedAt = time.Now().UTC()
	p.ClosePrice = req.ClosePrice
	p.ExitReason = req.Reason
	s.positions[req.Mint] = p
	s.closes = append(s.closes, req)
	return domain.ClosedSummary{
		Mint:        req.Mint,
		Strategy:    p.Strategy,
		Wallet:      p.SourceWallet,
		EntryPrice:  entry,
		ClosePrice:  req.ClosePrice,
		TokensSold:  req.TokensSold,
		SolSpent:    p.SolSpent,
		SolReceived: req.SolReceived,
		PnLSol:      pnlSol,
		PnLPercent:  (req.ClosePrice - entry) / entry * 100,
		Reason:      req.Reason,
		TxRef:       req.TxRef,
		OpenedAt:    p.OpenedAt,
		ClosedAt:    p.ClosedAt,
		Simulated:   req.Simulated,
	}, nil
}

type memLedger struct {
	mu      sync.Mutex
	records []domain.TradeRecord
}

func (l *memLedger) Append(ctx context.Context, rec domain.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memLedger) Day(ctx context.Context, date string) ([]domain.TradeRecord, error) {
	return nil, nil
}

func (l *memLedger) History(ctx context.Context, days int) ([]domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.TradeRecord(nil), l.records...), nil
}

func (l *memLedger) Summary(ctx context.Context, date string) (domain.DailySummary, error) {
	return domain.DailySummary{}, nil
}

type memOracle struct {
	mu     sync.Mutex
	quotes map[string]domain.PriceQuote
}

func newMemOracle() *memOracle {
	return &memOracle{quotes: make(map[string]domain.PriceQuote)}
}

func (o *memOracle) set(mint string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[mint] = domain.PriceQuote{Mint: mint, Price: price, Known: true, Timestamp: time.Now().UTC()}
}

func (o *memOracle) setUnknown(mint string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[mint] = domain.PriceQuote{Mint: mint, Known: false}
}

func (o *memOracle) setMigrated(mint string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[mint] = domain.PriceQuote{Mint: mint, Price: price, Known: true, Migrated: true}
}

func (o *memOracle) GetPrice(ctx context.Context, mint string) (domain.PriceQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	q, ok := o.quotes[mint]
	if !ok {
		return domain.PriceQuote{Mint: mint}, domain.ErrPriceUnavailable
	}
	return q, nil
}

func (o *memOracle) GetPositionValue(ctx context.Context, mint string, tokens float64) (domain.PositionValue, error) {
	q, err := o.GetPrice(ctx, mint)
	if err != nil {
		return domain.PositionValue{}, err
	}
	return domain.PositionValue{UnitPrice: q.Price, TotalValue: q.Price * tokens}, nil
}

type sellCall struct {
	mint   string
	tokens float64
}

type memExec struct {
	mu        sync.Mutex
	fail      bool
	simulated bool
	proceeds  float64
	sells     []sellCall
}

func (x *memExec) Buy(ctx context.Context, mint string, amountSol float64, venueHint string) (domain.BuyResult, error) {
	return domain.BuyResult{Success: true, TokensReceived: 1, EffectivePrice: amountSol}, nil
}

func (x *memExec) Sell(ctx context.Context, mint string, tokens float64, venueHint string) (domain.SellResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.fail {
		return domain.SellResult{Success: false, Error: "rpc unavailable"}, nil
	}
	x.sells = append(x.sells, sellCall{mint: mint, tokens: tokens})
	return domain.SellResult{Success: true, SolReceived: x.proceeds, Signature: fmt.Sprintf("sig-%d", len(x.sells))}, nil
}

func (x *memExec) Simulated() bool { return x.simulated }

type memWallets struct {
	mu      sync.Mutex
	soldAt  map[string]time.Time // mint|wallet
	sellers map[string]int
}

func newMemWallets() *memWallets {
	return &memWallets{soldAt: make(map[string]time.Time), sellers: make(map[string]int)}
}

func (w *memWallets) MarkBuyer(ctx context.Context, mint, wallet string) error { return nil }

func (w *memWallets) MarkSeller(ctx context.Context, mint, wallet string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.soldAt[mint+"|"+wallet] = time.Now().UTC()
	w.sellers[mint]++
	return nil
}

func (w *memWallets) BuyerCount(ctx context.Context, mint string) (int, error) { return 0, nil }

func (w *memWallets) SellerCount(ctx context.Context, mint string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sellers[mint], nil
}

func (w *memWallets) HasSold(ctx context.Context, mint, wallet string) (bool, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.soldAt[mint+"|"+wallet]
	return ok, at, nil
}

type memVelocity struct {
	mu      sync.Mutex
	stats   map[string]domain.VelocityStats
	forgets []string
}

func newMemVelocity() *memVelocity {
	return &memVelocity{stats: make(map[string]domain.VelocityStats)}
}

func (v *memVelocity) Observe(ctx context.Context, mint string, price float64, at time.Time) (domain.VelocityStats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats[mint], nil
}

func (v *memVelocity) Forget(ctx context.Context, mint string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.forgets = append(v.forgets, mint)
	return nil
}

const testMint = "So11111111111111111111111111111111111111112"

func engineConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Exit = ladderConfig()
	cfg.Monitor.MaxConcurrent = 4
	return &cfg
}

type engineHarness struct {
	engine   *Engine
	store    *memStore
	ledger   *memLedger
	oracle   *memOracle
	exec     *memExec
	wallets  *memWallets
	velocity *memVelocity
}

func newHarness(t *testing.T, cfg *config.Config) *engineHarness {
	t.Helper()
	h := &engineHarness{
		store:    newMemStore(),
		ledger:   &memLedger{},
		oracle:   newMemOracle(),
		exec:     &memExec{},
		wallets:  newMemWallets(),
		velocity: newMemVelocity(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.engine = New(logger, cfg, h.store, h.ledger, h.oracle, h.exec, h.wallets, h.velocity, nil, nil)
	return h
}

func (h *engineHarness) openTestPosition(t *testing.T, openedAgo time.Duration) {
	t.Helper()
	require.NoError(t, h.store.Open(context.Background(), domain.OpenRequest{
		Mint:         testMint,
		Strategy:     domain.StrategyCopy,
		SourceWallet: "trackedWallet1",
		EntryPrice:   0.00001,
		SolSpent:     0.1,
		TokensAmount: 10000,
		Simulated:    true,
	}))
	h.store.mu.Lock()
	p := h.store.positions[testMint]
	p.OpenedAt = time.Now().UTC().Add(-openedAgo)
	h.store.positions[testMint] = p
	h.store.mu.Unlock()
}

func TestCycleTakesProfitAfterRise(t *testing.T) {
	ctx := context.Background()
	cfg := engineConfig()
	cfg.Exit.PartialTP = nil

	h := newHarness(t, cfg)
	h.openTestPosition(t, 5*time.Minute)
	h.exec.proceeds = 0.21

	for i, price := range []float64{0.000012, 0.000018, 0.000021} {
		h.oracle.set(testMint, price)
		require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()), "cycle %d", i)
	}

	require.Len(t, h.store.closes, 1)
	assert.Equal(t, domain.ExitTakeProfit, h.store.closes[0].Reason)
	assert.InDelta(t, 0.000021, h.store.closes[0].ClosePrice, 1e-12)

	p, err := h.store.Get(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.Contains(t, h.velocity.forgets, testMint)
}

func TestCycleRatchetsMaxPriceMonotonically(t *testing.T) {
	ctx := context.Background()
	cfg := engineConfig()
	cfg.Exit.PartialTP = nil

	h := newHarness(t, cfg)
	h.openTestPosition(t, time.Minute)

	for _, price := range []float64{0.000012, 0.000018, 0.000015} {
		h.oracle.set(testMint, price)
		require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))
	}

	p, err := h.store.Get(ctx, testMint)
	require.NoError(t, err)
	assert.InDelta(t, 0.000018, p.MaxPrice, 1e-12)
	assert.InDelta(t, 80, p.MaxPnLPercent, 0.01)
	assert.InDelta(t, 0.000015, p.LastPrice, 1e-12)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
}

func TestCycleStopsOutLoss(t *testing.T) {
	ctx := context.Background()
	cfg := engineConfig()

	h := newHarness(t, cfg)
	h.openTestPosition(t, 5*time.Minute)
	h.exec.proceeds = 0.08

	for _, price := range []float64{0.000009, 0.000008} {
		h.oracle.set(testMint, price)
		require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))
	}

	require.Len(t, h.store.closes, 1)
	assert.Equal(t, domain.ExitStopLoss, h.store.closes[0].Reason)
}

func TestCycleSkipsUnknownPrice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig())
	h.openTestPosition(t, 2*time.Hour) // far past max hold

	h.oracle.setUnknown(testMint)
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	assert.Empty(t, h.exec.sells)
	p, err := h.store.Get(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
	assert.Zero(t, p.LastPrice)
}

func TestCycleKeepsPositionOpenWhenSellFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig())
	h.openTestPosition(t, 5*time.Minute)

	h.oracle.set(testMint, 0.000008) // stop-loss territory
	h.exec.fail = true
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	p, err := h.store.Get(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
	assert.Empty(t, h.store.closes)

	h.exec.fail = false
	h.exec.proceeds = 0.08
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	require.Len(t, h.store.closes, 1)
	assert.Equal(t, domain.ExitStopLoss, h.store.closes[0].Reason)
}

func TestCycleToleratesRacedClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig())
	h.openTestPosition(t, 5*time.Minute)

	h.oracle.set(testMint, 0.000008)
	h.exec.proceeds = 0.08
	h.store.closeErr = domain.ErrPositionNotOpen

	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))
	assert.Empty(t, h.store.closes)
}

func TestPartialTakeProfitFiresOncePerLevel(t *testing.T) {
	ctx := context.Background()
	cfg := engineConfig()
	cfg.Exit.PartialTP = []config.PartialLevel{{PnLPercent: 100, SellFraction: 0.25}}
	cfg.Exit.TakeProfitPercent = 500 // keep the full exit out of the way

	h := newHarness(t, cfg)
	h.openTestPosition(t, 5*time.Minute)
	h.exec.proceeds = 0.055

	h.oracle.set(testMint, 0.000022) // +120%
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	require.Len(t, h.exec.sells, 1)
	assert.InDelta(t, 2500, h.exec.sells[0].tokens, 0.001)

	p, err := h.store.Get(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, 1, p.PartialStage)
	assert.InDelta(t, 7500, p.TokensAmount, 0.001)
	assert.InDelta(t, 0.075, p.SolSpent, 1e-9)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)

	require.Len(t, h.ledger.records, 1)
	assert.True(t, h.ledger.records[0].Partial)
	assert.Equal(t, domain.ExitPartialTP, h.ledger.records[0].Reason)

	// Same price next cycle: the single configured level never re-fires.
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))
	assert.Len(t, h.exec.sells, 1)
}

func TestPartialTakeProfitDisabledWhenSimulated(t *testing.T) {
	ctx := context.Background()
	cfg := engineConfig()
	cfg.Exit.PartialTP = []config.PartialLevel{{PnLPercent: 100, SellFraction: 0.25}}
	cfg.Exit.TakeProfitPercent = 500

	h := newHarness(t, cfg)
	h.exec.simulated = true
	h.openTestPosition(t, 5*time.Minute)

	h.oracle.set(testMint, 0.000022) // +120%, past the partial level
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	assert.Empty(t, h.exec.sells)
	p, err := h.store.Get(ctx, testMint)
	require.NoError(t, err)
	assert.Equal(t, 0, p.PartialStage)
	assert.InDelta(t, 10000, p.TokensAmount, 0.001)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
}

func TestRequestExitForcesCloseNextCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig())
	h.openTestPosition(t, time.Minute)
	h.exec.proceeds = 0.1

	h.oracle.set(testMint, 0.00001)
	h.engine.RequestExit(testMint, "operator request")

	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	require.Len(t, h.store.closes, 1)
	assert.Equal(t, domain.ExitForced, h.store.closes[0].Reason)
}

func TestRequestExitSurvivesFailedSell(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig())
	h.openTestPosition(t, time.Minute)

	h.oracle.set(testMint, 0.00001) // flat: no ladder rule fires on its own
	h.engine.RequestExit(testMint, "operator request")

	h.exec.fail = true
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))
	assert.Empty(t, h.store.closes)

	h.exec.fail = false
	h.exec.proceeds = 0.1
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	require.Len(t, h.store.closes, 1)
	assert.Equal(t, domain.ExitForced, h.store.closes[0].Reason)
}

func TestRequestExitAllFlagsEveryOpenPosition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, engineConfig())
	h.openTestPosition(t, time.Minute)
	require.NoError(t, h.store.Open(ctx, domain.OpenRequest{
		Mint:         "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
		Strategy:     domain.StrategyCopy,
		EntryPrice:   0.00002,
		SolSpent:     0.2,
		TokensAmount: 10000,
	}))

	n, err := h.engine.RequestExitAll(ctx, "shutdown")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h.oracle.set(testMint, 0.00001)
	h.oracle.set("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", 0.00002)
	h.exec.proceeds = 0.1
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	assert.Len(t, h.store.closes, 2)
	for _, c := range h.store.closes {
		assert.Equal(t, domain.ExitForced, c.Reason)
	}
}

func TestMigrationWithProfitForcesExit(t *testing.T) {
	ctx := context.Background()
	cfg := engineConfig()
	cfg.Exit.PartialTP = nil

	h := newHarness(t, cfg)
	h.openTestPosition(t, 2*time.Minute) // inside the take-profit grace
	h.exec.proceeds = 0.16

	h.oracle.setMigrated(testMint, 0.000016) // +60%, above the migration threshold
	require.NoError(t, h.engine.Cycle(ctx, time.Now().UTC()))

	require.Len(t, h.store.closes, 1)
	assert.Equal(t, domain.ExitForced, h.store.closes[0].Reason)
}
