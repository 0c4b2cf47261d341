package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/copybot/internal/domain"
)

const storeTestMint = "So11111111111111111111111111111111111111112"

func testStore(t *testing.T) (*PositionStore, *TradeLedger) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ledger := NewTradeLedger(c)
	return NewPositionStore(c, ledger, 0.000105), ledger
}

func openStoreTestPosition(t *testing.T, store *PositionStore) {
	t.Helper()
	require.NoError(t, store.Open(context.Background(), domain.OpenRequest{
		Mint:         storeTestMint,
		Strategy:     domain.StrategyCopy,
		SourceWallet: "trackedWallet1",
		EntryPrice:   0.00001,
		SolSpent:     0.1,
		TokensAmount: 10000,
		Simulated:    true,
	}))
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, ledger := testStore(t)
	openStoreTestPosition(t, store)

	req := domain.CloseRequest{
		Mint:        storeTestMint,
		ClosePrice:  0.00002,
		TokensSold:  10000,
		SolReceived: 0.2,
		Reason:      domain.ExitTakeProfit,
		TxRef:       "sig-1",
		Simulated:   true,
	}

	summary, err := store.Close(ctx, req)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, summary.PnLSol, 1e-9)
	assert.InDelta(t, 100, summary.PnLPercent, 0.01)

	// Second close of the same mint loses the open-set race.
	_, err = store.Close(ctx, req)
	assert.ErrorIs(t, err, domain.ErrPositionNotOpen)

	// Exactly one ledger record despite the double call.
	day, err := ledger.Day(ctx, DateKey(time.Now().UTC()))
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, domain.ExitTakeProfit, day[0].Reason)
	assert.Equal(t, "sig-1", day[0].TxRef)

	p, err := store.Get(ctx, storeTestMint)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, p.Status)

	n, err := store.OpenCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenRejectsDuplicateMint(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)
	openStoreTestPosition(t, store)

	err := store.Open(ctx, domain.OpenRequest{
		Mint:         storeTestMint,
		Strategy:     domain.StrategyCopy,
		SourceWallet: "trackedWallet2",
		EntryPrice:   0.00002,
		SolSpent:     0.1,
		TokensAmount: 5000,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePosition)

	// The original record is untouched.
	p, err := store.Get(ctx, storeTestMint)
	require.NoError(t, err)
	assert.Equal(t, "trackedWallet1", p.SourceWallet)
	assert.InDelta(t, 10000, p.TokensAmount, 0.001)
}

func TestRatchetMaxPriceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore(t)
	openStoreTestPosition(t, store)

	require.NoError(t, store.RatchetMaxPrice(ctx, storeTestMint, 0.000018))
	require.NoError(t, store.RatchetMaxPrice(ctx, storeTestMint, 0.000012))

	p, err := store.Get(ctx, storeTestMint)
	require.NoError(t, err)
	assert.InDelta(t, 0.000018, p.MaxPrice, 1e-12)
}
