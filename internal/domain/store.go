package domain

import (
	"context"
	"time"
)

// OpenRequest carries everything needed to create an open position.
type OpenRequest struct {
	Mint         string
	Strategy     StrategyTag
	SourceWallet string
	EntryPrice   float64
	SolSpent     float64
	TokensAmount float64
	Venue        string
	Simulated    bool
}

// CloseRequest carries a confirmed exit into the store.
type CloseRequest struct {
	Mint        string
	ClosePrice  float64
	TokensSold  float64
	SolReceived float64
	Reason      ExitReason
	TxRef       string
	Simulated   bool
}

// PositionStore is the single writer of durable position state. Open and
// Close are atomic: no reader ever observes open-set membership without a
// readable record, or a closed status still inside the open set. Close is
// safe to race: the second caller gets ErrPositionNotOpen and nothing is
// double-applied.
type PositionStore interface {
	Open(ctx context.Context, req OpenRequest) error
	Get(ctx context.Context, mint string) (Position, error)
	GetOpen(ctx context.Context) ([]Position, error)
	OpenCount(ctx context.Context) (int, error)

	// RatchetMaxPrice raises the running max only when observed exceeds the
	// stored max; no-op otherwise or when the position is absent.
	RatchetMaxPrice(ctx context.Context, mint string, observed float64) error

	// RecordObservation caches the last observed price and running PnL
	// extrema for status reporting.
	RecordObservation(ctx context.Context, mint string, price, pnlPct float64, at time.Time) error

	// ApplyPartialSell rewrites remaining quantity and cost basis after a
	// confirmed partial exit and bumps the partial stage counter.
	ApplyPartialSell(ctx context.Context, mint string, tokensSold, solReceived float64, stage int) error

	Close(ctx context.Context, req CloseRequest) (ClosedSummary, error)
}

// TradeLedger is the append-only, date-keyed record of closed trades.
type TradeLedger interface {
	Append(ctx context.Context, rec TradeRecord) error
	Day(ctx context.Context, date string) ([]TradeRecord, error)
	// History returns records for today and the previous days-1 UTC days,
	// newest day first.
	History(ctx context.Context, days int) ([]TradeRecord, error)
	Summary(ctx context.Context, date string) (DailySummary, error)
}

// WalletTracker maintains per-mint transient sets of tracked wallets that
// bought or sold a mint, each entry carrying a TTL.
type WalletTracker interface {
	MarkBuyer(ctx context.Context, mint, wallet string) error
	MarkSeller(ctx context.Context, mint, wallet string) error
	BuyerCount(ctx context.Context, mint string) (int, error)
	SellerCount(ctx context.Context, mint string) (int, error)
	HasSold(ctx context.Context, mint, wallet string) (bool, time.Time, error)
}

// CooldownTracker sets and checks per-mint buy cooldown markers with a TTL.
type CooldownTracker interface {
	SetCooldown(ctx context.Context, mint string, ttl time.Duration) error
	InCooldown(ctx context.Context, mint string) (bool, error)
}

// QuoteCache holds short-lived price quotes to bound read amplification
// against the RPC and the fallback quote service.
type QuoteCache interface {
	Put(ctx context.Context, q PriceQuote, ttl time.Duration) error
	Get(ctx context.Context, mint string) (PriceQuote, error)
}

// SignalQueue is the at-least-once inbound queue between the wallet watcher
// and admission control. Admission must tolerate redelivery.
type SignalQueue interface {
	Enqueue(ctx context.Context, sig Signal) error
	// Read returns up to count signals after lastID, together with the new
	// cursor. An empty result with the same cursor means nothing pending.
	Read(ctx context.Context, lastID string, count int) ([]Signal, string, error)
	Pending(ctx context.Context) (int64, error)
}

// TradeArchive is the optional durable archive of closed trades, used for
// reporting and long-window rebuy scans.
type TradeArchive interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListWindow(ctx context.Context, mint, wallet string, since time.Time) ([]TradeRecord, error)
	DailyPnL(ctx context.Context, since time.Time) ([]DailySummary, error)
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
