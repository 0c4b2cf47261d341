package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// StrategyTag identifies how a position was entered.
type StrategyTag string

const (
	StrategyCopy   StrategyTag = "copy"
	StrategySniper StrategyTag = "sniper"
)

// Position is the central entity: one open or historical holding of a token,
// keyed by mint. The store owns it exclusively; everything else reads
// snapshots and requests mutations through the PositionStore contract.
type Position struct {
	Mint         string
	Strategy     StrategyTag
	SourceWallet string // tracked wallet whose buy we copied; empty for sniper entries

	EntryPrice   float64 // base currency per token unit, > 0 once open
	SolSpent     float64 // base currency committed
	TokensAmount float64 // token units received, > 0 once open
	OpenedAt     time.Time
	Venue        string

	// Running extrema maintained by the monitor loop.
	MaxPrice      float64 // ratcheted; never below EntryPrice
	MaxPnLPercent float64
	MinPnLPercent float64
	LastPrice     float64
	LastPriceAt   time.Time

	// PartialStage counts how many partial take-profit levels have fired.
	PartialStage int

	Status     PositionStatus
	ClosePrice float64
	ClosedAt   time.Time
	CloseTxRef string
	ExitReason ExitReason
	PnLSol     float64
	PnLPercent float64
}

// HoldDuration returns how long the position has been (or was) held.
func (p Position) HoldDuration(now time.Time) time.Duration {
	if p.Status == PositionStatusClosed && !p.ClosedAt.IsZero() {
		return p.ClosedAt.Sub(p.OpenedAt)
	}
	return now.Sub(p.OpenedAt)
}

// AvgEntryPrice derives the effective entry price from spend over holdings.
// After a partial sell rewrites SolSpent and TokensAmount proportionally this
// stays the correct basis for PnL, unlike the original single-fill price.
func (p Position) AvgEntryPrice() float64 {
	if p.TokensAmount <= 0 {
		return p.EntryPrice
	}
	return p.SolSpent / p.TokensAmount
}

// ClosedSummary is returned by PositionStore.Close and feeds the trade ledger.
type ClosedSummary struct {
	Mint        string
	Strategy    StrategyTag
	Wallet      string
	EntryPrice  float64
	ClosePrice  float64
	TokensSold  float64
	SolSpent    float64
	SolReceived float64
	PnLSol      float64
	PnLPercent  float64
	Reason      ExitReason
	TxRef       string
	OpenedAt    time.Time
	ClosedAt    time.Time
	Simulated   bool
}
