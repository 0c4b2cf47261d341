package domain

import "time"

// TradeRecord is one immutable entry in the daily trade ledger, produced
// exactly once per position close (full or partial).
type TradeRecord struct {
	Mint        string      `json:"mint"`
	Strategy    StrategyTag `json:"strategy"`
	Wallet      string      `json:"wallet,omitempty"`
	EntryPrice  float64     `json:"entry_price"`
	ClosePrice  float64     `json:"close_price"`
	TokensSold  float64     `json:"tokens_sold"`
	SolSpent    float64     `json:"sol_spent"`
	SolReceived float64     `json:"sol_received"`
	PnLSol      float64     `json:"pnl_sol"`
	PnLPercent  float64     `json:"pnl_percent"`
	Reason      ExitReason  `json:"reason"`
	TxRef       string      `json:"tx_ref,omitempty"`
	Venue       string      `json:"venue,omitempty"`
	OpenedAt    time.Time   `json:"opened_at"`
	ClosedAt    time.Time   `json:"closed_at"`
	Partial     bool        `json:"partial,omitempty"`
	Simulated   bool        `json:"simulated,omitempty"`
}

// DailySummary aggregates one UTC day of the ledger for reporting.
type DailySummary struct {
	Date       string  `json:"date"` // YYYY-MM-DD, UTC
	Trades     int     `json:"trades"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	PnLSol     float64 `json:"pnl_sol"`
	BestPct    float64 `json:"best_pct"`
	WorstPct   float64 `json:"worst_pct"`
	AvgHoldSec float64 `json:"avg_hold_sec"`
}
