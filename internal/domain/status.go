package domain

import "time"

// PositionSummary is the per-position view exposed by the status endpoint.
type PositionSummary struct {
	Mint          string      `json:"mint"`
	Strategy      StrategyTag `json:"strategy"`
	SourceWallet  string      `json:"source_wallet,omitempty"`
	EntryPrice    float64     `json:"entry_price"`
	LastPrice     float64     `json:"last_price"`
	MaxPrice      float64     `json:"max_price"`
	PnLPercent    float64     `json:"pnl_percent"`
	MaxPnLPercent float64     `json:"max_pnl_percent"`
	SolSpent      float64     `json:"sol_spent"`
	HeldFor       string      `json:"held_for"`
	PartialStage  int         `json:"partial_stage,omitempty"`
	OpenedAt      time.Time   `json:"opened_at"`
}

// BotStatus is the aggregate operational snapshot.
type BotStatus struct {
	Mode           string            `json:"mode"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	OpenPositions  int               `json:"open_positions"`
	TrackedWallets int               `json:"tracked_wallets"`
	PendingSignals int64             `json:"pending_signals"`
	Positions      []PositionSummary `json:"positions"`
}

// Diagnostic flags one inconsistent or stale piece of state found by the
// diagnostics scan. These are surfaced, never silently repaired.
type Diagnostic struct {
	Kind   string `json:"kind"` // "orphaned_open_set", "record_without_membership", "stale_price"
	Mint   string `json:"mint"`
	Detail string `json:"detail"`
}
