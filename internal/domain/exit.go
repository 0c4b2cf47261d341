package domain

// ExitReason names the rule that closed (or partially closed) a position.
type ExitReason string

const (
	ExitForced       ExitReason = "forced_exit"
	ExitWalletCopy   ExitReason = "wallet_copy"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitVolumeDecay  ExitReason = "volume_decay"
	ExitSellers      ExitReason = "sellers_confirmed"
	ExitMaxHold      ExitReason = "max_hold"
	ExitManual       ExitReason = "manual"
	ExitPartialTP    ExitReason = "partial_take_profit"
)

// ExitDecision is the outcome of one ladder evaluation for one position.
// At most one decision with Exit=true is produced per position per cycle.
type ExitDecision struct {
	Exit       bool
	Reason     ExitReason
	PnLPercent float64
	Detail     string
}

// HoldDecision is the zero ExitDecision: keep the position open.
var HoldDecision = ExitDecision{}
