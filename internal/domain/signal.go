package domain

import "time"

// TxType classifies an observed wallet transaction.
type TxType string

const (
	TxBuy  TxType = "buy"
	TxSell TxType = "sell"
)

// Signal is an inbound, already-normalized observation of tracked-wallet
// activity for one mint. Raw feed payloads are coerced into this shape at the
// intake boundary; nothing downstream touches loose maps.
type Signal struct {
	ID                 string // UUID assigned at normalization, used for dedup
	Mint               string
	Wallet             string
	AmountSol          float64
	TxType             TxType
	Venue              string
	Timestamp          time.Time
	CorroborationCount int // distinct tracked wallets seen buying this mint in the window
}

// Confidence grades a buy signal by how many tracked wallets corroborate it.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidenceFor maps a corroboration count to a grade. Monotonic: more
// corroborating wallets never lowers the grade.
func ConfidenceFor(count int) Confidence {
	switch {
	case count >= 3:
		return ConfidenceHigh
	case count == 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Admission is the outcome of the buy admission ladder.
type Admission struct {
	Admit      bool
	Reason     string
	Confidence Confidence
}

// Well-known admission rejection reasons.
const (
	RejectLowCorroboration = "low_corroboration"
	RejectRebuyBlocked     = "rebuy_blocked"
	RejectCooldown         = "cooldown_active"
	RejectDuplicate        = "position_already_open"
	RejectMaxPositions     = "max_positions_reached"
)
