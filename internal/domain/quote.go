package domain

import "time"

// QuoteSource tags where a price came from.
type QuoteSource string

const (
	QuoteSourceCurve      QuoteSource = "curve"      // primary on-chain bonding curve read
	QuoteSourceAggregator QuoteSource = "aggregator" // fallback quote service
)

// PriceQuote is a point-in-time price read. Known is false when every source
// failed; callers must treat that as "unknown", never as zero.
type PriceQuote struct {
	Mint      string
	Price     float64
	Known     bool
	Migrated  bool // curve reported complete; a pool is now authoritative
	Source    QuoteSource
	Timestamp time.Time
}

// PositionValue is a convenience read of what a holding is worth now.
type PositionValue struct {
	UnitPrice  float64
	TotalValue float64
}

// VelocityStats is the current view of a mint's price-velocity proxy, an
// absolute price change per second between monitor observations.
type VelocityStats struct {
	Current   float64
	Peak      float64
	PeakAt    time.Time
	Observed  bool
	SincePeak time.Duration
}
