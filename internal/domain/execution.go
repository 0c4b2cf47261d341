package domain

import "context"

// BuyResult is the outcome of a buy attempt. Success=false always carries a
// non-empty Error; adapters never fail silently.
type BuyResult struct {
	Success        bool
	TokensReceived float64
	EffectivePrice float64
	Venue          string
	Signature      string
	Error          string
}

// SellResult is the outcome of a sell attempt.
type SellResult struct {
	Success     bool
	SolReceived float64
	Venue       string
	Signature   string
	Error       string
}

// ExecutionAdapter abstracts order placement. The live implementation builds
// and sends on-chain swaps; the simulation implementation produces the same
// shape synthetically at the current oracle price.
type ExecutionAdapter interface {
	Buy(ctx context.Context, mint string, amountSol float64, venueHint string) (BuyResult, error)
	Sell(ctx context.Context, mint string, tokens float64, venueHint string) (SellResult, error)
	Simulated() bool
}

// PriceOracle resolves a token's current unit price in the base currency,
// preferring the bonding curve and falling back to an aggregator quote after
// migration. A quote with Known=false means every source failed.
type PriceOracle interface {
	GetPrice(ctx context.Context, mint string) (PriceQuote, error)
	GetPositionValue(ctx context.Context, mint string, tokens float64) (PositionValue, error)
}
