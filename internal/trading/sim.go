// Package trading implements the execution adapter contract: the simulated
// adapter fills against the oracle price, the live adapter signs and submits
// real swaps.
package trading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// SimAdapter produces synthetic fills at the current oracle price with a
// slippage haircut, mirroring the live adapter's result shape exactly so the
// rest of the pipeline cannot tell the difference.
type SimAdapter struct {
	oracle   domain.PriceOracle
	slippage float64
	logger   *slog.Logger
}

// NewSimAdapter creates a SimAdapter. slippage is the fill haircut fraction,
// already validated by numeric.ClampSlippage.
func NewSimAdapter(oracle domain.PriceOracle, slippage float64, logger *slog.Logger) *SimAdapter {
	return &SimAdapter{
		oracle:   oracle,
		slippage: numeric.ClampSlippage(slippage, 0.05),
		logger:   logger.With(slog.String("component", "sim_adapter")),
	}
}

// Buy fills a simulated buy: price is the oracle quote worsened by slippage.
func (s *SimAdapter) Buy(ctx context.Context, mint string, amountSol float64, venueHint string) (domain.BuyResult, error) {
	if amountSol <= 0 {
		return domain.BuyResult{Error: "non-positive amount"}, nil
	}
	quote, err := s.oracle.GetPrice(ctx, mint)
	if err != nil {
		return domain.BuyResult{}, fmt.Errorf("trading: sim buy %s: %w", mint, err)
	}
	if !quote.Known || quote.Price <= 0 {
		return domain.BuyResult{Error: "price unavailable"}, nil
	}

	fillPrice := quote.Price * (1 + s.slippage)
	tokens := numeric.SafeDivide(amountSol, fillPrice, 0)
	if tokens <= 0 {
		return domain.BuyResult{Error: "zero fill"}, nil
	}

	venue := venueHint
	if venue == "" {
		venue = string(quote.Source)
	}
	sig := "sim-" + uuid.New().String()
	s.logger.Debug("simulated buy filled",
		slog.String("mint", mint),
		slog.Float64("price", fillPrice),
		slog.Float64("tokens", tokens),
	)
	return domain.BuyResult{
		Success:        true,
		TokensReceived: tokens,
		EffectivePrice: fillPrice,
		Venue:          venue,
		Signature:      sig,
	}, nil
}

// Sell fills a simulated sell at the oracle quote worsened by slippage.
func (s *SimAdapter) Sell(ctx context.Context, mint string, tokens float64, venueHint string) (domain.SellResult, error) {
	if tokens <= 0 {
		return domain.SellResult{Error: "non-positive quantity"}, nil
	}
	quote, err := s.oracle.GetPrice(ctx, mint)
	if err != nil {
		return domain.SellResult{}, fmt.Errorf("trading: sim sell %s: %w", mint, err)
	}
	if !quote.Known || quote.Price <= 0 {
		return domain.SellResult{Error: "price unavailable"}, nil
	}

	fillPrice := quote.Price * (1 - s.slippage)
	received := numeric.SafeNumber(tokens*fillPrice, 0)

	venue := venueHint
	if venue == "" {
		venue = string(quote.Source)
	}
	sig := "sim-" + uuid.New().String()
	s.logger.Debug("simulated sell filled",
		slog.String("mint", mint),
		slog.Float64("price", fillPrice),
		slog.Float64("sol", received),
	)
	return domain.SellResult{
		Success:     true,
		SolReceived: received,
		Venue:       venue,
		Signature:   sig,
	}, nil
}

// Simulated reports that fills are synthetic.
func (s *SimAdapter) Simulated() bool {
	return true
}

// Compile-time interface check.
var _ domain.ExecutionAdapter = (*SimAdapter)(nil)
