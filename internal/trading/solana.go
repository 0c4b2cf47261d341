package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// SolanaAdapter executes live swaps: it asks the trade API to build an
// unsigned swap transaction for the venue, signs it with the bot wallet, and
// submits it over RPC. Venue-specific instruction layouts stay behind the
// trade API; this adapter owns only signing, submission, and the result
// contract.
type SolanaAdapter struct {
	rpcClient  *rpc.Client
	tradeAPI   string
	httpClient *http.Client
	signer     solana.PrivateKey
	slippage   float64
	oracle     domain.PriceOracle
	logger     *slog.Logger
}

// NewSolanaAdapter creates a live adapter. signer must be the funded trading
// wallet; slippage is validated through numeric.ClampSlippage.
func NewSolanaAdapter(rpcURL, tradeAPI string, signer solana.PrivateKey, slippage float64, oracle domain.PriceOracle, logger *slog.Logger) *SolanaAdapter {
	return &SolanaAdapter{
		rpcClient:  rpc.New(rpcURL),
		tradeAPI:   tradeAPI,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		signer:     signer,
		slippage:   numeric.ClampSlippage(slippage, 0.05),
		oracle:     oracle,
		logger:     logger.With(slog.String("component", "solana_adapter")),
	}
}

// tradeRequest is the build request sent to the trade API.
type tradeRequest struct {
	PublicKey string  `json:"publicKey"`
	Action    string  `json:"action"` // "buy" or "sell"
	Mint      string  `json:"mint"`
	Amount    float64 `json:"amount"`
	Slippage  float64 `json:"slippage"`
	Venue     string  `json:"pool,omitempty"`
}

// buildTransaction asks the trade API for an unsigned serialized transaction.
func (a *SolanaAdapter) buildTransaction(ctx context.Context, req tradeRequest) (*solana.Transaction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("trading: marshal trade request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tradeAPI, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("trading: trade request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("trading: trade api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("trading: trade api status %d: %s", resp.StatusCode, string(msg))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("trading: read trade api response: %w", err)
	}
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("trading: decode transaction: %w", err)
	}
	return tx, nil
}

// signAndSend signs the transaction with the bot wallet and submits it.
func (a *SolanaAdapter) signAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(a.signer.PublicKey()) {
			return &a.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("trading: sign: %w", err)
	}

	sig, err := a.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("trading: send: %w", err)
	}
	return sig, nil
}

// Buy executes a live buy of amountSol worth of the mint.
func (a *SolanaAdapter) Buy(ctx context.Context, mint string, amountSol float64, venueHint string) (domain.BuyResult, error) {
	if amountSol <= 0 {
		return domain.BuyResult{Error: "non-positive amount"}, nil
	}

	tx, err := a.buildTransaction(ctx, tradeRequest{
		PublicKey: a.signer.PublicKey().String(),
		Action:    "buy",
		Mint:      mint,
		Amount:    amountSol,
		Slippage:  a.slippage,
		Venue:     venueHint,
	})
	if err != nil {
		return domain.BuyResult{Error: err.Error()}, nil
	}

	sig, err := a.signAndSend(ctx, tx)
	if err != nil {
		return domain.BuyResult{Error: err.Error()}, nil
	}

	// The venue does not report the fill, so derive it from the oracle read
	// in the same cycle. A later ratchet corrects any drift.
	quote, err := a.oracle.GetPrice(ctx, mint)
	if err != nil || !quote.Known || quote.Price <= 0 {
		return domain.BuyResult{
			Success:   false,
			Signature: sig.String(),
			Error:     "buy submitted but fill price unknown",
		}, nil
	}
	tokens := numeric.SafeDivide(amountSol, quote.Price, 0)

	a.logger.Info("buy submitted",
		slog.String("mint", mint),
		slog.String("signature", sig.String()),
		slog.Float64("amount_sol", amountSol),
	)
	return domain.BuyResult{
		Success:        true,
		TokensReceived: tokens,
		EffectivePrice: quote.Price,
		Venue:          venueHint,
		Signature:      sig.String(),
	}, nil
}

// Sell executes a live sell of the given token quantity.
func (a *SolanaAdapter) Sell(ctx context.Context, mint string, tokens float64, venueHint string) (domain.SellResult, error) {
	if tokens <= 0 {
		return domain.SellResult{Error: "non-positive quantity"}, nil
	}

	tx, err := a.buildTransaction(ctx, tradeRequest{
		PublicKey: a.signer.PublicKey().String(),
		Action:    "sell",
		Mint:      mint,
		Amount:    tokens,
		Slippage:  a.slippage,
		Venue:     venueHint,
	})
	if err != nil {
		return domain.SellResult{Error: err.Error()}, nil
	}

	sig, err := a.signAndSend(ctx, tx)
	if err != nil {
		return domain.SellResult{Error: err.Error()}, nil
	}

	quote, err := a.oracle.GetPrice(ctx, mint)
	if err != nil || !quote.Known || quote.Price <= 0 {
		return domain.SellResult{
			Success:   false,
			Signature: sig.String(),
			Error:     "sell submitted but fill price unknown",
		}, nil
	}
	received := numeric.SafeNumber(tokens*quote.Price*(1-a.slippage), 0)

	a.logger.Info("sell submitted",
		slog.String("mint", mint),
		slog.String("signature", sig.String()),
		slog.Float64("tokens", tokens),
	)
	return domain.SellResult{
		Success:     true,
		SolReceived: received,
		Venue:       venueHint,
		Signature:   sig.String(),
	}, nil
}

// Simulated reports that fills are real.
func (a *SolanaAdapter) Simulated() bool {
	return false
}

// Compile-time interface check.
var _ domain.ExecutionAdapter = (*SolanaAdapter)(nil)
