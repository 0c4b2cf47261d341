// Package oracle resolves token prices in the base currency, preferring an
// on-chain bonding-curve read and falling back to an aggregator quote once a
// token has migrated to a liquidity pool.
package oracle

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

const (
	lamportsPerSol  = 1e9
	tokenBaseUnits  = 1e6 // launch-platform tokens use 6 decimals
	curveSeedPrefix = "bonding-curve"
)

// launchProgramID is the launch platform's bonding-curve program.
var launchProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

// curveState is the Borsh layout of a bonding-curve account.
type curveState struct {
	Discriminator        uint64
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// CurveReader reads bonding-curve accounts over RPC.
type CurveReader struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

// NewCurveReader creates a CurveReader against the given RPC endpoint.
func NewCurveReader(rpcURL string, commitment rpc.CommitmentType) *CurveReader {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &CurveReader{
		client:     rpc.New(rpcURL),
		commitment: commitment,
	}
}

// curvePDA derives the bonding-curve account address for a mint.
func curvePDA(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(curveSeedPrefix), mint.Bytes()},
		launchProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("oracle: derive curve pda: %w", err)
	}
	return addr, nil
}

// Read fetches and decodes the bonding-curve state for a mint. It returns
// domain.ErrNotFound when the curve account does not exist (token never
// launched here, or account closed after migration).
func (r *CurveReader) Read(ctx context.Context, mintAddr string) (price float64, migrated bool, err error) {
	mint, err := solana.PublicKeyFromBase58(mintAddr)
	if err != nil {
		return 0, false, fmt.Errorf("oracle: invalid mint %q: %w", mintAddr, err)
	}
	pda, err := curvePDA(mint)
	if err != nil {
		return 0, false, err
	}

	res, err := r.client.GetAccountInfoWithOpts(ctx, pda, &rpc.GetAccountInfoOpts{
		Commitment: r.commitment,
	})
	if err != nil {
		return 0, false, fmt.Errorf("oracle: get curve account %s: %w", mintAddr, err)
	}
	if res == nil || res.Value == nil {
		return 0, false, domain.ErrNotFound
	}

	var state curveState
	decoder := bin.NewBorshDecoder(res.Value.Data.GetBinary())
	if err := decoder.Decode(&state); err != nil {
		return 0, false, fmt.Errorf("oracle: decode curve %s: %w", mintAddr, err)
	}

	if state.Complete {
		// The curve is done; a pool price is authoritative now.
		return 0, true, nil
	}
	if state.VirtualTokenReserves == 0 {
		return 0, false, domain.ErrPriceUnavailable
	}

	sol := float64(state.VirtualSolReserves) / lamportsPerSol
	tokens := float64(state.VirtualTokenReserves) / tokenBaseUnits
	price = numeric.SafeDivide(sol, tokens, 0)
	if price <= 0 {
		return 0, false, domain.ErrPriceUnavailable
	}
	return price, false, nil
}
