// Package intake turns raw wallet-activity payloads into strict internal
// signals and decides which buy signals are admitted as positions.
package intake

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// Normalize coerces a loosely-typed feed payload into a domain.Signal. Every
// field is validated here so nothing downstream handles missing keys: the
// mint must be a valid base58 address, the tx type must be buy or sell, and
// unknown or malformed optional fields resolve to documented defaults
// (amount 0, venue "", timestamp now).
func Normalize(raw map[string]any) (domain.Signal, error) {
	mint, _ := raw["mint"].(string)
	if mint == "" {
		return domain.Signal{}, fmt.Errorf("intake: signal missing mint")
	}
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return domain.Signal{}, fmt.Errorf("intake: invalid mint %q: %w", mint, err)
	}

	wallet, _ := raw["wallet"].(string)
	if wallet == "" {
		return domain.Signal{}, fmt.Errorf("intake: signal missing wallet")
	}

	txType := domain.TxType(asString(raw["tx_type"], ""))
	if txType != domain.TxBuy && txType != domain.TxSell {
		return domain.Signal{}, fmt.Errorf("intake: unknown tx type %q", txType)
	}

	sig := domain.Signal{
		ID:                 uuid.New().String(),
		Mint:               mint,
		Wallet:             wallet,
		AmountSol:          numeric.SafeNumber(asFloat(raw["amount_sol"]), 0),
		TxType:             txType,
		Venue:              asString(raw["venue"], ""),
		Timestamp:          asTime(raw["timestamp"]),
		CorroborationCount: int(asFloat(raw["corroboration_count"])),
	}
	if sig.AmountSol < 0 {
		sig.AmountSol = 0
	}
	if sig.CorroborationCount < 0 {
		sig.CorroborationCount = 0
	}
	return sig, nil
}

func asString(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case float64:
		if t > 0 {
			return time.Unix(int64(t), 0).UTC()
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Now().UTC()
}
