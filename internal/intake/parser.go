package intake

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const lamportsPerSol = 1e9

// launchProgramID is the launch platform's bonding-curve program whose trade
// events the parser decodes.
var launchProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

// tradeEvent is the Borsh layout of the program's trade event, following an
// 8-byte discriminator inside a "Program data:" log line.
type tradeEvent struct {
	Mint        solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
	IsBuy       bool
	User        solana.PublicKey
	Timestamp   int64
}

// CurveLogParser extracts launch-platform trades from logsNotification
// payloads. Transactions that failed, logs from other programs, and events
// for users other than the subscribed wallet are all skipped. This is the
// only place the venue-specific log heuristics live.
type CurveLogParser struct{}

// NewCurveLogParser creates a CurveLogParser.
func NewCurveLogParser() *CurveLogParser {
	return &CurveLogParser{}
}

var _ LogParser = (*CurveLogParser)(nil)

// Parse implements LogParser.
func (p *CurveLogParser) Parse(wallet string, payload []byte) []map[string]any {
	var notification struct {
		Params struct {
			Result struct {
				Value struct {
					Signature string   `json:"signature"`
					Err       any      `json:"err"`
					Logs      []string `json:"logs"`
				} `json:"value"`
			} `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil
	}
	value := notification.Params.Result.Value
	if value.Err != nil {
		return nil
	}

	invoked := false
	for _, line := range value.Logs {
		if strings.HasPrefix(line, "Program "+launchProgramID.String()+" invoke") {
			invoked = true
			break
		}
	}
	if !invoked {
		return nil
	}

	var out []map[string]any
	for _, line := range value.Logs {
		data, ok := strings.CutPrefix(line, "Program data: ")
		if !ok {
			continue
		}
		ev, ok := decodeTradeEvent(data)
		if !ok {
			continue
		}
		if ev.User.String() != wallet {
			continue
		}

		txType := "sell"
		if ev.IsBuy {
			txType = "buy"
		}
		out = append(out, map[string]any{
			"mint":       ev.Mint.String(),
			"wallet":     wallet,
			"tx_type":    txType,
			"amount_sol": float64(ev.SolAmount) / lamportsPerSol,
			"venue":      "pump",
			"timestamp":  float64(ev.Timestamp),
		})
	}
	return out
}

// decodeTradeEvent decodes one base64 "Program data:" blob. Blobs carrying
// other event types fail the length check or the Borsh decode and are
// skipped.
func decodeTradeEvent(b64 string) (tradeEvent, bool) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return tradeEvent{}, false
	}
	// 8-byte discriminator + 32 mint + 8 sol + 8 tokens + 1 flag + 32 user + 8 ts
	if len(raw) < 97 {
		return tradeEvent{}, false
	}

	var ev tradeEvent
	if err := bin.NewBorshDecoder(raw[8:]).Decode(&ev); err != nil {
		return tradeEvent{}, false
	}
	return ev, true
}
