package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

const (
	openSetKey        = "positions:open"
	positionKeyPrefix = "position:"
)

// openLua creates a position atomically: open-set membership and the record
// appear together or not at all. Returns 0 when the mint is already open.
const openLua = `
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
    return 0
end
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
for i = 2, #ARGV, 2 do
    redis.call('HSET', KEYS[2], ARGV[i], ARGV[i+1])
end
return 1
`

// ratchetLua raises max_price only when the observed price exceeds it.
const ratchetLua = `
local cur = tonumber(redis.call('HGET', KEYS[1], 'max_price'))
if not cur then
    return 0
end
local obs = tonumber(ARGV[1])
if obs > cur then
    redis.call('HSET', KEYS[1], 'max_price', ARGV[1])
    return 1
end
return 0
`

// observeLua caches the last price and maintains the running PnL extrema.
const observeLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('HSET', KEYS[1], 'last_price', ARGV[1], 'last_price_at', ARGV[3])
local pnl = tonumber(ARGV[2])
local maxp = tonumber(redis.call('HGET', KEYS[1], 'max_pnl_pct'))
local minp = tonumber(redis.call('HGET', KEYS[1], 'min_pnl_pct'))
if not maxp or pnl > maxp then
    redis.call('HSET', KEYS[1], 'max_pnl_pct', ARGV[2])
end
if not minp or pnl < minp then
    redis.call('HSET', KEYS[1], 'min_pnl_pct', ARGV[2])
end
return 1
`

// partialLua rewrites remaining quantity and cost basis proportionally after
// a confirmed partial sell. Returns -1 when the sell would flatten or exceed
// the holding (callers must close instead), 0 when the position is gone.
const partialLua = `
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens_amount'))
if not tokens or tokens <= 0 then
    return 0
end
local sold = tonumber(ARGV[1])
if sold >= tokens then
    return -1
end
local spent = tonumber(redis.call('HGET', KEYS[1], 'sol_spent'))
local remain = tokens - sold
redis.call('HSET', KEYS[1],
    'tokens_amount', tostring(remain),
    'sol_spent', tostring(spent * remain / tokens),
    'partial_stage', ARGV[2])
return 1
`

// closeLua performs the open->closed transition. SREM decides the winner:
// exactly one racing caller observes 1 and performs the status write, so the
// fee subtraction and the ledger append that follows happen exactly once.
const closeLua = `
if redis.call('SREM', KEYS[1], ARGV[1]) == 0 then
    return 0
end
for i = 2, #ARGV, 2 do
    redis.call('HSET', KEYS[2], ARGV[i], ARGV[i+1])
end
return 1
`

// PositionStore implements domain.PositionStore on Redis: an "open" SET of
// mints plus one HASH record per mint, mutated only through Lua scripts so
// every transition is atomic from any reader's perspective.
type PositionStore struct {
	rdb       *redis.Client
	openSc    *redis.Script
	ratchetSc *redis.Script
	observeSc *redis.Script
	partialSc *redis.Script
	closeSc   *redis.Script
	ledger    domain.TradeLedger
	feeSol    float64
}

// NewPositionStore creates a PositionStore backed by the given Client. Every
// successful Close appends exactly one record to ledger. feeSol is the
// estimated network fee subtracted from realized PnL on non-simulated closes.
func NewPositionStore(c *Client, ledger domain.TradeLedger, feeSol float64) *PositionStore {
	return &PositionStore{
		rdb:       c.Underlying(),
		openSc:    redis.NewScript(openLua),
		ratchetSc: redis.NewScript(ratchetLua),
		observeSc: redis.NewScript(observeLua),
		partialSc: redis.NewScript(partialLua),
		closeSc:   redis.NewScript(closeLua),
		ledger:    ledger,
		feeSol:    feeSol,
	}
}

func positionKey(mint string) string {
	return positionKeyPrefix + mint
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Open validates the entry and writes the open-set membership and record as
// one atomic operation.
func (ps *PositionStore) Open(ctx context.Context, req domain.OpenRequest) error {
	if req.EntryPrice <= 0 || req.TokensAmount <= 0 {
		return fmt.Errorf("redis: open %s: entry=%.12f tokens=%.4f: %w",
			req.Mint, req.EntryPrice, req.TokensAmount, domain.ErrInvalidEntry)
	}

	now := time.Now().UTC()
	args := []any{
		req.Mint,
		"mint", req.Mint,
		"strategy", string(req.Strategy),
		"source_wallet", req.SourceWallet,
		"entry_price", f(req.EntryPrice),
		"sol_spent", f(req.SolSpent),
		"tokens_amount", f(req.TokensAmount),
		"opened_at", strconv.FormatInt(now.UnixNano(), 10),
		"venue", req.Venue,
		"max_price", f(req.EntryPrice),
		"max_pnl_pct", "0",
		"min_pnl_pct", "0",
		"partial_stage", "0",
		"status", string(domain.PositionStatusOpen),
		"simulated", strconv.FormatBool(req.Simulated),
	}

	n, err := ps.openSc.Run(ctx, ps.rdb, []string{openSetKey, positionKey(req.Mint)}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis: open %s: %w", req.Mint, err)
	}
	if n == 0 {
		return domain.ErrDuplicatePosition
	}
	return nil
}

// Get returns the record for a mint regardless of status.
func (ps *PositionStore) Get(ctx context.Context, mint string) (domain.Position, error) {
	vals, err := ps.rdb.HGetAll(ctx, positionKey(mint)).Result()
	if err != nil {
		return domain.Position{}, fmt.Errorf("redis: get position %s: %w", mint, err)
	}
	if len(vals) == 0 {
		return domain.Position{}, domain.ErrNotFound
	}
	return decodePosition(vals), nil
}

// GetOpen returns a snapshot of all open positions. Mints whose record has
// vanished between the set read and the record read are skipped; callers must
// tolerate positions disappearing under them.
func (ps *PositionStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	mints, err := ps.rdb.SMembers(ctx, openSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: open set members: %w", err)
	}
	if len(mints) == 0 {
		return nil, nil
	}

	pipe := ps.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(mints))
	for _, m := range mints {
		cmds[m] = pipe.HGetAll(ctx, positionKey(m))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: open positions pipeline: %w", err)
	}

	positions := make([]domain.Position, 0, len(mints))
	for _, m := range mints {
		vals, err := cmds[m].Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		p := decodePosition(vals)
		if p.Status != domain.PositionStatusOpen {
			continue
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// OpenCount returns the size of the open set.
func (ps *PositionStore) OpenCount(ctx context.Context) (int, error) {
	n, err := ps.rdb.SCard(ctx, openSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: open set card: %w", err)
	}
	return int(n), nil
}

// RatchetMaxPrice raises the running max only when observed exceeds it.
// No-op on lower prices or absent positions.
func (ps *PositionStore) RatchetMaxPrice(ctx context.Context, mint string, observed float64) error {
	if observed <= 0 {
		return nil
	}
	if err := ps.ratchetSc.Run(ctx, ps.rdb, []string{positionKey(mint)}, f(observed)).Err(); err != nil {
		return fmt.Errorf("redis: ratchet %s: %w", mint, err)
	}
	return nil
}

// RecordObservation caches the last seen price and running PnL extrema.
func (ps *PositionStore) RecordObservation(ctx context.Context, mint string, price, pnlPct float64, at time.Time) error {
	err := ps.observeSc.Run(ctx, ps.rdb, []string{positionKey(mint)},
		f(price), f(pnlPct), strconv.FormatInt(at.UnixNano(), 10)).Err()
	if err != nil {
		return fmt.Errorf("redis: observe %s: %w", mint, err)
	}
	return nil
}

// ApplyPartialSell rewrites remaining quantity and cost basis proportionally
// and records the fired stage.
func (ps *PositionStore) ApplyPartialSell(ctx context.Context, mint string, tokensSold, solReceived float64, stage int) error {
	n, err := ps.partialSc.Run(ctx, ps.rdb, []string{positionKey(mint)},
		f(tokensSold), strconv.Itoa(stage)).Int()
	if err != nil {
		return fmt.Errorf("redis: partial sell %s: %w", mint, err)
	}
	switch n {
	case 0:
		return domain.ErrPositionNotOpen
	case -1:
		return fmt.Errorf("redis: partial sell %s: sell of %.4f would flatten position", mint, tokensSold)
	}
	return nil
}

// Close transitions the position to closed and appends one ledger record.
// Racing callers are serialized by the open-set removal: the loser gets
// ErrPositionNotOpen and neither fees nor the ledger are applied twice.
func (ps *PositionStore) Close(ctx context.Context, req domain.CloseRequest) (domain.ClosedSummary, error) {
	pos, err := ps.Get(ctx, req.Mint)
	if err != nil {
		return domain.ClosedSummary{}, err
	}
	if pos.Status != domain.PositionStatusOpen {
		return domain.ClosedSummary{}, domain.ErrPositionNotOpen
	}

	avgEntry := numeric.SafeDivide(pos.SolSpent, pos.TokensAmount, pos.EntryPrice)
	pnlSol := req.SolReceived - pos.SolSpent
	if !req.Simulated {
		pnlSol -= ps.feeSol
	}
	pnlPct := numeric.SafePercent(req.ClosePrice, avgEntry, 0)
	now := time.Now().UTC()

	args := []any{
		req.Mint,
		"status", string(domain.PositionStatusClosed),
		"close_price", f(req.ClosePrice),
		"closed_at", strconv.FormatInt(now.UnixNano(), 10),
		"close_tx", req.TxRef,
		"exit_reason", string(req.Reason),
		"pnl_sol", f(pnlSol),
		"pnl_pct", f(pnlPct),
	}
	n, err := ps.closeSc.Run(ctx, ps.rdb, []string{openSetKey, positionKey(req.Mint)}, args...).Int()
	if err != nil {
		return domain.ClosedSummary{}, fmt.Errorf("redis: close %s: %w", req.Mint, err)
	}
	if n == 0 {
		return domain.ClosedSummary{}, domain.ErrPositionNotOpen
	}

	summary := domain.ClosedSummary{
		Mint:        req.Mint,
		Strategy:    pos.Strategy,
		Wallet:      pos.SourceWallet,
		EntryPrice:  avgEntry,
		ClosePrice:  req.ClosePrice,
		TokensSold:  req.TokensSold,
		SolSpent:    pos.SolSpent,
		SolReceived: req.SolReceived,
		PnLSol:      pnlSol,
		PnLPercent:  pnlPct,
		Reason:      req.Reason,
		TxRef:       req.TxRef,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    now,
		Simulated:   req.Simulated,
	}

	rec := domain.TradeRecord{
		Mint:        summary.Mint,
		Strategy:    summary.Strategy,
		Wallet:      summary.Wallet,
		EntryPrice:  summary.EntryPrice,
		ClosePrice:  summary.ClosePrice,
		TokensSold:  summary.TokensSold,
		SolSpent:    summary.SolSpent,
		SolReceived: summary.SolReceived,
		PnLSol:      summary.PnLSol,
		PnLPercent:  summary.PnLPercent,
		Reason:      summary.Reason,
		TxRef:       summary.TxRef,
		Venue:       pos.Venue,
		OpenedAt:    summary.OpenedAt,
		ClosedAt:    summary.ClosedAt,
		Simulated:   summary.Simulated,
	}
	if err := ps.ledger.Append(ctx, rec); err != nil {
		// The close itself is committed; a ledger failure is surfaced but
		// must not resurrect the position.
		return summary, fmt.Errorf("redis: close %s: ledger append: %w", req.Mint, err)
	}

	return summary, nil
}

// Diagnostics enumerates open-set entries without records and open records
// missing set membership. These are reported, never repaired here.
func (ps *PositionStore) Diagnostics(ctx context.Context, staleAfter time.Duration) ([]domain.Diagnostic, error) {
	mints, err := ps.rdb.SMembers(ctx, openSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: diagnostics: %w", err)
	}

	var out []domain.Diagnostic
	now := time.Now().UTC()
	member := make(map[string]bool, len(mints))
	for _, m := range mints {
		member[m] = true
		vals, err := ps.rdb.HGetAll(ctx, positionKey(m)).Result()
		if err != nil {
			continue
		}
		if len(vals) == 0 {
			out = append(out, domain.Diagnostic{
				Kind:   "orphaned_open_set",
				Mint:   m,
				Detail: "open-set member has no position record",
			})
			continue
		}
		p := decodePosition(vals)
		if p.Status != domain.PositionStatusOpen {
			out = append(out, domain.Diagnostic{
				Kind:   "orphaned_open_set",
				Mint:   m,
				Detail: "open-set member has status " + string(p.Status),
			})
		}
		if !p.LastPriceAt.IsZero() && now.Sub(p.LastPriceAt) > staleAfter {
			out = append(out, domain.Diagnostic{
				Kind:   "stale_price",
				Mint:   m,
				Detail: fmt.Sprintf("last price observation %s ago", now.Sub(p.LastPriceAt).Round(time.Second)),
			})
		}
	}

	// Open records not in the set.
	iter := ps.rdb.Scan(ctx, 0, positionKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		mint := iter.Val()[len(positionKeyPrefix):]
		if member[mint] {
			continue
		}
		status, err := ps.rdb.HGet(ctx, iter.Val(), "status").Result()
		if err == nil && status == string(domain.PositionStatusOpen) {
			out = append(out, domain.Diagnostic{
				Kind:   "record_without_membership",
				Mint:   mint,
				Detail: "open record missing from open set",
			})
		}
	}
	if err := iter.Err(); err != nil {
		return out, fmt.Errorf("redis: diagnostics scan: %w", err)
	}

	return out, nil
}

func decodePosition(vals map[string]string) domain.Position {
	p := domain.Position{
		Mint:         vals["mint"],
		Strategy:     domain.StrategyTag(vals["strategy"]),
		SourceWallet: vals["source_wallet"],
		Venue:        vals["venue"],
		Status:       domain.PositionStatus(vals["status"]),
		CloseTxRef:   vals["close_tx"],
		ExitReason:   domain.ExitReason(vals["exit_reason"]),
	}
	p.EntryPrice, _ = strconv.ParseFloat(vals["entry_price"], 64)
	p.SolSpent, _ = strconv.ParseFloat(vals["sol_spent"], 64)
	p.TokensAmount, _ = strconv.ParseFloat(vals["tokens_amount"], 64)
	p.MaxPrice, _ = strconv.ParseFloat(vals["max_price"], 64)
	p.MaxPnLPercent, _ = strconv.ParseFloat(vals["max_pnl_pct"], 64)
	p.MinPnLPercent, _ = strconv.ParseFloat(vals["min_pnl_pct"], 64)
	p.LastPrice, _ = strconv.ParseFloat(vals["last_price"], 64)
	p.ClosePrice, _ = strconv.ParseFloat(vals["close_price"], 64)
	p.PnLSol, _ = strconv.ParseFloat(vals["pnl_sol"], 64)
	p.PnLPercent, _ = strconv.ParseFloat(vals["pnl_pct"], 64)
	p.PartialStage, _ = strconv.Atoi(vals["partial_stage"])

	if ns, err := strconv.ParseInt(vals["opened_at"], 10, 64); err == nil {
		p.OpenedAt = time.Unix(0, ns).UTC()
	}
	if ns, err := strconv.ParseInt(vals["last_price_at"], 10, 64); err == nil && ns > 0 {
		p.LastPriceAt = time.Unix(0, ns).UTC()
	}
	if ns, err := strconv.ParseInt(vals["closed_at"], 10, 64); err == nil && ns > 0 {
		p.ClosedAt = time.Unix(0, ns).UTC()
	}
	return p
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
