package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// WalletTracker implements domain.WalletTracker with per-mint Redis hashes
// mapping wallet -> observation time (Unix nanoseconds), each key carrying a
// TTL so stale corroboration evidence ages out on its own.
type WalletTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewWalletTracker creates a WalletTracker with the given entry TTL.
func NewWalletTracker(c *Client, ttl time.Duration) *WalletTracker {
	return &WalletTracker{rdb: c.Underlying(), ttl: ttl}
}

func buyersKey(mint string) string {
	return "buyers:" + mint
}

func sellersKey(mint string) string {
	return "sellers:" + mint
}

func (t *WalletTracker) mark(ctx context.Context, key, wallet string) error {
	now := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key, wallet, now)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: mark %s: %w", key, err)
	}
	return nil
}

// MarkBuyer records that a tracked wallet bought the mint.
func (t *WalletTracker) MarkBuyer(ctx context.Context, mint, wallet string) error {
	return t.mark(ctx, buyersKey(mint), wallet)
}

// MarkSeller records that a tracked wallet sold the mint.
func (t *WalletTracker) MarkSeller(ctx context.Context, mint, wallet string) error {
	return t.mark(ctx, sellersKey(mint), wallet)
}

// BuyerCount returns the number of distinct tracked wallets that bought the
// mint within the TTL window.
func (t *WalletTracker) BuyerCount(ctx context.Context, mint string) (int, error) {
	n, err := t.rdb.HLen(ctx, buyersKey(mint)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: buyer count %s: %w", mint, err)
	}
	return int(n), nil
}

// SellerCount returns the number of distinct tracked wallets that sold the
// mint within the TTL window.
func (t *WalletTracker) SellerCount(ctx context.Context, mint string) (int, error) {
	n, err := t.rdb.HLen(ctx, sellersKey(mint)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: seller count %s: %w", mint, err)
	}
	return int(n), nil
}

// HasSold reports whether the wallet sold the mint within the TTL window and
// when the sell was observed.
func (t *WalletTracker) HasSold(ctx context.Context, mint, wallet string) (bool, time.Time, error) {
	val, err := t.rdb.HGet(ctx, sellersKey(mint), wallet).Result()
	if errors.Is(err, redis.Nil) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("redis: has sold %s: %w", mint, err)
	}
	ns, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("redis: has sold %s: parse ts: %w", mint, err)
	}
	return true, time.Unix(0, ns).UTC(), nil
}

// Compile-time interface check.
var _ domain.WalletTracker = (*WalletTracker)(nil)

// CooldownTracker implements domain.CooldownTracker with per-mint string
// keys that exist only while the cooldown is active.
type CooldownTracker struct {
	rdb *redis.Client
}

// NewCooldownTracker creates a CooldownTracker backed by the given Client.
func NewCooldownTracker(c *Client) *CooldownTracker {
	return &CooldownTracker{rdb: c.Underlying()}
}

func cooldownKey(mint string) string {
	return "cooldown:" + mint
}

// SetCooldown marks the mint as recently bought for the given TTL.
func (t *CooldownTracker) SetCooldown(ctx context.Context, mint string, ttl time.Duration) error {
	if err := t.rdb.Set(ctx, cooldownKey(mint), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: set cooldown %s: %w", mint, err)
	}
	return nil
}

// InCooldown reports whether the mint's cooldown marker still exists.
func (t *CooldownTracker) InCooldown(ctx context.Context, mint string) (bool, error) {
	n, err := t.rdb.Exists(ctx, cooldownKey(mint)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: in cooldown %s: %w", mint, err)
	}
	return n > 0, nil
}

// Compile-time interface check.
var _ domain.CooldownTracker = (*CooldownTracker)(nil)
