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

// QuoteCache implements domain.QuoteCache using Redis hashes with a TTL.
// Each mint's quote lives at "quote:{mint}"; the key expiring is what makes a
// quote stale, so a hit is always within the freshness window.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(mint string) string {
	return "quote:" + mint
}

// Put stores a quote for the given TTL. Unknown quotes are not cached so a
// recovering source is retried immediately.
func (qc *QuoteCache) Put(ctx context.Context, q domain.PriceQuote, ttl time.Duration) error {
	if !q.Known {
		return nil
	}
	key := quoteKey(q.Mint)
	fields := map[string]interface{}{
		"price":    strconv.FormatFloat(q.Price, 'f', -1, 64),
		"migrated": strconv.FormatBool(q.Migrated),
		"source":   string(q.Source),
		"ts":       strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put quote %s: %w", q.Mint, err)
	}
	return nil
}

// Get retrieves a cached quote. It returns domain.ErrNotFound on a miss.
func (qc *QuoteCache) Get(ctx context.Context, mint string) (domain.PriceQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(mint)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", mint, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	q := domain.PriceQuote{
		Mint:   mint,
		Known:  true,
		Source: domain.QuoteSource(vals["source"]),
	}
	q.Price, err = strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote price %s: %w", mint, err)
	}
	q.Migrated, _ = strconv.ParseBool(vals["migrated"])
	if ns, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		q.Timestamp = time.Unix(0, ns).UTC()
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
