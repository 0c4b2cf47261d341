package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// VelocityTracker maintains a per-mint price-velocity proxy (absolute price
// change per second between observations) in Redis, so the volume-decay rule
// survives restarts and is inspectable. Keys expire with a TTL; only the
// monitor loop writes them.
type VelocityTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewVelocityTracker creates a VelocityTracker with the given key TTL.
func NewVelocityTracker(c *Client, ttl time.Duration) *VelocityTracker {
	return &VelocityTracker{rdb: c.Underlying(), ttl: ttl}
}

func velocityKey(mint string) string {
	return "velocity:" + mint
}

// Observe records a price observation and returns the updated stats.
func (t *VelocityTracker) Observe(ctx context.Context, mint string, price float64, at time.Time) (domain.VelocityStats, error) {
	key := velocityKey(mint)
	vals, err := t.rdb.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.VelocityStats{}, fmt.Errorf("redis: velocity read %s: %w", mint, err)
	}

	stats := domain.VelocityStats{}
	lastPrice, _ := strconv.ParseFloat(vals["last_price"], 64)
	lastAtNS, _ := strconv.ParseInt(vals["last_at"], 10, 64)
	peak, _ := strconv.ParseFloat(vals["peak"], 64)
	peakAtNS, _ := strconv.ParseInt(vals["peak_at"], 10, 64)

	if lastAtNS > 0 {
		lastAt := time.Unix(0, lastAtNS).UTC()
		dt := at.Sub(lastAt).Seconds()
		if dt > 0 {
			stats.Current = math.Abs(price-lastPrice) / dt
			stats.Observed = true
		}
	}
	if stats.Current > peak || peakAtNS == 0 {
		peak = stats.Current
		peakAtNS = at.UnixNano()
	}
	stats.Peak = peak
	stats.PeakAt = time.Unix(0, peakAtNS).UTC()
	stats.SincePeak = at.Sub(stats.PeakAt)

	fields := map[string]interface{}{
		"last_price": strconv.FormatFloat(price, 'f', -1, 64),
		"last_at":    strconv.FormatInt(at.UnixNano(), 10),
		"peak":       strconv.FormatFloat(peak, 'f', -1, 64),
		"peak_at":    strconv.FormatInt(peakAtNS, 10),
	}
	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return stats, fmt.Errorf("redis: velocity write %s: %w", mint, err)
	}
	return stats, nil
}

// Forget drops the velocity state for a mint after its position closes.
func (t *VelocityTracker) Forget(ctx context.Context, mint string) error {
	if err := t.rdb.Del(ctx, velocityKey(mint)).Err(); err != nil {
		return fmt.Errorf("redis: velocity forget %s: %w", mint, err)
	}
	return nil
}
