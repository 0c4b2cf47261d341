package oracle

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
	"github.com/alanyoungcy/copybot/internal/numeric"
)

// CurveSource reads a price from the on-chain bonding curve.
type CurveSource interface {
	Read(ctx context.Context, mint string) (price float64, migrated bool, err error)
}

// FallbackSource quotes a price from an external aggregator.
type FallbackSource interface {
	Quote(ctx context.Context, mint string) (float64, error)
}

// backoff tracks consecutive failures of one dependency and gates retries
// with exponential delay, jitter, and a ceiling.
type backoff struct {
	mu       sync.Mutex
	failures int
	until    time.Time
	base     time.Duration
	cap      time.Duration
}

func newBackoff(base, cap time.Duration) *backoff {
	return &backoff{base: base, cap: cap}
}

func (b *backoff) allowed(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.After(b.until)
}

func (b *backoff) failure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	delay := b.base << uint(b.failures-1)
	if delay > b.cap || delay <= 0 {
		delay = b.cap
	}
	jitter := time.Duration(rand.Int63n(int64(b.base)))
	b.until = now.Add(delay + jitter)
}

func (b *backoff) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.until = time.Time{}
}

// Oracle implements domain.PriceOracle. Reads try the bonding curve first;
// when the curve reports complete (or the account is gone) the aggregator
// quote is used and the result marked migrated. Known quotes are cached for
// a short TTL to bound read amplification; a nil price is returned only when
// every source failed.
type Oracle struct {
	curve    CurveSource
	fallback FallbackSource
	cache    domain.QuoteCache
	ttl      time.Duration
	logger   *slog.Logger

	curveBackoff    *backoff
	fallbackBackoff *backoff
}

// New creates an Oracle with the given sources and cache TTL.
func New(curve CurveSource, fallback FallbackSource, cache domain.QuoteCache, ttl time.Duration, logger *slog.Logger) *Oracle {
	return &Oracle{
		curve:           curve,
		fallback:        fallback,
		cache:           cache,
		ttl:             ttl,
		logger:          logger.With(slog.String("component", "price_oracle")),
		curveBackoff:    newBackoff(500*time.Millisecond, 30*time.Second),
		fallbackBackoff: newBackoff(time.Second, 60*time.Second),
	}
}

// GetPrice resolves the current unit price for a mint. The returned quote has
// Known=false only when the curve and all fallbacks failed; callers must
// treat that as "unknown", never as zero.
func (o *Oracle) GetPrice(ctx context.Context, mint string) (domain.PriceQuote, error) {
	if q, err := o.cache.Get(ctx, mint); err == nil {
		return q, nil
	}

	now := time.Now().UTC()
	migrated := false

	if o.curveBackoff.allowed(now) {
		price, complete, err := o.curve.Read(ctx, mint)
		switch {
		case err == nil && !complete:
			o.curveBackoff.success()
			q := domain.PriceQuote{
				Mint:      mint,
				Price:     price,
				Known:     true,
				Source:    domain.QuoteSourceCurve,
				Timestamp: now,
			}
			o.putCache(ctx, q)
			return q, nil
		case err == nil && complete, errors.Is(err, domain.ErrNotFound):
			// Curve finished or account gone: the token graduated.
			o.curveBackoff.success()
			migrated = true
		default:
			o.curveBackoff.failure(now)
			o.logger.Warn("curve read failed, trying fallback",
				slog.String("mint", mint),
				slog.String("error", err.Error()),
			)
		}
	}

	if o.fallbackBackoff.allowed(now) {
		price, err := o.fallback.Quote(ctx, mint)
		if err == nil {
			o.fallbackBackoff.success()
			q := domain.PriceQuote{
				Mint:      mint,
				Price:     price,
				Known:     true,
				Migrated:  true,
				Source:    domain.QuoteSourceAggregator,
				Timestamp: now,
			}
			o.putCache(ctx, q)
			return q, nil
		}
		o.fallbackBackoff.failure(now)
		o.logger.Warn("fallback quote failed",
			slog.String("mint", mint),
			slog.String("error", err.Error()),
		)
	}

	return domain.PriceQuote{Mint: mint, Migrated: migrated, Timestamp: now}, nil
}

// GetPositionValue returns the current worth of a holding. The total routes
// through numeric safety so a bad quote can never produce NaN downstream.
func (o *Oracle) GetPositionValue(ctx context.Context, mint string, tokens float64) (domain.PositionValue, error) {
	q, err := o.GetPrice(ctx, mint)
	if err != nil {
		return domain.PositionValue{}, err
	}
	if !q.Known {
		return domain.PositionValue{}, domain.ErrPriceUnavailable
	}
	return domain.PositionValue{
		UnitPrice:  q.Price,
		TotalValue: numeric.SafeNumber(q.Price*tokens, 0),
	}, nil
}

func (o *Oracle) putCache(ctx context.Context, q domain.PriceQuote) {
	if err := o.cache.Put(ctx, q, o.ttl); err != nil {
		o.logger.Debug("quote cache write failed",
			slog.String("mint", q.Mint),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.PriceOracle = (*Oracle)(nil)
