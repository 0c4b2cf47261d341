package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/copybot/internal/domain"
)

const ledgerKeyPrefix = "trades:"

// TradeLedger implements domain.TradeLedger as date-keyed append-only Redis
// lists of JSON trade records. Keys are "trades:YYYY-MM-DD" in UTC.
type TradeLedger struct {
	rdb *redis.Client
}

// NewTradeLedger creates a TradeLedger backed by the given Client.
func NewTradeLedger(c *Client) *TradeLedger {
	return &TradeLedger{rdb: c.Underlying()}
}

func ledgerKey(date string) string {
	return ledgerKeyPrefix + date
}

// DateKey formats a time as the ledger's UTC date key.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Append adds one immutable record to the day's list.
func (l *TradeLedger) Append(ctx context.Context, rec domain.TradeRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal trade record: %w", err)
	}
	key := ledgerKey(DateKey(rec.ClosedAt))
	if err := l.rdb.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("redis: ledger append %s: %w", key, err)
	}
	return nil
}

// Day returns all records for one UTC date key in append order.
func (l *TradeLedger) Day(ctx context.Context, date string) ([]domain.TradeRecord, error) {
	raw, err := l.rdb.LRange(ctx, ledgerKey(date), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: ledger day %s: %w", date, err)
	}
	records := make([]domain.TradeRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.TradeRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			// A malformed entry is skipped rather than poisoning the scan.
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// History returns records for today and the previous days-1 UTC days, newest
// day first.
func (l *TradeLedger) History(ctx context.Context, days int) ([]domain.TradeRecord, error) {
	if days <= 0 {
		days = 1
	}
	now := time.Now().UTC()
	var out []domain.TradeRecord
	for i := 0; i < days; i++ {
		date := DateKey(now.AddDate(0, 0, -i))
		recs, err := l.Day(ctx, date)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Summary aggregates one day of the ledger.
func (l *TradeLedger) Summary(ctx context.Context, date string) (domain.DailySummary, error) {
	recs, err := l.Day(ctx, date)
	if err != nil {
		return domain.DailySummary{}, err
	}

	sum := domain.DailySummary{Date: date}
	var holdTotal float64
	for _, rec := range recs {
		sum.Trades++
		sum.PnLSol += rec.PnLSol
		if rec.PnLSol >= 0 {
			sum.Wins++
		} else {
			sum.Losses++
		}
		if sum.Trades == 1 || rec.PnLPercent > sum.BestPct {
			sum.BestPct = rec.PnLPercent
		}
		if sum.Trades == 1 || rec.PnLPercent < sum.WorstPct {
			sum.WorstPct = rec.PnLPercent
		}
		holdTotal += rec.ClosedAt.Sub(rec.OpenedAt).Seconds()
	}
	if sum.Trades > 0 {
		sum.AvgHoldSec = holdTotal / float64(sum.Trades)
	}
	return sum, nil
}

// Compile-time interface check.
var _ domain.TradeLedger = (*TradeLedger)(nil)
