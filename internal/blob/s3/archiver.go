package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// BlobWriter is the narrow upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// LedgerArchiver serializes one UTC day of the trade ledger to JSONL and
// uploads it. The ledger day in Redis is left untouched; its retention TTL
// removes it independently, after the archive has had time to be verified.
type LedgerArchiver struct {
	writer BlobWriter
	ledger domain.TradeLedger
	audit  domain.AuditStore // optional
}

// NewLedgerArchiver creates a LedgerArchiver. audit may be nil.
func NewLedgerArchiver(writer BlobWriter, ledger domain.TradeLedger, audit domain.AuditStore) *LedgerArchiver {
	return &LedgerArchiver{
		writer: writer,
		ledger: ledger,
		audit:  audit,
	}
}

// ArchiveDay uploads the ledger for the given YYYY-MM-DD date as
// ledgers/YYYY-MM-DD.jsonl and returns the number of records archived. An
// empty day uploads nothing.
func (a *LedgerArchiver) ArchiveDay(ctx context.Context, date string) (int, error) {
	records, err := a.ledger.Day(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger query %s: %w", date, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: archive ledger marshal %s: %w", date, err)
		}
	}

	path := fmt.Sprintf("ledgers/%s.jsonl", date)
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger upload %s: %w", date, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.ledger", map[string]any{
			"path":  path,
			"date":  date,
			"count": len(records),
		}); err != nil {
			return len(records), fmt.Errorf("s3blob: archive ledger audit log: %w", err)
		}
	}
	return len(records), nil
}

// RunDaily archives yesterday's ledger once per day at the configured UTC
// hour until ctx is cancelled.
func (a *LedgerArchiver) RunDaily(ctx context.Context, hourUTC int, report func(date string, count int, err error)) error {
	for {
		next := nextRunAt(time.Now().UTC(), hourUTC)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		date := next.AddDate(0, 0, -1).Format("2006-01-02")
		count, err := a.ArchiveDay(ctx, date)
		if report != nil {
			report(date, count, err)
		}
	}
}

func nextRunAt(now time.Time, hourUTC int) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), hourUTC, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}
