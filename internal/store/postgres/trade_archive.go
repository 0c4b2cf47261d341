package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// TradeArchive implements domain.TradeArchive using PostgreSQL.
type TradeArchive struct {
	pool *pgxpool.Pool
}

// NewTradeArchive creates a TradeArchive backed by the given connection pool.
func NewTradeArchive(pool *pgxpool.Pool) *TradeArchive {
	return &TradeArchive{pool: pool}
}

var _ domain.TradeArchive = (*TradeArchive)(nil)

const tradeInsert = `
	INSERT INTO trades (
		mint, strategy, wallet, entry_price, close_price,
		tokens_sold, sol_spent, sol_received, pnl_sol, pnl_percent,
		reason, tx_ref, venue, opened_at, closed_at, partial, simulated
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17
	)`

// Insert archives one closed (or partially closed) trade.
func (s *TradeArchive) Insert(ctx context.Context, rec domain.TradeRecord) error {
	_, err := s.pool.Exec(ctx, tradeInsert,
		rec.Mint, string(rec.Strategy), rec.Wallet, rec.EntryPrice, rec.ClosePrice,
		rec.TokensSold, rec.SolSpent, rec.SolReceived, rec.PnLSol, rec.PnLPercent,
		string(rec.Reason), rec.TxRef, rec.Venue, rec.OpenedAt, rec.ClosedAt,
		rec.Partial, rec.Simulated,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", rec.Mint, err)
	}
	return nil
}

const tradeSelectCols = `mint, strategy, wallet, entry_price, close_price,
	tokens_sold, sol_spent, sol_received, pnl_sol, pnl_percent,
	reason, tx_ref, venue, opened_at, closed_at, partial, simulated`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var strategy, reason string
		if err := rows.Scan(
			&rec.Mint, &strategy, &rec.Wallet, &rec.EntryPrice, &rec.ClosePrice,
			&rec.TokensSold, &rec.SolSpent, &rec.SolReceived, &rec.PnLSol, &rec.PnLPercent,
			&reason, &rec.TxRef, &rec.Venue, &rec.OpenedAt, &rec.ClosedAt,
			&rec.Partial, &rec.Simulated,
		); err != nil {
			return nil, err
		}
		rec.Strategy = domain.StrategyTag(strategy)
		rec.Reason = domain.ExitReason(reason)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListWindow returns archived trades for a (mint, wallet) pair closed at or
// after since, newest first. It backs rebuy scans that reach past the
// ledger's retention.
func (s *TradeArchive) ListWindow(ctx context.Context, mint, wallet string, since time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + `
		FROM trades
		WHERE mint = $1 AND wallet = $2 AND closed_at >= $3
		ORDER BY closed_at DESC`

	rows, err := s.pool.Query(ctx, query, mint, wallet, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s/%s: %w", mint, wallet, err)
	}
	defer rows.Close()

	out, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades %s/%s: %w", mint, wallet, err)
	}
	return out, nil
}

// DailyPnL aggregates archived trades per UTC day since the given time,
// newest day first.
func (s *TradeArchive) DailyPnL(ctx context.Context, since time.Time) ([]domain.DailySummary, error) {
	const query = `
		SELECT
			to_char(closed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE pnl_sol > 0),
			COUNT(*) FILTER (WHERE pnl_sol < 0),
			COALESCE(SUM(pnl_sol), 0),
			COALESCE(MAX(pnl_percent), 0),
			COALESCE(MIN(pnl_percent), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM closed_at - opened_at)), 0)
		FROM trades
		WHERE closed_at >= $1
		GROUP BY day
		ORDER BY day DESC`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: daily pnl: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var s domain.DailySummary
		if err := rows.Scan(
			&s.Date, &s.Trades, &s.Wins, &s.Losses,
			&s.PnLSol, &s.BestPct, &s.WorstPct, &s.AvgHoldSec,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan daily pnl: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: daily pnl rows: %w", err)
	}
	return out, nil
}
