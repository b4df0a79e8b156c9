package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// DayTradeRepository handles day_trade_records operations.
// Records are never deleted; they age out of the counting window.
type DayTradeRepository struct {
	log zerolog.Logger
}

// NewDayTradeRepository creates a new day-trade repository
func NewDayTradeRepository(log zerolog.Logger) *DayTradeRepository {
	return &DayTradeRepository{
		log: log.With().Str("repo", "day_trade").Logger(),
	}
}

// Insert stores a detected day trade. A record for the same closing trade is ignored.
func (r *DayTradeRepository) Insert(ctx context.Context, q database.Querier, rec DayTradeRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO day_trade_records (trade_id, account_id, symbol, buy_date, sell_date, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO NOTHING
	`,
		rec.TradeID,
		rec.AccountID,
		rec.Symbol,
		domain.FormatDate(rec.BuyDate),
		domain.FormatDate(rec.SellDate),
		rec.DetectedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert day trade record: %w", err)
	}
	return nil
}

// CountBetween counts day trades whose sell date is in [from, to]
func (r *DayTradeRepository) CountBetween(ctx context.Context, q database.Querier, accountID string, from, to time.Time) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM day_trade_records
		WHERE account_id = ? AND sell_date >= ? AND sell_date <= ?
	`, accountID, domain.FormatDate(from), domain.FormatDate(to)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count day trades: %w", err)
	}
	return count, nil
}

// ListSince returns day trades with a sell date on or after from, oldest first
func (r *DayTradeRepository) ListSince(ctx context.Context, q database.Querier, accountID string, from time.Time) ([]DayTradeRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, trade_id, account_id, symbol, buy_date, sell_date, detected_at
		FROM day_trade_records
		WHERE account_id = ? AND sell_date >= ?
		ORDER BY sell_date, id
	`, accountID, domain.FormatDate(from))
	if err != nil {
		return nil, fmt.Errorf("failed to list day trades: %w", err)
	}
	defer rows.Close()

	records := make([]DayTradeRecord, 0)
	for rows.Next() {
		var rec DayTradeRecord
		var buyDate, sellDate string
		var detectedAt int64
		if err := rows.Scan(&rec.ID, &rec.TradeID, &rec.AccountID, &rec.Symbol, &buyDate, &sellDate, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan day trade: %w", err)
		}
		if rec.BuyDate, err = domain.ParseDate(buyDate); err != nil {
			return nil, fmt.Errorf("failed to parse buy date: %w", err)
		}
		if rec.SellDate, err = domain.ParseDate(sellDate); err != nil {
			return nil, fmt.Errorf("failed to parse sell date: %w", err)
		}
		rec.DetectedAt = time.Unix(detectedAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating day trades: %w", err)
	}
	return records, nil
}
