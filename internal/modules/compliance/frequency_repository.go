package compliance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
)

// FrequencyRepository handles trade_frequency_counters operations
type FrequencyRepository struct {
	log zerolog.Logger
}

// NewFrequencyRepository creates a new frequency counter repository
func NewFrequencyRepository(log zerolog.Logger) *FrequencyRepository {
	return &FrequencyRepository{
		log: log.With().Str("repo", "frequency").Logger(),
	}
}

// Get returns the account's counter, or a zero counter when none exists
func (r *FrequencyRepository) Get(ctx context.Context, q database.Querier, accountID string) (FrequencyCounter, error) {
	counter := FrequencyCounter{AccountID: accountID}

	var periodStart, weekStart string
	var updatedAt int64
	err := q.QueryRowContext(ctx, `
		SELECT period_start, week_start, daily_count, weekly_count, updated_at
		FROM trade_frequency_counters
		WHERE account_id = ?
	`, accountID).Scan(&periodStart, &weekStart, &counter.DailyCount, &counter.WeeklyCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return counter, nil
	}
	if err != nil {
		return FrequencyCounter{}, fmt.Errorf("failed to get frequency counter: %w", err)
	}

	if counter.PeriodStart, err = domain.ParseDate(periodStart); err != nil {
		return FrequencyCounter{}, fmt.Errorf("failed to parse period start: %w", err)
	}
	if counter.WeekStart, err = domain.ParseDate(weekStart); err != nil {
		return FrequencyCounter{}, fmt.Errorf("failed to parse week start: %w", err)
	}
	counter.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return counter, nil
}

// Upsert writes the counter
func (r *FrequencyRepository) Upsert(ctx context.Context, q database.Querier, counter FrequencyCounter) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO trade_frequency_counters (account_id, period_start, week_start, daily_count, weekly_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			period_start = excluded.period_start,
			week_start = excluded.week_start,
			daily_count = excluded.daily_count,
			weekly_count = excluded.weekly_count,
			updated_at = excluded.updated_at
	`,
		counter.AccountID,
		domain.FormatDate(counter.PeriodStart),
		domain.FormatDate(counter.WeekStart),
		counter.DailyCount,
		counter.WeeklyCount,
		counter.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert frequency counter: %w", err)
	}
	return nil
}
