package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
)

// Repository persists AccountState rows in the accounts table
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "account").Logger(),
	}
}

// Get returns the persisted state for an account, or nil if none exists
func (r *Repository) Get(ctx context.Context, q database.Querier, accountID string) (*AccountState, error) {
	query := `
		SELECT account_id, balance, threshold, is_cash_account_mode, last_checked_at
		FROM accounts
		WHERE account_id = ?
	`

	var state AccountState
	var cashMode int
	var checkedAt int64
	err := q.QueryRowContext(ctx, query, accountID).Scan(
		&state.AccountID,
		&state.Balance,
		&state.Threshold,
		&cashMode,
		&checkedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account state: %w", err)
	}

	state.IsCashAccountMode = cashMode != 0
	state.LastCheckedAt = time.Unix(checkedAt, 0).UTC()
	return &state, nil
}

// Upsert inserts or replaces an account's state
func (r *Repository) Upsert(ctx context.Context, q database.Querier, state AccountState) error {
	query := `
		INSERT INTO accounts (account_id, balance, threshold, is_cash_account_mode, last_checked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			balance = excluded.balance,
			threshold = excluded.threshold,
			is_cash_account_mode = excluded.is_cash_account_mode,
			last_checked_at = excluded.last_checked_at
	`

	cashMode := 0
	if state.IsCashAccountMode {
		cashMode = 1
	}

	_, err := q.ExecContext(ctx, query,
		state.AccountID,
		state.Balance.String(),
		state.Threshold.String(),
		cashMode,
		state.LastCheckedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account state: %w", err)
	}

	r.log.Debug().
		Str("account_id", state.AccountID).
		Str("balance", state.Balance.String()).
		Bool("cash_account_mode", state.IsCashAccountMode).
		Msg("Account state saved")
	return nil
}

// ListAccountIDs returns every account that has been checked at least once
func (r *Repository) ListAccountIDs(ctx context.Context, q database.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT account_id FROM accounts ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return ids, nil
}
