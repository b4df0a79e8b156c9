package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/modules/account"
	"github.com/rs/zerolog"
)

// AccountRefresher re-reads account state from the broker
type AccountRefresher interface {
	KnownAccounts(ctx context.Context) ([]string, error)
	Refresh(ctx context.Context, accountID string) (account.AccountState, error)
}

// AccountRefreshJob keeps cached balances and account modes warm for the
// configured accounts and every account the ledger has seen
type AccountRefreshJob struct {
	refresher  AccountRefresher
	configured []string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewAccountRefreshJob creates a new AccountRefreshJob
func NewAccountRefreshJob(refresher AccountRefresher, configured []string, log zerolog.Logger) *AccountRefreshJob {
	return &AccountRefreshJob{
		refresher:  refresher,
		configured: configured,
		timeout:    time.Minute,
		log:        log.With().Str("job", "account_refresh").Logger(),
	}
}

// Name returns the job name
func (j *AccountRefreshJob) Name() string {
	return "account_refresh"
}

// Run refreshes every account. One failing account does not stop the others;
// the job fails only when no account could be refreshed.
func (j *AccountRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	accounts, err := j.accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	var failed int
	for _, accountID := range accounts {
		state, err := j.refresher.Refresh(ctx, accountID)
		if err != nil {
			failed++
			j.log.Warn().Err(err).Str("account_id", accountID).Msg("Failed to refresh account")
			continue
		}
		if state.Stale {
			j.log.Warn().Str("account_id", accountID).Msg("Broker unavailable, account state is stale")
		}
	}

	j.log.Debug().
		Int("accounts", len(accounts)).
		Int("failed", failed).
		Msg("Account refresh finished")

	if failed == len(accounts) {
		return fmt.Errorf("failed to refresh all %d accounts", failed)
	}
	return nil
}

func (j *AccountRefreshJob) accounts(ctx context.Context) ([]string, error) {
	known, err := j.refresher.KnownAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list known accounts: %w", err)
	}

	seen := make(map[string]bool, len(known)+len(j.configured))
	accounts := make([]string, 0, len(known)+len(j.configured))
	for _, id := range append(append([]string{}, j.configured...), known...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		accounts = append(accounts, id)
	}
	return accounts, nil
}
