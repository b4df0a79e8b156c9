// Package account implements the account monitor: balance lookup, cash-account
// mode detection and the cached per-account state.
package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountState is the monitor's view of one account.
// IsCashAccountMode always equals Balance < Threshold.
type AccountState struct {
	AccountID         string          `json:"account_id"`
	Balance           decimal.Decimal `json:"balance"`
	Threshold         decimal.Decimal `json:"threshold"`
	IsCashAccountMode bool            `json:"is_cash_account_mode"`
	LastCheckedAt     time.Time       `json:"last_checked_at"`
	// Stale is set when the broker could not be reached and a cached value was served
	Stale bool `json:"stale"`
}

// NewAccountState derives the cash-account flag from balance and threshold
func NewAccountState(accountID string, balance, threshold decimal.Decimal, checkedAt time.Time) AccountState {
	return AccountState{
		AccountID:         accountID,
		Balance:           balance,
		Threshold:         threshold,
		IsCashAccountMode: balance.LessThan(threshold),
		LastCheckedAt:     checkedAt,
	}
}

// Mode names the account regime for logs and API responses
func (s AccountState) Mode() string {
	if s.IsCashAccountMode {
		return "cash"
	}
	return "standard"
}
