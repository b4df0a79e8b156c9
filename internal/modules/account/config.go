package account

import (
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Config controls the account monitor
type Config struct {
	// Threshold below which cash-account rules apply
	Threshold decimal.Decimal
	// CacheTTL is how long a fetched AccountState is served without asking the broker
	CacheTTL time.Duration
	// BrokerTimeout bounds every broker status call
	BrokerTimeout time.Duration
}

// DefaultConfig returns the $25,000 threshold with a 5 minute cache
func DefaultConfig() Config {
	return Config{
		Threshold:     decimal.NewFromInt(25000),
		CacheTTL:      5 * time.Minute,
		BrokerTimeout: 5 * time.Second,
	}
}

// Validate rejects non-positive thresholds and durations
func (c Config) Validate() error {
	if !c.Threshold.IsPositive() {
		return domain.NewConfigurationError("account.cash_account_threshold", "must be positive")
	}
	if c.CacheTTL <= 0 {
		return domain.NewConfigurationError("account.cache_ttl", "must be positive")
	}
	if c.BrokerTimeout <= 0 {
		return domain.NewConfigurationError("account.broker_timeout", "must be positive")
	}
	return nil
}
