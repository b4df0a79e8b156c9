package domain

import (
	"context"
	"time"
)

// BrokerClient is the broker collaborator. Only the account monitor calls it.
type BrokerClient interface {
	GetAccountSummary(ctx context.Context, accountID string) (*AccountSummary, error)
	GetPositions(ctx context.Context, accountID string) ([]BrokerPosition, error)
}

// MarketData is the slice of market context handed to a strategy's exit logic
type MarketData struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// ExitDecision is a strategy's own exit verdict
type ExitDecision struct {
	ShouldExit bool    `json:"should_exit"`
	Fraction   float64 `json:"fraction"` // Fraction of the remaining quantity, 1 = close all
	Reason     string  `json:"reason"`
}

// Strategy is the external strategy collaborator.
// ShouldExit is only consulted after no profit-taking level fired.
type Strategy interface {
	ShouldExit(ctx context.Context, position BrokerPosition, market MarketData) (ExitDecision, error)
	// PositionSizeOverride returns a percentage (0.05 = 5%) that replaces the confidence-derived one.
	PositionSizeOverride(confidence float64) (float64, bool)
}

// Clock supplies "now". Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}
