// Package risk is the entry point of the engine: it combines the account
// monitor, compliance, position sizing and profit taking into pre-trade
// validation and post-fill bookkeeping.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/shopspring/decimal"
)

// TradeRequest is a candidate trade to validate
type TradeRequest struct {
	AccountID  string           `json:"account_id"`
	Symbol     string           `json:"symbol"`
	Side       domain.TradeSide `json:"side"`
	Confidence float64          `json:"confidence"`
	Price      decimal.Decimal  `json:"price"`
	// StrategyOverride replaces the confidence-derived percentage (0.05 = 5%)
	StrategyOverride *float64 `json:"strategy_override,omitempty"`
}

// ValidationResult is the decision returned to the execution layer.
// Allowed is false when any strict-mode compliance check failed, regardless of sizing.
type ValidationResult struct {
	RequestID       string              `json:"request_id"`
	Allowed         bool                `json:"allowed"`
	Reasons         []compliance.Reason `json:"reasons"`
	MaxQuantity     int64               `json:"max_quantity"`
	PercentageUsed  float64             `json:"percentage_used"`
	Tier            string              `json:"tier,omitempty"`
	Notional        decimal.Decimal     `json:"notional"`
	Capped          bool                `json:"capped"`
	CashAccountMode bool                `json:"cash_account_mode"`
	AccountValue    decimal.Decimal     `json:"account_value"`
	// Stale is set when the account value came from cache because the broker was unreachable
	Stale bool `json:"stale"`
}

// Validate checks and normalizes the request
func (r *TradeRequest) Validate() error {
	r.AccountID = strings.TrimSpace(r.AccountID)
	if r.AccountID == "" {
		return domain.NewValidationError("account_id", "account id cannot be empty")
	}
	r.Symbol = domain.NormalizeSymbol(r.Symbol)
	if r.Symbol == "" {
		return domain.NewValidationError("symbol", "symbol cannot be empty")
	}
	if !r.Side.IsValid() {
		return domain.NewValidationError("side", fmt.Sprintf("invalid trade side: %s", r.Side))
	}
	if !r.Price.IsPositive() {
		return domain.NewValidationError("price", "price must be positive")
	}
	if math.IsNaN(r.Confidence) {
		return domain.NewValidationError("confidence", "confidence must be a number")
	}
	return nil
}
