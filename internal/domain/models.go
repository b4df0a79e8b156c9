// Package domain holds the types shared by every risk module: trade sides,
// executed trades, broker account snapshots and the error taxonomy.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide represents the trade direction (BUY or SELL)
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// IsValid checks if the trade side is valid
func (ts TradeSide) IsValid() bool {
	return ts == TradeSideBuy || ts == TradeSideSell
}

// IsBuy returns true if this is a BUY trade
func (ts TradeSide) IsBuy() bool {
	return ts == TradeSideBuy
}

// IsSell returns true if this is a SELL trade
func (ts TradeSide) IsSell() bool {
	return ts == TradeSideSell
}

// TradeSideFromString creates TradeSide from string (case-insensitive)
func TradeSideFromString(value string) (TradeSide, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return TradeSideBuy, nil
	case "SELL":
		return TradeSideSell, nil
	case "":
		return "", NewValidationError("side", "empty trade side")
	default:
		return "", NewValidationError("side", fmt.Sprintf("invalid trade side: %s", value))
	}
}

// Trade is a fill reported by the execution layer.
// TradeID is the idempotency key: the execution layer may deliver the same fill more than once.
type Trade struct {
	ExecutedAt time.Time `json:"executed_at"`
	TradeID    string    `json:"trade_id"`
	AccountID  string    `json:"account_id"`
	Symbol     string    `json:"symbol"`
	Side       TradeSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
}

// Validate validates trade data and normalizes the identifiers and symbol
func (t *Trade) Validate() error {
	if strings.TrimSpace(t.TradeID) == "" {
		return NewValidationError("trade_id", "trade id cannot be empty")
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return NewValidationError("account_id", "account id cannot be empty")
	}
	if strings.TrimSpace(t.Symbol) == "" {
		return NewValidationError("symbol", "symbol cannot be empty")
	}
	if !t.Side.IsValid() {
		return NewValidationError("side", fmt.Sprintf("invalid trade side: %s", t.Side))
	}
	if t.Quantity <= 0 || math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) {
		return NewValidationError("quantity", "quantity must be positive")
	}
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return NewValidationError("price", "price must be positive")
	}
	if t.ExecutedAt.IsZero() {
		return NewValidationError("executed_at", "execution time is required")
	}

	t.TradeID = strings.TrimSpace(t.TradeID)
	t.AccountID = strings.TrimSpace(t.AccountID)
	t.Symbol = NormalizeSymbol(t.Symbol)
	return nil
}

// Notional returns quantity * price as money
func (t Trade) Notional() decimal.Decimal {
	return decimal.NewFromFloat(t.Quantity).Mul(decimal.NewFromFloat(t.Price)).Round(2)
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
