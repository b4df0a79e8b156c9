package domain

import "github.com/shopspring/decimal"

// Broker-agnostic types returned by the broker collaborator.

// AccountSummary is the broker's view of an account's value
type AccountSummary struct {
	AccountID      string          `json:"account_id"`
	NetLiquidation decimal.Decimal `json:"net_liquidation"`  // Total account value
	TotalCashValue decimal.Decimal `json:"total_cash_value"` // Cash including unsettled proceeds
}

// BrokerPosition represents a held position (broker-agnostic)
type BrokerPosition struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// UnrealizedPct returns the unrealized gain as a fraction of cost basis (0.05 = 5%).
func (p BrokerPosition) UnrealizedPct() float64 {
	if p.AvgPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgPrice) / p.AvgPrice
}
