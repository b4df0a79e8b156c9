package testing

import (
	"sync"
	"time"
	_ "time/tzdata" // tests run on hosts without zoneinfo

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// ManualClock is a domain.Clock that only moves when told to
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock creates a clock fixed at now
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current fixed time
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewYork loads the market timezone. Panics if tzdata is missing.
func NewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}

// MarketTime returns 10:30 New York time on the given date, inside regular trading hours
func MarketTime(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 10, 30, 0, 0, NewYork())
}

// NewTradeFixture builds a valid executed trade
func NewTradeFixture(tradeID, accountID, symbol string, side domain.TradeSide, qty, price float64, at time.Time) domain.Trade {
	return domain.Trade{
		TradeID:    tradeID,
		AccountID:  accountID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		ExecutedAt: at,
	}
}

// NewSummaryFixture builds an account summary with equal net liquidation and cash
func NewSummaryFixture(accountID, balance string) domain.AccountSummary {
	value := decimal.RequireFromString(balance)
	return domain.AccountSummary{
		AccountID:      accountID,
		NetLiquidation: value,
		TotalCashValue: value,
	}
}
