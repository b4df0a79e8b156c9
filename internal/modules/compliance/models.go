// Package compliance enforces U.S. cash-account rules: T+2 settlement, pattern
// day trading, trade frequency caps and good-faith violations.
package compliance

import (
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/shopspring/decimal"
)

// ReasonCode identifies a failing or flagged check
type ReasonCode string

const (
	ReasonPDTLimit                       ReasonCode = "PDT_LIMIT"
	ReasonPDTWarning                     ReasonCode = "PDT_WARNING"
	ReasonFrequencyLimit                 ReasonCode = "FREQUENCY_LIMIT"
	ReasonFrequencyWarning               ReasonCode = "FREQUENCY_WARNING"
	ReasonGFV                            ReasonCode = "GFV"
	ReasonGFVWarning                     ReasonCode = "GFV_WARNING"
	ReasonInsufficientSettledCash        ReasonCode = "INSUFFICIENT_SETTLED_CASH"
	ReasonInsufficientSettledCashWarning ReasonCode = "INSUFFICIENT_SETTLED_CASH_WARNING"
)

// Reason explains one check outcome. Blocking reasons come from strict-mode checks.
type Reason struct {
	Code     ReasonCode `json:"code"`
	Message  string     `json:"message"`
	Blocking bool       `json:"blocking"`
}

// Result is a compliance verdict. Violations are data, never errors.
type Result struct {
	Allowed bool     `json:"allowed"`
	Reasons []Reason `json:"reasons"`
}

// Pass returns an allowed result with no reasons
func Pass() Result {
	return Result{Allowed: true, Reasons: []Reason{}}
}

// violation builds the result of a failed check for the given mode
func violation(mode Mode, strict, warning ReasonCode, message string) Result {
	if mode == ModeWarning {
		return Result{Allowed: true, Reasons: []Reason{{Code: warning, Message: message}}}
	}
	return Result{Allowed: false, Reasons: []Reason{{Code: strict, Message: message, Blocking: true}}}
}

// Merge ANDs the verdicts and concatenates the reasons
func (r Result) Merge(other Result) Result {
	reasons := make([]Reason, 0, len(r.Reasons)+len(other.Reasons))
	reasons = append(reasons, r.Reasons...)
	reasons = append(reasons, other.Reasons...)
	return Result{Allowed: r.Allowed && other.Allowed, Reasons: reasons}
}

// Codes lists the reason codes in order
func (r Result) Codes() []ReasonCode {
	codes := make([]ReasonCode, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		codes = append(codes, reason.Code)
	}
	return codes
}

// EntrySide classifies a ledger entry
type EntrySide string

const (
	EntryBuy     EntrySide = "BUY"
	EntrySell    EntrySide = "SELL"
	EntryDeposit EntrySide = "DEPOSIT"
)

// SettlementStatus is pending until the settlement date is reached
type SettlementStatus string

const (
	StatusPending SettlementStatus = "pending"
	StatusSettled SettlementStatus = "settled"
)

// SettlementRecord is one cash movement with its settlement schedule.
// BUY amounts consume cash at trade time; SELL and DEPOSIT amounts become
// usable once settled.
type SettlementRecord struct {
	TradeID        string           `json:"trade_id"`
	AccountID      string           `json:"account_id"`
	Symbol         string           `json:"symbol"`
	Side           EntrySide        `json:"side"`
	TradeDate      time.Time        `json:"trade_date"`
	SettlementDate time.Time        `json:"settlement_date"`
	Amount         decimal.Decimal  `json:"amount"`
	Status         SettlementStatus `json:"status"`
	// FundedByUnsettled marks a BUY paid for with proceeds that had not settled yet
	FundedByUnsettled bool `json:"funded_by_unsettled"`
	// FundingSettlesOn is when those proceeds settle; selling before then is a GFV
	FundingSettlesOn *time.Time `json:"funding_settles_on,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

// DayTradeRecord is a same-day buy and sell of one symbol
type DayTradeRecord struct {
	ID         int64     `json:"id"`
	TradeID    string    `json:"trade_id"` // The closing SELL
	AccountID  string    `json:"account_id"`
	Symbol     string    `json:"symbol"`
	BuyDate    time.Time `json:"buy_date"`
	SellDate   time.Time `json:"sell_date"`
	DetectedAt time.Time `json:"detected_at"`
}

// FrequencyCounter counts recorded trades per day and per ISO week
type FrequencyCounter struct {
	AccountID   string    `json:"account_id"`
	PeriodStart time.Time `json:"period_start"` // Day the daily count belongs to
	WeekStart   time.Time `json:"week_start"`   // Monday of the week the weekly count belongs to
	DailyCount  int       `json:"daily_count"`
	WeeklyCount int       `json:"weekly_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CountsOn returns the counts that apply on today, treating stale periods as zero
func (c FrequencyCounter) CountsOn(today time.Time) (daily, weekly int) {
	if c.PeriodStart.Equal(today) {
		daily = c.DailyCount
	}
	if c.WeekStart.Equal(WeekStart(today)) {
		weekly = c.WeeklyCount
	}
	return daily, weekly
}

// Record adds one trade on tradeDate, resetting counts on a new day or week
func (c *FrequencyCounter) Record(tradeDate time.Time) {
	week := WeekStart(tradeDate)

	switch {
	case c.WeekStart.IsZero() || week.After(c.WeekStart):
		c.WeekStart = week
		c.WeeklyCount = 1
	case week.Equal(c.WeekStart):
		c.WeeklyCount++
	}

	switch {
	case c.PeriodStart.IsZero() || tradeDate.After(c.PeriodStart):
		c.PeriodStart = tradeDate
		c.DailyCount = 1
	case tradeDate.Equal(c.PeriodStart):
		c.DailyCount++
	}
}

// WeekStart returns the Monday of d's ISO week
func WeekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Request is a prospective trade to check
type Request struct {
	AccountID string           `json:"account_id"`
	Symbol    string           `json:"symbol"`
	Side      domain.TradeSide `json:"side"`
	Amount    decimal.Decimal  `json:"amount"`
	// CashAccountMode enables the PDT, GFV and settled-cash checks
	CashAccountMode bool `json:"cash_account_mode"`
}

// RecordOutcome describes what RecordExecution wrote
type RecordOutcome struct {
	Duplicate  bool              `json:"duplicate"`
	DayTrade   bool              `json:"day_trade"`
	Settlement *SettlementRecord `json:"settlement,omitempty"`
}

// Status summarises an account's compliance position
type Status struct {
	AccountID          string          `json:"account_id"`
	AsOf               string          `json:"as_of"`
	DayTradesInWindow  int             `json:"day_trades_in_window"`
	DayTradeLimit      int             `json:"day_trade_limit"`
	RemainingDayTrades int             `json:"remaining_day_trades"`
	LookbackDays       int             `json:"lookback_days"`
	SettledCash        decimal.Decimal `json:"settled_cash"`
	PendingSettlement  decimal.Decimal `json:"pending_settlement"`
	DailyCount         int             `json:"daily_count"`
	DailyLimit         int             `json:"daily_limit"`
	WeeklyCount        int             `json:"weekly_count"`
	WeeklyLimit        int             `json:"weekly_limit"`
}
