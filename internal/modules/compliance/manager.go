package compliance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/metrics"
	"github.com/aristath/tradeguard/internal/modules/market_hours"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Manager owns settlement, day-trade and frequency bookkeeping and answers
// compliance questions from it. Every read and write runs in a ledger transaction.
type Manager struct {
	db          *database.DB
	settlements *SettlementRepository
	dayTrades   *DayTradeRepository
	frequency   *FrequencyRepository
	cfg         Config
	calendar    market_hours.BusinessCalendar
	clock       domain.Clock
	metrics     *metrics.Collector
	log         zerolog.Logger
}

// NewManager creates a compliance manager. Returns a ConfigurationError for invalid config.
func NewManager(
	db *database.DB,
	settlements *SettlementRepository,
	dayTrades *DayTradeRepository,
	frequency *FrequencyRepository,
	cfg Config,
	clock domain.Clock,
	collector *metrics.Collector,
	log zerolog.Logger,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}

	calendar := market_hours.NewCalendar(cfg.SkipMarketHolidays)

	m := &Manager{
		db:          db,
		settlements: settlements,
		dayTrades:   dayTrades,
		frequency:   frequency,
		cfg:         cfg,
		calendar:    calendar,
		clock:       clock,
		metrics:     collector,
		log:         log.With().Str("service", "compliance").Logger(),
	}

	m.log.Info().
		Str("calendar", calendar.Name()).
		Str("timezone", cfg.Location.String()).
		Str("pdt_mode", string(cfg.PDTMode)).
		Str("gfv_mode", string(cfg.GFVMode)).
		Msg("Compliance manager configured")
	return m, nil
}

// Config returns the active configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// Today returns the current market-local calendar date
func (m *Manager) Today() time.Time {
	return domain.DateOf(m.clock.Now(), m.cfg.Location)
}

// CalculateSettlementDate returns tradeDate plus the settlement lag in business days.
// tradeDate is read as a calendar date; its clock time is ignored.
func (m *Manager) CalculateSettlementDate(tradeDate time.Time) time.Time {
	return SettlementDate(m.calendar, tradeDate, m.cfg.SettlementDays)
}

// SettlementDate adds days business days of cal to the calendar date of tradeDate
func SettlementDate(cal market_hours.BusinessCalendar, tradeDate time.Time, days int) time.Time {
	return market_hours.AddBusinessDays(cal, domain.DateOf(tradeDate, nil), days)
}

// DetectDayTrade reports whether buy and sell form a day trade: same account,
// same symbol, executed on the same market-local calendar day
func (m *Manager) DetectDayTrade(buy, sell domain.Trade) bool {
	if !buy.Side.IsBuy() || !sell.Side.IsSell() {
		return false
	}
	if buy.AccountID != sell.AccountID {
		return false
	}
	if domain.NormalizeSymbol(buy.Symbol) != domain.NormalizeSymbol(sell.Symbol) {
		return false
	}
	return domain.DateOf(buy.ExecutedAt, m.cfg.Location).Equal(domain.DateOf(sell.ExecutedAt, m.cfg.Location))
}

// GetDayTradeCount counts day trades in the trailing lookback window ending today
func (m *Manager) GetDayTradeCount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := m.read(ctx, accountID, func(tx *sql.Tx, today time.Time) error {
		var err error
		count, err = m.dayTradeCount(ctx, tx, accountID, today)
		return err
	})
	return count, err
}

// CheckPDTCompliance blocks (strict) or flags (warning) a trade that would be a
// day trade once the window already holds the limit
func (m *Manager) CheckPDTCompliance(ctx context.Context, accountID, symbol string, side domain.TradeSide) (Result, error) {
	var result Result
	err := m.read(ctx, accountID, func(tx *sql.Tx, today time.Time) error {
		var err error
		result, err = m.checkPDT(ctx, tx, accountID, domain.NormalizeSymbol(symbol), side, today)
		return err
	})
	return result, err
}

// GetAvailableSettledCash returns settled SELL/DEPOSIT proceeds minus every BUY
func (m *Manager) GetAvailableSettledCash(ctx context.Context, accountID string) (decimal.Decimal, error) {
	settled := decimal.Zero
	err := m.read(ctx, accountID, func(tx *sql.Tx, _ time.Time) error {
		var err error
		settled, _, err = m.settlements.Balances(ctx, tx, accountID)
		return err
	})
	return settled, err
}

// CheckSettledCashAvailable reports whether settled cash covers required
func (m *Manager) CheckSettledCashAvailable(ctx context.Context, accountID string, required decimal.Decimal) (bool, error) {
	settled, err := m.GetAvailableSettledCash(ctx, accountID)
	if err != nil {
		return false, err
	}
	return required.LessThanOrEqual(settled), nil
}

// CheckTradeFrequency compares today's and this week's counts with the limits
func (m *Manager) CheckTradeFrequency(ctx context.Context, accountID string) (Result, error) {
	var result Result
	err := m.read(ctx, accountID, func(tx *sql.Tx, today time.Time) error {
		var err error
		result, err = m.checkFrequency(ctx, tx, accountID, today)
		return err
	})
	return result, err
}

// CheckGFVPrevention flags a BUY larger than settled cash and a SELL of a position
// bought with proceeds that have not settled yet
func (m *Manager) CheckGFVPrevention(ctx context.Context, accountID string, side domain.TradeSide, symbol string, amount decimal.Decimal) (Result, error) {
	var result Result
	err := m.read(ctx, accountID, func(tx *sql.Tx, today time.Time) error {
		var err error
		result, err = m.checkGFV(ctx, tx, accountID, side, domain.NormalizeSymbol(symbol), amount, today)
		return err
	})
	return result, err
}

// CheckCompliance runs every applicable check in one transaction.
// Allowed is the AND of all checks; every failing or flagged reason is kept.
// PDT, GFV and settled-cash rules only apply in cash-account mode.
func (m *Manager) CheckCompliance(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(&req); err != nil {
		return Result{}, err
	}

	result := Pass()
	err := m.read(ctx, req.AccountID, func(tx *sql.Tx, today time.Time) error {
		if req.CashAccountMode {
			pdt, err := m.checkPDT(ctx, tx, req.AccountID, req.Symbol, req.Side, today)
			if err != nil {
				return err
			}
			result = result.Merge(pdt)

			cash, err := m.checkSettledCash(ctx, tx, req.AccountID, req.Side, req.Amount)
			if err != nil {
				return err
			}
			result = result.Merge(cash)
		}

		freq, err := m.checkFrequency(ctx, tx, req.AccountID, today)
		if err != nil {
			return err
		}
		result = result.Merge(freq)

		if req.CashAccountMode {
			gfv, err := m.checkGFV(ctx, tx, req.AccountID, req.Side, req.Symbol, req.Amount, today)
			if err != nil {
				return err
			}
			result = result.Merge(gfv)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if len(result.Reasons) > 0 {
		for _, reason := range result.Reasons {
			m.metrics.RecordComplianceReason(string(reason.Code))
		}
		m.log.Warn().
			Str("account_id", req.AccountID).
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Bool("allowed", result.Allowed).
			Interface("reasons", result.Codes()).
			Msg("Compliance check flagged trade")
	}
	return result, nil
}

// RecordExecution books a fill: settlement record, day-trade detection and the
// frequency counters, in one transaction. Replaying a trade id is a no-op.
// Recording is unconditional: warning-mode violations still count.
func (m *Manager) RecordExecution(ctx context.Context, trade domain.Trade) (RecordOutcome, error) {
	if err := trade.Validate(); err != nil {
		return RecordOutcome{}, err
	}

	var outcome RecordOutcome
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		exists, err := m.settlements.Exists(ctx, tx, trade.TradeID)
		if err != nil {
			return err
		}
		if exists {
			outcome.Duplicate = true
			return nil
		}

		now := m.clock.Now()
		today := domain.DateOf(now, m.cfg.Location)
		if _, err := m.settlements.SettleDue(ctx, tx, trade.AccountID, today, now); err != nil {
			return err
		}

		tradeDate := domain.DateOf(trade.ExecutedAt, m.cfg.Location)
		rec := SettlementRecord{
			TradeID:        trade.TradeID,
			AccountID:      trade.AccountID,
			Symbol:         trade.Symbol,
			Side:           EntrySide(trade.Side),
			TradeDate:      tradeDate,
			SettlementDate: m.CalculateSettlementDate(tradeDate),
			Amount:         trade.Notional(),
			Status:         StatusPending,
			CreatedAt:      now,
		}
		if !rec.SettlementDate.After(today) {
			rec.Status = StatusSettled
			rec.SettledAt = &now
		}

		if trade.Side.IsBuy() {
			if err := m.markFunding(ctx, tx, &rec); err != nil {
				return err
			}
		}

		if err := m.settlements.Insert(ctx, tx, rec); err != nil {
			return err
		}
		outcome.Settlement = &rec

		if trade.Side.IsSell() {
			sameDayBuy, err := m.settlements.HasBuyOn(ctx, tx, trade.AccountID, trade.Symbol, tradeDate, trade.TradeID)
			if err != nil {
				return err
			}
			if sameDayBuy {
				err := m.dayTrades.Insert(ctx, tx, DayTradeRecord{
					TradeID:    trade.TradeID,
					AccountID:  trade.AccountID,
					Symbol:     trade.Symbol,
					BuyDate:    tradeDate,
					SellDate:   tradeDate,
					DetectedAt: now,
				})
				if err != nil {
					return err
				}
				outcome.DayTrade = true
			}
		}

		counter, err := m.frequency.Get(ctx, tx, trade.AccountID)
		if err != nil {
			return err
		}
		counter.Record(tradeDate)
		counter.UpdatedAt = now
		return m.frequency.Upsert(ctx, tx, counter)
	})
	if err != nil {
		return RecordOutcome{}, domain.NewDataUnavailableError("ledger", err)
	}

	if outcome.Duplicate {
		m.log.Debug().Str("trade_id", trade.TradeID).Msg("Trade already recorded, skipping duplicate")
		return outcome, nil
	}

	event := m.log.Info()
	if outcome.DayTrade {
		event = m.log.Warn()
	}
	event.
		Str("trade_id", trade.TradeID).
		Str("account_id", trade.AccountID).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Str("amount", outcome.Settlement.Amount.String()).
		Str("settlement_date", domain.FormatDate(outcome.Settlement.SettlementDate)).
		Bool("day_trade", outcome.DayTrade).
		Bool("funded_by_unsettled", outcome.Settlement.FundedByUnsettled).
		Msg("Trade execution recorded")
	return outcome, nil
}

// RecordCashDeposit adds settled cash to an account. Deposits settle immediately.
func (m *Manager) RecordCashDeposit(ctx context.Context, accountID string, amount decimal.Decimal, at time.Time) (SettlementRecord, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return SettlementRecord{}, domain.NewValidationError("account_id", "account id cannot be empty")
	}
	if !amount.IsPositive() {
		return SettlementRecord{}, domain.NewValidationError("amount", "deposit amount must be positive")
	}

	now := m.clock.Now()
	if at.IsZero() {
		at = now
	}
	date := domain.DateOf(at, m.cfg.Location)

	rec := SettlementRecord{
		TradeID:        "deposit-" + uuid.New().String(),
		AccountID:      accountID,
		Side:           EntryDeposit,
		TradeDate:      date,
		SettlementDate: date,
		Amount:         amount,
		Status:         StatusSettled,
		CreatedAt:      now,
		SettledAt:      &now,
	}

	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		return m.settlements.Insert(ctx, tx, rec)
	})
	if err != nil {
		return SettlementRecord{}, domain.NewDataUnavailableError("ledger", err)
	}

	m.log.Info().
		Str("account_id", accountID).
		Str("amount", amount.String()).
		Msg("Cash deposit recorded")
	return rec, nil
}

// GetStatus summarises the account's compliance position as of today
func (m *Manager) GetStatus(ctx context.Context, accountID string) (Status, error) {
	status := Status{
		AccountID:     accountID,
		DayTradeLimit: m.cfg.PDTLimit,
		LookbackDays:  m.cfg.LookbackDays,
		DailyLimit:    m.cfg.DailyLimit,
		WeeklyLimit:   m.cfg.WeeklyLimit,
	}

	err := m.read(ctx, accountID, func(tx *sql.Tx, today time.Time) error {
		status.AsOf = domain.FormatDate(today)

		count, err := m.dayTradeCount(ctx, tx, accountID, today)
		if err != nil {
			return err
		}
		status.DayTradesInWindow = count
		if remaining := m.cfg.PDTLimit - count; remaining > 0 {
			status.RemainingDayTrades = remaining
		}

		status.SettledCash, status.PendingSettlement, err = m.settlements.Balances(ctx, tx, accountID)
		if err != nil {
			return err
		}

		counter, err := m.frequency.Get(ctx, tx, accountID)
		if err != nil {
			return err
		}
		status.DailyCount, status.WeeklyCount = counter.CountsOn(today)
		return nil
	})
	return status, err
}

// ListSettlements returns the account's settlement ledger
func (m *Manager) ListSettlements(ctx context.Context, accountID string) ([]SettlementRecord, error) {
	var records []SettlementRecord
	err := m.read(ctx, accountID, func(tx *sql.Tx, _ time.Time) error {
		var err error
		records, err = m.settlements.ListByAccount(ctx, tx, accountID)
		return err
	})
	return records, err
}

// ListDayTrades returns the day trades inside the current lookback window
func (m *Manager) ListDayTrades(ctx context.Context, accountID string) ([]DayTradeRecord, error) {
	var records []DayTradeRecord
	err := m.read(ctx, accountID, func(tx *sql.Tx, today time.Time) error {
		var err error
		from := market_hours.TrailingWindowStart(m.calendar, today, m.cfg.LookbackDays)
		records, err = m.dayTrades.ListSince(ctx, tx, accountID, from)
		return err
	})
	return records, err
}

// SweepSettlements settles every due record across all accounts
func (m *Manager) SweepSettlements(ctx context.Context) (int64, error) {
	var settled int64
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := m.clock.Now()
		var err error
		settled, err = m.settlements.SettleDue(ctx, tx, "", domain.DateOf(now, m.cfg.Location), now)
		return err
	})
	if err != nil {
		return 0, domain.NewDataUnavailableError("ledger", err)
	}
	return settled, nil
}

// read runs fn in a transaction after applying due settlements for the account
func (m *Manager) read(ctx context.Context, accountID string, fn func(tx *sql.Tx, today time.Time) error) error {
	if strings.TrimSpace(accountID) == "" {
		return domain.NewValidationError("account_id", "account id cannot be empty")
	}

	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := m.clock.Now()
		today := domain.DateOf(now, m.cfg.Location)
		if _, err := m.settlements.SettleDue(ctx, tx, accountID, today, now); err != nil {
			return err
		}
		return fn(tx, today)
	})
	if err != nil {
		return domain.NewDataUnavailableError("ledger", err)
	}
	return nil
}

func (m *Manager) dayTradeCount(ctx context.Context, q database.Querier, accountID string, today time.Time) (int, error) {
	from := market_hours.TrailingWindowStart(m.calendar, today, m.cfg.LookbackDays)
	return m.dayTrades.CountBetween(ctx, q, accountID, from, today)
}

func (m *Manager) checkPDT(ctx context.Context, q database.Querier, accountID, symbol string, side domain.TradeSide, today time.Time) (Result, error) {
	// Only a SELL closing a same-day BUY completes a day trade
	if !side.IsSell() {
		return Pass(), nil
	}

	count, err := m.dayTradeCount(ctx, q, accountID, today)
	if err != nil {
		return Result{}, err
	}
	if count < m.cfg.PDTLimit {
		return Pass(), nil
	}

	sameDayBuy, err := m.settlements.HasBuyOn(ctx, q, accountID, symbol, today, "")
	if err != nil {
		return Result{}, err
	}
	if !sameDayBuy {
		return Pass(), nil
	}

	msg := fmt.Sprintf("%d day trades in the last %d business days; selling %s today would be day trade %d",
		count, m.cfg.LookbackDays, symbol, count+1)
	return violation(m.cfg.PDTMode, ReasonPDTLimit, ReasonPDTWarning, msg), nil
}

func (m *Manager) checkSettledCash(ctx context.Context, q database.Querier, accountID string, side domain.TradeSide, amount decimal.Decimal) (Result, error) {
	if !side.IsBuy() {
		return Pass(), nil
	}

	settled, _, err := m.settlements.Balances(ctx, q, accountID)
	if err != nil {
		return Result{}, err
	}
	if amount.LessThanOrEqual(settled) {
		return Pass(), nil
	}

	msg := fmt.Sprintf("requires %s but only %s settled cash is available", amount.StringFixed(2), settled.StringFixed(2))
	return violation(m.cfg.SettledCashMode, ReasonInsufficientSettledCash, ReasonInsufficientSettledCashWarning, msg), nil
}

func (m *Manager) checkFrequency(ctx context.Context, q database.Querier, accountID string, today time.Time) (Result, error) {
	counter, err := m.frequency.Get(ctx, q, accountID)
	if err != nil {
		return Result{}, err
	}

	daily, weekly := counter.CountsOn(today)
	switch {
	case daily >= m.cfg.DailyLimit:
		msg := fmt.Sprintf("daily trade limit reached (%d/%d)", daily, m.cfg.DailyLimit)
		return violation(m.cfg.FrequencyMode, ReasonFrequencyLimit, ReasonFrequencyWarning, msg), nil
	case weekly >= m.cfg.WeeklyLimit:
		msg := fmt.Sprintf("weekly trade limit reached (%d/%d)", weekly, m.cfg.WeeklyLimit)
		return violation(m.cfg.FrequencyMode, ReasonFrequencyLimit, ReasonFrequencyWarning, msg), nil
	}
	return Pass(), nil
}

func (m *Manager) checkGFV(ctx context.Context, q database.Querier, accountID string, side domain.TradeSide, symbol string, amount decimal.Decimal, today time.Time) (Result, error) {
	if side.IsBuy() {
		settled, _, err := m.settlements.Balances(ctx, q, accountID)
		if err != nil {
			return Result{}, err
		}
		if amount.LessThanOrEqual(settled) {
			return Pass(), nil
		}
		msg := fmt.Sprintf("buying %s with %s would use unsettled funds (settled cash %s)",
			symbol, amount.StringFixed(2), settled.StringFixed(2))
		return violation(m.cfg.GFVMode, ReasonGFV, ReasonGFVWarning, msg), nil
	}

	buys, err := m.settlements.ListBuys(ctx, q, accountID, symbol)
	if err != nil {
		return Result{}, err
	}
	for _, buy := range buys {
		if !buy.FundedByUnsettled || buy.FundingSettlesOn == nil {
			continue
		}
		if today.Before(*buy.FundingSettlesOn) {
			msg := fmt.Sprintf("%s was bought on %s with proceeds that settle on %s",
				symbol, domain.FormatDate(buy.TradeDate), domain.FormatDate(*buy.FundingSettlesOn))
			return violation(m.cfg.GFVMode, ReasonGFV, ReasonGFVWarning, msg), nil
		}
	}
	return Pass(), nil
}

// markFunding flags a BUY that settled cash alone cannot pay for
func (m *Manager) markFunding(ctx context.Context, q database.Querier, rec *SettlementRecord) error {
	settled, _, err := m.settlements.Balances(ctx, q, rec.AccountID)
	if err != nil {
		return err
	}
	if rec.Amount.LessThanOrEqual(settled) {
		return nil
	}

	rec.FundedByUnsettled = true
	latest, err := m.settlements.LatestPendingProceeds(ctx, q, rec.AccountID)
	if err != nil {
		return err
	}
	if latest != nil {
		rec.FundingSettlesOn = latest
	} else {
		settles := rec.SettlementDate
		rec.FundingSettlesOn = &settles
	}
	return nil
}

func validateRequest(req *Request) error {
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AccountID == "" {
		return domain.NewValidationError("account_id", "account id cannot be empty")
	}
	req.Symbol = domain.NormalizeSymbol(req.Symbol)
	if req.Symbol == "" {
		return domain.NewValidationError("symbol", "symbol cannot be empty")
	}
	if !req.Side.IsValid() {
		return domain.NewValidationError("side", fmt.Sprintf("invalid trade side: %s", req.Side))
	}
	if req.Amount.IsNegative() {
		return domain.NewValidationError("amount", "amount must not be negative")
	}
	return nil
}
