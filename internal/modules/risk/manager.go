package risk

import (
	"context"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/metrics"
	"github.com/aristath/tradeguard/internal/modules/account"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/profit_taking"
	"github.com/aristath/tradeguard/internal/modules/sizing"
	"github.com/aristath/tradeguard/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const slowValidation = 500 * time.Millisecond

// Manager is the only component the execution layer talks to.
// Validation and recording for one account are serialized; accounts never contend.
type Manager struct {
	monitor    *account.Monitor
	compliance *compliance.Manager
	sizing     *sizing.Manager
	profits    *profit_taking.Manager
	strategy   domain.Strategy
	metrics    *metrics.Collector
	locks      *utils.KeyedMutex
	log        zerolog.Logger
}

// NewManager creates the risk manager. strategy may be nil.
func NewManager(
	monitor *account.Monitor,
	complianceManager *compliance.Manager,
	sizingManager *sizing.Manager,
	profitManager *profit_taking.Manager,
	strategy domain.Strategy,
	collector *metrics.Collector,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		monitor:    monitor,
		compliance: complianceManager,
		sizing:     sizingManager,
		profits:    profitManager,
		strategy:   strategy,
		metrics:    collector,
		locks:      utils.NewKeyedMutex(),
		log:        log.With().Str("service", "risk_manager").Logger(),
	}
}

// ValidateTrade decides whether a candidate trade may execute and how large it may be.
//
// BUY: compliance checks the notional of the provisional size (confidence and
// position cap only), then MaxQuantity is the final size, capped by settled cash in
// cash-account mode. A strict failure blocks the trade whatever the final size.
// SELL: the maximum quantity is the held broker position.
func (m *Manager) ValidateTrade(ctx context.Context, req TradeRequest) (ValidationResult, error) {
	if err := req.Validate(); err != nil {
		return ValidationResult{}, err
	}

	unlock := m.locks.Lock(req.AccountID)
	defer unlock()

	timer := utils.NewTimer("validate_trade", slowValidation, m.log)
	result, err := m.validate(ctx, req)
	duration := timer.Stop()

	if err != nil {
		m.metrics.RecordValidation("error", duration)
		m.log.Error().
			Err(err).
			Str("account_id", req.AccountID).
			Str("symbol", req.Symbol).
			Msg("Trade validation failed")
		return ValidationResult{}, err
	}

	outcome := "allowed"
	if !result.Allowed {
		outcome = "blocked"
	}
	m.metrics.RecordValidation(outcome, duration)

	m.log.Info().
		Str("request_id", result.RequestID).
		Str("account_id", req.AccountID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Bool("allowed", result.Allowed).
		Int64("max_quantity", result.MaxQuantity).
		Int("reasons", len(result.Reasons)).
		Msg("Trade validated")
	return result, nil
}

func (m *Manager) validate(ctx context.Context, req TradeRequest) (ValidationResult, error) {
	state, err := m.monitor.CheckAccountBalance(ctx, req.AccountID)
	if err != nil {
		return ValidationResult{}, err
	}
	if state.Stale {
		m.log.Warn().
			Str("account_id", req.AccountID).
			Time("last_checked_at", state.LastCheckedAt).
			Msg("Validating against stale account value")
	}

	result := ValidationResult{
		RequestID:       uuid.New().String(),
		CashAccountMode: state.IsCashAccountMode,
		AccountValue:    state.Balance,
		Stale:           state.Stale,
	}

	var amount decimal.Decimal
	if req.Side.IsBuy() {
		amount, err = m.sizeBuy(ctx, req, state, &result)
	} else {
		amount, err = m.sizeSell(ctx, req, &result)
	}
	if err != nil {
		return ValidationResult{}, err
	}

	verdict, err := m.compliance.CheckCompliance(ctx, compliance.Request{
		AccountID:       req.AccountID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Amount:          amount,
		CashAccountMode: state.IsCashAccountMode,
	})
	if err != nil {
		return ValidationResult{}, err
	}

	result.Allowed = verdict.Allowed
	result.Reasons = verdict.Reasons
	return result, nil
}

// sizeBuy fills in the sizing fields from the final quantity and returns the
// provisional notional, which is what compliance checks.
func (m *Manager) sizeBuy(ctx context.Context, req TradeRequest, state account.AccountState, result *ValidationResult) (decimal.Decimal, error) {
	sizingReq := sizing.Request{
		AccountID:        req.AccountID,
		Confidence:       req.Confidence,
		AccountValue:     state.Balance,
		Price:            req.Price,
		StrategyOverride: req.StrategyOverride,
		Strategy:         m.strategy,
		CashAccountMode:  state.IsCashAccountMode,
	}

	provisional, err := m.sizing.ProvisionalSize(sizingReq)
	if err != nil {
		return decimal.Zero, err
	}
	final, err := m.sizing.CalculatePositionSize(ctx, sizingReq)
	if err != nil {
		return decimal.Zero, err
	}

	result.MaxQuantity = final.Quantity
	result.PercentageUsed = final.PercentageUsed
	result.Tier = final.Tier
	result.Notional = final.Notional
	result.Capped = final.Capped

	return provisional.Notional, nil
}

func (m *Manager) sizeSell(ctx context.Context, req TradeRequest, result *ValidationResult) (decimal.Decimal, error) {
	position, err := m.monitor.GetPosition(ctx, req.AccountID, req.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if position != nil && position.Quantity > 0 {
		result.MaxQuantity = int64(position.Quantity)
	}
	result.Notional = req.Price.Mul(decimal.NewFromInt(result.MaxQuantity))
	return result.Notional, nil
}

// RecordTradeExecution books a fill. Redelivered fills are ignored.
func (m *Manager) RecordTradeExecution(ctx context.Context, trade domain.Trade) (compliance.RecordOutcome, error) {
	if err := trade.Validate(); err != nil {
		return compliance.RecordOutcome{}, err
	}

	unlock := m.locks.Lock(trade.AccountID)
	defer unlock()

	timer := utils.NewTimer("record_trade_execution", slowValidation, m.log)
	outcome, err := m.compliance.RecordExecution(ctx, trade)
	m.metrics.ObserveRecordExecution(timer.Stop())
	if err != nil {
		m.log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("Failed to record trade execution")
		return compliance.RecordOutcome{}, err
	}
	return outcome, nil
}

// RecordCashDeposit adds settled cash to an account
func (m *Manager) RecordCashDeposit(ctx context.Context, accountID string, amount decimal.Decimal, at time.Time) (compliance.SettlementRecord, error) {
	accountID = strings.TrimSpace(accountID)

	unlock := m.locks.Lock(accountID)
	defer unlock()

	return m.compliance.RecordCashDeposit(ctx, accountID, amount, at)
}

// CreateExitPlan starts the profit ladder for an opened position
func (m *Manager) CreateExitPlan(ctx context.Context, positionID string, quantity float64, levels []profit_taking.Level) (*profit_taking.ExitPlan, error) {
	return m.profits.CreateExitPlan(ctx, positionID, quantity, levels)
}

// CheckProfitTargets evaluates the position's profit ladder
func (m *Manager) CheckProfitTargets(ctx context.Context, positionID string, unrealizedPct float64) ([]profit_taking.ExitInstruction, error) {
	return m.profits.CheckProfitTargets(ctx, positionID, unrealizedPct)
}

// EvaluateExit checks the profit ladder, then the configured strategy
func (m *Manager) EvaluateExit(ctx context.Context, positionID string, position domain.BrokerPosition, market domain.MarketData) (profit_taking.ExitOutcome, error) {
	return m.profits.EvaluateExit(ctx, positionID, position, market, m.strategy)
}

// CloseExitPlan discards the plan of a fully closed position
func (m *Manager) CloseExitPlan(ctx context.Context, positionID string) error {
	return m.profits.ClosePlan(ctx, positionID)
}

// GetAccountMode returns the account's value and cash-account flag
func (m *Manager) GetAccountMode(ctx context.Context, accountID string) (account.AccountState, error) {
	return m.monitor.CheckAccountBalance(ctx, accountID)
}

// GetComplianceStatus summarises the account's compliance position
func (m *Manager) GetComplianceStatus(ctx context.Context, accountID string) (compliance.Status, error) {
	return m.compliance.GetStatus(ctx, strings.TrimSpace(accountID))
}

// GetExitPlan returns the position's profit ladder
func (m *Manager) GetExitPlan(ctx context.Context, positionID string) (*profit_taking.ExitPlan, error) {
	return m.profits.GetPlan(ctx, positionID)
}

// ListSettlements returns the account's settlement ledger
func (m *Manager) ListSettlements(ctx context.Context, accountID string) ([]compliance.SettlementRecord, error) {
	return m.compliance.ListSettlements(ctx, strings.TrimSpace(accountID))
}

// ListDayTrades returns the day trades counting against the account today
func (m *Manager) ListDayTrades(ctx context.Context, accountID string) ([]compliance.DayTradeRecord, error) {
	return m.compliance.ListDayTrades(ctx, strings.TrimSpace(accountID))
}
