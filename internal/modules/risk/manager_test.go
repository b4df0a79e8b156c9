package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/metrics"
	"github.com/aristath/tradeguard/internal/modules/account"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/profit_taking"
	"github.com/aristath/tradeguard/internal/modules/sizing"
	testingpkg "github.com/aristath/tradeguard/internal/testing"
)

const acc = "ACC-1"

type stack struct {
	risk     *Manager
	broker   *testingpkg.MockBrokerClient
	clock    *testingpkg.ManualClock
	strategy *testingpkg.MockStrategy
	metrics  *metrics.Collector
}

func newStack(t *testing.T, opts ...func(*compliance.Config)) *stack {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t)
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	clock := testingpkg.NewManualClock(testingpkg.MarketTime(2025, 3, 10))
	broker := testingpkg.NewMockBrokerClient()
	collector := metrics.NewCollector(log)
	strategy := testingpkg.NewMockStrategy()

	monitor, err := account.NewMonitor(broker, db, account.NewRepository(log), account.DefaultConfig(), clock, collector, log)
	require.NoError(t, err)

	complianceCfg := compliance.DefaultConfig()
	complianceCfg.Location = testingpkg.NewYork()
	for _, opt := range opts {
		opt(&complianceCfg)
	}
	complianceManager, err := compliance.NewManager(db,
		compliance.NewSettlementRepository(log),
		compliance.NewDayTradeRepository(log),
		compliance.NewFrequencyRepository(log),
		complianceCfg, clock, collector, log)
	require.NoError(t, err)

	sizingManager, err := sizing.NewManager(sizing.DefaultConfig(), complianceManager, log)
	require.NoError(t, err)

	profitManager, err := profit_taking.NewManager(db, profit_taking.NewRepository(log), profit_taking.DefaultConfig(), clock, collector, log)
	require.NoError(t, err)

	return &stack{
		risk:     NewManager(monitor, complianceManager, sizingManager, profitManager, strategy, collector, log),
		broker:   broker,
		clock:    clock,
		strategy: strategy,
		metrics:  collector,
	}
}

func (s *stack) deposit(t *testing.T, amount string) {
	t.Helper()
	_, err := s.risk.RecordCashDeposit(context.Background(), acc, decimal.RequireFromString(amount), time.Time{})
	require.NoError(t, err)
}

func (s *stack) fill(t *testing.T, id string, side domain.TradeSide, symbol string, qty, price float64, at time.Time) compliance.RecordOutcome {
	t.Helper()
	outcome, err := s.risk.RecordTradeExecution(context.Background(),
		testingpkg.NewTradeFixture(id, acc, symbol, side, qty, price, at))
	require.NoError(t, err)
	return outcome
}

func buyRequest(confidence float64, price string) TradeRequest {
	return TradeRequest{
		AccountID:  acc,
		Symbol:     "AAPL",
		Side:       domain.TradeSideBuy,
		Confidence: confidence,
		Price:      decimal.RequireFromString(price),
	}
}

func TestValidateTrade_CashAccountSizing(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "20000"))
	s.deposit(t, "5000")

	result, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.85, "50"))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Reasons)
	assert.True(t, result.CashAccountMode)
	assert.Equal(t, int64(16), result.MaxQuantity)
	assert.InDelta(t, 0.04, result.PercentageUsed, 1e-12)
	assert.Equal(t, "high", result.Tier)
	assert.Equal(t, "800", result.Notional.String())
	assert.NotEmpty(t, result.RequestID)
	assert.False(t, result.Stale)
}

func reasonCodes(reasons []compliance.Reason) []compliance.ReasonCode {
	codes := make([]compliance.ReasonCode, 0, len(reasons))
	for _, r := range reasons {
		codes = append(codes, r.Code)
	}
	return codes
}

func TestValidateTrade_CappedBySettledCash(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "20000"))
	s.deposit(t, "620")

	// 16 shares ($800) provisionally; settled cash pays for 12
	result, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.85, "50"))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(12), result.MaxQuantity)
	assert.True(t, result.Capped)
	assert.Equal(t, "600", result.Notional.String())
	assert.Equal(t, []compliance.ReasonCode{compliance.ReasonInsufficientSettledCash, compliance.ReasonGFV}, reasonCodes(result.Reasons))
}

func TestValidateTrade_CappedBySettledCashWarningMode(t *testing.T) {
	s := newStack(t, func(cfg *compliance.Config) {
		cfg.SettledCashMode = compliance.ModeWarning
		cfg.GFVMode = compliance.ModeWarning
	})
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "20000"))
	s.deposit(t, "620")

	result, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.85, "50"))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(12), result.MaxQuantity)
	assert.Equal(t, []compliance.ReasonCode{compliance.ReasonInsufficientSettledCashWarning, compliance.ReasonGFVWarning}, reasonCodes(result.Reasons))
}

func TestValidateTrade_NoSettledCashBlocksBuy(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "20000"))

	result, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.85, "50"))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), result.MaxQuantity)
	assert.Equal(t, []compliance.ReasonCode{compliance.ReasonInsufficientSettledCash, compliance.ReasonGFV}, reasonCodes(result.Reasons))
}

func TestValidateTrade_StandardAccountSkipsCashRules(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "100000"))

	result, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.85, "100"))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.False(t, result.CashAccountMode)
	assert.Equal(t, int64(40), result.MaxQuantity)
	assert.False(t, result.Capped)
}

func TestValidateTrade_StrategyOverride(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "100000"))
	s.strategy.SetOverride(0.08)

	result, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.1, "100"))
	require.NoError(t, err)
	assert.Equal(t, int64(80), result.MaxQuantity)

	override := 0.02
	req := buyRequest(0.1, "100")
	req.StrategyOverride = &override
	result, err = s.risk.ValidateTrade(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.MaxQuantity, "request override wins over the strategy")
}

func TestValidateTrade_PDTLimitScenario(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "15000"))
	s.deposit(t, "10000")

	for i, day := range []int{10, 11, 12} {
		at := testingpkg.MarketTime(2025, 3, day)
		s.clock.Set(at)
		symbol := fmt.Sprintf("SYM%d", i)
		s.fill(t, fmt.Sprintf("B%d", i), domain.TradeSideBuy, symbol, 1, 10, at)
		sell := s.fill(t, fmt.Sprintf("S%d", i), domain.TradeSideSell, symbol, 1, 11, at.Add(time.Hour))
		assert.True(t, sell.DayTrade)
	}

	thursday := testingpkg.MarketTime(2025, 3, 13)
	s.clock.Set(thursday)
	s.fill(t, "B-AAPL", domain.TradeSideBuy, "AAPL", 5, 100, thursday)
	s.broker.SetPositions(acc, []domain.BrokerPosition{{Symbol: "AAPL", Quantity: 5, AvgPrice: 100}})

	req := buyRequest(0.5, "101")
	req.Side = domain.TradeSideSell
	result, err := s.risk.ValidateTrade(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, compliance.ReasonPDTLimit, result.Reasons[0].Code)
	assert.Equal(t, int64(5), result.MaxQuantity)

	status, err := s.risk.GetComplianceStatus(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, 3, status.DayTradesInWindow)
	assert.Equal(t, 0, status.RemainingDayTrades)
}

func TestValidateTrade_SellWithoutPosition(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "100000"))

	req := buyRequest(0.5, "10")
	req.Side = domain.TradeSideSell
	result, err := s.risk.ValidateTrade(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.MaxQuantity)
}

func TestValidateTrade_BrokerUnavailable(t *testing.T) {
	s := newStack(t)
	s.broker.SetError(errors.New("connection refused"))

	_, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.5, "10"))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestValidateTrade_StaleAccountValue(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "100000"))
	_, err := s.risk.GetAccountMode(context.Background(), acc)
	require.NoError(t, err)

	s.clock.Advance(10 * time.Minute)
	s.broker.SetError(errors.New("connection refused"))

	result, err := s.risk.ValidateTrade(context.Background(), buyRequest(0.5, "10"))
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.True(t, result.Allowed)
}

func TestValidateTrade_InvalidRequests(t *testing.T) {
	s := newStack(t)
	nan := 0.0

	tests := []struct {
		name   string
		mutate func(*TradeRequest)
	}{
		{"empty account", func(r *TradeRequest) { r.AccountID = "" }},
		{"empty symbol", func(r *TradeRequest) { r.Symbol = "  " }},
		{"bad side", func(r *TradeRequest) { r.Side = "SHORT" }},
		{"zero price", func(r *TradeRequest) { r.Price = decimal.Zero }},
		{"negative price", func(r *TradeRequest) { r.Price = decimal.NewFromInt(-3) }},
		{"nan confidence", func(r *TradeRequest) { r.Confidence = nan / nan }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := buyRequest(0.5, "10")
			tt.mutate(&req)
			_, err := s.risk.ValidateTrade(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, 0, s.broker.Calls(), "invalid requests never reach the broker")
}

func TestRecordTradeExecution_Idempotent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	trade := testingpkg.NewTradeFixture("FILL-1", acc, "AAPL", domain.TradeSideBuy, 3, 10, testingpkg.MarketTime(2025, 3, 10))

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		duplicates int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := s.risk.RecordTradeExecution(ctx, trade)
			assert.NoError(t, err)
			if outcome.Duplicate {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, duplicates)

	status, err := s.risk.GetComplianceStatus(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, 1, status.DailyCount)
}

func TestRecordTradeExecution_PaddedAccountID(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.deposit(t, "1000")

	at := testingpkg.MarketTime(2025, 3, 10)
	_, err := s.risk.RecordTradeExecution(ctx,
		testingpkg.NewTradeFixture("FILL-1", " "+acc+" ", "AAPL", domain.TradeSideBuy, 3, 100, at))
	require.NoError(t, err)

	status, err := s.risk.GetComplianceStatus(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, 1, status.DailyCount)
	assert.True(t, status.SettledCash.Equal(decimal.NewFromInt(700)), "settled cash %s", status.SettledCash)
}

func TestRecordTradeExecution_Invalid(t *testing.T) {
	s := newStack(t)
	trade := testingpkg.NewTradeFixture("", acc, "AAPL", domain.TradeSideBuy, 3, 10, testingpkg.MarketTime(2025, 3, 10))

	_, err := s.risk.RecordTradeExecution(context.Background(), trade)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetAccountMode(t *testing.T) {
	s := newStack(t)
	s.broker.SetSummary(testingpkg.NewSummaryFixture(acc, "24999.99"))

	state, err := s.risk.GetAccountMode(context.Background(), acc)
	require.NoError(t, err)
	assert.True(t, state.IsCashAccountMode)
	assert.Equal(t, "cash", state.Mode())
}

func TestProfitTargetsThroughRiskManager(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.risk.CreateExitPlan(ctx, "POS-1", 100, nil)
	require.NoError(t, err)

	out, err := s.risk.CheckProfitTargets(ctx, "POS-1", 0.11)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	s.strategy.SetExitDecision(domain.ExitDecision{ShouldExit: true, Fraction: 1, Reason: "stop"})
	outcome, err := s.risk.EvaluateExit(ctx, "POS-1",
		domain.BrokerPosition{Symbol: "AAPL", Quantity: 25, AvgPrice: 100},
		domain.MarketData{Symbol: "AAPL", Price: 101})
	require.NoError(t, err)
	assert.Equal(t, profit_taking.SourceStrategy, outcome.Source)

	require.NoError(t, s.risk.CloseExitPlan(ctx, "POS-1"))
	_, err = s.risk.CheckProfitTargets(ctx, "POS-1", 0.5)
	assert.ErrorIs(t, err, profit_taking.ErrPlanNotFound)
}
