package sizing

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeguard/internal/domain"
	testingpkg "github.com/aristath/tradeguard/internal/testing"
)

type stubCash struct {
	settled decimal.Decimal
	err     error
	calls   int
}

func (s *stubCash) GetAvailableSettledCash(_ context.Context, _ string) (decimal.Decimal, error) {
	s.calls++
	return s.settled, s.err
}

func newTestManager(t *testing.T, cash SettledCashSource) *Manager {
	t.Helper()
	m, err := NewManager(DefaultConfig(), cash, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestNewManager_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSizePct = -0.1

	_, err := NewManager(cfg, nil, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestCalculatePositionSize_HighConfidenceScenario(t *testing.T) {
	cash := &stubCash{settled: dec("5000")}
	m := newTestManager(t, cash)

	result, err := m.CalculatePositionSize(context.Background(), Request{
		AccountID:       "ACC-1",
		Confidence:      0.85,
		AccountValue:    dec("20000"),
		Price:           dec("50"),
		CashAccountMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(16), result.Quantity)
	assert.InDelta(t, 0.04, result.PercentageUsed, 1e-12)
	assert.Equal(t, "high", result.Tier)
	assert.Equal(t, "800", result.Notional.String())
	assert.False(t, result.Capped)
}

func TestCalculatePositionSize_CappedBySettledCash(t *testing.T) {
	cash := &stubCash{settled: dec("620")}
	m := newTestManager(t, cash)

	result, err := m.CalculatePositionSize(context.Background(), Request{
		AccountID:       "ACC-1",
		Confidence:      0.85,
		AccountValue:    dec("20000"),
		Price:           dec("50"),
		CashAccountMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), result.Quantity)
	assert.True(t, result.Capped)
	assert.True(t, result.CappedBySettledCash)
	assert.False(t, result.CappedByMax)
	assert.Equal(t, "600", result.Notional.String())
}

func TestCalculatePositionSize_NoSettledCash(t *testing.T) {
	m := newTestManager(t, &stubCash{settled: dec("-150")})

	result, err := m.CalculatePositionSize(context.Background(), Request{
		AccountID:       "ACC-1",
		Confidence:      0.5,
		AccountValue:    dec("10000"),
		Price:           dec("10"),
		CashAccountMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Quantity)
	assert.True(t, result.CappedBySettledCash)
}

func TestCalculatePositionSize_StandardAccountIgnoresSettledCash(t *testing.T) {
	cash := &stubCash{settled: dec("1")}
	m := newTestManager(t, cash)

	result, err := m.CalculatePositionSize(context.Background(), Request{
		AccountID:    "ACC-1",
		Confidence:   0.85,
		AccountValue: dec("100000"),
		Price:        dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), result.Quantity)
	assert.Equal(t, 0, cash.calls)
}

func TestCalculatePositionSize_SettledCashError(t *testing.T) {
	unavailable := domain.NewDataUnavailableError("ledger", errors.New("disk I/O error"))
	m := newTestManager(t, &stubCash{err: unavailable})

	_, err := m.CalculatePositionSize(context.Background(), Request{
		AccountID:       "ACC-1",
		Confidence:      0.85,
		AccountValue:    dec("20000"),
		Price:           dec("50"),
		CashAccountMode: true,
	})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestProvisionalSize_EdgeCases(t *testing.T) {
	m := newTestManager(t, nil)

	result, err := m.ProvisionalSize(Request{Confidence: 0.9, AccountValue: decimal.Zero, Price: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Quantity)

	result, err = m.ProvisionalSize(Request{Confidence: 0.9, AccountValue: dec("-500"), Price: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Quantity)

	// Out-of-range confidence clamps instead of failing
	result, err = m.ProvisionalSize(Request{Confidence: 1.7, AccountValue: dec("10000"), Price: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, int64(40), result.Quantity)

	result, err = m.ProvisionalSize(Request{Confidence: -2, AccountValue: dec("10000"), Price: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Quantity)

	for _, price := range []string{"0", "-5"} {
		_, err = m.ProvisionalSize(Request{Confidence: 0.5, AccountValue: dec("10000"), Price: dec(price)})
		assert.ErrorIs(t, err, domain.ErrValidation, "price %s", price)
	}
}

func TestProvisionalSize_StrategyOverride(t *testing.T) {
	m := newTestManager(t, nil)
	base := Request{Confidence: 0.2, AccountValue: dec("10000"), Price: dec("10")}

	req := base
	req.StrategyOverride = floatPtr(0.05)
	result, err := m.ProvisionalSize(req)
	require.NoError(t, err)
	assert.True(t, result.Overridden)
	assert.Equal(t, int64(50), result.Quantity)

	req.StrategyOverride = floatPtr(0.5)
	result, err = m.ProvisionalSize(req)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, result.PercentageUsed, 1e-12)
	assert.True(t, result.CappedByMax)
	assert.Equal(t, int64(100), result.Quantity)

	req.StrategyOverride = floatPtr(-0.2)
	result, err = m.ProvisionalSize(req)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Quantity)

	strategy := testingpkg.NewMockStrategy()
	strategy.SetOverride(0.07)
	req = base
	req.Strategy = strategy
	result, err = m.ProvisionalSize(req)
	require.NoError(t, err)
	assert.InDelta(t, 0.07, result.PercentageUsed, 1e-12)
	assert.Equal(t, int64(70), result.Quantity)

	// A strategy without an override leaves the curve in charge
	req.Strategy = testingpkg.NewMockStrategy()
	result, err = m.ProvisionalSize(req)
	require.NoError(t, err)
	assert.False(t, result.Overridden)
	assert.Equal(t, int64(10), result.Quantity)
}

func TestCalculatePositionSize_NeverExceedsCap(t *testing.T) {
	m := newTestManager(t, &stubCash{settled: dec("1000000")})
	ctx := context.Background()

	values := []string{"1", "999.99", "20000", "24999.99", "250000", "1234567.89"}
	prices := []string{"0.37", "1", "13.13", "50", "499.5", "3100"}
	overrides := []*float64{nil, floatPtr(0.02), floatPtr(0.25), floatPtr(1)}

	for _, v := range values {
		for _, p := range prices {
			for _, o := range overrides {
				for c := 0.0; c <= 1.0; c += 0.05 {
					req := Request{
						AccountID:        "ACC-1",
						Confidence:       c,
						AccountValue:     dec(v),
						Price:            dec(p),
						StrategyOverride: o,
						CashAccountMode:  true,
					}
					result, err := m.CalculatePositionSize(ctx, req)
					require.NoError(t, err)

					limit := dec(v).Mul(decimal.NewFromFloat(m.Config().MaxPositionSizePct))
					notional := dec(p).Mul(decimal.NewFromInt(result.Quantity))
					assert.True(t, notional.LessThanOrEqual(limit), "value=%s price=%s conf=%v qty=%d", v, p, c, result.Quantity)
					assert.GreaterOrEqual(t, result.Quantity, int64(0))
				}
			}
		}
	}
}

func TestCalculatePositionSize_CapNeverIncreasesQuantity(t *testing.T) {
	ctx := context.Background()
	req := Request{AccountID: "ACC-1", Confidence: 0.6, AccountValue: dec("50000"), Price: dec("25"), CashAccountMode: true}

	provisional, err := newTestManager(t, nil).ProvisionalSize(req)
	require.NoError(t, err)

	for _, settled := range []string{"0", "100", "999", "1250", "1000000"} {
		m := newTestManager(t, &stubCash{settled: dec(settled)})
		result, err := m.CalculatePositionSize(ctx, req)
		require.NoError(t, err)
		assert.LessOrEqual(t, result.Quantity, provisional.Quantity, "settled %s", settled)
	}
}
