// Package sizing converts a signal's confidence and the account's value into
// an order quantity, capped by the position limit and by settled cash.
package sizing

import (
	"context"
	"math"
	"strings"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// pctPlaces drops float noise from interpolated percentages before money math
const pctPlaces = 8

// SettledCashSource reports an account's spendable settled cash
type SettledCashSource interface {
	GetAvailableSettledCash(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// Request describes the position to size
type Request struct {
	AccountID    string
	Confidence   float64
	AccountValue decimal.Decimal
	Price        decimal.Decimal
	// StrategyOverride replaces the curve percentage; Strategy is consulted when it is nil
	StrategyOverride *float64
	Strategy         domain.Strategy
	// CashAccountMode limits the position to settled cash
	CashAccountMode bool
}

// Result is the sized position
type Result struct {
	Quantity            int64           `json:"quantity"`
	PercentageUsed      float64         `json:"percentage_used"`
	Tier                string          `json:"tier"`
	Notional            decimal.Decimal `json:"notional"`
	Overridden          bool            `json:"overridden"`
	Capped              bool            `json:"capped"`
	CappedByMax         bool            `json:"capped_by_max"`
	CappedBySettledCash bool            `json:"capped_by_settled_cash"`
}

// Manager sizes positions
type Manager struct {
	cfg  Config
	cash SettledCashSource
	log  zerolog.Logger
}

// NewManager creates a sizing manager. cash may be nil when no settled-cash cap applies.
func NewManager(cfg Config, cash SettledCashSource, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:  cfg,
		cash: cash,
		log:  log.With().Str("service", "position_sizing").Logger(),
	}, nil
}

// Config returns the active configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// ProvisionalSize sizes the position from confidence and the position cap only
func (m *Manager) ProvisionalSize(req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	confidence := ClampConfidence(req.Confidence)
	result := Result{Tier: m.cfg.Curve.Tier(confidence)}

	pct := m.cfg.Curve.Percentage(confidence)
	if override, ok := m.override(req, confidence); ok {
		pct = override
		result.Overridden = true
	}
	if pct > m.cfg.MaxPositionSizePct {
		pct = m.cfg.MaxPositionSizePct
		result.CappedByMax = true
	}
	result.PercentageUsed = pct

	if !req.AccountValue.IsPositive() || pct <= 0 {
		result.Notional = decimal.Zero
		result.Capped = result.CappedByMax
		return result, nil
	}

	budget := req.AccountValue.Mul(decimal.NewFromFloat(pct).Round(pctPlaces))
	result.Quantity = budget.Div(req.Price).Floor().IntPart()
	result.Notional = req.Price.Mul(decimal.NewFromInt(result.Quantity))
	result.Capped = result.CappedByMax
	return result, nil
}

// CalculatePositionSize sizes the position and, in cash-account mode, reduces it
// to what settled cash can pay for. The quantity is never increased by the cap.
func (m *Manager) CalculatePositionSize(ctx context.Context, req Request) (Result, error) {
	result, err := m.ProvisionalSize(req)
	if err != nil {
		return Result{}, err
	}
	if !req.CashAccountMode || m.cash == nil || result.Quantity == 0 {
		return result, nil
	}

	settled, err := m.cash.GetAvailableSettledCash(ctx, strings.TrimSpace(req.AccountID))
	if err != nil {
		return Result{}, err
	}
	if result.Notional.LessThanOrEqual(settled) {
		return result, nil
	}

	affordable := int64(0)
	if settled.IsPositive() {
		affordable = settled.Div(req.Price).Floor().IntPart()
	}
	if affordable < result.Quantity {
		m.log.Debug().
			Str("account_id", req.AccountID).
			Int64("requested", result.Quantity).
			Int64("affordable", affordable).
			Str("settled_cash", settled.StringFixed(2)).
			Msg("Position capped by settled cash")

		result.Quantity = affordable
		result.Notional = req.Price.Mul(decimal.NewFromInt(affordable))
		result.CappedBySettledCash = true
		result.Capped = true
	}
	return result, nil
}

// override returns the strategy percentage, negative values as zero.
// The caller applies the position cap.
func (m *Manager) override(req Request, confidence float64) (float64, bool) {
	var pct float64
	switch {
	case req.StrategyOverride != nil:
		pct = *req.StrategyOverride
	case req.Strategy != nil:
		var ok bool
		if pct, ok = req.Strategy.PositionSizeOverride(confidence); !ok {
			return 0, false
		}
	default:
		return 0, false
	}

	if math.IsNaN(pct) || pct < 0 {
		return 0, true
	}
	return pct, true
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.AccountID) == "" && req.CashAccountMode {
		return domain.NewValidationError("account_id", "account id is required in cash-account mode")
	}
	if !req.Price.IsPositive() {
		return domain.NewValidationError("price", "price must be positive")
	}
	return nil
}
