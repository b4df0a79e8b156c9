package profit_taking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/metrics"
	"github.com/aristath/tradeguard/internal/utils"
	"github.com/rs/zerolog"
)

// Manager owns exit plans. Each plan is read, evaluated and written back in one
// transaction while holding the position's lock.
type Manager struct {
	db      *database.DB
	repo    *Repository
	cfg     Config
	clock   domain.Clock
	metrics *metrics.Collector
	locks   *utils.KeyedMutex
	log     zerolog.Logger
}

// ExitOutcome is the combined verdict of the profit ladder and the strategy
type ExitOutcome struct {
	Source       ExitSource           `json:"source"`
	Instructions []ExitInstruction    `json:"instructions"`
	Strategy     *domain.ExitDecision `json:"strategy,omitempty"`
}

// NewManager creates a profit-taking manager. Returns a ConfigurationError for invalid config.
func NewManager(db *database.DB, repo *Repository, cfg Config, clock domain.Clock, collector *metrics.Collector, log zerolog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Manager{
		db:      db,
		repo:    repo,
		cfg:     cfg,
		clock:   clock,
		metrics: collector,
		locks:   utils.NewKeyedMutex(),
		log:     log.With().Str("service", "profit_taking").Logger(),
	}, nil
}

// CreateExitPlan stores a plan for a newly opened position. Nil levels use the
// configured default ladder. An existing plan for the position is returned unchanged.
func (m *Manager) CreateExitPlan(ctx context.Context, positionID string, originalQuantity float64, levels []Level) (*ExitPlan, error) {
	positionID = strings.TrimSpace(positionID)
	if positionID == "" {
		return nil, domain.NewValidationError("position_id", "position id cannot be empty")
	}
	if originalQuantity <= 0 || math.IsNaN(originalQuantity) || math.IsInf(originalQuantity, 0) {
		return nil, domain.NewValidationError("original_quantity", "original quantity must be positive")
	}
	if levels == nil {
		levels = m.cfg.DefaultLevels
	}
	if err := ValidateLevels(levels); err != nil {
		return nil, domain.NewValidationError("levels", err.Error())
	}

	unlock := m.locks.Lock(positionID)
	defer unlock()

	now := m.clock.Now()
	plan := &ExitPlan{
		PositionID:       positionID,
		OriginalQuantity: originalQuantity,
		Levels:           append([]Level(nil), levels...),
		LevelsHit:        []int{},
		PartialEnabled:   m.cfg.PartialEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := m.repo.Get(ctx, tx, positionID)
		if err != nil {
			return err
		}
		if existing != nil {
			plan = existing
			return nil
		}
		return m.repo.Insert(ctx, tx, plan)
	})
	if err != nil {
		return nil, domain.NewDataUnavailableError("ledger", err)
	}

	m.log.Info().
		Str("position_id", positionID).
		Float64("original_quantity", plan.OriginalQuantity).
		Int("levels", len(plan.Levels)).
		Bool("partial_enabled", plan.PartialEnabled).
		Msg("Exit plan ready")
	return plan, nil
}

// CheckProfitTargets fires the plan's levels reached at unrealizedPct (0.06 = 6%).
// Levels already hit never fire again, even after a retrace.
func (m *Manager) CheckProfitTargets(ctx context.Context, positionID string, unrealizedPct float64) ([]ExitInstruction, error) {
	positionID = strings.TrimSpace(positionID)
	if positionID == "" {
		return nil, domain.NewValidationError("position_id", "position id cannot be empty")
	}
	if math.IsNaN(unrealizedPct) || math.IsInf(unrealizedPct, 0) {
		return nil, domain.NewValidationError("unrealized_pct", "unrealized percentage must be finite")
	}

	unlock := m.locks.Lock(positionID)
	defer unlock()

	var instructions []ExitInstruction
	found := true
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		plan, err := m.repo.Get(ctx, tx, positionID)
		if err != nil {
			return err
		}
		if plan == nil {
			found = false
			return nil
		}

		instructions = plan.Evaluate(unrealizedPct)
		if len(instructions) == 0 {
			return nil
		}
		plan.UpdatedAt = m.clock.Now()
		return m.repo.UpdateProgress(ctx, tx, plan)
	})
	if err != nil {
		return nil, domain.NewDataUnavailableError("ledger", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, positionID)
	}

	for _, ins := range instructions {
		m.metrics.RecordProfitExit(strconv.Itoa(ins.LevelIndex))
		m.log.Info().
			Str("position_id", positionID).
			Int("level", ins.LevelIndex).
			Float64("threshold_pct", ins.ThresholdPct).
			Float64("unrealized_pct", unrealizedPct).
			Float64("quantity", ins.Quantity).
			Bool("close_all", ins.CloseAll).
			Msg("Profit level reached")
	}
	return instructions, nil
}

// EvaluateExit checks the profit ladder first and consults the strategy only
// when no level fired. The unrealized gain comes from the position's average
// price and the market price.
func (m *Manager) EvaluateExit(ctx context.Context, positionID string, position domain.BrokerPosition, market domain.MarketData, strategy domain.Strategy) (ExitOutcome, error) {
	if market.Price > 0 {
		position.CurrentPrice = market.Price
	}

	instructions, err := m.CheckProfitTargets(ctx, positionID, position.UnrealizedPct())
	if err != nil {
		return ExitOutcome{}, err
	}
	if len(instructions) > 0 {
		return ExitOutcome{Source: SourceProfitTaking, Instructions: instructions}, nil
	}

	outcome := ExitOutcome{Source: SourceNone, Instructions: instructions}
	if strategy == nil {
		return outcome, nil
	}

	decision, err := strategy.ShouldExit(ctx, position, market)
	if err != nil {
		return ExitOutcome{}, fmt.Errorf("failed to consult strategy exit: %w", err)
	}
	outcome.Strategy = &decision
	if decision.ShouldExit {
		outcome.Source = SourceStrategy
	}
	return outcome, nil
}

// GetPlan returns the position's plan
func (m *Manager) GetPlan(ctx context.Context, positionID string) (*ExitPlan, error) {
	var plan *ExitPlan
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		plan, err = m.repo.Get(ctx, tx, strings.TrimSpace(positionID))
		return err
	})
	if err != nil {
		return nil, domain.NewDataUnavailableError("ledger", err)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, positionID)
	}
	return plan, nil
}

// ClosePlan discards the plan of a fully closed position
func (m *Manager) ClosePlan(ctx context.Context, positionID string) error {
	positionID = strings.TrimSpace(positionID)

	unlock := m.locks.Lock(positionID)
	defer unlock()

	found := true
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := m.repo.Delete(ctx, tx, positionID)
		if errors.Is(err, ErrPlanNotFound) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return domain.NewDataUnavailableError("ledger", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, positionID)
	}

	m.log.Info().Str("position_id", positionID).Msg("Exit plan closed")
	return nil
}

// OpenPlans returns the position ids with a plan
func (m *Manager) OpenPlans(ctx context.Context) ([]string, error) {
	ids, err := m.repo.ListIDs(ctx, m.db.Conn())
	if err != nil {
		return nil, domain.NewDataUnavailableError("ledger", err)
	}
	return ids, nil
}
