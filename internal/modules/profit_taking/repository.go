package profit_taking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository handles profit_exit_plans operations.
// Levels and levels hit are stored as msgpack blobs.
type Repository struct {
	log zerolog.Logger
}

// NewRepository creates a new exit plan repository
func NewRepository(log zerolog.Logger) *Repository {
	return &Repository{
		log: log.With().Str("repo", "profit_exit_plan").Logger(),
	}
}

// Get returns the plan for a position, or nil if none exists
func (r *Repository) Get(ctx context.Context, q database.Querier, positionID string) (*ExitPlan, error) {
	row := q.QueryRowContext(ctx, `
		SELECT position_id, original_quantity, exited_quantity, levels, levels_hit,
		       partial_enabled, created_at, updated_at
		FROM profit_exit_plans
		WHERE position_id = ?
	`, positionID)

	var plan ExitPlan
	var levels, levelsHit []byte
	var partial int
	var createdAt, updatedAt int64

	err := row.Scan(&plan.PositionID, &plan.OriginalQuantity, &plan.ExitedQuantity,
		&levels, &levelsHit, &partial, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exit plan: %w", err)
	}

	if err := msgpack.Unmarshal(levels, &plan.Levels); err != nil {
		return nil, fmt.Errorf("failed to decode exit plan levels: %w", err)
	}
	if err := msgpack.Unmarshal(levelsHit, &plan.LevelsHit); err != nil {
		return nil, fmt.Errorf("failed to decode exit plan levels hit: %w", err)
	}
	if plan.LevelsHit == nil {
		plan.LevelsHit = []int{}
	}
	plan.PartialEnabled = partial != 0
	plan.CreatedAt = time.Unix(createdAt, 0).UTC()
	plan.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &plan, nil
}

// Insert stores a new plan
func (r *Repository) Insert(ctx context.Context, q database.Querier, plan *ExitPlan) error {
	levels, levelsHit, err := encodePlan(plan)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO profit_exit_plans
		(position_id, original_quantity, exited_quantity, levels, levels_hit, partial_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		plan.PositionID,
		plan.OriginalQuantity,
		plan.ExitedQuantity,
		levels,
		levelsHit,
		boolToInt(plan.PartialEnabled),
		plan.CreatedAt.Unix(),
		plan.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert exit plan: %w", err)
	}

	r.log.Debug().
		Str("position_id", plan.PositionID).
		Int("levels", len(plan.Levels)).
		Msg("Exit plan created")
	return nil
}

// UpdateProgress persists the hit levels and exited quantity
func (r *Repository) UpdateProgress(ctx context.Context, q database.Querier, plan *ExitPlan) error {
	levelsHit, err := msgpack.Marshal(plan.LevelsHit)
	if err != nil {
		return fmt.Errorf("failed to encode exit plan levels hit: %w", err)
	}

	result, err := q.ExecContext(ctx, `
		UPDATE profit_exit_plans
		SET exited_quantity = ?, levels_hit = ?, updated_at = ?
		WHERE position_id = ?
	`, plan.ExitedQuantity, levelsHit, plan.UpdatedAt.Unix(), plan.PositionID)
	if err != nil {
		return fmt.Errorf("failed to update exit plan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// Delete removes a plan. Deleting a missing plan returns ErrPlanNotFound.
func (r *Repository) Delete(ctx context.Context, q database.Querier, positionID string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM profit_exit_plans WHERE position_id = ?`, positionID)
	if err != nil {
		return fmt.Errorf("failed to delete exit plan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// ListIDs returns the position ids that have a plan
func (r *Repository) ListIDs(ctx context.Context, q database.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT position_id FROM profit_exit_plans ORDER BY position_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list exit plans: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan exit plan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exit plans: %w", err)
	}
	return ids, nil
}

func encodePlan(plan *ExitPlan) (levels, levelsHit []byte, err error) {
	levels, err = msgpack.Marshal(plan.Levels)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode exit plan levels: %w", err)
	}
	hit := plan.LevelsHit
	if hit == nil {
		hit = []int{}
	}
	levelsHit, err = msgpack.Marshal(hit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode exit plan levels hit: %w", err)
	}
	return levels, levelsHit, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
