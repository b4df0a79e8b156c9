// Package profit_taking tracks staged exits for open positions: each plan is a
// ladder of gain thresholds, and every level fires at most once.
package profit_taking

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrPlanNotFound is returned when a position has no exit plan
var ErrPlanNotFound = errors.New("exit plan not found")

// ExitPlan is the staged exit schedule of one open position
type ExitPlan struct {
	PositionID       string    `json:"position_id"`
	OriginalQuantity float64   `json:"original_quantity"`
	ExitedQuantity   float64   `json:"exited_quantity"`
	Levels           []Level   `json:"levels"`
	LevelsHit        []int     `json:"levels_hit"` // Indices into Levels, ascending, only grows
	PartialEnabled   bool      `json:"partial_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ExitInstruction tells the caller to sell Quantity because a level fired
type ExitInstruction struct {
	PositionID   string  `json:"position_id"`
	LevelIndex   int     `json:"level_index"`
	ThresholdPct float64 `json:"threshold_pct"`
	ExitFraction float64 `json:"exit_fraction"`
	Quantity     float64 `json:"quantity"`
	// CloseAll is set on the final level: sell whatever remains
	CloseAll bool `json:"close_all"`
}

// Remaining is the quantity not yet exited
func (p *ExitPlan) Remaining() float64 {
	return math.Max(0, p.OriginalQuantity-p.ExitedQuantity)
}

// IsHit reports whether level i already fired
func (p *ExitPlan) IsHit(i int) bool {
	idx := sort.SearchInts(p.LevelsHit, i)
	return idx < len(p.LevelsHit) && p.LevelsHit[idx] == i
}

// Completed reports whether the final level fired
func (p *ExitPlan) Completed() bool {
	return len(p.Levels) > 0 && p.IsHit(len(p.Levels)-1)
}

// Evaluate fires every level not yet hit whose threshold is at or below
// unrealizedPct, lowest first, and records them as hit. Partial levels sell
// their fraction of the original quantity; the final level sells the remainder.
// With partial exits disabled only the final level can fire.
func (p *ExitPlan) Evaluate(unrealizedPct float64) []ExitInstruction {
	instructions := make([]ExitInstruction, 0)
	last := len(p.Levels) - 1

	for i, level := range p.Levels {
		if level.ThresholdPct > unrealizedPct {
			break
		}
		if p.IsHit(i) {
			continue
		}
		if i != last && !p.PartialEnabled {
			continue
		}

		remaining := p.Remaining()
		qty := remaining
		if i != last {
			qty = math.Min(level.ExitFraction*p.OriginalQuantity, remaining)
		}

		p.markHit(i)
		p.ExitedQuantity += qty
		instructions = append(instructions, ExitInstruction{
			PositionID:   p.PositionID,
			LevelIndex:   i,
			ThresholdPct: level.ThresholdPct,
			ExitFraction: level.ExitFraction,
			Quantity:     qty,
			CloseAll:     i == last,
		})
	}
	return instructions
}

func (p *ExitPlan) markHit(i int) {
	idx := sort.SearchInts(p.LevelsHit, i)
	p.LevelsHit = append(p.LevelsHit, 0)
	copy(p.LevelsHit[idx+1:], p.LevelsHit[idx:])
	p.LevelsHit[idx] = i
}

// ExitSource names what produced an exit outcome
type ExitSource string

const (
	SourceProfitTaking ExitSource = "profit_taking"
	SourceStrategy     ExitSource = "strategy"
	SourceNone         ExitSource = "none"
)
