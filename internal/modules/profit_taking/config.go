package profit_taking

import (
	"fmt"
	"math"

	"github.com/aristath/tradeguard/internal/domain"
)

// Level is one profit target. ThresholdPct is the unrealized gain that fires it
// (0.05 = 5%); ExitFraction is the share of the original quantity to sell.
type Level struct {
	ThresholdPct float64 `json:"threshold_pct" yaml:"threshold_pct" msgpack:"t"`
	ExitFraction float64 `json:"exit_fraction" yaml:"exit_fraction" msgpack:"f"`
}

// Config holds profit-taking defaults
type Config struct {
	DefaultLevels  []Level
	PartialEnabled bool
}

// DefaultLevels returns 25% at +5%, 50% at +10% and the rest at +20%
func DefaultLevels() []Level {
	return []Level{
		{ThresholdPct: 0.05, ExitFraction: 0.25},
		{ThresholdPct: 0.10, ExitFraction: 0.50},
		{ThresholdPct: 0.20, ExitFraction: 1.00},
	}
}

// DefaultConfig returns the default ladder with partial exits on
func DefaultConfig() Config {
	return Config{
		DefaultLevels:  DefaultLevels(),
		PartialEnabled: true,
	}
}

// Validate checks the default ladder
func (c Config) Validate() error {
	return ValidateLevels(c.DefaultLevels)
}

// ValidateLevels requires a non-empty ladder with strictly increasing, finite,
// positive thresholds and exit fractions in (0, 1]
func ValidateLevels(levels []Level) error {
	if len(levels) == 0 {
		return domain.NewConfigurationError("profit_taking.levels", "at least one level is required")
	}

	for i, l := range levels {
		field := fmt.Sprintf("profit_taking.levels[%d]", i)
		if math.IsNaN(l.ThresholdPct) || math.IsInf(l.ThresholdPct, 0) || l.ThresholdPct <= 0 {
			return domain.NewConfigurationError(field, "threshold_pct must be positive and finite")
		}
		if math.IsNaN(l.ExitFraction) || l.ExitFraction <= 0 || l.ExitFraction > 1 {
			return domain.NewConfigurationError(field, "exit_fraction must be in (0, 1]")
		}
		if i > 0 && l.ThresholdPct <= levels[i-1].ThresholdPct {
			return domain.NewConfigurationError(field, "thresholds must be strictly increasing")
		}
	}
	return nil
}
