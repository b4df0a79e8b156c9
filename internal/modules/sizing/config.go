package sizing

import "github.com/aristath/tradeguard/internal/domain"

// Config controls position sizing
type Config struct {
	// MaxPositionSizePct caps every position, overrides included (0.10 = 10%)
	MaxPositionSizePct float64
	Curve              ConfidenceCurve
}

// DefaultConfig returns a 10% cap with the default curve
func DefaultConfig() Config {
	return Config{
		MaxPositionSizePct: 0.10,
		Curve:              DefaultCurve(),
	}
}

// Validate checks the cap and the curve
func (c Config) Validate() error {
	if !inUnit(c.MaxPositionSizePct) || c.MaxPositionSizePct == 0 {
		return domain.NewConfigurationError("sizing.max_position_size_pct", "must be in (0, 1]")
	}
	if c.Curve.High.ToPct > c.MaxPositionSizePct {
		return domain.NewConfigurationError("sizing.bands.high", "to_pct exceeds max_position_size_pct")
	}
	return c.Curve.Validate()
}
