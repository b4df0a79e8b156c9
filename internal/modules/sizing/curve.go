package sizing

import (
	"fmt"
	"math"

	"github.com/aristath/tradeguard/internal/domain"
)

// Interpolation selects how a band maps confidence to a percentage
type Interpolation string

const (
	// InterpolationLinear moves from FromPct to ToPct as confidence goes from
	// MinConfidence to FullConfidence
	InterpolationLinear Interpolation = "linear"
	// InterpolationMidpoint uses the band's midpoint percentage regardless of confidence
	InterpolationMidpoint Interpolation = "midpoint"
)

// Band is one confidence tier
type Band struct {
	MinConfidence  float64 `json:"min_confidence" yaml:"min_confidence"`
	FullConfidence float64 `json:"full_confidence" yaml:"full_confidence"`
	FromPct        float64 `json:"from_pct" yaml:"from_pct"`
	ToPct          float64 `json:"to_pct" yaml:"to_pct"`
}

// ConfidenceCurve is the piecewise confidence -> position percentage mapping
type ConfidenceCurve struct {
	Low           Band
	Medium        Band
	High          Band
	Interpolation Interpolation
}

// DefaultCurve returns low 1%, medium 2-3%, high 3-4%
func DefaultCurve() ConfidenceCurve {
	return ConfidenceCurve{
		Low:           Band{MinConfidence: 0, FullConfidence: 0.4, FromPct: 0.01, ToPct: 0.01},
		Medium:        Band{MinConfidence: 0.4, FullConfidence: 0.7, FromPct: 0.02, ToPct: 0.03},
		High:          Band{MinConfidence: 0.7, FullConfidence: 0.85, FromPct: 0.03, ToPct: 0.04},
		Interpolation: InterpolationLinear,
	}
}

// Tier names the band a confidence falls in
func (c ConfidenceCurve) Tier(confidence float64) string {
	confidence = ClampConfidence(confidence)
	switch {
	case confidence >= c.High.MinConfidence:
		return "high"
	case confidence >= c.Medium.MinConfidence:
		return "medium"
	default:
		return "low"
	}
}

// Percentage maps a confidence score to a position percentage.
// Out-of-range confidence is clamped to [0, 1].
func (c ConfidenceCurve) Percentage(confidence float64) float64 {
	confidence = ClampConfidence(confidence)

	band := c.Low
	switch c.Tier(confidence) {
	case "high":
		band = c.High
	case "medium":
		band = c.Medium
	}

	if c.Interpolation == InterpolationMidpoint {
		return (band.FromPct + band.ToPct) / 2
	}

	span := band.FullConfidence - band.MinConfidence
	if span <= 0 {
		return band.ToPct
	}
	t := (confidence - band.MinConfidence) / span
	switch {
	case t >= 1:
		return band.ToPct
	case t <= 0:
		return band.FromPct
	}
	return band.FromPct + t*(band.ToPct-band.FromPct)
}

// Validate rejects curves that are not monotonically increasing
func (c ConfidenceCurve) Validate() error {
	if c.Interpolation != InterpolationLinear && c.Interpolation != InterpolationMidpoint {
		return domain.NewConfigurationError("sizing.interpolation",
			fmt.Sprintf("unknown interpolation %q (want linear or midpoint)", c.Interpolation))
	}

	bands := []struct {
		name string
		band Band
	}{{"low", c.Low}, {"medium", c.Medium}, {"high", c.High}}

	for i, b := range bands {
		field := "sizing.bands." + b.name
		if !inUnit(b.band.MinConfidence) || !inUnit(b.band.FullConfidence) {
			return domain.NewConfigurationError(field, "confidences must be in [0, 1]")
		}
		if b.band.FullConfidence < b.band.MinConfidence {
			return domain.NewConfigurationError(field, "full_confidence must not be below min_confidence")
		}
		if !inUnit(b.band.FromPct) || !inUnit(b.band.ToPct) {
			return domain.NewConfigurationError(field, "percentages must be in [0, 1]")
		}
		if b.band.ToPct < b.band.FromPct {
			return domain.NewConfigurationError(field, "to_pct must not be below from_pct")
		}
		if i == 0 {
			continue
		}
		prev := bands[i-1].band
		if b.band.MinConfidence < prev.MinConfidence {
			return domain.NewConfigurationError(field, "bands must be ordered by min_confidence")
		}
		if b.band.FromPct < prev.ToPct {
			return domain.NewConfigurationError(field, "percentages must not decrease across bands")
		}
	}
	return nil
}

// ClampConfidence bounds a score to [0, 1]; NaN maps to 0
func ClampConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
