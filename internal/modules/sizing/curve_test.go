package sizing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradeguard/internal/domain"
)

func TestConfidenceCurve_Linear(t *testing.T) {
	curve := DefaultCurve()

	tests := []struct {
		confidence float64
		tier       string
		expected   float64
	}{
		{0, "low", 0.01},
		{0.39, "low", 0.01},
		{0.4, "medium", 0.02},
		{0.55, "medium", 0.025},
		{0.7, "high", 0.03},
		{0.775, "high", 0.035},
		{0.85, "high", 0.04},
		{0.99, "high", 0.04},
		{-3, "low", 0.01},
		{7, "high", 0.04},
		{math.NaN(), "low", 0.01},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.tier, curve.Tier(tt.confidence), "tier for %v", tt.confidence)
		assert.InDelta(t, tt.expected, curve.Percentage(tt.confidence), 1e-12, "percentage for %v", tt.confidence)
	}
}

func TestConfidenceCurve_Midpoint(t *testing.T) {
	curve := DefaultCurve()
	curve.Interpolation = InterpolationMidpoint

	assert.InDelta(t, 0.01, curve.Percentage(0.2), 1e-12)
	assert.InDelta(t, 0.025, curve.Percentage(0.41), 1e-12)
	assert.InDelta(t, 0.025, curve.Percentage(0.69), 1e-12)
	assert.InDelta(t, 0.035, curve.Percentage(0.9), 1e-12)
}

func TestConfidenceCurve_Monotonic(t *testing.T) {
	for _, interp := range []Interpolation{InterpolationLinear, InterpolationMidpoint} {
		curve := DefaultCurve()
		curve.Interpolation = interp

		prev := curve.Percentage(0)
		for c := 0.0; c <= 1.0; c += 0.005 {
			pct := curve.Percentage(c)
			assert.GreaterOrEqual(t, pct, prev, "%s curve decreased at %v", interp, c)
			prev = pct
		}
	}
}

func TestConfidenceCurve_Validate(t *testing.T) {
	require.NoError(t, DefaultCurve().Validate())

	tests := []struct {
		name   string
		mutate func(*ConfidenceCurve)
	}{
		{"unknown interpolation", func(c *ConfidenceCurve) { c.Interpolation = "cubic" }},
		{"band out of order", func(c *ConfidenceCurve) { c.High.MinConfidence = 0.3; c.High.FullConfidence = 0.35 }},
		{"decreasing within band", func(c *ConfidenceCurve) { c.Medium.ToPct = 0.015 }},
		{"decreasing across bands", func(c *ConfidenceCurve) { c.High.FromPct = 0.025 }},
		{"percentage above one", func(c *ConfidenceCurve) { c.High.ToPct = 1.5 }},
		{"full below min", func(c *ConfidenceCurve) { c.Medium.FullConfidence = 0.3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve := DefaultCurve()
			tt.mutate(&curve)
			assert.ErrorIs(t, curve.Validate(), domain.ErrConfiguration)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxPositionSizePct = 0
	assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)

	cfg = DefaultConfig()
	cfg.MaxPositionSizePct = 1.2
	assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)

	cfg = DefaultConfig()
	cfg.MaxPositionSizePct = 0.035
	assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration, "curve tops out above the cap")
}
