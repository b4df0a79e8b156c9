package compliance

import (
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
)

// Mode decides whether a failing check blocks the trade or only flags it
type Mode string

const (
	// ModeStrict blocks the trade
	ModeStrict Mode = "strict"
	// ModeWarning allows the trade and attaches a warning reason
	ModeWarning Mode = "warning"
)

// IsValid reports whether m is a known mode
func (m Mode) IsValid() bool {
	return m == ModeStrict || m == ModeWarning
}

// Config holds the compliance rules
type Config struct {
	PDTMode      Mode
	PDTLimit     int // Day trades allowed inside the lookback window
	LookbackDays int // Trailing business days counted for PDT

	FrequencyMode Mode
	DailyLimit    int
	WeeklyLimit   int

	GFVMode         Mode
	SettledCashMode Mode

	SettlementDays     int
	SkipMarketHolidays bool
	// Location is the market timezone; calendar dates are taken in it
	Location *time.Location
}

// DefaultConfig returns strict T+2 rules for the New York market
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		PDTMode:         ModeStrict,
		PDTLimit:        3,
		LookbackDays:    5,
		FrequencyMode:   ModeStrict,
		DailyLimit:      4,
		WeeklyLimit:     10,
		GFVMode:         ModeStrict,
		SettledCashMode: ModeStrict,
		SettlementDays:  2,
		Location:        loc,
	}
}

// Validate checks limits and modes
func (c Config) Validate() error {
	modes := []struct {
		field string
		mode  Mode
	}{
		{"compliance.pdt.mode", c.PDTMode},
		{"compliance.frequency.mode", c.FrequencyMode},
		{"compliance.gfv_mode", c.GFVMode},
		{"compliance.settled_cash_mode", c.SettledCashMode},
	}
	for _, m := range modes {
		if !m.mode.IsValid() {
			return domain.NewConfigurationError(m.field, fmt.Sprintf("unknown mode %q (want strict or warning)", m.mode))
		}
	}

	if c.PDTLimit < 0 {
		return domain.NewConfigurationError("compliance.pdt.limit", "must not be negative")
	}
	if c.LookbackDays <= 0 {
		return domain.NewConfigurationError("compliance.pdt.lookback_days", "must be positive")
	}
	if c.DailyLimit <= 0 {
		return domain.NewConfigurationError("compliance.frequency.daily_limit", "must be positive")
	}
	if c.WeeklyLimit < c.DailyLimit {
		return domain.NewConfigurationError("compliance.frequency.weekly_limit", "must be at least the daily limit")
	}
	if c.SettlementDays < 0 {
		return domain.NewConfigurationError("compliance.settlement_days", "must not be negative")
	}
	if c.Location == nil {
		return domain.NewConfigurationError("compliance.market_timezone", "is required")
	}
	return nil
}
