package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/account"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/profit_taking"
	"github.com/aristath/tradeguard/internal/modules/sizing"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RiskSettings is the operator-facing risk configuration file
type RiskSettings struct {
	Account      AccountSettings      `json:"account" yaml:"account"`
	Compliance   ComplianceSettings   `json:"compliance" yaml:"compliance"`
	Sizing       SizingSettings       `json:"sizing" yaml:"sizing"`
	ProfitTaking ProfitTakingSettings `json:"profit_taking" yaml:"profit_taking"`
}

// AccountSettings configures the account monitor
type AccountSettings struct {
	CashAccountThreshold float64       `json:"cash_account_threshold" yaml:"cash_account_threshold"`
	CacheTTL             time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	BrokerTimeout        time.Duration `json:"broker_timeout" yaml:"broker_timeout"`
}

// PDTSettings configures the pattern-day-trader check
type PDTSettings struct {
	Mode         string `json:"mode" yaml:"mode"`
	Limit        int    `json:"limit" yaml:"limit"`
	LookbackDays int    `json:"lookback_days" yaml:"lookback_days"`
}

// FrequencySettings configures the trade frequency caps
type FrequencySettings struct {
	Mode        string `json:"mode" yaml:"mode"`
	DailyLimit  int    `json:"daily_limit" yaml:"daily_limit"`
	WeeklyLimit int    `json:"weekly_limit" yaml:"weekly_limit"`
}

// ComplianceSettings configures the compliance checks
type ComplianceSettings struct {
	PDT                PDTSettings       `json:"pdt" yaml:"pdt"`
	Frequency          FrequencySettings `json:"frequency" yaml:"frequency"`
	GFVMode            string            `json:"gfv_mode" yaml:"gfv_mode"`
	SettledCashMode    string            `json:"settled_cash_mode" yaml:"settled_cash_mode"`
	SettlementDays     int               `json:"settlement_days" yaml:"settlement_days"`
	SkipMarketHolidays bool              `json:"skip_market_holidays" yaml:"skip_market_holidays"`
	MarketTimezone     string            `json:"market_timezone" yaml:"market_timezone"`
}

// BandSettings holds the three confidence tiers
type BandSettings struct {
	Low    sizing.Band `json:"low" yaml:"low"`
	Medium sizing.Band `json:"medium" yaml:"medium"`
	High   sizing.Band `json:"high" yaml:"high"`
}

// SizingSettings configures position sizing
type SizingSettings struct {
	MaxPositionSizePct float64      `json:"max_position_size_pct" yaml:"max_position_size_pct"`
	Interpolation      string       `json:"interpolation" yaml:"interpolation"`
	Bands              BandSettings `json:"bands" yaml:"bands"`
}

// ProfitTakingSettings configures the default exit ladder
type ProfitTakingSettings struct {
	PartialExitsEnabled bool                  `json:"partial_exits_enabled" yaml:"partial_exits_enabled"`
	Levels              []profit_taking.Level `json:"levels" yaml:"levels"`
}

// DefaultRiskSettings returns the built-in settings
func DefaultRiskSettings() *RiskSettings {
	acc := account.DefaultConfig()
	comp := compliance.DefaultConfig()
	siz := sizing.DefaultConfig()
	pt := profit_taking.DefaultConfig()

	return &RiskSettings{
		Account: AccountSettings{
			CashAccountThreshold: acc.Threshold.InexactFloat64(),
			CacheTTL:             acc.CacheTTL,
			BrokerTimeout:        acc.BrokerTimeout,
		},
		Compliance: ComplianceSettings{
			PDT: PDTSettings{
				Mode:         string(comp.PDTMode),
				Limit:        comp.PDTLimit,
				LookbackDays: comp.LookbackDays,
			},
			Frequency: FrequencySettings{
				Mode:        string(comp.FrequencyMode),
				DailyLimit:  comp.DailyLimit,
				WeeklyLimit: comp.WeeklyLimit,
			},
			GFVMode:            string(comp.GFVMode),
			SettledCashMode:    string(comp.SettledCashMode),
			SettlementDays:     comp.SettlementDays,
			SkipMarketHolidays: false,
			MarketTimezone:     "America/New_York",
		},
		Sizing: SizingSettings{
			MaxPositionSizePct: siz.MaxPositionSizePct,
			Interpolation:      string(siz.Curve.Interpolation),
			Bands: BandSettings{
				Low:    siz.Curve.Low,
				Medium: siz.Curve.Medium,
				High:   siz.Curve.High,
			},
		},
		ProfitTaking: ProfitTakingSettings{
			PartialExitsEnabled: pt.PartialEnabled,
			Levels:              pt.DefaultLevels,
		},
	}
}

// LoadRiskSettings reads a YAML settings file over the defaults.
// Unknown keys are rejected so typos cannot silently fall back to defaults.
func LoadRiskSettings(path string) (*RiskSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk settings: %w", err)
	}
	return ParseRiskSettings(data)
}

// ParseRiskSettings decodes YAML settings over the defaults and validates them
func ParseRiskSettings(data []byte) (*RiskSettings, error) {
	settings := DefaultRiskSettings()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// io.EOF means an empty document: defaults apply
	if err := dec.Decode(settings); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse risk settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveToFile writes the settings as YAML
func (s *RiskSettings) SaveToFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal risk settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write risk settings: %w", err)
	}
	return nil
}

// Validate converts every section and runs the owning module's validation
func (s *RiskSettings) Validate() error {
	if _, err := s.AccountConfig(); err != nil {
		return err
	}
	if _, err := s.ComplianceConfig(); err != nil {
		return err
	}
	if _, err := s.SizingConfig(); err != nil {
		return err
	}
	if _, err := s.ProfitTakingConfig(); err != nil {
		return err
	}
	return nil
}

// AccountConfig returns the account monitor configuration
func (s *RiskSettings) AccountConfig() (account.Config, error) {
	cfg := account.Config{
		Threshold:     decimal.NewFromFloat(s.Account.CashAccountThreshold),
		CacheTTL:      s.Account.CacheTTL,
		BrokerTimeout: s.Account.BrokerTimeout,
	}
	return cfg, cfg.Validate()
}

// ComplianceConfig returns the compliance configuration
func (s *RiskSettings) ComplianceConfig() (compliance.Config, error) {
	c := s.Compliance

	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil || c.MarketTimezone == "" {
		return compliance.Config{}, domain.NewConfigurationError("compliance.market_timezone",
			fmt.Sprintf("unknown timezone %q", c.MarketTimezone))
	}

	cfg := compliance.Config{
		PDTMode:            compliance.Mode(strings.ToLower(c.PDT.Mode)),
		PDTLimit:           c.PDT.Limit,
		LookbackDays:       c.PDT.LookbackDays,
		FrequencyMode:      compliance.Mode(strings.ToLower(c.Frequency.Mode)),
		DailyLimit:         c.Frequency.DailyLimit,
		WeeklyLimit:        c.Frequency.WeeklyLimit,
		GFVMode:            compliance.Mode(strings.ToLower(c.GFVMode)),
		SettledCashMode:    compliance.Mode(strings.ToLower(c.SettledCashMode)),
		SettlementDays:     c.SettlementDays,
		SkipMarketHolidays: c.SkipMarketHolidays,
		Location:           loc,
	}
	return cfg, cfg.Validate()
}

// SizingConfig returns the position sizing configuration
func (s *RiskSettings) SizingConfig() (sizing.Config, error) {
	cfg := sizing.Config{
		MaxPositionSizePct: s.Sizing.MaxPositionSizePct,
		Curve: sizing.ConfidenceCurve{
			Low:           s.Sizing.Bands.Low,
			Medium:        s.Sizing.Bands.Medium,
			High:          s.Sizing.Bands.High,
			Interpolation: sizing.Interpolation(strings.ToLower(s.Sizing.Interpolation)),
		},
	}
	return cfg, cfg.Validate()
}

// ProfitTakingConfig returns the profit-taking configuration
func (s *RiskSettings) ProfitTakingConfig() (profit_taking.Config, error) {
	cfg := profit_taking.Config{
		DefaultLevels:  s.ProfitTaking.Levels,
		PartialEnabled: s.ProfitTaking.PartialExitsEnabled,
	}
	return cfg, cfg.Validate()
}
