package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/sizing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADEGUARD_DATA_DIR", dir)
	t.Setenv("TRADEGUARD_ACCOUNTS", "ACC-1, ACC-2")
	t.Setenv("BROKER_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, []string{"ACC-1", "ACC-2"}, cfg.Accounts)
	assert.Equal(t, 3*time.Second, cfg.Broker.Timeout)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.LedgerPath())
	require.NotNil(t, cfg.Risk)
	assert.Equal(t, 25000.0, cfg.Risk.Account.CashAccountThreshold)
}

func TestLoad_BackupRequiresBucket(t *testing.T) {
	t.Setenv("TRADEGUARD_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_ENABLED", "true")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RiskFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compliance:\n  pdt:\n    mode: warning\n"), 0644))

	t.Setenv("TRADEGUARD_DATA_DIR", dir)
	t.Setenv("RISK_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warning", cfg.Risk.Compliance.PDT.Mode)
	// Untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Risk.Compliance.PDT.Limit)
}

func TestDefaultRiskSettings_Valid(t *testing.T) {
	settings := DefaultRiskSettings()
	require.NoError(t, settings.Validate())

	comp, err := settings.ComplianceConfig()
	require.NoError(t, err)
	assert.Equal(t, compliance.ModeStrict, comp.PDTMode)
	assert.Equal(t, "America/New_York", comp.Location.String())
	assert.False(t, comp.SkipMarketHolidays)

	siz, err := settings.SizingConfig()
	require.NoError(t, err)
	assert.Equal(t, sizing.InterpolationLinear, siz.Curve.Interpolation)
	assert.InDelta(t, 0.04, siz.Curve.Percentage(0.85), 1e-9)

	acc, err := settings.AccountConfig()
	require.NoError(t, err)
	assert.Equal(t, "25000", acc.Threshold.String())
	assert.Equal(t, 5*time.Minute, acc.CacheTTL)
}

func TestParseRiskSettings(t *testing.T) {
	yamlDoc := `
account:
  cash_account_threshold: 30000
  cache_ttl: 2m
compliance:
  frequency:
    mode: warning
    daily_limit: 2
    weekly_limit: 5
  skip_market_holidays: true
sizing:
  interpolation: midpoint
profit_taking:
  partial_exits_enabled: false
  levels:
    - threshold_pct: 0.03
      exit_fraction: 0.5
    - threshold_pct: 0.08
      exit_fraction: 1
`
	settings, err := ParseRiskSettings([]byte(yamlDoc))
	require.NoError(t, err)

	assert.Equal(t, 30000.0, settings.Account.CashAccountThreshold)
	assert.Equal(t, 2*time.Minute, settings.Account.CacheTTL)
	assert.Equal(t, 5*time.Second, settings.Account.BrokerTimeout)
	assert.Equal(t, 2, settings.Compliance.Frequency.DailyLimit)
	assert.True(t, settings.Compliance.SkipMarketHolidays)
	assert.Equal(t, "midpoint", settings.Sizing.Interpolation)
	assert.False(t, settings.ProfitTaking.PartialExitsEnabled)
	assert.Len(t, settings.ProfitTaking.Levels, 2)
}

func TestParseRiskSettings_Empty(t *testing.T) {
	settings, err := ParseRiskSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRiskSettings(), settings)
}

func TestParseRiskSettings_UnknownKey(t *testing.T) {
	_, err := ParseRiskSettings([]byte("account:\n  treshold: 1\n"))
	assert.Error(t, err)
}

func TestParseRiskSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"negative threshold", "account:\n  cash_account_threshold: -1\n"},
		{"zero ttl", "account:\n  cache_ttl: 0s\n"},
		{"unknown mode", "compliance:\n  gfv_mode: lenient\n"},
		{"unknown timezone", "compliance:\n  market_timezone: Mars/Olympus\n"},
		{"cap above one", "sizing:\n  max_position_size_pct: 1.5\n"},
		{"unknown interpolation", "sizing:\n  interpolation: cubic\n"},
		{"non monotonic curve", "sizing:\n  bands:\n    medium:\n      min_confidence: 0.4\n      full_confidence: 0.7\n      from_pct: 0.005\n      to_pct: 0.03\n"},
		{"non increasing levels", "profit_taking:\n  levels:\n    - {threshold_pct: 0.1, exit_fraction: 0.5}\n    - {threshold_pct: 0.05, exit_fraction: 1}\n"},
		{"fraction above one", "profit_taking:\n  levels:\n    - {threshold_pct: 0.1, exit_fraction: 1.5}\n"},
		{"NaN threshold", "profit_taking:\n  levels:\n    - {threshold_pct: .nan, exit_fraction: 0.25}\n    - {threshold_pct: 0.2, exit_fraction: 1}\n"},
		{"NaN fraction", "profit_taking:\n  levels:\n    - {threshold_pct: 0.1, exit_fraction: .nan}\n"},
		{"weekly below daily", "compliance:\n  frequency:\n    daily_limit: 5\n    weekly_limit: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRiskSettings([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)
		})
	}
}

func TestRiskSettings_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")
	require.NoError(t, DefaultRiskSettings().SaveToFile(path))

	loaded, err := LoadRiskSettings(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRiskSettings(), loaded)
}
