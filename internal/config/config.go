// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata" // market timezone must resolve on hosts without zoneinfo

	"github.com/aristath/tradeguard/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for the ledger database (always absolute)
	LogLevel       string
	Port           int
	DevMode        bool
	Accounts       []string // Accounts refreshed by the scheduler
	RiskConfigFile string
	Broker         BrokerConfig
	Backup         BackupConfig
	Risk           *RiskSettings
}

// BrokerConfig holds broker API connection settings
type BrokerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// BackupConfig holds S3-compatible ledger backup settings
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Empty for AWS S3, set for R2/MinIO
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
	Schedule        string // Cron expression
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADEGUARD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("GO_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Accounts:       utils.ParseCSV(getEnv("TRADEGUARD_ACCOUNTS", "")),
		RiskConfigFile: getEnv("RISK_CONFIG_FILE", ""),
		Broker: BrokerConfig{
			BaseURL: getEnv("BROKER_BASE_URL", "http://localhost:9100"),
			APIKey:  getEnv("BROKER_API_KEY", ""),
			Timeout: getEnvAsDuration("BROKER_TIMEOUT", 10*time.Second),
		},
		Backup: loadBackupConfig(),
	}

	if cfg.RiskConfigFile != "" {
		cfg.Risk, err = LoadRiskSettings(cfg.RiskConfigFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg.Risk = DefaultRiskSettings()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LedgerPath returns the ledger database file path
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT: %d", c.Port)
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("BROKER_BASE_URL is required")
	}
	if c.Broker.Timeout <= 0 {
		return fmt.Errorf("BROKER_TIMEOUT must be positive")
	}

	if c.Backup.Enabled {
		if c.Backup.Bucket == "" {
			return fmt.Errorf("BACKUP_BUCKET is required when backups are enabled")
		}
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup credentials are required when backups are enabled")
		}
		if c.Backup.RetentionDays < 0 {
			return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative")
		}
	}

	if c.Risk == nil {
		return fmt.Errorf("risk settings are missing")
	}
	return c.Risk.Validate()
}

func loadBackupConfig() BackupConfig {
	return BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		Prefix:          getEnv("BACKUP_PREFIX", "tradeguard"),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 3 * * *"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
