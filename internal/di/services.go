package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aristath/tradeguard/internal/clients/broker"
	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/metrics"
	"github.com/aristath/tradeguard/internal/modules/account"
	"github.com/aristath/tradeguard/internal/modules/compliance"
	"github.com/aristath/tradeguard/internal/modules/market_hours"
	"github.com/aristath/tradeguard/internal/modules/profit_taking"
	"github.com/aristath/tradeguard/internal/modules/risk"
	riskhandlers "github.com/aristath/tradeguard/internal/modules/risk/handlers"
	"github.com/aristath/tradeguard/internal/modules/sizing"
	"github.com/aristath/tradeguard/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices builds the managers in dependency order:
// account monitor, compliance, sizing, profit taking, then the risk orchestrator
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	settings := cfg.Risk

	if container.Clock == nil {
		container.Clock = domain.SystemClock{}
	}
	if container.Metrics == nil {
		container.Metrics = metrics.NewCollector(log)
	}
	if container.BrokerClient == nil {
		container.BrokerClient = broker.NewClient(broker.Config{
			BaseURL: cfg.Broker.BaseURL,
			APIKey:  cfg.Broker.APIKey,
			Timeout: cfg.Broker.Timeout,
		}, log)
	}

	accountCfg, err := settings.AccountConfig()
	if err != nil {
		return err
	}
	container.AccountMonitor, err = account.NewMonitor(
		container.BrokerClient,
		container.LedgerDB,
		container.AccountRepo,
		accountCfg,
		container.Clock,
		container.Metrics,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create account monitor: %w", err)
	}

	complianceCfg, err := settings.ComplianceConfig()
	if err != nil {
		return err
	}
	container.Calendar = market_hours.NewCalendar(complianceCfg.SkipMarketHolidays)
	container.ComplianceManager, err = compliance.NewManager(
		container.LedgerDB,
		container.SettlementRepo,
		container.DayTradeRepo,
		container.FrequencyRepo,
		complianceCfg,
		container.Clock,
		container.Metrics,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create compliance manager: %w", err)
	}

	sizingCfg, err := settings.SizingConfig()
	if err != nil {
		return err
	}
	container.SizingManager, err = sizing.NewManager(sizingCfg, container.ComplianceManager, log)
	if err != nil {
		return fmt.Errorf("failed to create sizing manager: %w", err)
	}

	profitCfg, err := settings.ProfitTakingConfig()
	if err != nil {
		return err
	}
	container.ProfitTakingManager, err = profit_taking.NewManager(
		container.LedgerDB,
		container.ExitPlanRepo,
		profitCfg,
		container.Clock,
		container.Metrics,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create profit taking manager: %w", err)
	}

	container.RiskManager = risk.NewManager(
		container.AccountMonitor,
		container.ComplianceManager,
		container.SizingManager,
		container.ProfitTakingManager,
		container.Strategy,
		container.Metrics,
		log,
	)
	container.RiskHandler = riskhandlers.NewHandler(container.RiskManager, log)

	if cfg.Backup.Enabled {
		store, err := reliability.NewS3Store(context.Background(), reliability.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.LedgerDB,
			store,
			filepath.Join(cfg.DataDir, "backup-staging"),
			cfg.Backup.Prefix,
			cfg.Backup.RetentionDays,
			container.Clock,
			log,
		)
	}

	log.Info().
		Str("calendar", container.Calendar.Name()).
		Bool("backups", container.BackupService != nil).
		Msg("Services initialized")
	return nil
}
