package di

import (
	"fmt"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/aristath/tradeguard/internal/reliability"
	"github.com/aristath/tradeguard/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules
const (
	SettlementSweepSchedule   = "@every 15m"
	AccountRefreshSchedule    = "@every 5m"
	LedgerMaintenanceSchedule = "0 2 * * *"
)

// RegisterJobs creates the scheduler and registers every background job.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	complianceCfg, err := cfg.Risk.ComplianceConfig()
	if err != nil {
		return err
	}
	sched := scheduler.New(complianceCfg.Location, container.Metrics, log)

	if err := sched.AddJob(SettlementSweepSchedule, scheduler.NewSettlementSweepJob(container.ComplianceManager, log)); err != nil {
		return err
	}
	if err := sched.AddJob(AccountRefreshSchedule, scheduler.NewAccountRefreshJob(container.AccountMonitor, cfg.Accounts, log)); err != nil {
		return err
	}
	if err := sched.AddJob(LedgerMaintenanceSchedule, reliability.NewLedgerMaintenanceJob(container.LedgerDB, cfg.DataDir, log)); err != nil {
		return err
	}

	if container.BackupService != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, reliability.NewBackupJob(container.BackupService, log)); err != nil {
			return err
		}
	}

	container.Scheduler = sched
	return nil
}
