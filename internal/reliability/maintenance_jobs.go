package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// BackupJob uploads a ledger backup and rotates old archives (daily)
type BackupJob struct {
	service *BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "ledger_backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "ledger_backup"
}

// Run creates and uploads a backup, then rotates. A failed rotation does not
// fail the job once the upload succeeded.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return fmt.Errorf("ledger backup failed: %w", err)
	}

	if _, err := j.service.RotateOldBackups(ctx); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// DiskUsageFunc reports filesystem usage for a path
type DiskUsageFunc func(path string) (*disk.UsageStat, error)

// LedgerMaintenanceJob performs daily ledger maintenance: integrity check,
// WAL checkpoint and a free-space check on the data directory
type LedgerMaintenanceJob struct {
	db        *database.DB
	dataDir   string
	diskUsage DiskUsageFunc
	log       zerolog.Logger
}

// NewLedgerMaintenanceJob creates a new ledger maintenance job
func NewLedgerMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *LedgerMaintenanceJob {
	return &LedgerMaintenanceJob{
		db:        db,
		dataDir:   dataDir,
		diskUsage: disk.Usage,
		log:       log.With().Str("job", "ledger_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *LedgerMaintenanceJob) Name() string {
	return "ledger_maintenance"
}

// Run executes the maintenance steps
func (j *LedgerMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting ledger maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Ledger integrity check failed")
		return fmt.Errorf("ledger integrity check failed: %w", err)
	}

	var busy, walFrames, checkpointed int
	err := j.db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &walFrames, &checkpointed)
	if err != nil {
		// Not critical, the next run retries
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	} else {
		j.log.Debug().
			Int("busy", busy).
			Int("wal_frames", walFrames).
			Int("checkpointed", checkpointed).
			Msg("WAL checkpoint completed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Ledger maintenance completed")
	return nil
}

// checkDiskSpace fails below 500MB free and warns below 5GB
func (j *LedgerMaintenanceJob) checkDiskSpace() error {
	usage, err := j.diskUsage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().
		Float64("available_gb", availableGB).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space check")

	if availableGB < 0.5 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space for the ledger")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	}

	if availableGB < 5.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}
	return nil
}
