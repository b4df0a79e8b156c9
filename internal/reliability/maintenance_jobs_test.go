package reliability

import (
	"errors"
	"testing"
	"time"

	testingpkg "github.com/aristath/tradeguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMaintenanceJob_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t)
	defer cleanup()

	job := NewLedgerMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	job.diskUsage = func(path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: 20e9, UsedPercent: 40}, nil
	}

	assert.Equal(t, "ledger_maintenance", job.Name())
	require.NoError(t, job.Run())
}

func TestLedgerMaintenanceJob_LowDiskSpace(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t)
	defer cleanup()

	job := NewLedgerMaintenanceJob(db, "/data", zerolog.Nop())
	job.diskUsage = func(path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: 100e6}, nil
	}

	assert.ErrorContains(t, job.Run(), "GB free in /data")

	job.diskUsage = func(path string) (*disk.UsageStat, error) {
		return nil, errors.New("no such device")
	}
	assert.ErrorContains(t, job.Run(), "failed to stat filesystem")
}

func TestBackupJob_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t)
	defer cleanup()

	store := newMemoryStore()
	clock := testingpkg.NewManualClock(time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC))
	job := NewBackupJob(NewBackupService(db, store, t.TempDir(), "", 30, clock, zerolog.Nop()), zerolog.Nop())

	assert.Equal(t, "ledger_backup", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []string{"ledger-backup-2025-03-10-030000.tar.gz"}, store.keys())

	store.uploadErr = errors.New("denied")
	clock.Advance(24 * time.Hour)
	assert.ErrorContains(t, job.Run(), "ledger backup failed")
}
