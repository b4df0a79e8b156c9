package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	testingpkg "github.com/aristath/tradeguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Upload(ctx context.Context, key string, body io.Reader) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = content
	}
	return files
}

func TestBackupService_CreateAndUploadBackup(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t)
	defer cleanup()

	store := newMemoryStore()
	clock := testingpkg.NewManualClock(time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC))
	service := NewBackupService(db, store, t.TempDir(), "/tradeguard/", 30, clock, zerolog.Nop())

	info, err := service.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tradeguard/ledger-backup-2025-03-10-030000.tar.gz", info.Key)
	assert.Positive(t, info.SizeBytes)

	files := readArchive(t, store.objects[info.Key])
	require.Contains(t, files, "ledger.db")
	require.Contains(t, files, "backup-metadata.json")

	var metadata BackupMetadata
	require.NoError(t, json.Unmarshal(files["backup-metadata.json"], &metadata))
	assert.Equal(t, "ledger", metadata.Database)
	assert.Equal(t, int64(len(files["ledger.db"])), metadata.SizeBytes)
	assert.True(t, strings.HasPrefix(metadata.Checksum, "sha256:"))
}

func TestBackupService_UploadFailure(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t)
	defer cleanup()

	store := newMemoryStore()
	store.uploadErr = errors.New("bucket unreachable")
	service := NewBackupService(db, store, t.TempDir(), "", 30, nil, zerolog.Nop())

	_, err := service.CreateAndUploadBackup(context.Background())
	assert.ErrorContains(t, err, "bucket unreachable")
}

func TestBackupService_ListBackups(t *testing.T) {
	store := newMemoryStore()
	store.objects["tg/ledger-backup-2025-03-01-030000.tar.gz"] = []byte("a")
	store.objects["tg/ledger-backup-2025-03-05-030000.tar.gz"] = []byte("bb")
	store.objects["tg/ledger-backup-garbage.tar.gz"] = []byte("c")
	store.objects["other/ledger-backup-2025-03-06-030000.tar.gz"] = []byte("d")

	clock := testingpkg.NewManualClock(time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC))
	service := NewBackupService(nil, store, t.TempDir(), "tg", 30, clock, zerolog.Nop())

	backups, err := service.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "tg/ledger-backup-2025-03-05-030000.tar.gz", backups[0].Key)
	assert.Equal(t, int64(2), backups[0].SizeBytes)
	assert.Equal(t, int64(120), backups[0].AgeHours)
}

func TestBackupService_RotateKeepsNewestThree(t *testing.T) {
	store := newMemoryStore()
	for _, day := range []string{"01", "02", "03", "04", "05"} {
		store.objects["ledger-backup-2025-01-"+day+"-030000.tar.gz"] = []byte("x")
	}

	clock := testingpkg.NewManualClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	service := NewBackupService(nil, store, t.TempDir(), "", 30, clock, zerolog.Nop())

	deleted, err := service.RotateOldBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{
		"ledger-backup-2025-01-03-030000.tar.gz",
		"ledger-backup-2025-01-04-030000.tar.gz",
		"ledger-backup-2025-01-05-030000.tar.gz",
	}, store.keys())
}

func TestBackupService_RotateRespectsRetention(t *testing.T) {
	store := newMemoryStore()
	for _, day := range []string{"01", "20", "25", "26", "27"} {
		store.objects["ledger-backup-2025-05-"+day+"-030000.tar.gz"] = []byte("x")
	}

	clock := testingpkg.NewManualClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	service := NewBackupService(nil, store, t.TempDir(), "", 30, clock, zerolog.Nop())

	deleted, err := service.RotateOldBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NotContains(t, store.keys(), "ledger-backup-2025-05-01-030000.tar.gz")
}

func TestBackupService_RotateDisabled(t *testing.T) {
	store := newMemoryStore()
	for _, day := range []string{"01", "02", "03", "04", "05"} {
		store.objects["ledger-backup-2020-01-"+day+"-030000.tar.gz"] = []byte("x")
	}
	service := NewBackupService(nil, store, t.TempDir(), "", 0, nil, zerolog.Nop())

	deleted, err := service.RotateOldBackups(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, store.keys(), 5)
}
