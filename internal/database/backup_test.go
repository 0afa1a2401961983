package database

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "clinicq.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite-bytes"), 0o644))

	storage := filepath.Join(dir, "backups")
	logger := zerolog.New(io.Discard)
	svc := NewBackupService(dbPath, storage, 7, time.Hour, &logger)

	require.NoError(t, svc.PerformBackup())

	files, err := os.ReadDir(storage)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Name(), "clinicq_")

	data, err := os.ReadFile(filepath.Join(storage, files[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, []byte("sqlite-bytes"), data)
}

func TestPerformBackupMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	logger := zerolog.New(io.Discard)
	svc := NewBackupService(filepath.Join(dir, "nope.db"), filepath.Join(dir, "backups"), 7, time.Hour, &logger)

	assert.Error(t, svc.PerformBackup())
}

func TestCleanupOldBackups(t *testing.T) {
	dir := t.TempDir()
	storage := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(storage, 0o755))

	stale := filepath.Join(storage, "clinicq_20200101_000000.db")
	fresh := filepath.Join(storage, "clinicq_fresh.db")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o644))

	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))

	logger := zerolog.New(io.Discard)
	svc := NewBackupService("", storage, 7, time.Hour, &logger)
	svc.CleanupOldBackups()

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

func TestCleanupDisabledByRetention(t *testing.T) {
	dir := t.TempDir()
	storage := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(storage, 0o755))

	stale := filepath.Join(storage, "clinicq_ancient.db")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := time.Now().AddDate(-1, 0, 0)
	require.NoError(t, os.Chtimes(stale, old, old))

	logger := zerolog.New(io.Discard)
	svc := NewBackupService("", storage, 0, time.Hour, &logger)
	svc.CleanupOldBackups()

	assert.FileExists(t, stale)
}
