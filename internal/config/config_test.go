package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/record"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "~/.local/share/tabvault/tabvault.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Store.EnableCompression)
	assert.True(t, cfg.Store.EnableIntegrityChecks)
	assert.Equal(t, "fnv", cfg.Store.Checksum)
	assert.Greater(t, cfg.Store.CompressionThreshold, 0)
	assert.Greater(t, cfg.Store.MaxSessionAgeDays, 0)
	assert.True(t, cfg.Validator.EnableBackups)
	assert.Greater(t, cfg.Validator.MaxBackups, 0)
	assert.True(t, cfg.Migration.EnableBackups)
	assert.True(t, cfg.Migration.RollbackOnFailure)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
db_path: /tmp/custom.db
log_level: debug
store:
  enable_compression: false
  batch_size: 42
  checksum: sha256
validator:
  max_backups: 3
migration:
  max_retries: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Store.EnableCompression)
	assert.Equal(t, 42, cfg.Store.BatchSize)
	assert.Equal(t, "sha256", cfg.Store.Checksum)
	assert.Equal(t, 3, cfg.Validator.MaxBackups)
	assert.Equal(t, 5, cfg.Migration.MaxRetries)

	// Sections the file does not mention keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Store.MaxSessionAgeDays, cfg.Store.MaxSessionAgeDays)
	assert.Equal(t, def.Validator.BackupIntervalHours, cfg.Validator.BackupIntervalHours)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DBPath, cfg.DBPath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TABVAULT_DB_PATH", "/tmp/env.db")
	t.Setenv("TABVAULT_LOG_LEVEL", "warn")
	t.Setenv("TABVAULT_COMPRESSION", "false")
	t.Setenv("TABVAULT_BATCH_SIZE", "250")
	t.Setenv("TABVAULT_CHECKSUM", "sha256")
	t.Setenv("TABVAULT_BACKUPS", "0")
	t.Setenv("TABVAULT_BACKUP_INTERVAL_HOURS", "6")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.Store.EnableCompression)
	assert.Equal(t, 250, cfg.Store.BatchSize)
	assert.Equal(t, "sha256", cfg.Store.Checksum)
	assert.False(t, cfg.Validator.EnableBackups)
	assert.Equal(t, 6, cfg.Validator.BackupIntervalHours)
}

func TestOptionConverters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.MaxSessionAgeDays = 10
	cfg.Validator.BackupIntervalHours = 12

	st := cfg.StoreOptions()
	assert.Equal(t, 10*24*time.Hour, st.MaxSessionAge)
	assert.Equal(t, cfg.Store.BatchSize, st.BatchSize)

	so := cfg.SerializerOptions()
	assert.Equal(t, cfg.Store.CompressionThreshold, so.CompressionThreshold)

	vo := cfg.ValidatorOptions()
	assert.Equal(t, 12*time.Hour, vo.BackupInterval)

	mo := cfg.MigrationOptions()
	assert.Equal(t, cfg.Migration.MaxRetries, mo.MaxRetries)
	assert.Equal(t, cfg.LogLevel, mo.LogLevel)
}

func TestChecksummerSelection(t *testing.T) {
	cfg := DefaultConfig()
	assert.IsType(t, record.FNVChecksummer{}, cfg.Checksummer())

	cfg.Store.Checksum = "sha256"
	assert.IsType(t, record.SHA256Checksummer{}, cfg.Checksummer())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := ExpandPath("~/x/y.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x/y.db"), p)

	p, err = ExpandPath("/abs/path.db")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path.db", p)
}
