// Package config loads TabVault configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/tabvault/tabvault/internal/integrity"
	"github.com/tabvault/tabvault/internal/migrate"
	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/storage"
)

// DefaultConfigPath is consulted when no explicit path is given.
const DefaultConfigPath = "~/.config/tabvault/config.yaml"

// Config holds all TabVault configuration.
type Config struct {
	DBPath    string          `yaml:"db_path"`
	LogLevel  string          `yaml:"log_level"`
	Store     StoreConfig     `yaml:"store"`
	Validator ValidatorConfig `yaml:"validator"`
	Migration MigrationConfig `yaml:"migration"`
}

type StoreConfig struct {
	EnableCompression     bool   `yaml:"enable_compression"`
	CompressionThreshold  int    `yaml:"compression_threshold"`
	EnableIntegrityChecks bool   `yaml:"enable_integrity_checks"`
	MaxSessionAgeDays     int    `yaml:"max_session_age_days"`
	MaxStorageSize        int64  `yaml:"max_storage_size"`
	BatchSize             int    `yaml:"batch_size"`
	IndexingEnabled       bool   `yaml:"indexing_enabled"`
	Checksum              string `yaml:"checksum"` // fnv or sha256
}

type ValidatorConfig struct {
	EnableChecks           bool `yaml:"enable_checks"`
	EnableBackups          bool `yaml:"enable_backups"`
	BackupIntervalHours    int  `yaml:"backup_interval_hours"`
	MaxBackups             int  `yaml:"max_backups"`
	ChecksumValidation     bool `yaml:"checksum_validation"`
	RelationshipValidation bool `yaml:"relationship_validation"`
	DataConsistencyChecks  bool `yaml:"data_consistency_checks"`
}

type MigrationConfig struct {
	EnableBackups          bool `yaml:"enable_backups"`
	ValidateAfterMigration bool `yaml:"validate_after_migration"`
	MaxRetries             int  `yaml:"max_retries"`
	RollbackOnFailure      bool `yaml:"rollback_on_failure"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	st := storage.DefaultOptions()
	vo := integrity.DefaultOptions()
	mo := migrate.DefaultOptions()
	so := record.DefaultOptions()
	return &Config{
		DBPath:   "~/.local/share/tabvault/tabvault.db",
		LogLevel: "info",
		Store: StoreConfig{
			EnableCompression:     st.EnableCompression,
			CompressionThreshold:  so.CompressionThreshold,
			EnableIntegrityChecks: st.EnableIntegrityChecks,
			MaxSessionAgeDays:     int(st.MaxSessionAge / (24 * time.Hour)),
			MaxStorageSize:        st.MaxStorageSize,
			BatchSize:             st.BatchSize,
			IndexingEnabled:       st.IndexingEnabled,
			Checksum:              "fnv",
		},
		Validator: ValidatorConfig{
			EnableChecks:           vo.EnableChecks,
			EnableBackups:          vo.EnableBackups,
			BackupIntervalHours:    int(vo.BackupInterval / time.Hour),
			MaxBackups:             vo.MaxBackups,
			ChecksumValidation:     vo.ChecksumValidation,
			RelationshipValidation: vo.RelationshipValidation,
			DataConsistencyChecks:  vo.DataConsistencyChecks,
		},
		Migration: MigrationConfig{
			EnableBackups:          mo.EnableBackups,
			ValidateAfterMigration: mo.ValidateAfterMigration,
			MaxRetries:             mo.MaxRetries,
			RollbackOnFailure:      mo.RollbackOnFailure,
		},
	}
}

// Load reads a YAML config file at path, merges it with defaults, and
// applies TABVAULT_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault loads the config from path if the file exists; otherwise
// it returns defaults. Environment overrides apply either way.
func LoadOrDefault(path string) (*Config, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, nil
	}
	return Load(expanded)
}

// applyEnv overlays TABVAULT_* environment variables. Values parse with
// cast so loose forms like "1" or "True" work for booleans.
func (c *Config) applyEnv() {
	if v := os.Getenv("TABVAULT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("TABVAULT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TABVAULT_COMPRESSION"); v != "" {
		c.Store.EnableCompression = cast.ToBool(v)
	}
	if v := os.Getenv("TABVAULT_COMPRESSION_THRESHOLD"); v != "" {
		c.Store.CompressionThreshold = cast.ToInt(v)
	}
	if v := os.Getenv("TABVAULT_MAX_SESSION_AGE_DAYS"); v != "" {
		c.Store.MaxSessionAgeDays = cast.ToInt(v)
	}
	if v := os.Getenv("TABVAULT_MAX_STORAGE_SIZE"); v != "" {
		c.Store.MaxStorageSize = cast.ToInt64(v)
	}
	if v := os.Getenv("TABVAULT_BATCH_SIZE"); v != "" {
		c.Store.BatchSize = cast.ToInt(v)
	}
	if v := os.Getenv("TABVAULT_CHECKSUM"); v != "" {
		c.Store.Checksum = v
	}
	if v := os.Getenv("TABVAULT_BACKUPS"); v != "" {
		c.Validator.EnableBackups = cast.ToBool(v)
	}
	if v := os.Getenv("TABVAULT_MAX_BACKUPS"); v != "" {
		c.Validator.MaxBackups = cast.ToInt(v)
	}
	if v := os.Getenv("TABVAULT_BACKUP_INTERVAL_HOURS"); v != "" {
		c.Validator.BackupIntervalHours = cast.ToInt(v)
	}
}

// StoreOptions converts the store section to engine options.
func (c *Config) StoreOptions() storage.Options {
	return storage.Options{
		EnableCompression:     c.Store.EnableCompression,
		EnableIntegrityChecks: c.Store.EnableIntegrityChecks,
		MaxSessionAge:         time.Duration(c.Store.MaxSessionAgeDays) * 24 * time.Hour,
		MaxStorageSize:        c.Store.MaxStorageSize,
		BatchSize:             c.Store.BatchSize,
		IndexingEnabled:       c.Store.IndexingEnabled,
	}
}

// SerializerOptions converts the store section to serializer options.
func (c *Config) SerializerOptions() record.Options {
	return record.Options{
		EnableCompression:    c.Store.EnableCompression,
		CompressionThreshold: c.Store.CompressionThreshold,
	}
}

// Checksummer returns the configured checksum implementation.
func (c *Config) Checksummer() record.Checksummer {
	if c.Store.Checksum == "sha256" {
		return record.SHA256Checksummer{}
	}
	return record.FNVChecksummer{}
}

// ValidatorOptions converts the validator section to integrity options.
func (c *Config) ValidatorOptions() integrity.Options {
	return integrity.Options{
		EnableChecks:           c.Validator.EnableChecks,
		EnableBackups:          c.Validator.EnableBackups,
		BackupInterval:         time.Duration(c.Validator.BackupIntervalHours) * time.Hour,
		MaxBackups:             c.Validator.MaxBackups,
		ChecksumValidation:     c.Validator.ChecksumValidation,
		RelationshipValidation: c.Validator.RelationshipValidation,
		DataConsistencyChecks:  c.Validator.DataConsistencyChecks,
	}
}

// MigrationOptions converts the migration section to migrate options.
func (c *Config) MigrationOptions() migrate.Options {
	return migrate.Options{
		EnableBackups:          c.Migration.EnableBackups,
		ValidateAfterMigration: c.Migration.ValidateAfterMigration,
		MaxRetries:             c.Migration.MaxRetries,
		RollbackOnFailure:      c.Migration.RollbackOnFailure,
		LogLevel:               c.LogLevel,
	}
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
