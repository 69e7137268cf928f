package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate record
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidShape is returned when a record fails the registry key-shape
	// check before any write happens
	ErrInvalidShape = errors.New("invalid record shape")
	// ErrNotInitialized is returned when an operation runs before Initialize
	ErrNotInitialized = errors.New("storage engine not initialized")
)

// Options configures the storage engine.
type Options struct {
	EnableCompression     bool
	EnableIntegrityChecks bool
	MaxSessionAge         time.Duration
	MaxStorageSize        int64
	BatchSize             int
	IndexingEnabled       bool
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		EnableCompression:     true,
		EnableIntegrityChecks: true,
		MaxSessionAge:         90 * 24 * time.Hour,
		MaxStorageSize:        512 << 20,
		BatchSize:             50,
		IndexingEnabled:       true,
	}
}

const sessionCacheSize = 256

// Engine is the SQLite-backed storage engine.
type Engine struct {
	dbPath   string
	registry *schema.Registry
	ser      *record.Serializer
	logger   *zap.Logger
	opts     Options

	db    *sql.DB
	cache *lru.Cache[string, *record.StoredSession]

	// scanCap bounds rows examined per query; defaults to ScanCap, tests
	// shrink it.
	scanCap int

	initGroup   singleflight.Group
	initialized atomic.Bool
}

// New creates an Engine. No I/O happens until Initialize.
func New(dbPath string, registry *schema.Registry, ser *record.Serializer, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, _ := lru.New[string, *record.StoredSession](sessionCacheSize)
	return &Engine{
		dbPath:   dbPath,
		registry: registry,
		ser:      ser,
		logger:   logger,
		opts:     opts,
		cache:    cache,
		scanCap:  ScanCap,
	}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Initialize opens the backing store and synchronizes its physical schema
// with the registry. It is idempotent, and concurrent callers share one
// in-flight attempt. Open failure is fatal and propagated; startup
// maintenance failures are logged and do not block initialization.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.initialized.Load() {
		return nil
	}
	_, err, _ := e.initGroup.Do("initialize", func() (any, error) {
		if e.initialized.Load() {
			return nil, nil
		}
		db, err := openDatabase(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := e.syncSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sync schema: %w", err)
		}
		e.db = db
		e.initialized.Store(true)

		// Best effort: a failed cleanup never aborts initialization.
		if err := e.CleanupStaleSessions(ctx); err != nil {
			e.logger.Warn("stale session cleanup failed", zap.Error(err))
		}
		if err := e.RefreshCounters(ctx); err != nil {
			e.logger.Warn("counter refresh failed", zap.Error(err))
		}
		return nil, nil
	})
	return err
}

// syncSchema additively creates any container, index, or side table the
// registry declares but the store is missing. Nothing is ever dropped here.
func (e *Engine) syncSchema(ctx context.Context, db *sql.DB) error {
	for _, c := range e.registry.Containers() {
		if _, err := db.ExecContext(ctx, c.CreateTableSQL()); err != nil {
			return fmt.Errorf("create container %s: %w", c.Name, err)
		}
		// Side tables hold record data, not just index structure, so they
		// exist even when secondary indexing is disabled.
		for _, stmt := range c.CreateSideTableSQL() {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create side table for %s: %w", c.Name, err)
			}
		}
		if !e.opts.IndexingEnabled {
			continue
		}
		for _, stmt := range c.CreateIndexSQL() {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index on %s: %w", c.Name, err)
			}
		}
	}
	return e.createBackupTable(ctx, db)
}

// Close closes the database connection.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	e.initialized.Store(false)
	return e.db.Close()
}

// DB exposes the underlying handle for the migration manager. Everything
// else goes through the typed API.
func (e *Engine) DB() *sql.DB { return e.db }

// Serializer returns the serializer the engine stamps records with.
func (e *Engine) Serializer() *record.Serializer { return e.ser }

// Registry returns the schema registry the engine was opened against.
func (e *Engine) Registry() *schema.Registry { return e.registry }

func (e *Engine) ready() error {
	if !e.initialized.Load() || e.db == nil {
		return ErrNotInitialized
	}
	return nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tsFormat is a fixed-width UTC timestamp encoding. The constant fraction
// width keeps lexicographic order equal to chronological order, which the
// range queries rely on.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(tsFormat)
}

func parseTime(s string) (time.Time, error) {
	for _, f := range []string{tsFormat, time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// mapConstraint converts a primary-key violation into ErrAlreadyExists.
// Both drivers surface constraint failures only through the error text.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint") {
		return ErrAlreadyExists
	}
	return err
}
