// Package vault composes the storage engine, integrity validator, and
// migration manager behind one lifecycle-managed facade.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/config"
	"github.com/tabvault/tabvault/internal/integrity"
	"github.com/tabvault/tabvault/internal/migrate"
	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/internal/storage"
	"github.com/tabvault/tabvault/pkg/types"
)

// Vault is the top-level handle over one TabVault store.
type Vault struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *storage.Engine
	validator *integrity.Validator
	migrator  *migrate.Manager
}

// New wires the subsystem components from configuration. The store is not
// opened until Open is called.
func New(cfg *config.Config, logger *zap.Logger) (*Vault, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath, err := config.ExpandPath(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry()
	ser := record.New(cfg.SerializerOptions(), cfg.Checksummer(), logger)
	engine := storage.New(dbPath, registry, ser, logger, cfg.StoreOptions())
	validator := integrity.New(engine, logger, cfg.ValidatorOptions())
	migrator := migrate.New(engine, registry, validator, logger, cfg.MigrationOptions())

	return &Vault{
		cfg:       cfg,
		logger:    logger,
		engine:    engine,
		validator: validator,
		migrator:  migrator,
	}, nil
}

// Open initializes the store, migrates it to the current schema version,
// and runs an initial integrity sweep when checks are enabled.
func (v *Vault) Open(ctx context.Context) error {
	if err := v.engine.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	info, err := v.migrator.VersionInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if info.MigrationRequired {
		v.logger.Info("schema migration required",
			zap.Int("from", info.Current), zap.Int("to", info.Latest))
		res, err := v.migrator.Perform(ctx, info.Current, info.Latest)
		if err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
		if res.BackupID != "" {
			v.logger.Info("pre-migration backup saved", zap.String("backup_id", res.BackupID))
		}
	}

	if v.cfg.Store.EnableIntegrityChecks {
		result, err := v.validator.SweepStore(ctx)
		if err != nil {
			return fmt.Errorf("initial integrity sweep: %w", err)
		}
		if !result.IsValid {
			v.logger.Warn("store opened with integrity errors",
				zap.Int("errors", len(result.Errors)),
				zap.Int("warnings", len(result.Warnings)))
		}
	}
	return nil
}

// Close releases the underlying database.
func (v *Vault) Close() error {
	return v.engine.Close()
}

// Engine exposes the storage engine for callers that need direct access.
func (v *Vault) Engine() *storage.Engine { return v.engine }

// SaveSession persists a new session.
func (v *Vault) SaveSession(ctx context.Context, sess *types.Session) (*record.StoredSession, error) {
	return v.engine.CreateSession(ctx, sess)
}

// GetSession loads a session by ID.
func (v *Vault) GetSession(ctx context.Context, id string) (*record.StoredSession, error) {
	return v.engine.GetSession(ctx, id)
}

// UpdateSession applies a patch to an existing session.
func (v *Vault) UpdateSession(ctx context.Context, id string, patch storage.SessionPatch) (*record.StoredSession, error) {
	return v.engine.UpdateSession(ctx, id, patch)
}

// DeleteSession removes a session together with its tabs, events, and
// boundaries.
func (v *Vault) DeleteSession(ctx context.Context, id string) error {
	return v.engine.DeleteSession(ctx, id)
}

// QuerySessions runs a filtered, paginated session query.
func (v *Vault) QuerySessions(ctx context.Context, f storage.SessionFilter, page storage.Page) ([]*record.StoredSession, error) {
	return v.engine.QuerySessions(ctx, f, page)
}

// SaveTab persists a new tab under a session.
func (v *Vault) SaveTab(ctx context.Context, tab *types.Tab, sessionID string) (*record.StoredTab, error) {
	return v.engine.CreateTab(ctx, tab, sessionID)
}

// GetTab loads a tab by ID.
func (v *Vault) GetTab(ctx context.Context, id int64) (*record.StoredTab, error) {
	return v.engine.GetTab(ctx, id)
}

// UpdateTab applies a patch to an existing tab.
func (v *Vault) UpdateTab(ctx context.Context, id int64, patch storage.TabPatch) (*record.StoredTab, error) {
	return v.engine.UpdateTab(ctx, id, patch)
}

// DeleteTab removes a tab. Its navigation events are kept.
func (v *Vault) DeleteTab(ctx context.Context, id int64) error {
	return v.engine.DeleteTab(ctx, id)
}

// QueryTabs runs a filtered, paginated tab query.
func (v *Vault) QueryTabs(ctx context.Context, f storage.TabFilter, page storage.Page) ([]*record.StoredTab, error) {
	return v.engine.QueryTabs(ctx, f, page)
}

// RecordNavigation persists a single navigation event.
func (v *Vault) RecordNavigation(ctx context.Context, ev *types.NavigationEvent, sessionID string) (*record.StoredNavigationEvent, error) {
	return v.engine.CreateEvent(ctx, ev, sessionID)
}

// RecordNavigationBatch persists a batch of navigation events. It returns
// the number of stored events and the batch ID.
func (v *Vault) RecordNavigationBatch(ctx context.Context, evs []types.NavigationEvent, sessionID string) (int, string, error) {
	return v.engine.CreateEventBatch(ctx, evs, sessionID)
}

// QueryEvents runs a filtered, paginated navigation-event query.
func (v *Vault) QueryEvents(ctx context.Context, f storage.EventFilter, page storage.Page) ([]*record.StoredNavigationEvent, error) {
	return v.engine.QueryEvents(ctx, f, page)
}

// RecordBoundary persists a session boundary marker.
func (v *Vault) RecordBoundary(ctx context.Context, b *types.SessionBoundary) (*record.StoredBoundary, error) {
	return v.engine.CreateBoundary(ctx, b)
}

// ListBoundaries returns boundaries for one session, or all when
// sessionID is empty.
func (v *Vault) ListBoundaries(ctx context.Context, sessionID string) ([]*record.StoredBoundary, error) {
	return v.engine.ListBoundaries(ctx, sessionID)
}

// Stats reports store-level counters and logs a readable summary.
func (v *Vault) Stats(ctx context.Context) (*storage.StorageStats, error) {
	stats, err := v.engine.Stats(ctx)
	if err != nil {
		return nil, err
	}
	v.logger.Debug("storage stats",
		zap.Int64("sessions", stats.Sessions),
		zap.Int64("tabs", stats.Tabs),
		zap.Int64("events", stats.NavigationEvents),
		zap.String("size", humanize.Bytes(uint64(stats.StorageSize))),
		zap.String("integrity", stats.IntegrityStatus))
	return stats, nil
}

// ValidateStore runs a full integrity sweep.
func (v *Vault) ValidateStore(ctx context.Context) (*integrity.Result, error) {
	return v.validator.SweepStore(ctx)
}

// Repair sweeps the store and auto-corrects what it can. When persist is
// true the corrected record set is written back through the backup
// re-ingest path, overwriting the affected rows.
func (v *Vault) Repair(ctx context.Context, persist bool) (*integrity.Result, error) {
	cols, err := v.validator.LoadCollections(ctx)
	if err != nil {
		return nil, err
	}
	result, err := v.validator.SweepStore(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) == 0 {
		return result, nil
	}

	remaining, corrected := v.validator.AutoCorrect(ctx, result.Errors, cols)
	result.Errors = remaining
	result.CorrectedItems = corrected
	result.IsValid = len(remaining) == 0

	if persist && corrected > 0 {
		if err := v.engine.ReingestBackup(ctx, cols.Payload()); err != nil {
			return result, fmt.Errorf("persisting corrections: %w", err)
		}
	}

	v.logger.Info("store repair finished",
		zap.Int("corrected", corrected),
		zap.Int("remaining_errors", len(remaining)),
		zap.Bool("persisted", persist && corrected > 0))
	return result, nil
}

// CreateBackup snapshots the full record set.
func (v *Vault) CreateBackup(ctx context.Context) (*record.BackupManifest, error) {
	cols, err := v.validator.LoadCollections(ctx)
	if err != nil {
		return nil, err
	}
	return v.validator.CreateBackup(ctx, cols.Payload())
}

// ListBackups returns the stored backup manifests, newest first.
func (v *Vault) ListBackups(ctx context.Context) ([]record.BackupManifest, error) {
	return v.validator.ListBackups(ctx)
}

// RestoreBackup loads a backup and, when reingest is true, writes its
// records back into the store, overwriting rows that drifted since the
// snapshot. Records created after the backup are left alone.
func (v *Vault) RestoreBackup(ctx context.Context, id string, reingest bool) (*record.BackupPayload, error) {
	payload, err := v.validator.RestoreFromBackup(ctx, id)
	if err != nil {
		return nil, err
	}
	if reingest {
		if err := v.engine.ReingestBackup(ctx, payload); err != nil {
			return nil, fmt.Errorf("re-ingesting backup %s: %w", id, err)
		}
	}
	return payload, nil
}

// MigrationStatus reports the store's schema version state.
func (v *Vault) MigrationStatus(ctx context.Context) (*migrate.VersionInfo, error) {
	return v.migrator.VersionInfo(ctx)
}

// backupDue reports whether the periodic backup interval has elapsed
// since the newest stored backup.
func (v *Vault) backupDue(ctx context.Context, now time.Time) (bool, error) {
	interval := v.cfg.ValidatorOptions().BackupInterval
	if interval <= 0 {
		return false, nil
	}
	manifests, err := v.validator.ListBackups(ctx)
	if err != nil {
		return false, err
	}
	if len(manifests) == 0 {
		return true, nil
	}
	return now.Sub(manifests[0].CreatedAt) >= interval, nil
}
