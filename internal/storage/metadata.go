package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
)

// counterDelta adjusts the running totals in the metadata record.
type counterDelta struct {
	sessions, tabs, events, boundaries int64
}

// SchemaVersion reads the highest stamped schema version; 0 means the store
// has never been migrated.
func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return schemaVersionOf(ctx, e.db)
}

func schemaVersionOf(ctx context.Context, q querier) (int, error) {
	var v sql.NullInt64
	err := q.QueryRowContext(ctx,
		"SELECT MAX(schema_version) FROM vault_metadata").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// StampSchemaVersion records that the store is now at version v, carrying
// the running counters forward from the previous version's row and
// dropping the superseded row. The migration manager calls this after a
// successful upgrade; the engine itself never stamps.
func (e *Engine) StampSchemaVersion(ctx context.Context, v int) error {
	if err := e.ready(); err != nil {
		return err
	}
	md, err := e.Metadata(ctx)
	if err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_metadata (schema_version, session_count, tab_count, event_count,
		                            boundary_count, storage_size, last_check_at, last_check_ok, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schema_version) DO UPDATE SET updated_at = excluded.updated_at`,
		v, md.SessionCount, md.TabCount, md.EventCount, md.BoundaryCount,
		md.StorageSize, fmtTime(md.LastCheckAt), md.LastCheckOK, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("stamp schema version %d: %w", v, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vault_metadata WHERE schema_version < ?", v); err != nil {
		return fmt.Errorf("stamp schema version %d: %w", v, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("stamp schema version %d: %w", v, err)
	}
	return nil
}

// Metadata loads the metadata record for the current (highest) version. A
// never-migrated store yields a zero-valued record.
func (e *Engine) Metadata(ctx context.Context) (*record.VaultMetadata, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	md := &record.VaultMetadata{}
	var lastCheck, updated sql.NullString
	err := e.db.QueryRowContext(ctx, `
		SELECT schema_version, session_count, tab_count, event_count, boundary_count,
		       storage_size, last_check_at, last_check_ok, updated_at
		FROM vault_metadata
		ORDER BY schema_version DESC LIMIT 1`).Scan(
		&md.SchemaVersion, &md.SessionCount, &md.TabCount, &md.EventCount,
		&md.BoundaryCount, &md.StorageSize, &lastCheck, &md.LastCheckOK, &updated)
	if err == sql.ErrNoRows {
		return md, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	if lastCheck.Valid {
		md.LastCheckAt, _ = parseTime(lastCheck.String)
	}
	if updated.Valid {
		md.UpdatedAt, _ = parseTime(updated.String)
	}
	return md, nil
}

// RecordIntegrityCheck stores the outcome of the last integrity sweep.
func (e *Engine) RecordIntegrityCheck(ctx context.Context, ok bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.db.ExecContext(ctx, `
		UPDATE vault_metadata SET last_check_at = ?, last_check_ok = ?, updated_at = ?
		WHERE schema_version = (SELECT MAX(schema_version) FROM vault_metadata)`,
		fmtTime(time.Now()), ok, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record integrity check: %w", err)
	}
	return nil
}

// adjustCounters applies a delta to the metadata row keyed at the stamped
// version. An unstamped store keeps its counters in a version-0 row so
// reading the version back still reports 0 until a migration stamps.
func (e *Engine) adjustCounters(ctx context.Context, q querier, d counterDelta) error {
	version, err := schemaVersionOf(ctx, q)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO vault_metadata (schema_version, session_count, tab_count, event_count,
		                            boundary_count, storage_size, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(schema_version) DO UPDATE SET
			session_count = MAX(0, vault_metadata.session_count + excluded.session_count),
			tab_count = MAX(0, vault_metadata.tab_count + excluded.tab_count),
			event_count = MAX(0, vault_metadata.event_count + excluded.event_count),
			boundary_count = MAX(0, vault_metadata.boundary_count + excluded.boundary_count),
			updated_at = excluded.updated_at`,
		version, d.sessions, d.tabs, d.events, d.boundaries, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("adjust counters: %w", err)
	}
	return nil
}

// RefreshCounters recounts every container and rewrites the metadata
// totals, together with the storage size estimate. It repairs drift after
// crashes or interrupted cascades.
func (e *Engine) RefreshCounters(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	counts := make(map[string]int64, 4)
	for _, table := range []string{
		schema.ContainerSessions, schema.ContainerTabs,
		schema.ContainerEvents, schema.ContainerBoundaries,
	} {
		var n int64
		if err := e.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}

	size, err := e.storageSize(ctx)
	if err != nil {
		e.logger.Warn("storage size estimate failed", zap.Error(err))
	}
	if e.opts.MaxStorageSize > 0 && size > e.opts.MaxStorageSize {
		e.logger.Warn("store exceeds configured size limit",
			zap.Int64("size", size), zap.Int64("limit", e.opts.MaxStorageSize))
	}

	version, err := schemaVersionOf(ctx, e.db)
	if err != nil {
		return err
	}
	_, err = e.db.ExecContext(ctx, `
		INSERT INTO vault_metadata (schema_version, session_count, tab_count, event_count,
		                            boundary_count, storage_size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(schema_version) DO UPDATE SET
			session_count = excluded.session_count,
			tab_count = excluded.tab_count,
			event_count = excluded.event_count,
			boundary_count = excluded.boundary_count,
			storage_size = excluded.storage_size,
			updated_at = excluded.updated_at`,
		version,
		counts[schema.ContainerSessions], counts[schema.ContainerTabs],
		counts[schema.ContainerEvents], counts[schema.ContainerBoundaries],
		size, fmtTime(time.Now()))
	if err != nil {
		return fmt.Errorf("refresh counters: %w", err)
	}
	return nil
}

func (e *Engine) storageSize(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := e.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := e.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// StorageStats is the outward-facing summary of the store.
type StorageStats struct {
	Sessions         int64
	Tabs             int64
	NavigationEvents int64
	Boundaries       int64
	StorageSize      int64
	OldestRecord     time.Time
	NewestRecord     time.Time
	IntegrityStatus  string
}

// Stats aggregates container counts, the time range covered, and the last
// integrity-check outcome.
func (e *Engine) Stats(ctx context.Context) (*StorageStats, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	stats := &StorageStats{IntegrityStatus: "unknown"}

	for _, c := range []struct {
		table string
		dst   *int64
	}{
		{schema.ContainerSessions, &stats.Sessions},
		{schema.ContainerTabs, &stats.Tabs},
		{schema.ContainerEvents, &stats.NavigationEvents},
		{schema.ContainerBoundaries, &stats.Boundaries},
	} {
		if err := e.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	if stats.Sessions > 0 {
		var oldest, newest sql.NullString
		err := e.db.QueryRowContext(ctx,
			"SELECT MIN(created_at), MAX(updated_at) FROM sessions").Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("session time range: %w", err)
		}
		if oldest.Valid {
			stats.OldestRecord, _ = parseTime(oldest.String)
		}
		if newest.Valid {
			stats.NewestRecord, _ = parseTime(newest.String)
		}
	}

	size, err := e.storageSize(ctx)
	if err == nil {
		stats.StorageSize = size
	}

	md, err := e.Metadata(ctx)
	if err == nil && !md.LastCheckAt.IsZero() {
		if md.LastCheckOK {
			stats.IntegrityStatus = "ok"
		} else {
			stats.IntegrityStatus = "degraded"
		}
	}
	return stats, nil
}

// CleanupStaleSessions cascade-deletes sessions whose last update is older
// than MaxSessionAge. A zero MaxSessionAge disables the cleanup.
func (e *Engine) CleanupStaleSessions(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.opts.MaxSessionAge <= 0 {
		return nil
	}
	cutoff := fmtTime(time.Now().Add(-e.opts.MaxSessionAge))

	rows, err := e.db.QueryContext(ctx,
		"SELECT session_id FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("find stale sessions: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan stale session: %w", err)
		}
		stale = append(stale, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if err := e.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("delete stale session %s: %w", id, err)
		}
	}
	if len(stale) > 0 {
		e.logger.Info("stale sessions removed", zap.Int("count", len(stale)))
	}
	return nil
}
