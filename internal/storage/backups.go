package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/record"
)

// The backups table is engine-owned plumbing for the integrity layer; it is
// deliberately not a registry container and never participates in the
// domain schema or its migrations.
func (e *Engine) createBackupTable(ctx context.Context, db *sql.DB) error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS backups (
		    backup_id TEXT NOT NULL,
		    created_at TEXT NOT NULL,
		    schema_version INTEGER NOT NULL,
		    session_count INTEGER NOT NULL DEFAULT 0,
		    tab_count INTEGER NOT NULL DEFAULT 0,
		    event_count INTEGER NOT NULL DEFAULT 0,
		    boundary_count INTEGER NOT NULL DEFAULT 0,
		    checksum TEXT NOT NULL,
		    payload BLOB NOT NULL,
		    PRIMARY KEY (backup_id)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_backups_created ON backups(created_at)",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create backups table: %w", err)
		}
	}
	return nil
}

// SaveBackup persists a backup manifest with its payload bytes.
func (e *Engine) SaveBackup(ctx context.Context, m *record.BackupManifest, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO backups (backup_id, created_at, schema_version, session_count,
		                     tab_count, event_count, boundary_count, checksum, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, fmtTime(m.CreatedAt), m.SchemaVersion, m.SessionCount,
		m.TabCount, m.EventCount, m.BoundaryCount, m.Checksum, payload)
	if err != nil {
		return fmt.Errorf("save backup %s: %w", m.ID, err)
	}
	return nil
}

// ListBackupManifests returns all manifests, newest first, without payloads.
func (e *Engine) ListBackupManifests(ctx context.Context) ([]record.BackupManifest, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT backup_id, created_at, schema_version, session_count,
		       tab_count, event_count, boundary_count, checksum
		FROM backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	manifests := []record.BackupManifest{}
	for rows.Next() {
		var m record.BackupManifest
		var created string
		if err := rows.Scan(&m.ID, &created, &m.SchemaVersion, &m.SessionCount,
			&m.TabCount, &m.EventCount, &m.BoundaryCount, &m.Checksum); err != nil {
			return nil, fmt.Errorf("scan backup manifest: %w", err)
		}
		m.CreatedAt, _ = parseTime(created)
		manifests = append(manifests, m)
	}
	return manifests, rows.Err()
}

// GetBackup loads one manifest together with its payload bytes.
func (e *Engine) GetBackup(ctx context.Context, id string) (*record.BackupManifest, []byte, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	var m record.BackupManifest
	var created string
	var payload []byte
	err := e.db.QueryRowContext(ctx, `
		SELECT backup_id, created_at, schema_version, session_count,
		       tab_count, event_count, boundary_count, checksum, payload
		FROM backups WHERE backup_id = ?`, id).Scan(
		&m.ID, &created, &m.SchemaVersion, &m.SessionCount,
		&m.TabCount, &m.EventCount, &m.BoundaryCount, &m.Checksum, &payload)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	m.CreatedAt, _ = parseTime(created)
	return &m, payload, nil
}

// PruneBackups deletes the oldest backups until at most keep remain,
// returning how many were removed.
func (e *Engine) PruneBackups(ctx context.Context, keep int) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	res, err := e.db.ExecContext(ctx, `
		DELETE FROM backups WHERE backup_id NOT IN (
		    SELECT backup_id FROM backups ORDER BY created_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune backups: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ReingestBackup writes restored collections back into the store,
// replacing rows that still exist. It is the second half of a restore; the
// validator's RestoreFromBackup only returns collections.
func (e *Engine) ReingestBackup(ctx context.Context, p *record.BackupPayload) error {
	if err := e.ready(); err != nil {
		return err
	}
	start := time.Now()

	for _, st := range p.Sessions {
		payload, err := e.ser.EncodeSession(st)
		if err != nil {
			return err
		}
		if _, err := e.db.ExecContext(ctx,
			"DELETE FROM sessions WHERE session_id = ?", st.ID); err != nil {
			return fmt.Errorf("reingest session %s: %w", st.ID, err)
		}
		if err := insertSessionRow(ctx, e.db, st, payload); err != nil {
			return err
		}
		if err := e.replaceSessionDomains(ctx, e.db, st.ID, st.Domains); err != nil {
			return err
		}
		e.cache.Remove(st.ID)
	}
	for _, st := range p.Tabs {
		payload, err := e.ser.EncodeTab(st)
		if err != nil {
			return err
		}
		if _, err := e.db.ExecContext(ctx,
			"DELETE FROM tabs WHERE tab_id = ?", st.Tab.ID); err != nil {
			return fmt.Errorf("reingest tab %d: %w", st.Tab.ID, err)
		}
		if _, err := e.db.ExecContext(ctx, `
			INSERT INTO tabs (tab_id, session_id, window_id, url, domain, created_at, last_accessed,
			                  activity_count, navigation_count, version, last_modified,
			                  size_bytes, compressed, checksum, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.Tab.ID, st.SessionID, st.WindowID, st.URL, st.Domain,
			fmtTime(st.CreatedAt), fmtTime(st.LastAccessed),
			st.ActivityCount, st.NavigationCount, st.Version, fmtTime(st.LastModified),
			st.Size, st.Compressed, st.Checksum, payload); err != nil {
			return fmt.Errorf("reingest tab %d: %w", st.Tab.ID, err)
		}
	}
	for _, st := range p.Events {
		payload, err := e.ser.EncodeEvent(st)
		if err != nil {
			return err
		}
		if _, err := e.db.ExecContext(ctx,
			"DELETE FROM navigation_events WHERE tab_id = ? AND ts = ?",
			st.TabID, fmtTime(st.Timestamp)); err != nil {
			return fmt.Errorf("reingest event (%d,%s): %w", st.TabID, fmtTime(st.Timestamp), err)
		}
		if err := insertEventRow(ctx, e.db, st, payload); err != nil {
			return err
		}
	}
	for _, st := range p.Boundaries {
		if _, err := e.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO session_boundaries (session_id, ts, reason, tab_count,
			                                           window_count, version, checksum, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			st.SessionID, fmtTime(st.Timestamp), string(st.Reason), st.TabCount,
			st.WindowCount, st.Version, st.Checksum, mustJSON(st)); err != nil {
			return fmt.Errorf("reingest boundary (%s,%s): %w", st.SessionID, fmtTime(st.Timestamp), err)
		}
	}

	if err := e.RefreshCounters(ctx); err != nil {
		return err
	}
	e.logger.Info("backup reingested",
		zap.Duration("took", time.Since(start)),
		zap.Int("sessions", len(p.Sessions)),
		zap.Int("tabs", len(p.Tabs)),
		zap.Int("events", len(p.Events)),
		zap.Int("boundaries", len(p.Boundaries)))
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
