package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/pkg/types"
)

// SessionPatch is a partial update merged onto an existing session. Nil
// fields are left unchanged. Identity fields (ID, CreatedAt) cannot be
// patched.
type SessionPatch struct {
	Tag       *string
	Tabs      []types.Tab
	WindowIDs []int64
	Metadata  *types.SessionMetadata
	UpdatedAt *time.Time
}

// CreateSession validates the session's key shape, serializes it, and
// persists it. No referential checks happen here; tabs and events pointing
// at a session that was never created are caught by the validator.
func (e *Engine) CreateSession(ctx context.Context, sess *types.Session) (*record.StoredSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.registry.CheckKeyShape(schema.ContainerSessions, map[string]any{"session_id": sess.ID}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}

	stored, payload, err := e.ser.SerializeSession(sess)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertSessionRow(ctx, tx, stored, payload); err != nil {
		return nil, err
	}
	if err := e.replaceSessionDomains(ctx, tx, stored.ID, stored.Domains); err != nil {
		return nil, err
	}
	if err := e.adjustCounters(ctx, tx, counterDelta{sessions: 1}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sess.ID, err)
	}

	e.cache.Add(stored.ID, stored)
	return stored, nil
}

func insertSessionRow(ctx context.Context, q querier, st *record.StoredSession, payload []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sessions (session_id, tag, created_at, updated_at, version, last_modified,
		                      size_bytes, compressed, tab_count, event_count, checksum, valid, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Tag, fmtTime(st.CreatedAt), fmtTime(st.UpdatedAt),
		st.Version, fmtTime(st.LastModified), st.Size, st.Compressed,
		st.TotalTabCount, st.TotalNavigationEvents, st.Checksum, st.Valid, payload)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", st.ID, mapConstraint(err))
	}
	return nil
}

// replaceSessionDomains rewrites the session's domain side table rows.
// The side table is maintained in every configuration; IndexingEnabled
// only controls whether a secondary index is built over it.
func (e *Engine) replaceSessionDomains(ctx context.Context, q querier, sessionID string, domains []string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM sessions_domain WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear session domains: %w", err)
	}
	for _, d := range domains {
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO sessions_domain (session_id, domain) VALUES (?, ?)",
			sessionID, d); err != nil {
			return fmt.Errorf("index session domain %s: %w", d, err)
		}
	}
	return nil
}

// GetSession loads a stored session by ID, via the read cache when possible.
func (e *Engine) GetSession(ctx context.Context, id string) (*record.StoredSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if st, ok := e.cache.Get(id); ok {
		return st, nil
	}
	st, err := e.getSessionRow(ctx, e.db, id)
	if err != nil {
		return nil, err
	}
	e.cache.Add(id, st)
	return st, nil
}

func (e *Engine) getSessionRow(ctx context.Context, q querier, id string) (*record.StoredSession, error) {
	var payload []byte
	var compressed bool
	err := q.QueryRowContext(ctx,
		"SELECT payload, compressed FROM sessions WHERE session_id = ?", id).
		Scan(&payload, &compressed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return e.ser.DecodeSession(payload, compressed)
}

// UpdateSession merges a partial patch onto an existing session. It fails
// with ErrNotFound when the ID is absent. The stored version is bumped and
// last-modified restamped on every successful update.
func (e *Engine) UpdateSession(ctx context.Context, id string, patch SessionPatch) (*record.StoredSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	existing, err := e.getSessionRow(ctx, e.db, id)
	if err != nil {
		return nil, err
	}

	merged := existing.Session
	if patch.Tag != nil {
		merged.Tag = *patch.Tag
	}
	if patch.Tabs != nil {
		merged.Tabs = patch.Tabs
	}
	if patch.WindowIDs != nil {
		merged.WindowIDs = patch.WindowIDs
	}
	if patch.Metadata != nil {
		merged.Metadata = *patch.Metadata
	}
	if patch.UpdatedAt != nil {
		merged.UpdatedAt = *patch.UpdatedAt
	} else {
		merged.UpdatedAt = time.Now()
	}

	stored, _, err := e.ser.SerializeSession(&merged)
	if err != nil {
		return nil, err
	}
	stored.Version = existing.Version + 1
	payload, err := e.ser.EncodeSession(stored)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET tag = ?, updated_at = ?, version = ?, last_modified = ?, size_bytes = ?,
		    compressed = ?, tab_count = ?, event_count = ?, checksum = ?, valid = ?, payload = ?
		WHERE session_id = ?`,
		stored.Tag, fmtTime(stored.UpdatedAt), stored.Version, fmtTime(stored.LastModified),
		stored.Size, stored.Compressed, stored.TotalTabCount, stored.TotalNavigationEvents,
		stored.Checksum, stored.Valid, payload, id)
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := e.replaceSessionDomains(ctx, tx, id, stored.Domains); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}

	e.cache.Add(id, stored)
	return stored, nil
}

// DeleteSession removes a session and cascades to every tab, navigation
// event, and boundary referencing it, all inside one transaction. A missing
// ID is reported as ErrNotFound, never silently ignored.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	delta := counterDelta{}
	for _, dep := range []struct {
		table string
		count *int64
	}{
		{schema.ContainerTabs, &delta.tabs},
		{schema.ContainerEvents, &delta.events},
		{schema.ContainerBoundaries, &delta.boundaries},
	} {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", dep.table), id)
		if err != nil {
			return fmt.Errorf("cascade delete %s for session %s: %w", dep.table, id, err)
		}
		n, _ := res.RowsAffected()
		*dep.count = -n
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions_domain WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("cascade delete domain index for session %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	delta.sessions = -1

	if err := e.adjustCounters(ctx, tx, delta); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}

	e.cache.Remove(id)
	e.logger.Debug("session deleted",
		zap.String("session_id", id),
		zap.Int64("tabs", -delta.tabs),
		zap.Int64("events", -delta.events),
		zap.Int64("boundaries", -delta.boundaries))
	return nil
}

// ListAllSessions loads every stored session, newest first, up to the scan
// cap. The validator and backup paths use it; interactive callers should
// prefer QuerySessions.
func (e *Engine) ListAllSessions(ctx context.Context) ([]*record.StoredSession, error) {
	return e.QuerySessions(ctx, SessionFilter{}, Page{Limit: ScanCap})
}
