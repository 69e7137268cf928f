package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/pkg/types"
)

// TabPatch is a partial update merged onto an existing tab. Identity fields
// (ID, URL, owning session, CreatedAt) cannot be patched.
type TabPatch struct {
	Title          *string
	FaviconURL     *string
	LastAccessed   *time.Time
	TimeSpent      *time.Duration
	ScrollPosition *int
	FormData       map[string]string
	ActivityDelta  int
}

// CreateTab persists a tab under the given owning session. The session is
// not required to exist (optimistic insert); ValidateRelationships flags
// orphans afterward.
func (e *Engine) CreateTab(ctx context.Context, tab *types.Tab, sessionID string) (*record.StoredTab, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.registry.CheckKeyShape(schema.ContainerTabs, map[string]any{"tab_id": tab.ID}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if err := tab.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}

	stored, payload, err := e.ser.SerializeTab(tab, sessionID)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tabs (tab_id, session_id, window_id, url, domain, created_at, last_accessed,
		                  activity_count, navigation_count, version, last_modified,
		                  size_bytes, compressed, checksum, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.Tab.ID, stored.SessionID, stored.WindowID, stored.URL, stored.Domain,
		fmtTime(stored.CreatedAt), fmtTime(stored.LastAccessed),
		stored.ActivityCount, stored.NavigationCount,
		stored.Version, fmtTime(stored.LastModified),
		stored.Size, stored.Compressed, stored.Checksum, payload)
	if err != nil {
		return nil, fmt.Errorf("insert tab %d: %w", tab.ID, mapConstraint(err))
	}
	if err := e.adjustCounters(ctx, tx, counterDelta{tabs: 1}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create tab %d: %w", tab.ID, err)
	}
	return stored, nil
}

// GetTab loads a stored tab by its numeric ID.
func (e *Engine) GetTab(ctx context.Context, id int64) (*record.StoredTab, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.getTabRow(ctx, e.db, id)
}

func (e *Engine) getTabRow(ctx context.Context, q querier, id int64) (*record.StoredTab, error) {
	var payload []byte
	var compressed bool
	err := q.QueryRowContext(ctx,
		"SELECT payload, compressed FROM tabs WHERE tab_id = ?", id).
		Scan(&payload, &compressed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tab %d: %w", id, err)
	}
	return e.ser.DecodeTab(payload, compressed)
}

// UpdateTab merges a partial patch onto an existing tab; ErrNotFound when
// the ID is absent.
func (e *Engine) UpdateTab(ctx context.Context, id int64, patch TabPatch) (*record.StoredTab, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	existing, err := e.getTabRow(ctx, e.db, id)
	if err != nil {
		return nil, err
	}

	merged := existing.Tab
	if patch.Title != nil {
		merged.Title = *patch.Title
	}
	if patch.FaviconURL != nil {
		merged.FaviconURL = *patch.FaviconURL
	}
	if patch.LastAccessed != nil {
		merged.LastAccessed = *patch.LastAccessed
	}
	if patch.TimeSpent != nil {
		merged.TimeSpent = *patch.TimeSpent
	}
	if patch.ScrollPosition != nil {
		merged.ScrollPosition = *patch.ScrollPosition
	}
	if patch.FormData != nil {
		merged.FormData = patch.FormData
	}

	stored, _, err := e.ser.SerializeTab(&merged, existing.SessionID)
	if err != nil {
		return nil, err
	}
	stored.Version = existing.Version + 1
	stored.ActivityCount = existing.ActivityCount + patch.ActivityDelta
	stored.NavigationCount = existing.NavigationCount
	stored.LastNavigationAt = existing.LastNavigationAt
	payload, err := e.ser.EncodeTab(stored)
	if err != nil {
		return nil, err
	}

	res, err := e.db.ExecContext(ctx, `
		UPDATE tabs
		SET window_id = ?, url = ?, domain = ?, last_accessed = ?, activity_count = ?,
		    navigation_count = ?, version = ?, last_modified = ?, size_bytes = ?,
		    compressed = ?, checksum = ?, payload = ?
		WHERE tab_id = ?`,
		stored.WindowID, stored.URL, stored.Domain, fmtTime(stored.LastAccessed),
		stored.ActivityCount, stored.NavigationCount, stored.Version,
		fmtTime(stored.LastModified), stored.Size, stored.Compressed,
		stored.Checksum, payload, id)
	if err != nil {
		return nil, fmt.Errorf("update tab %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return stored, nil
}

// DeleteTab removes a single tab; ErrNotFound when the ID is absent. The
// tab's navigation events are kept: tab history legitimately outlives the
// tab.
func (e *Engine) DeleteTab(ctx context.Context, id int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, "DELETE FROM tabs WHERE tab_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete tab %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := e.adjustCounters(ctx, tx, counterDelta{tabs: -1}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListAllTabs loads every stored tab up to the scan cap.
func (e *Engine) ListAllTabs(ctx context.Context) ([]*record.StoredTab, error) {
	return e.QueryTabs(ctx, TabFilter{}, Page{Limit: ScanCap})
}
