package storage

import (
	"context"
	"fmt"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/pkg/types"
)

// CreateBoundary persists a session start/end marker.
func (e *Engine) CreateBoundary(ctx context.Context, b *types.SessionBoundary) (*record.StoredBoundary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.registry.CheckKeyShape(schema.ContainerBoundaries, map[string]any{
		"session_id": b.SessionID,
		"ts":         fmtTime(b.Timestamp),
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if b.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, types.ErrInvalidTimestamp)
	}

	stored, payload, err := e.ser.SerializeBoundary(b)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_boundaries (session_id, ts, reason, tab_count, window_count,
		                                version, checksum, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.SessionID, fmtTime(stored.Timestamp), string(stored.Reason),
		stored.TabCount, stored.WindowCount, stored.Version, stored.Checksum, payload)
	if err != nil {
		return nil, fmt.Errorf("insert boundary (%s,%s): %w", b.SessionID, fmtTime(b.Timestamp), mapConstraint(err))
	}
	if err := e.adjustCounters(ctx, tx, counterDelta{boundaries: 1}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create boundary: %w", err)
	}
	return stored, nil
}

// ListBoundaries returns the boundaries for one session, oldest first, or
// all boundaries when sessionID is empty.
func (e *Engine) ListBoundaries(ctx context.Context, sessionID string) ([]*record.StoredBoundary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	query := "SELECT payload FROM session_boundaries ORDER BY ts ASC LIMIT ?"
	args := []any{e.scanCap}
	if sessionID != "" {
		query = "SELECT payload FROM session_boundaries WHERE session_id = ? ORDER BY ts ASC LIMIT ?"
		args = []any{sessionID, e.scanCap}
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list boundaries: %w", err)
	}
	defer rows.Close()

	var out []*record.StoredBoundary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan boundary: %w", err)
		}
		b, err := e.ser.DecodeBoundary(payload, false)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
