package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/pkg/types"
)

// CreateEvent persists a single navigation event under the given session.
// Neither the session nor the tab is required to exist yet.
func (e *Engine) CreateEvent(ctx context.Context, ev *types.NavigationEvent, sessionID string) (*record.StoredNavigationEvent, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	stored, payload, err := e.prepareEvent(ev, sessionID, "")
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertEventRow(ctx, tx, stored, payload); err != nil {
		return nil, err
	}
	if err := e.bumpTabNavigation(ctx, tx, ev.TabID); err != nil {
		return nil, err
	}
	if err := e.adjustCounters(ctx, tx, counterDelta{events: 1}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create event (%d,%s): %w", ev.TabID, fmtTime(ev.Timestamp), err)
	}
	return stored, nil
}

// CreateEventBatch persists a coalesced batch of navigation events in
// BatchSize chunks, all stamped with one generated batch ID. It returns the
// number of events written; the first failure aborts the current chunk but
// keeps earlier chunks.
func (e *Engine) CreateEventBatch(ctx context.Context, evs []types.NavigationEvent, sessionID string) (int, string, error) {
	if err := e.ready(); err != nil {
		return 0, "", err
	}
	if len(evs) == 0 {
		return 0, "", nil
	}
	batchID := uuid.NewString()
	size := e.opts.BatchSize
	if size <= 0 {
		size = len(evs)
	}

	written := 0
	for start := 0; start < len(evs); start += size {
		end := min(start+size, len(evs))

		tx, err := e.db.BeginTx(ctx, nil)
		if err != nil {
			return written, batchID, fmt.Errorf("begin tx: %w", err)
		}
		chunk := 0
		for i := start; i < end; i++ {
			stored, payload, err := e.prepareEvent(&evs[i], sessionID, batchID)
			if err == nil {
				err = insertEventRow(ctx, tx, stored, payload)
			}
			if err != nil {
				_ = tx.Rollback()
				return written, batchID, err
			}
			chunk++
		}
		if err := e.adjustCounters(ctx, tx, counterDelta{events: int64(chunk)}); err != nil {
			_ = tx.Rollback()
			return written, batchID, err
		}
		if err := tx.Commit(); err != nil {
			return written, batchID, fmt.Errorf("commit event batch: %w", err)
		}
		written += chunk
	}
	return written, batchID, nil
}

func (e *Engine) prepareEvent(ev *types.NavigationEvent, sessionID, batchID string) (*record.StoredNavigationEvent, []byte, error) {
	if err := e.registry.CheckKeyShape(schema.ContainerEvents, map[string]any{
		"tab_id": ev.TabID,
		"ts":     fmtTime(ev.Timestamp),
	}); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if ev.Timestamp.IsZero() {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidShape, types.ErrInvalidTimestamp)
	}
	if err := ev.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return e.ser.SerializeEvent(ev, sessionID, batchID)
}

func insertEventRow(ctx context.Context, q querier, st *record.StoredNavigationEvent, payload []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO navigation_events (tab_id, ts, session_id, url, domain, transition_type,
		                               batch_id, version, checksum, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.TabID, fmtTime(st.Timestamp), st.SessionID, st.URL, st.Domain,
		string(st.TransitionType), st.BatchID, st.Version, st.Checksum, payload)
	if err != nil {
		return fmt.Errorf("insert event (%d,%s): %w", st.TabID, fmtTime(st.Timestamp), mapConstraint(err))
	}
	return nil
}

// bumpTabNavigation updates the owning tab's navigation summary columns.
// The tab may not exist yet; that is not an error here.
func (e *Engine) bumpTabNavigation(ctx context.Context, q querier, tabID int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE tabs SET navigation_count = navigation_count + 1, last_modified = ?
		WHERE tab_id = ?`, fmtTime(time.Now()), tabID)
	if err != nil {
		return fmt.Errorf("bump tab %d navigation count: %w", tabID, err)
	}
	return nil
}

// GetEvent loads one navigation event by its composite key.
func (e *Engine) GetEvent(ctx context.Context, tabID int64, ts time.Time) (*record.StoredNavigationEvent, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var payload []byte
	err := e.db.QueryRowContext(ctx,
		"SELECT payload FROM navigation_events WHERE tab_id = ? AND ts = ?",
		tabID, fmtTime(ts)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event (%d,%s): %w", tabID, fmtTime(ts), err)
	}
	return e.ser.DecodeEvent(payload, false)
}

// DeleteEvent removes one navigation event; ErrNotFound when absent.
func (e *Engine) DeleteEvent(ctx context.Context, tabID int64, ts time.Time) error {
	if err := e.ready(); err != nil {
		return err
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		"DELETE FROM navigation_events WHERE tab_id = ? AND ts = ?", tabID, fmtTime(ts))
	if err != nil {
		return fmt.Errorf("delete event (%d,%s): %w", tabID, fmtTime(ts), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := e.adjustCounters(ctx, tx, counterDelta{events: -1}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListAllEvents loads every stored navigation event up to the scan cap.
func (e *Engine) ListAllEvents(ctx context.Context) ([]*record.StoredNavigationEvent, error) {
	return e.QueryEvents(ctx, EventFilter{}, Page{Limit: ScanCap})
}
