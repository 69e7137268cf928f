package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tabvault/tabvault/internal/record"
)

// ScanCap bounds how many rows any single query examines. It forces an
// early return on pathological filters; results past the cap are simply not
// seen. An approximation, not a correctness guarantee for very large
// stores.
const ScanCap = 10000

// Order controls result ordering by the chosen index column.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Page carries paging options for query operations.
type Page struct {
	Limit  int
	Offset int
	Order  Order
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > ScanCap {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order == "" {
		p.Order = OrderDesc
	}
	return p
}

func (p Page) direction() string {
	if p.Order == OrderAsc {
		return "ASC"
	}
	return "DESC"
}

// SessionFilter narrows a session query. Date ranges are inclusive on both
// ends. SearchText is simple substring matching over tag, tab titles, tab
// URLs, and notes.
type SessionFilter struct {
	Tag           string
	Domain        string
	SearchText    string
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// TabFilter narrows a tab query.
type TabFilter struct {
	SessionID     string
	WindowID      int64
	Domain        string
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// EventFilter narrows a navigation-event query.
type EventFilter struct {
	SessionID string
	TabID     int64
	Domain    string
	After     time.Time
	Before    time.Time
}

// queryPlan is the outcome of deterministic index selection.
type queryPlan struct {
	where   []string
	args    []any
	orderBy string
	index   string
}

func (p *queryPlan) whereSQL() string {
	if len(p.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.where, " AND ")
}

// planSessions picks the session index in priority order: date range first,
// then the tag equality index, then the updated-at fallback scanned newest
// first.
func planSessions(f SessionFilter, page Page) *queryPlan {
	p := &queryPlan{}
	switch {
	case !f.CreatedAfter.IsZero() || !f.CreatedBefore.IsZero():
		p.index = "idx_sessions_created"
		p.orderBy = "created_at " + page.direction()
		if !f.CreatedAfter.IsZero() {
			p.where = append(p.where, "created_at >= ?")
			p.args = append(p.args, fmtTime(f.CreatedAfter))
		}
		if !f.CreatedBefore.IsZero() {
			p.where = append(p.where, "created_at <= ?")
			p.args = append(p.args, fmtTime(f.CreatedBefore))
		}
		if f.Tag != "" {
			p.where = append(p.where, "tag = ?")
			p.args = append(p.args, f.Tag)
		}
	case f.Tag != "":
		p.index = "idx_sessions_tag"
		p.orderBy = "updated_at " + page.direction()
		p.where = append(p.where, "tag = ?")
		p.args = append(p.args, f.Tag)
	default:
		p.index = "idx_sessions_updated"
		p.orderBy = "updated_at " + page.direction()
	}
	if f.Domain != "" {
		p.where = append(p.where,
			"EXISTS (SELECT 1 FROM sessions_domain d WHERE d.session_id = sessions.session_id AND d.domain = ?)")
		p.args = append(p.args, f.Domain)
	}
	return p
}

// QuerySessions returns stored sessions matching the filter. Matches
// accumulate until the page limit, skipping the first Offset matches; the
// scan cap bounds the rows examined.
func (e *Engine) QuerySessions(ctx context.Context, f SessionFilter, page Page) ([]*record.StoredSession, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	page = page.normalize()
	plan := planSessions(f, page)

	query := fmt.Sprintf(
		"SELECT payload, compressed FROM sessions%s ORDER BY %s LIMIT %d",
		plan.whereSQL(), plan.orderBy, e.scanCap)

	rows, err := e.db.QueryContext(ctx, query, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	results := make([]*record.StoredSession, 0, page.Limit)
	scanned, skipped := 0, 0
	for rows.Next() {
		scanned++
		if scanned > e.scanCap {
			break
		}
		var payload []byte
		var compressed bool
		if err := rows.Scan(&payload, &compressed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		st, err := e.ser.DecodeSession(payload, compressed)
		if err != nil {
			return nil, err
		}
		if f.SearchText != "" && !matchSessionText(st, f.SearchText) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		results = append(results, st)
		if len(results) >= page.Limit {
			break
		}
	}
	return results, rows.Err()
}

// matchSessionText is the substring search over a decoded session. It is
// deliberately simple: no tokenization, no ranking.
func matchSessionText(st *record.StoredSession, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(st.Tag), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(st.Metadata.Notes), needle) {
		return true
	}
	for i := range st.Tabs {
		if strings.Contains(strings.ToLower(st.Tabs[i].Title), needle) ||
			strings.Contains(strings.ToLower(st.Tabs[i].URL), needle) {
			return true
		}
	}
	return false
}

// planTabs: date range, then session/window equality, then domain, then
// the created-at fallback.
func planTabs(f TabFilter, page Page) *queryPlan {
	p := &queryPlan{}
	switch {
	case !f.CreatedAfter.IsZero() || !f.CreatedBefore.IsZero():
		p.index = "idx_tabs_created"
		p.orderBy = "created_at " + page.direction()
		if !f.CreatedAfter.IsZero() {
			p.where = append(p.where, "created_at >= ?")
			p.args = append(p.args, fmtTime(f.CreatedAfter))
		}
		if !f.CreatedBefore.IsZero() {
			p.where = append(p.where, "created_at <= ?")
			p.args = append(p.args, fmtTime(f.CreatedBefore))
		}
	case f.SessionID != "":
		p.index = "idx_tabs_session"
		p.orderBy = "created_at " + page.direction()
	case f.WindowID != 0:
		p.index = "idx_tabs_window"
		p.orderBy = "created_at " + page.direction()
	case f.Domain != "":
		p.index = "idx_tabs_domain"
		p.orderBy = "created_at " + page.direction()
	default:
		p.index = "idx_tabs_created"
		p.orderBy = "created_at " + page.direction()
	}
	if f.SessionID != "" {
		p.where = append(p.where, "session_id = ?")
		p.args = append(p.args, f.SessionID)
	}
	if f.WindowID != 0 {
		p.where = append(p.where, "window_id = ?")
		p.args = append(p.args, f.WindowID)
	}
	if f.Domain != "" {
		p.where = append(p.where, "domain = ?")
		p.args = append(p.args, f.Domain)
	}
	return p
}

// QueryTabs returns stored tabs matching the filter.
func (e *Engine) QueryTabs(ctx context.Context, f TabFilter, page Page) ([]*record.StoredTab, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	page = page.normalize()
	plan := planTabs(f, page)

	query := fmt.Sprintf(
		"SELECT payload, compressed FROM tabs%s ORDER BY %s LIMIT %d",
		plan.whereSQL(), plan.orderBy, e.scanCap)

	rows, err := e.db.QueryContext(ctx, query, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	defer rows.Close()

	results := make([]*record.StoredTab, 0, page.Limit)
	scanned, skipped := 0, 0
	for rows.Next() {
		scanned++
		if scanned > e.scanCap {
			break
		}
		var payload []byte
		var compressed bool
		if err := rows.Scan(&payload, &compressed); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		st, err := e.ser.DecodeTab(payload, compressed)
		if err != nil {
			return nil, err
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		results = append(results, st)
		if len(results) >= page.Limit {
			break
		}
	}
	return results, rows.Err()
}

// planEvents: date range, then tab/session equality, then domain, then the
// timestamp fallback.
func planEvents(f EventFilter, page Page) *queryPlan {
	p := &queryPlan{}
	switch {
	case !f.After.IsZero() || !f.Before.IsZero():
		p.index = "idx_events_ts"
		p.orderBy = "ts " + page.direction()
		if !f.After.IsZero() {
			p.where = append(p.where, "ts >= ?")
			p.args = append(p.args, fmtTime(f.After))
		}
		if !f.Before.IsZero() {
			p.where = append(p.where, "ts <= ?")
			p.args = append(p.args, fmtTime(f.Before))
		}
	case f.TabID != 0:
		p.index = "idx_events_tab"
		p.orderBy = "ts " + page.direction()
	case f.SessionID != "":
		p.index = "idx_events_session"
		p.orderBy = "ts " + page.direction()
	case f.Domain != "":
		p.index = "idx_events_domain"
		p.orderBy = "ts " + page.direction()
	default:
		p.index = "idx_events_ts"
		p.orderBy = "ts " + page.direction()
	}
	if f.TabID != 0 {
		p.where = append(p.where, "tab_id = ?")
		p.args = append(p.args, f.TabID)
	}
	if f.SessionID != "" {
		p.where = append(p.where, "session_id = ?")
		p.args = append(p.args, f.SessionID)
	}
	if f.Domain != "" {
		p.where = append(p.where, "domain = ?")
		p.args = append(p.args, f.Domain)
	}
	return p
}

// QueryEvents returns stored navigation events matching the filter.
func (e *Engine) QueryEvents(ctx context.Context, f EventFilter, page Page) ([]*record.StoredNavigationEvent, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	page = page.normalize()
	plan := planEvents(f, page)

	query := fmt.Sprintf(
		"SELECT payload FROM navigation_events%s ORDER BY %s LIMIT %d",
		plan.whereSQL(), plan.orderBy, e.scanCap)

	rows, err := e.db.QueryContext(ctx, query, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	results := make([]*record.StoredNavigationEvent, 0, page.Limit)
	scanned, skipped := 0, 0
	for rows.Next() {
		scanned++
		if scanned > e.scanCap {
			break
		}
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		st, err := e.ser.DecodeEvent(payload, false)
		if err != nil {
			return nil, err
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		results = append(results, st)
		if len(results) >= page.Limit {
			break
		}
	}
	return results, rows.Err()
}
