package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/pkg/types"
)

func seedSessions(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		sess := &types.Session{
			ID:        fmt.Sprintf("s%02d", i),
			Tag:       "work",
			CreatedAt: base.AddDate(0, 0, i),
			UpdatedAt: base.AddDate(0, 0, i),
			WindowIDs: []int64{1},
			Tabs: []types.Tab{
				{
					ID:        int64(100 + i),
					URL:       fmt.Sprintf("https://site%d.example.com/page", i%3),
					Title:     fmt.Sprintf("Page %d", i),
					WindowID:  1,
					CreatedAt: base.AddDate(0, 0, i),
				},
			},
		}
		if i >= 7 {
			sess.Tag = "personal"
		}
		_, err := e.CreateSession(ctx, sess)
		require.NoError(t, err)
	}
}

func TestQuerySessions_ByTag(t *testing.T) {
	e := setupTestEngine(t)
	seedSessions(t, e)

	got, err := e.QuerySessions(context.Background(), SessionFilter{Tag: "personal"}, Page{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, s := range got {
		assert.Equal(t, "personal", s.Tag)
	}
}

func TestQuerySessions_DateRangeInclusive(t *testing.T) {
	e := setupTestEngine(t)
	seedSessions(t, e)

	after := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	got, err := e.QuerySessions(context.Background(), SessionFilter{
		CreatedAfter:  after,
		CreatedBefore: before,
	}, Page{Order: OrderAsc})
	require.NoError(t, err)

	// Both endpoints included: s02, s03, s04, s05.
	require.Len(t, got, 4)
	assert.Equal(t, "s02", got[0].ID)
	assert.Equal(t, "s05", got[3].ID)
}

func TestQuerySessions_ByDomain(t *testing.T) {
	e := setupTestEngine(t)
	seedSessions(t, e)

	got, err := e.QuerySessions(context.Background(), SessionFilter{Domain: "site1.example.com"}, Page{})
	require.NoError(t, err)
	assert.Len(t, got, 3) // i = 1, 4, 7
}

func TestQuerySessions_SearchText(t *testing.T) {
	e := setupTestEngine(t)
	seedSessions(t, e)

	got, err := e.QuerySessions(context.Background(), SessionFilter{SearchText: "page 4"}, Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s04", got[0].ID)

	// Substring match over URLs too.
	got, err = e.QuerySessions(context.Background(), SessionFilter{SearchText: "site2.example"}, Page{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestQuerySessions_LimitOffset(t *testing.T) {
	e := setupTestEngine(t)
	seedSessions(t, e)
	ctx := context.Background()

	page1, err := e.QuerySessions(ctx, SessionFilter{}, Page{Limit: 4, Order: OrderAsc})
	require.NoError(t, err)
	require.Len(t, page1, 4)

	page2, err := e.QuerySessions(ctx, SessionFilter{}, Page{Limit: 4, Offset: 4, Order: OrderAsc})
	require.NoError(t, err)
	require.Len(t, page2, 4)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)
}

func TestQuerySessions_DefaultNewestFirst(t *testing.T) {
	e := setupTestEngine(t)
	seedSessions(t, e)

	got, err := e.QuerySessions(context.Background(), SessionFilter{}, Page{})
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, "s09", got[0].ID)
	assert.Equal(t, "s00", got[9].ID)
}

func TestQueryTabs(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 6; i++ {
		tab := &types.Tab{
			ID:        int64(200 + i),
			URL:       fmt.Sprintf("https://tabs%d.example.net/x", i%2),
			Title:     "t",
			WindowID:  int64(1 + i%2),
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}
		sessionID := "sA"
		if i >= 4 {
			sessionID = "sB"
		}
		_, err := e.CreateTab(ctx, tab, sessionID)
		require.NoError(t, err)
	}

	bySession, err := e.QueryTabs(ctx, TabFilter{SessionID: "sA"}, Page{})
	require.NoError(t, err)
	assert.Len(t, bySession, 4)

	byWindow, err := e.QueryTabs(ctx, TabFilter{WindowID: 2}, Page{})
	require.NoError(t, err)
	assert.Len(t, byWindow, 3)

	byDomain, err := e.QueryTabs(ctx, TabFilter{Domain: "tabs1.example.net"}, Page{})
	require.NoError(t, err)
	assert.Len(t, byDomain, 3)
}

func TestQueryEvents_TimeRange(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		_, err := e.CreateEvent(ctx, &types.NavigationEvent{
			TabID:          5,
			URL:            "https://example.com/seq",
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
			TransitionType: types.TransitionLink,
		}, "s1")
		require.NoError(t, err)
	}

	got, err := e.QueryEvents(ctx, EventFilter{
		TabID:  5,
		After:  base.Add(2 * time.Hour),
		Before: base.Add(5 * time.Hour),
	}, Page{Order: OrderAsc})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.True(t, got[0].Timestamp.Equal(base.Add(2*time.Hour)))
	assert.True(t, got[3].Timestamp.Equal(base.Add(5*time.Hour)))
}

func TestQueryEvents_ByDomain(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, u := range []string{
		"https://a.example.com/1",
		"https://b.example.com/2",
		"https://a.example.com/3",
	} {
		_, err := e.CreateEvent(ctx, &types.NavigationEvent{
			TabID:          9,
			URL:            u,
			Timestamp:      now.Add(time.Duration(i) * time.Second),
			TransitionType: types.TransitionLink,
		}, "s1")
		require.NoError(t, err)
	}

	got, err := e.QueryEvents(ctx, EventFilter{Domain: "a.example.com"}, Page{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQuerySessions_ScanCap(t *testing.T) {
	e := setupTestEngine(t)
	seedSessions(t, e)
	e.scanCap = 4

	// Ten sessions are stored; the cap bounds how many rows the query
	// examines, so matches past it are simply not seen.
	got, err := e.QuerySessions(context.Background(), SessionFilter{}, Page{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, got, 4)
}
