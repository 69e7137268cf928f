package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/pkg/types"
)

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	ser := record.New(record.DefaultOptions(), nil, nil)
	e := New(":memory:", schema.NewRegistry(), ser, nil, DefaultOptions())
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func testSession(id string) *types.Session {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	return &types.Session{
		ID:        id,
		Tag:       "work",
		CreatedAt: now,
		UpdatedAt: now,
		WindowIDs: []int64{1},
		Tabs: []types.Tab{
			{ID: 1, URL: "https://example.com/a", Title: "A", WindowID: 1, CreatedAt: now},
			{ID: 2, URL: "https://docs.example.org/b", Title: "B", WindowID: 1, CreatedAt: now},
		},
		Metadata: types.SessionMetadata{PageCount: 2},
	}
}

func testTab(id int64) *types.Tab {
	return &types.Tab{
		ID:        id,
		URL:       "https://example.com/tab",
		Title:     "Tab",
		WindowID:  1,
		CreatedAt: time.Now().UTC(),
	}
}

func TestInitialize(t *testing.T) {
	e := setupTestEngine(t)
	assert.NotNil(t, e.DB())

	// Idempotent.
	assert.NoError(t, e.Initialize(context.Background()))
}

func TestInitialize_Concurrent(t *testing.T) {
	ser := record.New(record.DefaultOptions(), nil, nil)
	e := New(":memory:", schema.NewRegistry(), ser, nil, DefaultOptions())
	defer e.Close()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.NotNil(t, e.DB())
}

func TestNotInitialized(t *testing.T) {
	ser := record.New(record.DefaultOptions(), nil, nil)
	e := New(":memory:", schema.NewRegistry(), ser, nil, DefaultOptions())

	_, err := e.GetSession(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = e.CreateSession(context.Background(), testSession("s1"))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSchemaVersion_FreshStoreUnstamped(t *testing.T) {
	e := setupTestEngine(t)

	// The engine creates tables but never stamps a version; only the
	// migration manager does.
	v, err := e.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestStampSchemaVersion(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.StampSchemaVersion(ctx, schema.SchemaVersion))
	v, err := e.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaVersion, v)
}

func TestMapConstraint(t *testing.T) {
	assert.NoError(t, mapConstraint(nil))
	assert.ErrorIs(t, mapConstraint(errors.New("UNIQUE constraint failed: sessions.session_id")), ErrAlreadyExists)
	plain := errors.New("disk I/O error")
	assert.Equal(t, plain, mapConstraint(plain))
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 20, 12, 30, 45, 123456789, time.UTC)
	parsed, err := parseTime(fmtTime(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))

	// Fixed fraction width keeps lexicographic order chronological.
	earlier := fmtTime(time.Date(2026, 5, 20, 12, 30, 45, 5, time.UTC))
	later := fmtTime(time.Date(2026, 5, 20, 12, 30, 45, 123456789, time.UTC))
	assert.Less(t, earlier, later)
}

func TestSchemaVersion_UnstampedAfterWrites(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	// Writes and counter refreshes on a never-migrated store keep the
	// counters in a version-0 row; the version only moves when stamped.
	_, err := e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)
	require.NoError(t, e.RefreshCounters(ctx))

	v, err := e.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	md, err := e.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, md.SchemaVersion)
	assert.EqualValues(t, 1, md.SessionCount)
}

func TestStampSchemaVersion_CarriesCounters(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)
	require.NoError(t, e.StampSchemaVersion(ctx, schema.SchemaVersion))

	md, err := e.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaVersion, md.SchemaVersion)
	assert.EqualValues(t, 1, md.SessionCount)

	// The superseded version-0 row is gone.
	var rows int
	err = e.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM vault_metadata").Scan(&rows)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	// New writes land on the stamped row.
	require.NoError(t, e.DeleteSession(ctx, "s1"))
	md, err = e.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaVersion, md.SchemaVersion)
	assert.EqualValues(t, 0, md.SessionCount)
}

func TestIndexingDisabled_FullLifecycle(t *testing.T) {
	opts := DefaultOptions()
	opts.IndexingEnabled = false
	ser := record.New(record.DefaultOptions(), nil, nil)
	e := New(":memory:", schema.NewRegistry(), ser, nil, opts)
	ctx := context.Background()
	require.NoError(t, e.Initialize(ctx))
	t.Cleanup(func() { _ = e.Close() })

	// No secondary indexes exist, but the domain side table does.
	var n int
	err := e.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_%'").Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)

	// Domain-filtered queries still work off the side table contents.
	found, err := e.QuerySessions(ctx, SessionFilter{Domain: "docs.example.org"}, Page{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "s1", found[0].ID)

	// Cascade delete succeeds and clears the side table.
	require.NoError(t, e.DeleteSession(ctx, "s1"))
	_, err = e.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	err = e.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions_domain WHERE session_id = 's1'").Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}
