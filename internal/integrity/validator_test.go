package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
	"github.com/tabvault/tabvault/internal/storage"
	"github.com/tabvault/tabvault/pkg/types"
)

func setupTestValidator(t *testing.T) (*Validator, *storage.Engine) {
	t.Helper()
	ser := record.New(record.DefaultOptions(), nil, nil)
	engine := storage.New(":memory:", schema.NewRegistry(), ser, nil, storage.DefaultOptions())
	require.NoError(t, engine.Initialize(context.Background()))
	t.Cleanup(func() { _ = engine.Close() })
	return New(engine, nil, DefaultOptions()), engine
}

func testSession(id string) *types.Session {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return &types.Session{
		ID:        id,
		Tag:       "work",
		CreatedAt: now,
		UpdatedAt: now,
		WindowIDs: []int64{1},
		Tabs: []types.Tab{
			{ID: 1, URL: "https://example.com/a", Title: "A", WindowID: 1, CreatedAt: now},
		},
		Metadata: types.SessionMetadata{PageCount: 1},
	}
}

func TestValidateSession_Clean(t *testing.T) {
	v, e := setupTestValidator(t)
	st, err := e.CreateSession(context.Background(), testSession("s1"))
	require.NoError(t, err)

	res := v.ValidateSession(st)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
}

func TestValidateSession_ChecksumMismatch(t *testing.T) {
	v, e := setupTestValidator(t)
	st, err := e.CreateSession(context.Background(), testSession("s1"))
	require.NoError(t, err)

	st.Tabs[0].Title = "silently changed"
	res := v.ValidateSession(st)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindChecksumMismatch, res.Errors[0].Kind)
	assert.Equal(t, SeverityHigh, res.Errors[0].Severity)
	assert.True(t, res.Errors[0].CanAutoCorrect)
}

func TestValidateSession_MissingIdentity(t *testing.T) {
	v, _ := setupTestValidator(t)

	st := &record.StoredSession{}
	res := v.ValidateSession(st)
	assert.False(t, res.IsValid)

	var critical bool
	for _, e := range res.Errors {
		if e.Severity == SeverityCritical {
			critical = true
			assert.False(t, e.CanAutoCorrect, "missing identity cannot be repaired")
		}
	}
	assert.True(t, critical)
}

func TestValidateRelationships_OrphanedTab(t *testing.T) {
	v, e := setupTestValidator(t)
	ctx := context.Background()

	// One session, one tab owned by it, one event on that tab:
	// everything valid.
	_, err := e.CreateSession(ctx, testSession("S1"))
	require.NoError(t, err)
	_, err = e.CreateTab(ctx, &types.Tab{
		ID: 1, URL: "https://example.com/t", Title: "T1", WindowID: 1,
		CreatedAt: time.Now().UTC(),
	}, "S1")
	require.NoError(t, err)
	_, err = e.CreateEvent(ctx, &types.NavigationEvent{
		TabID: 1, URL: "https://example.com/t", Timestamp: time.Now().UTC(),
		TransitionType: types.TransitionLink,
	}, "S1")
	require.NoError(t, err)

	cols, err := v.LoadCollections(ctx)
	require.NoError(t, err)
	res := v.ValidateRelationships(cols.Sessions, cols.Tabs, cols.Events)
	assert.True(t, res.IsValid)

	// Delete S1: the cascade removes the tab and event too, so the sweep
	// stays clean.
	require.NoError(t, e.DeleteSession(ctx, "S1"))
	cols, err = v.LoadCollections(ctx)
	require.NoError(t, err)
	res = v.ValidateRelationships(cols.Sessions, cols.Tabs, cols.Events)
	assert.True(t, res.IsValid)

	// An orphan written directly (no session ever created) is exactly one
	// uncorrectable missing-reference error.
	_, err = e.CreateTab(ctx, &types.Tab{
		ID: 2, URL: "https://example.com/orphan", Title: "T2", WindowID: 1,
		CreatedAt: time.Now().UTC(),
	}, "S1")
	require.NoError(t, err)

	cols, err = v.LoadCollections(ctx)
	require.NoError(t, err)
	res = v.ValidateRelationships(cols.Sessions, cols.Tabs, cols.Events)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindMissingReference, res.Errors[0].Kind)
	assert.Equal(t, SeverityHigh, res.Errors[0].Severity)
	assert.Equal(t, "tab:2", res.Errors[0].RecordID)
	assert.False(t, res.Errors[0].CanAutoCorrect)
}

func TestValidateRelationships_EventOnClosedTab(t *testing.T) {
	v, e := setupTestValidator(t)
	ctx := context.Background()

	_, err := e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)
	_, err = e.CreateEvent(ctx, &types.NavigationEvent{
		TabID: 99, URL: "https://example.com/old", Timestamp: time.Now().UTC(),
		TransitionType: types.TransitionLink,
	}, "s1")
	require.NoError(t, err)

	cols, err := v.LoadCollections(ctx)
	require.NoError(t, err)
	res := v.ValidateRelationships(cols.Sessions, cols.Tabs, cols.Events)

	// A closed tab is a warning, not an error.
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "tab_id", res.Warnings[0].Field)
}

func TestSweepStore(t *testing.T) {
	v, e := setupTestValidator(t)
	ctx := context.Background()

	_, err := e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)
	_, err = e.CreateTab(ctx, &types.Tab{
		ID: 1, URL: "https://example.com/x", Title: "X", WindowID: 1,
		CreatedAt: time.Now().UTC(),
	}, "s1")
	require.NoError(t, err)

	res, err := v.SweepStore(ctx)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Greater(t, res.ValidationTime, time.Duration(0))

	// The sweep records its outcome in the store metadata.
	md, err := e.Metadata(ctx)
	require.NoError(t, err)
	assert.True(t, md.LastCheckOK)
	assert.False(t, md.LastCheckAt.IsZero())
}

func TestAutoCorrect_Checksum(t *testing.T) {
	v, e := setupTestValidator(t)
	ctx := context.Background()

	st, err := e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)
	st.Tabs[0].Title = "drifted"
	st.Valid = false

	cols := &Collections{Sessions: []*record.StoredSession{st}}
	res := v.ValidateSession(st)
	require.False(t, res.IsValid)

	remaining, corrected := v.AutoCorrect(ctx, res.Errors, cols)
	assert.Empty(t, remaining)
	assert.Equal(t, 1, corrected)

	// The restamped checksum verifies and the record is no longer flagged
	// invalid, so a persisted repair writes it back clean.
	assert.True(t, v.ValidateSession(st).IsValid)
	assert.True(t, st.Valid)
}

func TestAutoCorrect_EventSessionReassigned(t *testing.T) {
	v, e := setupTestValidator(t)
	ctx := context.Background()

	_, err := e.CreateSession(ctx, testSession("good"))
	require.NoError(t, err)
	_, err = e.CreateTab(ctx, &types.Tab{
		ID: 1, URL: "https://example.com/t", Title: "T", WindowID: 1,
		CreatedAt: time.Now().UTC(),
	}, "good")
	require.NoError(t, err)
	_, err = e.CreateEvent(ctx, &types.NavigationEvent{
		TabID: 1, URL: "https://example.com/t", Timestamp: time.Now().UTC(),
		TransitionType: types.TransitionLink,
	}, "vanished")
	require.NoError(t, err)

	cols, err := v.LoadCollections(ctx)
	require.NoError(t, err)
	res := v.ValidateRelationships(cols.Sessions, cols.Tabs, cols.Events)
	require.False(t, res.IsValid)

	remaining, corrected := v.AutoCorrect(ctx, res.Errors, cols)
	assert.Empty(t, remaining)
	assert.Equal(t, 1, corrected)
	assert.Equal(t, "good", cols.Events[0].SessionID, "event reattached via its owning tab")
}

func TestAutoCorrect_UncorrectableLeftAlone(t *testing.T) {
	v, _ := setupTestValidator(t)

	errs := []ValidationError{{
		Kind:           KindMissingReference,
		Severity:       SeverityHigh,
		RecordID:       "tab:7",
		Field:          "session_id",
		CanAutoCorrect: false,
	}}
	remaining, corrected := v.AutoCorrect(context.Background(), errs, &Collections{})
	assert.Len(t, remaining, 1)
	assert.Zero(t, corrected)
}
