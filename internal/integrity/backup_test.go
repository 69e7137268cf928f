package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/pkg/types"
)

func TestCreateBackup_RoundTrip(t *testing.T) {
	v, e := setupTestValidator(t)
	ctx := context.Background()

	_, err := e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)
	_, err = e.CreateTab(ctx, &types.Tab{
		ID: 1, URL: "https://example.com/x", Title: "X", WindowID: 1,
		CreatedAt: time.Now().UTC(),
	}, "s1")
	require.NoError(t, err)

	cols, err := v.LoadCollections(ctx)
	require.NoError(t, err)
	manifest, err := v.CreateBackup(ctx, cols.Payload())
	require.NoError(t, err)
	assert.NotEmpty(t, manifest.ID)
	assert.Equal(t, 1, manifest.SessionCount)
	assert.Equal(t, 1, manifest.TabCount)
	assert.NotEmpty(t, manifest.Checksum)

	payload, err := v.RestoreFromBackup(ctx, manifest.ID)
	require.NoError(t, err)
	require.Len(t, payload.Sessions, 1)
	require.Len(t, payload.Tabs, 1)
	assert.Equal(t, "s1", payload.Sessions[0].ID)
	assert.Equal(t, int64(1), payload.Tabs[0].Tab.ID)
}

func TestCreateBackup_Retention(t *testing.T) {
	v, e := setupTestValidator(t)
	ctx := context.Background()

	_, err := e.CreateSession(ctx, testSession("s1"))
	require.NoError(t, err)
	cols, err := v.LoadCollections(ctx)
	require.NoError(t, err)

	// More snapshots than MaxBackups allows.
	for i := 0; i < DefaultOptions().MaxBackups+3; i++ {
		_, err := v.CreateBackup(ctx, cols.Payload())
		require.NoError(t, err)
	}

	manifests, err := v.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, manifests, DefaultOptions().MaxBackups)
}

func TestRestoreFromBackup_NotFound(t *testing.T) {
	v, _ := setupTestValidator(t)
	_, err := v.RestoreFromBackup(context.Background(), "no-such-backup")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestCreateBackup_Disabled(t *testing.T) {
	_, e := setupTestValidator(t)
	opts := DefaultOptions()
	opts.EnableBackups = false
	v := New(e, nil, opts)

	_, err := v.CreateBackup(context.Background(), (&Collections{}).Payload())
	assert.ErrorIs(t, err, ErrBackupsDisabled)
}
