package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/record"
)

func TestBackupRoundTrip(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	m := &record.BackupManifest{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: 2,
		SessionCount:  3,
		Checksum:      "abc",
	}
	require.NoError(t, e.SaveBackup(ctx, m, []byte(`{"sessions":[]}`)))

	got, payload, err := e.GetBackup(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, 3, got.SessionCount)
	assert.JSONEq(t, `{"sessions":[]}`, string(payload))
}

func TestGetBackup_NotFound(t *testing.T) {
	e := setupTestEngine(t)
	_, _, err := e.GetBackup(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneBackups(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		m := &record.BackupManifest{
			ID:        fmt.Sprintf("backup-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Checksum:  "x",
		}
		require.NoError(t, e.SaveBackup(ctx, m, []byte("{}")))
	}

	pruned, err := e.PruneBackups(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, pruned)

	manifests, err := e.ListBackupManifests(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	// The two newest survive.
	assert.Equal(t, "backup-4", manifests[0].ID)
	assert.Equal(t, "backup-3", manifests[1].ID)
}

func TestReingestBackup(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()

	// A session that drifted after the backup was taken.
	_, err := e.CreateSession(ctx, testSession("kept"))
	require.NoError(t, err)

	snapshot := testSession("kept")
	snapshot.Tag = "from-backup"
	restored, _, err := e.ser.SerializeSession(snapshot)
	require.NoError(t, err)
	tab, _, err := e.ser.SerializeTab(testTab(10), "kept")
	require.NoError(t, err)

	payload := &record.BackupPayload{
		Sessions: []*record.StoredSession{restored},
		Tabs:     []*record.StoredTab{tab},
	}
	require.NoError(t, e.ReingestBackup(ctx, payload))

	// The stored row now reflects the backup, not the drifted copy.
	got, err := e.GetSession(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "from-backup", got.Tag)

	gotTab, err := e.GetTab(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "restored", gotTab.SessionID)
}
