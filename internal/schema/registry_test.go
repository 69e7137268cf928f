package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	containers := r.Containers()
	require.Len(t, containers, 5)

	names := make([]string, 0, len(containers))
	for _, c := range containers {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		ContainerSessions,
		ContainerTabs,
		ContainerEvents,
		ContainerBoundaries,
		ContainerMetadata,
	}, names)
}

func TestContainer_Lookup(t *testing.T) {
	r := NewRegistry()

	c, err := r.Container(ContainerSessions)
	require.NoError(t, err)
	assert.Equal(t, []string{"session_id"}, c.KeyColumns)

	_, err = r.Container("bookmarks")
	assert.Error(t, err)
}

func TestContainer_CompositeKeys(t *testing.T) {
	r := NewRegistry()

	events, err := r.Container(ContainerEvents)
	require.NoError(t, err)
	assert.Equal(t, []string{"tab_id", "ts"}, events.KeyColumns)

	boundaries, err := r.Container(ContainerBoundaries)
	require.NoError(t, err)
	assert.Equal(t, []string{"session_id", "ts"}, boundaries.KeyColumns)
}

func TestCheckKeyShape(t *testing.T) {
	r := NewRegistry()

	err := r.CheckKeyShape(ContainerSessions, map[string]any{"session_id": "s1"})
	assert.NoError(t, err)

	err = r.CheckKeyShape(ContainerSessions, map[string]any{"session_id": ""})
	assert.Error(t, err)

	err = r.CheckKeyShape(ContainerSessions, map[string]any{})
	assert.Error(t, err)
}

func TestCheckKeyShape_CompositeKey(t *testing.T) {
	r := NewRegistry()

	err := r.CheckKeyShape(ContainerEvents, map[string]any{
		"tab_id": int64(42),
		"ts":     "2026-01-02T03:04:05.000000000Z",
	})
	assert.NoError(t, err)

	// Missing one part of the composite key fails.
	err = r.CheckKeyShape(ContainerEvents, map[string]any{"tab_id": int64(42)})
	assert.Error(t, err)

	// Zero-valued key part fails.
	err = r.CheckKeyShape(ContainerEvents, map[string]any{
		"tab_id": int64(0),
		"ts":     "2026-01-02T03:04:05.000000000Z",
	})
	assert.Error(t, err)
}

func TestCheckKeyShape_UnknownContainer(t *testing.T) {
	r := NewRegistry()
	err := r.CheckKeyShape("bookmarks", map[string]any{"id": "x"})
	assert.Error(t, err)
}

func TestCreateTableSQL(t *testing.T) {
	r := NewRegistry()
	c, err := r.Container(ContainerSessions)
	require.NoError(t, err)

	ddl := c.CreateTableSQL()
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS sessions")
	assert.Contains(t, ddl, "PRIMARY KEY (session_id)")
	assert.Contains(t, ddl, "payload BLOB NOT NULL")
}

func TestCreateSideTableSQL_MultiValued(t *testing.T) {
	r := NewRegistry()
	c, err := r.Container(ContainerSessions)
	require.NoError(t, err)

	stmts := c.CreateSideTableSQL()
	require.Len(t, stmts, 1, "domain index should be realised as a side table")
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS sessions_domain")
	assert.Contains(t, stmts[0], "UNIQUE (session_id, domain)")

	// Table DDL lives in CreateSideTableSQL; CreateIndexSQL only carries
	// index statements, including the one over the side table.
	var sideIndex bool
	for _, s := range c.CreateIndexSQL() {
		assert.NotContains(t, s, "CREATE TABLE")
		if strings.Contains(s, "idx_sessions_domain_domain ON sessions_domain(domain)") {
			sideIndex = true
		}
	}
	assert.True(t, sideIndex)

	tabs, err := r.Container(ContainerTabs)
	require.NoError(t, err)
	assert.Empty(t, tabs.CreateSideTableSQL())
}

func TestIndexNames(t *testing.T) {
	r := NewRegistry()
	c, err := r.Container(ContainerTabs)
	require.NoError(t, err)

	names := c.IndexNames()
	assert.Contains(t, names, "idx_tabs_session")
	assert.Contains(t, names, "idx_tabs_domain")
	assert.Contains(t, names, "idx_tabs_created")
}

func TestMigrationNotes(t *testing.T) {
	r := NewRegistry()

	notes := r.MigrationNotes(0, SchemaVersion)
	assert.NotEmpty(t, notes)

	assert.Empty(t, r.MigrationNotes(SchemaVersion, SchemaVersion))
}
