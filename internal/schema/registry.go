package schema

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion is the schema version the current registry describes.
const SchemaVersion = 2

// Container names.
const (
	ContainerSessions   = "sessions"
	ContainerTabs       = "tabs"
	ContainerEvents     = "navigation_events"
	ContainerBoundaries = "session_boundaries"
	ContainerMetadata   = "vault_metadata"
)

// Column describes one column of a container table.
type Column struct {
	Name string
	Type string // SQLite column type
}

// Index describes a secondary index over a container.
//
// A MultiValued index covers a field that holds a set of values per record
// (e.g. the domains contained in a session). It is realised as a side table
// <container>_<field>(key columns..., field) rather than a column index.
type Index struct {
	Name        string
	Columns     []string
	MultiValued bool
}

// Container describes one record container: its table shape, primary key,
// and secondary indexes.
type Container struct {
	Name       string
	KeyColumns []string
	Columns    []Column
	Indexes    []Index
}

// SideTableName returns the side table backing a multi-valued index.
func (c *Container) SideTableName(idx Index) string {
	return c.Name + "_" + idx.Columns[0]
}

// Registry holds the declared containers for one schema version.
type Registry struct {
	containers map[string]*Container
	order      []string
}

// NewRegistry builds the registry for the current schema version.
func NewRegistry() *Registry {
	r := &Registry{containers: make(map[string]*Container)}
	for _, c := range declaredContainers() {
		r.containers[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	return r
}

// Containers returns all declared containers in a stable order.
func (r *Registry) Containers() []*Container {
	out := make([]*Container, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.containers[name])
	}
	return out
}

// Container returns the descriptor for a named container.
func (r *Registry) Container(name string) (*Container, error) {
	c, ok := r.containers[name]
	if !ok {
		return nil, fmt.Errorf("unknown container %q", name)
	}
	return c, nil
}

// CheckKeyShape verifies that a candidate record carries every declared
// primary-key field of the container, including all parts of a composite
// key. The candidate is given as key column name -> value; a missing or
// zero-valued key column fails the check.
func (r *Registry) CheckKeyShape(container string, keys map[string]any) error {
	c, err := r.Container(container)
	if err != nil {
		return err
	}
	for _, col := range c.KeyColumns {
		v, ok := keys[col]
		if !ok {
			return fmt.Errorf("container %s: missing key field %q", container, col)
		}
		if isZeroKey(v) {
			return fmt.Errorf("container %s: key field %q is empty", container, col)
		}
	}
	return nil
}

func isZeroKey(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case int64:
		return x == 0
	default:
		return false
	}
}

// CreateTableSQL renders the additive DDL for a container.
func (c *Container) CreateTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", c.Name)
	for _, col := range c.Columns {
		fmt.Fprintf(&b, "    %s %s,\n", col.Name, col.Type)
	}
	fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n)", strings.Join(c.KeyColumns, ", "))
	return b.String()
}

// CreateSideTableSQL renders the DDL for the side tables backing the
// container's multi-valued indexes. Side tables carry record data (which
// values belong to which record), so they exist in every store, whether or
// not secondary indexes are built over them.
func (c *Container) CreateSideTableSQL() []string {
	var stmts []string
	for _, idx := range c.Indexes {
		if !idx.MultiValued {
			continue
		}
		side := c.SideTableName(idx)
		keyCols := make([]string, 0, len(c.KeyColumns))
		var defs []string
		for _, k := range c.KeyColumns {
			keyCols = append(keyCols, k)
			defs = append(defs, fmt.Sprintf("%s %s", k, c.keyColumnType(k)))
		}
		defs = append(defs, fmt.Sprintf("%s TEXT NOT NULL", idx.Columns[0]))
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (\n    %s,\n    UNIQUE (%s, %s)\n)",
			side, strings.Join(defs, ",\n    "),
			strings.Join(keyCols, ", "), idx.Columns[0]))
	}
	return stmts
}

// CreateIndexSQL renders the DDL statements for the container's secondary
// indexes, including the index over each multi-valued side table.
func (c *Container) CreateIndexSQL() []string {
	var stmts []string
	for _, idx := range c.Indexes {
		if idx.MultiValued {
			side := c.SideTableName(idx)
			stmts = append(stmts, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
				side, idx.Columns[0], side, idx.Columns[0]))
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			idx.Name, c.Name, strings.Join(idx.Columns, ", ")))
	}
	return stmts
}

func (c *Container) keyColumnType(name string) string {
	for _, col := range c.Columns {
		if col.Name == name {
			return col.Type
		}
	}
	return "TEXT"
}

// IndexNames returns the names of the container's non-side-table indexes,
// sorted, for structural validation after a migration.
func (c *Container) IndexNames() []string {
	var names []string
	for _, idx := range c.Indexes {
		if idx.MultiValued {
			names = append(names, "idx_"+c.SideTableName(idx)+"_"+idx.Columns[0])
			continue
		}
		names = append(names, idx.Name)
	}
	sort.Strings(names)
	return names
}

func declaredContainers() []*Container {
	return []*Container{
		{
			Name:       ContainerSessions,
			KeyColumns: []string{"session_id"},
			Columns: []Column{
				{"session_id", "TEXT NOT NULL"},
				{"tag", "TEXT"},
				{"created_at", "TEXT NOT NULL"},
				{"updated_at", "TEXT NOT NULL"},
				{"version", "INTEGER NOT NULL DEFAULT 1"},
				{"last_modified", "TEXT NOT NULL"},
				{"size_bytes", "INTEGER NOT NULL DEFAULT 0"},
				{"compressed", "BOOLEAN NOT NULL DEFAULT 0"},
				{"tab_count", "INTEGER NOT NULL DEFAULT 0"},
				{"event_count", "INTEGER NOT NULL DEFAULT 0"},
				{"checksum", "TEXT NOT NULL"},
				{"valid", "BOOLEAN NOT NULL DEFAULT 1"},
				{"payload", "BLOB NOT NULL"},
			},
			Indexes: []Index{
				{Name: "idx_sessions_tag", Columns: []string{"tag"}},
				{Name: "idx_sessions_created", Columns: []string{"created_at"}},
				{Name: "idx_sessions_updated", Columns: []string{"updated_at"}},
				{Columns: []string{"domain"}, MultiValued: true},
			},
		},
		{
			Name:       ContainerTabs,
			KeyColumns: []string{"tab_id"},
			Columns: []Column{
				{"tab_id", "INTEGER NOT NULL"},
				{"session_id", "TEXT NOT NULL"},
				{"window_id", "INTEGER NOT NULL DEFAULT 0"},
				{"url", "TEXT NOT NULL"},
				{"domain", "TEXT"},
				{"created_at", "TEXT NOT NULL"},
				{"last_accessed", "TEXT"},
				{"activity_count", "INTEGER NOT NULL DEFAULT 0"},
				{"navigation_count", "INTEGER NOT NULL DEFAULT 0"},
				{"version", "INTEGER NOT NULL DEFAULT 1"},
				{"last_modified", "TEXT NOT NULL"},
				{"size_bytes", "INTEGER NOT NULL DEFAULT 0"},
				{"compressed", "BOOLEAN NOT NULL DEFAULT 0"},
				{"checksum", "TEXT NOT NULL"},
				{"payload", "BLOB NOT NULL"},
			},
			Indexes: []Index{
				{Name: "idx_tabs_session", Columns: []string{"session_id"}},
				{Name: "idx_tabs_window", Columns: []string{"window_id"}},
				{Name: "idx_tabs_url", Columns: []string{"url"}},
				{Name: "idx_tabs_domain", Columns: []string{"domain"}},
				{Name: "idx_tabs_created", Columns: []string{"created_at"}},
			},
		},
		{
			Name:       ContainerEvents,
			KeyColumns: []string{"tab_id", "ts"},
			Columns: []Column{
				{"tab_id", "INTEGER NOT NULL"},
				{"ts", "TEXT NOT NULL"},
				{"session_id", "TEXT NOT NULL DEFAULT ''"},
				{"url", "TEXT NOT NULL"},
				{"domain", "TEXT"},
				{"transition_type", "TEXT"},
				{"batch_id", "TEXT"},
				{"version", "INTEGER NOT NULL DEFAULT 1"},
				{"checksum", "TEXT NOT NULL"},
				{"payload", "BLOB NOT NULL"},
			},
			Indexes: []Index{
				{Name: "idx_events_tab", Columns: []string{"tab_id"}},
				{Name: "idx_events_session", Columns: []string{"session_id"}},
				{Name: "idx_events_ts", Columns: []string{"ts"}},
				{Name: "idx_events_url", Columns: []string{"url"}},
				{Name: "idx_events_domain", Columns: []string{"domain"}},
			},
		},
		{
			Name:       ContainerBoundaries,
			KeyColumns: []string{"session_id", "ts"},
			Columns: []Column{
				{"session_id", "TEXT NOT NULL"},
				{"ts", "TEXT NOT NULL"},
				{"reason", "TEXT NOT NULL"},
				{"tab_count", "INTEGER NOT NULL DEFAULT 0"},
				{"window_count", "INTEGER NOT NULL DEFAULT 0"},
				{"version", "INTEGER NOT NULL DEFAULT 1"},
				{"checksum", "TEXT NOT NULL"},
				{"payload", "BLOB NOT NULL"},
			},
			Indexes: []Index{
				{Name: "idx_boundaries_session", Columns: []string{"session_id"}},
				{Name: "idx_boundaries_ts", Columns: []string{"ts"}},
				{Name: "idx_boundaries_reason", Columns: []string{"reason"}},
			},
		},
		{
			Name:       ContainerMetadata,
			KeyColumns: []string{"schema_version"},
			Columns: []Column{
				{"schema_version", "INTEGER NOT NULL"},
				{"session_count", "INTEGER NOT NULL DEFAULT 0"},
				{"tab_count", "INTEGER NOT NULL DEFAULT 0"},
				{"event_count", "INTEGER NOT NULL DEFAULT 0"},
				{"boundary_count", "INTEGER NOT NULL DEFAULT 0"},
				{"storage_size", "INTEGER NOT NULL DEFAULT 0"},
				{"last_check_at", "TEXT"},
				{"last_check_ok", "BOOLEAN NOT NULL DEFAULT 1"},
				{"updated_at", "TEXT NOT NULL"},
			},
			Indexes: nil,
		},
	}
}
