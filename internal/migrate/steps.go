package migrate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/schema"
)

// builtinSteps returns the schema upgrades shipped with this release.
// Step DDL uses IF NOT EXISTS throughout so the steps stay safe to run
// against databases the engine has already touched.
func builtinSteps(registry *schema.Registry) []Step {
	return []Step{
		containersStep(registry),
		derivedColumnsStep(registry),
	}
}

// containersStep (v1) creates every declared container, side table, and
// index.
func containersStep(registry *schema.Registry) Step {
	return Step{
		Version:     1,
		Description: "create containers and indexes",
		Execute: func(ctx context.Context, tx *sql.Tx) error {
			for _, c := range registry.Containers() {
				if _, err := tx.ExecContext(ctx, c.CreateTableSQL()); err != nil {
					return fmt.Errorf("create %s: %w", c.Name, err)
				}
				for _, stmt := range c.CreateSideTableSQL() {
					if _, err := tx.ExecContext(ctx, stmt); err != nil {
						return fmt.Errorf("side table %s: %w", c.Name, err)
					}
				}
				for _, stmt := range c.CreateIndexSQL() {
					if _, err := tx.ExecContext(ctx, stmt); err != nil {
						return fmt.Errorf("index %s: %w", c.Name, err)
					}
				}
			}
			return nil
		},
		Validate: func(ctx context.Context, db *sql.DB) error {
			for _, c := range registry.Containers() {
				var name string
				err := db.QueryRowContext(ctx,
					"SELECT name FROM sqlite_master WHERE type='table' AND name=?", c.Name).Scan(&name)
				if err == sql.ErrNoRows {
					return fmt.Errorf("container %s was not created", c.Name)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// derivedColumnsStep (v2) backfills the derived index columns from each
// row's JSON payload. Rows written before v2 may carry loosely typed
// values (string counts, float durations) in the payload, so every field
// goes through coercion rather than a typed unmarshal.
func derivedColumnsStep(registry *schema.Registry) Step {
	return Step{
		Version:     2,
		Description: "backfill derived index columns",
		Execute: func(ctx context.Context, tx *sql.Tx) error {
			if err := backfillSessions(ctx, tx); err != nil {
				return err
			}
			return backfillTabs(ctx, tx)
		},
		Rollback: func(ctx context.Context, tx *sql.Tx) error {
			// Derived columns are recomputable; zeroing them restores the
			// pre-step state.
			if _, err := tx.ExecContext(ctx,
				`UPDATE `+schema.ContainerSessions+` SET tab_count = 0, event_count = 0`); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE `+schema.ContainerTabs+` SET domain = '', activity_count = 0, navigation_count = 0`)
			return err
		},
	}
}

func backfillSessions(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT session_id, payload FROM `+schema.ContainerSessions)
	if err != nil {
		return err
	}
	defer rows.Close()

	type sessionFill struct {
		id         string
		tabCount   int
		eventCount int
	}
	var fills []sessionFill
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return err
		}
		raw := map[string]any{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			// Compressed or unreadable payloads keep their stored counts.
			continue
		}
		fill := sessionFill{id: id}
		if tabs, ok := raw["tabs"].([]any); ok {
			fill.tabCount = len(tabs)
		}
		if meta, ok := raw["metadata"].(map[string]any); ok {
			fill.eventCount = cast.ToInt(meta["page_count"])
		}
		fills = append(fills, fill)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range fills {
		if _, err := tx.ExecContext(ctx,
			`UPDATE `+schema.ContainerSessions+` SET tab_count = ?, event_count = ? WHERE session_id = ?`,
			f.tabCount, f.eventCount, f.id); err != nil {
			return err
		}
	}
	return nil
}

func backfillTabs(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT tab_id, payload FROM `+schema.ContainerTabs)
	if err != nil {
		return err
	}
	defer rows.Close()

	type tabFill struct {
		id       int64
		domain   string
		activity int
		navCount int
	}
	var fills []tabFill
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return err
		}
		raw := map[string]any{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			continue
		}
		fill := tabFill{
			id:       id,
			domain:   record.ExtractDomain(cast.ToString(raw["url"])),
			activity: cast.ToInt(raw["activity_count"]),
			navCount: cast.ToInt(raw["navigation_count"]),
		}
		fills = append(fills, fill)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range fills {
		if _, err := tx.ExecContext(ctx,
			`UPDATE `+schema.ContainerTabs+` SET domain = ?, activity_count = ?, navigation_count = ? WHERE tab_id = ?`,
			f.domain, f.activity, f.navCount, f.id); err != nil {
			return err
		}
	}
	return nil
}
