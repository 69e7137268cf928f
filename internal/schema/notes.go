package schema

import "fmt"

// upgradeNotes documents what each schema version added. The entries are
// human-readable only; the migration manager owns the executable steps.
var upgradeNotes = map[int][]string{
	1: {
		"create containers: sessions, tabs, navigation_events, session_boundaries, vault_metadata",
		"create secondary indexes for all containers",
	},
	2: {
		"add derived domain columns to tabs and navigation_events",
		"add activity/navigation counters to tabs",
		"backfill derived columns from existing payloads",
	},
}

// MigrationNotes lists, in order, the documented upgrade instructions
// between two schema versions. It reports nothing executable; see the
// migrate package for the steps that actually run.
func (r *Registry) MigrationNotes(from, to int) []string {
	if from >= to {
		return nil
	}
	var notes []string
	for v := from + 1; v <= to; v++ {
		steps, ok := upgradeNotes[v]
		if !ok {
			notes = append(notes, fmt.Sprintf("v%d: no documented changes", v))
			continue
		}
		for _, s := range steps {
			notes = append(notes, fmt.Sprintf("v%d: %s", v, s))
		}
	}
	return notes
}
