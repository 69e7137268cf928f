// Package storage implements the TabVault storage engine on SQLite.
//
// The engine owns the backing database: it opens and additively upgrades it
// against the schema registry, implements CRUD and indexed queries for every
// container, maintains the running metadata counters, and persists backup
// snapshots for the integrity layer.
//
// # Initialization
//
// Initialize is idempotent and coordinated: concurrent callers share a
// single in-flight attempt and all observe its result.
//
//	eng := storage.New(dbPath, registry, serializer, logger, opts)
//	if err := eng.Initialize(ctx); err != nil {
//	    return err // open failure is fatal
//	}
//	defer eng.Close()
//
// Startup maintenance (stale-session cleanup, counter refresh) runs inside
// Initialize but only logs on failure; a half-broken store still opens.
//
// # Consistency model
//
// Each logical operation opens its own transaction scoped to the containers
// it touches. There is no cross-operation lock: two concurrent mutations of
// the same record race to last-write-wins. Creation does not verify foreign
// references (optimistic insert); the integrity validator flags orphans in
// a separate pass. Deleting a session cascades to its tabs, navigation
// events, and boundaries inside one all-or-nothing transaction.
//
// # Queries
//
// Query methods take a filter struct plus paging. Index selection is
// deterministic: a date-range filter uses the creation-time index, a
// single-value filter uses that field's index, and everything else falls
// back to the updated-at index scanned newest first. A hard cap of 10,000
// scanned rows bounds worst-case cost; it is an approximation, not a
// correctness guarantee for very large stores.
package storage
