// Package schema declares the containers and secondary indexes that make up
// a TabVault store.
//
// The registry is pure data: it owns no database handle and performs no I/O.
// The storage engine reads container descriptors at open time and creates
// whatever tables and indexes are missing; creation is strictly additive, so
// a registry from a newer release never drops what an older one built.
//
// Five containers are declared:
//   - sessions: keyed by session_id
//   - tabs: keyed by tab_id
//   - navigation_events: composite key (tab_id, ts)
//   - session_boundaries: composite key (session_id, ts)
//   - vault_metadata: keyed by schema_version
//
// Multi-valued indexes (a session indexed by every domain it contains) map
// to a side table named <container>_<field>, maintained by the engine
// alongside the primary row.
package schema
