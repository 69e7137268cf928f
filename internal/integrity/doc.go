// Package integrity validates stored records, manages backup snapshots,
// and attempts best-effort auto-correction.
//
// Validation is layered: per-record shape and checksum checks, then
// cross-record relationship checks over the full collections. Soft
// consistency problems (timestamp ordering, cached-count drift) are always
// warnings; they never fail a validation run. Every hard error carries a
// kind, a severity, and a CanAutoCorrect flag separating mechanically
// fixable issues (a stale checksum) from structurally unfixable ones (a tab
// whose session is gone).
//
// Backups snapshot the collections the caller passes in — they are not
// storage-level point-in-time snapshots. RestoreFromBackup hands the raw
// collections back; re-ingesting them through the engine is the caller's
// decision, not this package's.
package integrity
