package record

import (
	"time"

	"github.com/tabvault/tabvault/pkg/types"
)

// Envelope carries the storage metadata stamped onto every stored record.
// None of its fields participate in the content checksum.
type Envelope struct {
	Version      int       `json:"version"`
	LastModified time.Time `json:"last_modified"`
	Size         int       `json:"size"`
	Compressed   bool      `json:"compressed"`
	Checksum     string    `json:"checksum"`
}

// StoredSession is the persisted form of a Session.
type StoredSession struct {
	types.Session
	Envelope
	Domains               []string          `json:"domains"`
	TotalTabCount         int               `json:"total_tab_count"`
	TotalNavigationEvents int               `json:"total_navigation_events"`
	Valid                 bool              `json:"valid"`
	HostTokens            map[string]string `json:"host_tokens,omitempty"`
}

// StoredTab is the persisted form of a Tab, stamped with its owning session.
type StoredTab struct {
	types.Tab
	Envelope
	SessionID        string    `json:"session_id"`
	Domain           string    `json:"domain"`
	ActivityCount    int       `json:"activity_count"`
	NavigationCount  int       `json:"navigation_count"`
	LastNavigationAt time.Time `json:"last_navigation_at,omitzero"`
	Valid            bool      `json:"valid"`
}

// StoredNavigationEvent is the persisted form of a NavigationEvent.
type StoredNavigationEvent struct {
	types.NavigationEvent
	Envelope
	SessionID string `json:"session_id"`
	Domain    string `json:"domain"`
	BatchID   string `json:"batch_id,omitempty"`
}

// StoredBoundary is the persisted form of a SessionBoundary.
type StoredBoundary struct {
	types.SessionBoundary
	Envelope
}

// VaultMetadata is the single metadata record, keyed by schema version.
type VaultMetadata struct {
	SchemaVersion int       `json:"schema_version"`
	SessionCount  int64     `json:"session_count"`
	TabCount      int64     `json:"tab_count"`
	EventCount    int64     `json:"event_count"`
	BoundaryCount int64     `json:"boundary_count"`
	StorageSize   int64     `json:"storage_size"`
	LastCheckAt   time.Time `json:"last_check_at"`
	LastCheckOK   bool      `json:"last_check_ok"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BackupManifest describes one point-in-time export without its payload.
type BackupManifest struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	SchemaVersion int       `json:"schema_version"`
	SessionCount  int       `json:"session_count"`
	TabCount      int       `json:"tab_count"`
	EventCount    int       `json:"event_count"`
	BoundaryCount int       `json:"boundary_count"`
	Checksum      string    `json:"checksum"`
}

// BackupPayload holds the full collections snapshotted by a backup.
type BackupPayload struct {
	Sessions   []*StoredSession         `json:"sessions"`
	Tabs       []*StoredTab             `json:"tabs"`
	Events     []*StoredNavigationEvent `json:"events"`
	Boundaries []*StoredBoundary        `json:"boundaries"`
}
