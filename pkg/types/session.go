package types

import "time"

// Session represents a group of browser tabs captured as one browsing
// context. A session owns its tabs; navigation events and boundaries
// reference it by ID.
type Session struct {
	ID        string          `json:"id"`
	Tag       string          `json:"tag"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Tabs      []Tab           `json:"tabs"`
	WindowIDs []int64         `json:"window_ids"`
	Metadata  SessionMetadata `json:"metadata"`
}

// SessionMetadata carries aggregate information about a session.
type SessionMetadata struct {
	Private   bool          `json:"private"`
	TotalTime time.Duration `json:"total_time"`
	PageCount int           `json:"page_count"`
	Domains   []string      `json:"domains"`
	Notes     string        `json:"notes,omitempty"`
}

// Tab represents a single browser tab within a session.
type Tab struct {
	ID             int64             `json:"id"`
	URL            string            `json:"url"`
	Title          string            `json:"title"`
	FaviconURL     string            `json:"favicon_url,omitempty"`
	WindowID       int64             `json:"window_id"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessed   time.Time         `json:"last_accessed"`
	TimeSpent      time.Duration     `json:"time_spent"`
	ScrollPosition int               `json:"scroll_position"`
	FormData       map[string]string `json:"form_data,omitempty"`
}

// NavigationEvent records a single page visit in a tab. Events are keyed by
// (TabID, Timestamp); two visits in the same tab never share a timestamp.
type NavigationEvent struct {
	TabID          int64          `json:"tab_id"`
	URL            string         `json:"url"`
	Referrer       string         `json:"referrer,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	TransitionType TransitionType `json:"transition_type"`
}

// SessionBoundary marks the start or end of a session, with the tab and
// window context at that moment.
type SessionBoundary struct {
	SessionID   string         `json:"session_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Reason      BoundaryReason `json:"reason"`
	TabCount    int            `json:"tab_count"`
	WindowCount int            `json:"window_count"`
}

// TransitionType describes how a navigation was initiated.
type TransitionType string

const (
	TransitionLink         TransitionType = "link"
	TransitionTyped        TransitionType = "typed"
	TransitionReload       TransitionType = "reload"
	TransitionBackForward  TransitionType = "back_forward"
	TransitionFormSubmit   TransitionType = "form_submit"
	TransitionAutoSubframe TransitionType = "auto_subframe"
)

// BoundaryReason describes why a session boundary was recorded.
type BoundaryReason string

const (
	BoundarySessionStart    BoundaryReason = "session_start"
	BoundarySessionEnd      BoundaryReason = "session_end"
	BoundaryIdleTimeout     BoundaryReason = "idle_timeout"
	BoundaryBrowserShutdown BoundaryReason = "browser_shutdown"
)
