// Package types provides shared type definitions for the TabVault store.
//
// This package defines the domain records that external collaborators hand
// to the persistence layer: browsing sessions, tabs, navigation events, and
// session boundaries. The stored (enveloped) forms of these records live in
// internal/record; this package holds only the domain shape.
//
// # Core Types
//
// Session groups the tabs and windows that were open together:
//
//	session := &types.Session{
//	    ID:        "sess-2024-01-15-morning",
//	    Tag:       "Work",
//	    CreatedAt: time.Now(),
//	    Tabs:      tabs,
//	    WindowIDs: []int64{1},
//	}
//
// NavigationEvent records a single page visit, keyed by (TabID, Timestamp):
//
//	event := types.NavigationEvent{
//	    TabID:          tab.ID,
//	    URL:            "https://example.com/docs",
//	    Timestamp:      time.Now(),
//	    TransitionType: types.TransitionLink,
//	}
//
// Identity fields (IDs, URLs, timestamps) are immutable after creation; the
// storage layer rejects patches that would change them.
package types
