package integrity

import (
	"fmt"
	"time"

	"github.com/tabvault/tabvault/internal/record"
)

// ValidateRelationships checks referential integrity across the full given
// collections. The engine never enforces references at write time, so this
// is where orphans surface:
//
//   - a tab referencing a nonexistent session is an error and cannot be
//     auto-corrected — there is no safe session to reattach it to;
//   - a navigation event referencing a nonexistent session is an error but
//     correctable, since the owning tab (if present) knows the right one;
//   - a navigation event referencing a nonexistent tab is only a warning:
//     tab history legitimately outlives the tab.
func (v *Validator) ValidateRelationships(
	sessions []*record.StoredSession,
	tabs []*record.StoredTab,
	events []*record.StoredNavigationEvent,
) *Result {
	start := v.now()
	res := &Result{IsValid: true}

	sessionIDs := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		sessionIDs[s.ID] = struct{}{}
	}
	tabIDs := make(map[int64]struct{}, len(tabs))
	for _, t := range tabs {
		tabIDs[t.Tab.ID] = struct{}{}
	}

	for _, t := range tabs {
		if t.SessionID == "" {
			continue
		}
		if _, ok := sessionIDs[t.SessionID]; !ok {
			res.addError(ValidationError{
				Kind:           KindMissingReference,
				Severity:       SeverityHigh,
				Message:        fmt.Sprintf("tab references nonexistent session %s", t.SessionID),
				RecordID:       fmt.Sprintf("tab:%d", t.Tab.ID),
				Field:          "session_id",
				CanAutoCorrect: false,
			})
		}
	}

	for _, ev := range events {
		id := fmt.Sprintf("event:%d@%s", ev.TabID, ev.Timestamp.Format(time.RFC3339))
		if ev.SessionID != "" {
			if _, ok := sessionIDs[ev.SessionID]; !ok {
				res.addError(ValidationError{
					Kind:           KindMissingReference,
					Severity:       SeverityMedium,
					Message:        fmt.Sprintf("event references nonexistent session %s", ev.SessionID),
					RecordID:       id,
					Field:          "session_id",
					CanAutoCorrect: true,
				})
			}
		}
		if _, ok := tabIDs[ev.TabID]; !ok {
			res.addWarning(Warning{
				Message:  fmt.Sprintf("event references closed tab %d", ev.TabID),
				RecordID: id,
				Field:    "tab_id",
			})
		}
	}

	res.ValidationTime = v.now().Sub(start)
	return res
}
