package integrity

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/record"
)

// AutoCorrect walks an error list and attempts a kind-specific repair for
// each error flagged correctable; everything else is skipped. Repairs
// mutate the in-memory collections only — whether the corrected records are
// written back through the engine is an explicit, separate decision by the
// caller. The return value is the errors still uncorrected.
func (v *Validator) AutoCorrect(ctx context.Context, errs []ValidationError, cols *Collections) ([]ValidationError, int) {
	var remaining []ValidationError
	corrected := 0

	for _, e := range errs {
		if ctx.Err() != nil {
			remaining = append(remaining, e)
			continue
		}
		if !e.CanAutoCorrect {
			remaining = append(remaining, e)
			continue
		}

		ok := false
		switch e.Kind {
		case KindChecksumMismatch:
			ok = v.repairChecksum(e, cols)
		case KindMissingReference:
			ok = v.reassignEventSession(e, cols)
		case KindSchemaViolation:
			ok = v.repairVersion(e, cols)
		case KindDataCorruption:
			ok = v.repairRange(e, cols)
		}

		if ok {
			corrected++
			v.logger.Info("auto-corrected record",
				zap.String("kind", string(e.Kind)),
				zap.String("record_id", e.RecordID))
		} else {
			remaining = append(remaining, e)
		}
	}
	return remaining, corrected
}

// repairChecksum restamps a stale checksum from the record's current
// semantic fields and clears the invalid flag the mismatch set.
func (v *Validator) repairChecksum(e ValidationError, cols *Collections) bool {
	if s := findSession(cols, e.RecordID); s != nil {
		s.Checksum = record.SessionChecksum(v.sum, &s.Session)
		s.Valid = true
		return true
	}
	if t := findTab(cols, e.RecordID); t != nil {
		t.Checksum = record.TabChecksum(v.sum, &t.Tab, t.SessionID)
		t.Valid = true
		return true
	}
	if ev := findEvent(cols, e.RecordID); ev != nil {
		ev.Checksum = record.EventChecksum(v.sum, &ev.NavigationEvent, ev.SessionID)
		return true
	}
	return false
}

// reassignEventSession points an orphaned event at its owning tab's
// session. Without a surviving tab there is no safe reassignment.
func (v *Validator) reassignEventSession(e ValidationError, cols *Collections) bool {
	ev := findEvent(cols, e.RecordID)
	if ev == nil {
		return false
	}
	for _, t := range cols.Tabs {
		if t.Tab.ID == ev.TabID && t.SessionID != "" {
			ev.SessionID = t.SessionID
			ev.Checksum = record.EventChecksum(v.sum, &ev.NavigationEvent, ev.SessionID)
			return true
		}
	}
	return false
}

func (v *Validator) repairVersion(e ValidationError, cols *Collections) bool {
	if e.Field != "version" {
		return false
	}
	if s := findSession(cols, e.RecordID); s != nil {
		s.Version = 1
		return true
	}
	if t := findTab(cols, e.RecordID); t != nil {
		t.Version = 1
		return true
	}
	return false
}

func (v *Validator) repairRange(e ValidationError, cols *Collections) bool {
	if e.Field != "scroll_position" {
		return false
	}
	if t := findTab(cols, e.RecordID); t != nil {
		t.ScrollPosition = 0
		t.Checksum = record.TabChecksum(v.sum, &t.Tab, t.SessionID)
		return true
	}
	return false
}

func findSession(cols *Collections, recordID string) *record.StoredSession {
	for _, s := range cols.Sessions {
		if s.ID == recordID {
			return s
		}
	}
	return nil
}

func findTab(cols *Collections, recordID string) *record.StoredTab {
	id, ok := strings.CutPrefix(recordID, "tab:")
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	for _, t := range cols.Tabs {
		if t.Tab.ID == n {
			return t
		}
	}
	return nil
}

func findEvent(cols *Collections, recordID string) *record.StoredNavigationEvent {
	rest, ok := strings.CutPrefix(recordID, "event:")
	if !ok {
		return nil
	}
	idStr, tsStr, ok := strings.Cut(rest, "@")
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return nil
	}
	for _, ev := range cols.Events {
		if ev.TabID == n && ev.Timestamp.Truncate(time.Second).Equal(ts.Truncate(time.Second)) {
			return ev
		}
	}
	return nil
}
