package integrity

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/record"
	"github.com/tabvault/tabvault/internal/storage"
)

var (
	// ErrBackupNotFound is returned when a requested backup doesn't exist
	ErrBackupNotFound = errors.New("backup not found")
	// ErrBackupsDisabled is returned when backups are turned off in the
	// validator options
	ErrBackupsDisabled = errors.New("backups are disabled")
)

// ErrorKind categorizes a validation error.
type ErrorKind string

const (
	KindChecksumMismatch ErrorKind = "checksum_mismatch"
	KindMissingReference ErrorKind = "missing_reference"
	KindDataCorruption   ErrorKind = "data_corruption"
	KindSchemaViolation  ErrorKind = "schema_violation"
)

// Severity grades how bad a validation error is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidationError is one problem found in a stored record.
type ValidationError struct {
	Kind           ErrorKind `json:"kind"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	RecordID       string    `json:"record_id"`
	Field          string    `json:"field,omitempty"`
	CanAutoCorrect bool      `json:"can_auto_correct"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Kind, e.Severity, e.RecordID, e.Message)
}

// Warning is a soft-consistency finding; it never fails a validation run.
type Warning struct {
	Message  string `json:"message"`
	RecordID string `json:"record_id"`
	Field    string `json:"field,omitempty"`
}

// Result is the outcome of a validation run.
type Result struct {
	IsValid        bool              `json:"is_valid"`
	Errors         []ValidationError `json:"errors"`
	Warnings       []Warning         `json:"warnings"`
	CorrectedItems int               `json:"corrected_items"`
	ValidationTime time.Duration     `json:"validation_time"`
}

func (r *Result) addError(e ValidationError) {
	r.Errors = append(r.Errors, e)
	r.IsValid = false
}

func (r *Result) addWarning(w Warning) {
	r.Warnings = append(r.Warnings, w)
}

// merge folds another result into this one.
func (r *Result) merge(other *Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.CorrectedItems += other.CorrectedItems
	if !other.IsValid {
		r.IsValid = false
	}
}

// Options configures the validator.
type Options struct {
	EnableChecks           bool
	EnableBackups          bool
	BackupInterval         time.Duration
	MaxBackups             int
	ChecksumValidation     bool
	RelationshipValidation bool
	DataConsistencyChecks  bool
}

// DefaultOptions returns the validator defaults.
func DefaultOptions() Options {
	return Options{
		EnableChecks:           true,
		EnableBackups:          true,
		BackupInterval:         6 * time.Hour,
		MaxBackups:             5,
		ChecksumValidation:     true,
		RelationshipValidation: true,
		DataConsistencyChecks:  true,
	}
}

// Validator checks stored records and manages backups.
type Validator struct {
	engine *storage.Engine
	sum    record.Checksummer
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

// New creates a Validator bound to an engine.
func New(engine *storage.Engine, logger *zap.Logger, opts Options) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		engine: engine,
		sum:    engine.Serializer().Checksummer(),
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// ValidateSession checks one stored session: shape, checksum, and soft
// consistency.
func (v *Validator) ValidateSession(st *record.StoredSession) *Result {
	start := v.now()
	res := &Result{IsValid: true}

	if st.ID == "" {
		res.addError(ValidationError{
			Kind:           KindSchemaViolation,
			Severity:       SeverityCritical,
			Message:        "session is missing its identity field",
			Field:          "id",
			CanAutoCorrect: false,
		})
	}
	if st.CreatedAt.IsZero() {
		res.addError(ValidationError{
			Kind:           KindDataCorruption,
			Severity:       SeverityHigh,
			Message:        "session has a zero creation timestamp",
			RecordID:       st.ID,
			Field:          "created_at",
			CanAutoCorrect: false,
		})
	}
	if st.Version < 1 {
		res.addError(ValidationError{
			Kind:           KindSchemaViolation,
			Severity:       SeverityMedium,
			Message:        fmt.Sprintf("stored version %d is below 1", st.Version),
			RecordID:       st.ID,
			Field:          "version",
			CanAutoCorrect: true,
		})
	}

	if v.opts.ChecksumValidation {
		if got := record.SessionChecksum(v.sum, &st.Session); got != st.Checksum {
			res.addError(ValidationError{
				Kind:           KindChecksumMismatch,
				Severity:       SeverityHigh,
				Message:        fmt.Sprintf("stored checksum %s does not match computed %s", st.Checksum, got),
				RecordID:       st.ID,
				Field:          "checksum",
				CanAutoCorrect: true,
			})
		}
	}

	if v.opts.DataConsistencyChecks {
		if !st.UpdatedAt.IsZero() && st.UpdatedAt.Before(st.CreatedAt) {
			res.addWarning(Warning{
				Message:  "updated_at precedes created_at",
				RecordID: st.ID,
				Field:    "updated_at",
			})
		}
		if st.TotalTabCount != len(st.Tabs) {
			res.addWarning(Warning{
				Message:  fmt.Sprintf("cached tab count %d drifted from actual %d", st.TotalTabCount, len(st.Tabs)),
				RecordID: st.ID,
				Field:    "total_tab_count",
			})
		}
	}

	res.ValidationTime = v.now().Sub(start)
	return res
}

// ValidateTab checks one stored tab.
func (v *Validator) ValidateTab(st *record.StoredTab) *Result {
	start := v.now()
	res := &Result{IsValid: true}
	id := fmt.Sprintf("tab:%d", st.Tab.ID)

	if st.Tab.ID <= 0 {
		res.addError(ValidationError{
			Kind:           KindSchemaViolation,
			Severity:       SeverityCritical,
			Message:        "tab is missing its numeric identity",
			RecordID:       id,
			Field:          "id",
			CanAutoCorrect: false,
		})
	}
	if st.URL == "" {
		res.addError(ValidationError{
			Kind:           KindSchemaViolation,
			Severity:       SeverityHigh,
			Message:        "tab has no URL",
			RecordID:       id,
			Field:          "url",
			CanAutoCorrect: false,
		})
	}
	if st.ScrollPosition < 0 {
		res.addError(ValidationError{
			Kind:           KindDataCorruption,
			Severity:       SeverityLow,
			Message:        "negative scroll position",
			RecordID:       id,
			Field:          "scroll_position",
			CanAutoCorrect: true,
		})
	}

	if v.opts.ChecksumValidation {
		if got := record.TabChecksum(v.sum, &st.Tab, st.SessionID); got != st.Checksum {
			res.addError(ValidationError{
				Kind:           KindChecksumMismatch,
				Severity:       SeverityHigh,
				Message:        fmt.Sprintf("stored checksum %s does not match computed %s", st.Checksum, got),
				RecordID:       id,
				Field:          "checksum",
				CanAutoCorrect: true,
			})
		}
	}

	if v.opts.DataConsistencyChecks {
		if !st.LastAccessed.IsZero() && st.LastAccessed.Before(st.CreatedAt) {
			res.addWarning(Warning{
				Message:  "last_accessed precedes created_at",
				RecordID: id,
				Field:    "last_accessed",
			})
		}
	}

	res.ValidationTime = v.now().Sub(start)
	return res
}

// ValidateEvent checks one stored navigation event.
func (v *Validator) ValidateEvent(st *record.StoredNavigationEvent) *Result {
	start := v.now()
	res := &Result{IsValid: true}
	id := fmt.Sprintf("event:%d@%s", st.TabID, st.Timestamp.Format(time.RFC3339))

	if st.TabID <= 0 {
		res.addError(ValidationError{
			Kind:           KindSchemaViolation,
			Severity:       SeverityCritical,
			Message:        "event is missing its tab identity",
			RecordID:       id,
			Field:          "tab_id",
			CanAutoCorrect: false,
		})
	}
	if st.Timestamp.IsZero() {
		res.addError(ValidationError{
			Kind:           KindSchemaViolation,
			Severity:       SeverityCritical,
			Message:        "event is missing its timestamp",
			RecordID:       id,
			Field:          "timestamp",
			CanAutoCorrect: false,
		})
	}
	if st.URL == "" {
		res.addError(ValidationError{
			Kind:           KindSchemaViolation,
			Severity:       SeverityHigh,
			Message:        "event has no URL",
			RecordID:       id,
			Field:          "url",
			CanAutoCorrect: false,
		})
	}

	if v.opts.ChecksumValidation {
		if got := record.EventChecksum(v.sum, &st.NavigationEvent, st.SessionID); got != st.Checksum {
			res.addError(ValidationError{
				Kind:           KindChecksumMismatch,
				Severity:       SeverityMedium,
				Message:        fmt.Sprintf("stored checksum %s does not match computed %s", st.Checksum, got),
				RecordID:       id,
				Field:          "checksum",
				CanAutoCorrect: true,
			})
		}
	}

	res.ValidationTime = v.now().Sub(start)
	return res
}
