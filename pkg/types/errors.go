package types

import "errors"

// Domain errors for record validation
var (
	ErrEmptySessionID   = errors.New("session ID cannot be empty")
	ErrEmptyURL         = errors.New("URL cannot be empty")
	ErrInvalidTabID     = errors.New("tab ID must be > 0")
	ErrInvalidTimestamp = errors.New("timestamp cannot be zero")
	ErrImmutableField   = errors.New("identity field is immutable")
)

// Validate checks the minimum shape a Session must have before it can be
// handed to the storage layer.
func (s *Session) Validate() error {
	if s.ID == "" {
		return ErrEmptySessionID
	}
	if s.CreatedAt.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// Validate checks the minimum shape of a Tab.
func (t *Tab) Validate() error {
	if t.ID <= 0 {
		return ErrInvalidTabID
	}
	if t.URL == "" {
		return ErrEmptyURL
	}
	return nil
}

// Validate checks the minimum shape of a NavigationEvent.
func (e *NavigationEvent) Validate() error {
	if e.TabID <= 0 {
		return ErrInvalidTabID
	}
	if e.URL == "" {
		return ErrEmptyURL
	}
	if e.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
