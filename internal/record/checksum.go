package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/tabvault/tabvault/pkg/types"
)

// Checksummer digests a record's canonical byte form. Implementations must
// be deterministic: the same input always yields the same sum.
type Checksummer interface {
	Name() string
	Sum(data []byte) string
}

// FNVChecksummer digests with FNV-1a/64. It is the default: fast and
// deterministic, but non-cryptographic — it detects corruption and drift,
// not tampering. Swap in SHA256Checksummer if collision resistance matters.
type FNVChecksummer struct{}

func (FNVChecksummer) Name() string { return "fnv64a" }

func (FNVChecksummer) Sum(data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

// SHA256Checksummer digests with SHA-256.
type SHA256Checksummer struct{}

func (SHA256Checksummer) Name() string { return "sha256" }

func (SHA256Checksummer) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Canonical semantic views. Only these fields feed the checksum; envelope
// metadata and derived index fields stay out so that reserializing the same
// domain data is checksum-stable.

type sessionSemantic struct {
	Session types.Session `json:"session"`
}

type tabSemantic struct {
	Tab       types.Tab `json:"tab"`
	SessionID string    `json:"session_id"`
}

type eventSemantic struct {
	Event     types.NavigationEvent `json:"event"`
	SessionID string                `json:"session_id"`
}

type boundarySemantic struct {
	Boundary types.SessionBoundary `json:"boundary"`
}

func checksumOf(sum Checksummer, v any) string {
	// encoding/json emits struct fields in declaration order and map keys
	// sorted, which makes the encoding canonical for our types.
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return sum.Sum(data)
}

// SessionChecksum computes the canonical checksum of a session's semantic
// fields.
func SessionChecksum(sum Checksummer, s *types.Session) string {
	return checksumOf(sum, sessionSemantic{Session: *s})
}

// TabChecksum computes the canonical checksum of a tab's semantic fields,
// including its owning session ID.
func TabChecksum(sum Checksummer, t *types.Tab, sessionID string) string {
	return checksumOf(sum, tabSemantic{Tab: *t, SessionID: sessionID})
}

// EventChecksum computes the canonical checksum of a navigation event.
func EventChecksum(sum Checksummer, e *types.NavigationEvent, sessionID string) string {
	return checksumOf(sum, eventSemantic{Event: *e, SessionID: sessionID})
}

// BoundaryChecksum computes the canonical checksum of a session boundary.
func BoundaryChecksum(sum Checksummer, b *types.SessionBoundary) string {
	return checksumOf(sum, boundarySemantic{Boundary: *b})
}
