package record

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/pkg/types"
)

// Options configures the serializer.
type Options struct {
	// EnableCompression gates the gzip pass; payloads below
	// CompressionThreshold bytes are never compressed.
	EnableCompression    bool
	CompressionThreshold int
}

// DefaultOptions returns the serializer defaults.
func DefaultOptions() Options {
	return Options{
		EnableCompression:    true,
		CompressionThreshold: 4096,
	}
}

// compressionGain is the minimum relative saving gzip must deliver before
// the compressed form is kept.
const compressionGain = 0.10

// Serializer maps domain records to stored envelopes and back.
type Serializer struct {
	opts   Options
	sum    Checksummer
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Serializer. A nil checksummer falls back to FNV-1a/64 and a
// nil logger to a no-op logger.
func New(opts Options, sum Checksummer, logger *zap.Logger) *Serializer {
	if sum == nil {
		sum = FNVChecksummer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Serializer{opts: opts, sum: sum, logger: logger, now: time.Now}
}

// Checksummer returns the hash the serializer stamps records with.
func (s *Serializer) Checksummer() Checksummer { return s.sum }

// SerializeSession builds the stored form of a session and its payload
// bytes. The input is copied; the caller's record is never mutated.
func (s *Serializer) SerializeSession(sess *types.Session) (*StoredSession, []byte, error) {
	cp := *sess
	cp.Tabs = append([]types.Tab(nil), sess.Tabs...)
	cp.WindowIDs = append([]int64(nil), sess.WindowIDs...)

	s.optimizeSession(&cp)
	checksum := SessionChecksum(s.sum, &cp)
	tokens := tokenizeHosts(&cp)

	totalEvents := cp.Metadata.PageCount
	stored := &StoredSession{
		Session: cp,
		Envelope: Envelope{
			Version:      1,
			LastModified: s.now().UTC(),
			Checksum:     checksum,
		},
		Domains:               DomainSet(sess.Tabs),
		TotalTabCount:         len(cp.Tabs),
		TotalNavigationEvents: totalEvents,
		Valid:                 true,
		HostTokens:            tokens,
	}

	payload, err := s.encode(stored, &stored.Envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize session %s: %w", sess.ID, err)
	}

	// The token form lives only inside the payload. The record handed back
	// to callers carries full URLs again.
	expandHosts(&stored.Session, stored.HostTokens)
	stored.HostTokens = nil
	return stored, payload, nil
}

// SerializeTab builds the stored form of a tab owned by sessionID.
func (s *Serializer) SerializeTab(tab *types.Tab, sessionID string) (*StoredTab, []byte, error) {
	cp := *tab
	s.optimizeTab(&cp)

	stored := &StoredTab{
		Tab: cp,
		Envelope: Envelope{
			Version:      1,
			LastModified: s.now().UTC(),
			Checksum:     TabChecksum(s.sum, &cp, sessionID),
		},
		SessionID: sessionID,
		Domain:    ExtractDomain(cp.URL),
		Valid:     true,
	}

	payload, err := s.encode(stored, &stored.Envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize tab %d: %w", tab.ID, err)
	}
	return stored, payload, nil
}

// SerializeEvent builds the stored form of a navigation event.
func (s *Serializer) SerializeEvent(ev *types.NavigationEvent, sessionID, batchID string) (*StoredNavigationEvent, []byte, error) {
	stored := &StoredNavigationEvent{
		NavigationEvent: *ev,
		Envelope: Envelope{
			Version:      1,
			LastModified: s.now().UTC(),
			Checksum:     EventChecksum(s.sum, ev, sessionID),
		},
		SessionID: sessionID,
		Domain:    ExtractDomain(ev.URL),
		BatchID:   batchID,
	}

	// Events are small rows; the compression gate never pays for itself.
	payload, err := s.encodePlain(stored, &stored.Envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize event (%d,%s): %w", ev.TabID, ev.Timestamp, err)
	}
	return stored, payload, nil
}

// SerializeBoundary builds the stored form of a session boundary.
func (s *Serializer) SerializeBoundary(b *types.SessionBoundary) (*StoredBoundary, []byte, error) {
	stored := &StoredBoundary{
		SessionBoundary: *b,
		Envelope: Envelope{
			Version:      1,
			LastModified: s.now().UTC(),
			Checksum:     BoundaryChecksum(s.sum, b),
		},
	}

	payload, err := s.encodePlain(stored, &stored.Envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize boundary (%s,%s): %w", b.SessionID, b.Timestamp, err)
	}
	return stored, payload, nil
}

// EncodeSession re-encodes an already-built stored session, re-running the
// compression gate. Used by the engine after it adjusts envelope fields on
// update (version bump, preserved creation time).
func (s *Serializer) EncodeSession(st *StoredSession) ([]byte, error) {
	return s.encode(st, &st.Envelope)
}

// EncodeTab re-encodes an already-built stored tab.
func (s *Serializer) EncodeTab(st *StoredTab) ([]byte, error) {
	return s.encode(st, &st.Envelope)
}

// EncodeEvent re-encodes an already-built stored navigation event.
func (s *Serializer) EncodeEvent(st *StoredNavigationEvent) ([]byte, error) {
	return s.encodePlain(st, &st.Envelope)
}

// encodePlain marshals a stored record without the compression gate.
func (s *Serializer) encodePlain(v any, env *Envelope) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	env.Size = len(plain)
	env.Compressed = false
	return json.Marshal(v)
}

// encode marshals a stored record and applies the compression gate. The
// envelope's Size and Compressed fields are stamped before the final
// marshal so they land inside the payload too.
func (s *Serializer) encode(v any, env *Envelope) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	env.Size = len(plain)
	env.Compressed = false

	if !s.opts.EnableCompression || len(plain) <= s.opts.CompressionThreshold {
		return json.Marshal(v)
	}

	env.Compressed = true
	marked, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	compressed, err := gzipBytes(marked)
	if err != nil {
		return nil, err
	}
	if float64(len(compressed)) > float64(len(marked))*(1-compressionGain) {
		// Not worth it; keep the uncompressed form.
		env.Compressed = false
		return json.Marshal(v)
	}
	return compressed, nil
}

// DecodeSession reverses SerializeSession. A checksum mismatch is logged
// and flagged on the record, never returned as an error.
func (s *Serializer) DecodeSession(payload []byte, compressed bool) (*StoredSession, error) {
	data, err := maybeGunzip(payload, compressed)
	if err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	var stored StoredSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	expandHosts(&stored.Session, stored.HostTokens)
	stored.HostTokens = nil

	if got := SessionChecksum(s.sum, &stored.Session); got != stored.Checksum {
		s.logger.Warn("session checksum drift",
			zap.String("session_id", stored.ID),
			zap.String("stored", stored.Checksum),
			zap.String("computed", got))
		stored.Valid = false
	}
	return &stored, nil
}

// DecodeTab reverses SerializeTab.
func (s *Serializer) DecodeTab(payload []byte, compressed bool) (*StoredTab, error) {
	data, err := maybeGunzip(payload, compressed)
	if err != nil {
		return nil, fmt.Errorf("decode tab payload: %w", err)
	}
	var stored StoredTab
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode tab payload: %w", err)
	}
	if got := TabChecksum(s.sum, &stored.Tab, stored.SessionID); got != stored.Checksum {
		s.logger.Warn("tab checksum drift",
			zap.Int64("tab_id", stored.Tab.ID),
			zap.String("stored", stored.Checksum),
			zap.String("computed", got))
		stored.Valid = false
	}
	return &stored, nil
}

// DecodeEvent reverses SerializeEvent.
func (s *Serializer) DecodeEvent(payload []byte, compressed bool) (*StoredNavigationEvent, error) {
	data, err := maybeGunzip(payload, compressed)
	if err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	var stored StoredNavigationEvent
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	if got := EventChecksum(s.sum, &stored.NavigationEvent, stored.SessionID); got != stored.Checksum {
		s.logger.Warn("navigation event checksum drift",
			zap.Int64("tab_id", stored.TabID),
			zap.Time("ts", stored.Timestamp))
	}
	return &stored, nil
}

// DecodeBoundary reverses SerializeBoundary.
func (s *Serializer) DecodeBoundary(payload []byte, compressed bool) (*StoredBoundary, error) {
	data, err := maybeGunzip(payload, compressed)
	if err != nil {
		return nil, fmt.Errorf("decode boundary payload: %w", err)
	}
	var stored StoredBoundary
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode boundary payload: %w", err)
	}
	if got := BoundaryChecksum(s.sum, &stored.SessionBoundary); got != stored.Checksum {
		s.logger.Warn("boundary checksum drift",
			zap.String("session_id", stored.SessionID),
			zap.Time("ts", stored.Timestamp))
	}
	return &stored, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func maybeGunzip(payload []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return payload, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
