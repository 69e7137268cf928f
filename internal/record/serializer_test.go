package record

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/pkg/types"
)

func testSession(id string) *types.Session {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return &types.Session{
		ID:        id,
		Tag:       "research",
		CreatedAt: now,
		UpdatedAt: now,
		WindowIDs: []int64{1},
		Tabs: []types.Tab{
			{
				ID:        101,
				URL:       "https://example.com/articles/go",
				Title:     "Go articles",
				WindowID:  1,
				CreatedAt: now,
			},
			{
				ID:        102,
				URL:       "https://example.com/articles/sqlite",
				Title:     "SQLite articles",
				WindowID:  1,
				CreatedAt: now,
			},
		},
		Metadata: types.SessionMetadata{
			PageCount: 7,
			Notes:     "reading list",
		},
	}
}

func TestSerializeSession_RoundTrip(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	sess := testSession("s1")

	stored, payload, err := s.SerializeSession(sess)
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, 2, stored.TotalTabCount)
	assert.Equal(t, 7, stored.TotalNavigationEvents)
	assert.Equal(t, []string{"example.com"}, stored.Domains)
	assert.NotEmpty(t, stored.Checksum)
	assert.True(t, stored.Valid)

	decoded, err := s.DecodeSession(payload, stored.Compressed)
	require.NoError(t, err)
	assert.Equal(t, "s1", decoded.ID)
	assert.Equal(t, sess.Tabs[0].URL, decoded.Tabs[0].URL)
	assert.Equal(t, sess.Tabs[1].URL, decoded.Tabs[1].URL)
	assert.True(t, decoded.Valid, "checksum should verify after decode")
}

func TestSerializeSession_DoesNotMutateInput(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	sess := testSession("s1")
	longTitle := strings.Repeat("x", maxTitleLength+50)
	sess.Tabs[0].Title = longTitle

	_, _, err := s.SerializeSession(sess)
	require.NoError(t, err)

	assert.Equal(t, longTitle, sess.Tabs[0].Title, "caller's record must stay untouched")
	assert.Equal(t, "https://example.com/articles/go", sess.Tabs[0].URL)
}

func TestSerializeSession_ChecksumStable(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)

	a, _, err := s.SerializeSession(testSession("s1"))
	require.NoError(t, err)
	b, _, err := s.SerializeSession(testSession("s1"))
	require.NoError(t, err)

	assert.Equal(t, a.Checksum, b.Checksum, "same content must hash the same")

	modified := testSession("s1")
	modified.Tabs[0].Title = "changed"
	c, _, err := s.SerializeSession(modified)
	require.NoError(t, err)
	assert.NotEqual(t, a.Checksum, c.Checksum)
}

func TestSerializeSession_TamperDetected(t *testing.T) {
	s := New(Options{EnableCompression: false}, nil, nil)
	sess := testSession("s1")

	stored, payload, err := s.SerializeSession(sess)
	require.NoError(t, err)
	require.False(t, stored.Compressed)

	tampered := []byte(strings.Replace(string(payload), "Go articles", "Tampered!!!", 1))
	decoded, err := s.DecodeSession(tampered, false)
	require.NoError(t, err, "drift is flagged, not fatal")
	assert.False(t, decoded.Valid)
}

func TestSerializeSession_Truncation(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	sess := testSession("s1")
	sess.Tabs[0].Title = strings.Repeat("t", maxTitleLength+1)
	sess.Metadata.Notes = strings.Repeat("n", maxNoteLength+1)
	sess.Tabs[0].URL = "https://example.com/" + strings.Repeat("p", maxURLLength)

	stored, _, err := s.SerializeSession(sess)
	require.NoError(t, err)

	assert.Len(t, stored.Tabs[0].Title, maxTitleLength)
	assert.Len(t, stored.Metadata.Notes, maxNoteLength)
	assert.LessOrEqual(t, len(stored.Tabs[0].URL), maxURLLength)
	assert.True(t, strings.HasPrefix(stored.Tabs[0].URL, "https://example.com/"),
		"scheme and host survive truncation")
}

func TestSerializeSession_StaleFormDataDropped(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	sess := testSession("s1")
	sess.Tabs[0].FormData = map[string]string{"q": "golang"}
	sess.Tabs[0].CreatedAt = time.Now().Add(-2 * time.Hour)
	sess.Tabs[1].FormData = map[string]string{"q": "fresh"}
	sess.Tabs[1].CreatedAt = time.Now().Add(-5 * time.Minute)

	stored, _, err := s.SerializeSession(sess)
	require.NoError(t, err)

	assert.Nil(t, stored.Tabs[0].FormData, "form data older than an hour is dropped")
	assert.Equal(t, map[string]string{"q": "fresh"}, stored.Tabs[1].FormData)
}

func TestCompressionGate(t *testing.T) {
	s := New(Options{EnableCompression: true, CompressionThreshold: 1024}, nil, nil)
	sess := testSession("s1")
	// Highly repetitive notes compress well.
	sess.Metadata.Notes = strings.Repeat("browse ", 140)

	stored, payload, err := s.SerializeSession(sess)
	require.NoError(t, err)

	assert.True(t, stored.Compressed)
	assert.Less(t, len(payload), stored.Size, "payload should be smaller than the marshalled form")

	decoded, err := s.DecodeSession(payload, true)
	require.NoError(t, err)
	assert.Equal(t, stored.Metadata.Notes, decoded.Metadata.Notes)
	assert.True(t, decoded.Valid)
}

func TestCompressionGate_SmallPayloadSkipped(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)

	stored, _, err := s.SerializeSession(testSession("s1"))
	require.NoError(t, err)
	assert.False(t, stored.Compressed, "payloads under the threshold stay plain")
}

func TestCompressionGate_Disabled(t *testing.T) {
	s := New(Options{EnableCompression: false, CompressionThreshold: 10}, nil, nil)
	sess := testSession("s1")
	sess.Metadata.Notes = strings.Repeat("browse ", 140)

	stored, _, err := s.SerializeSession(sess)
	require.NoError(t, err)
	assert.False(t, stored.Compressed)
}

func TestSerializeTab_RoundTrip(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tab := &types.Tab{
		ID:        55,
		URL:       "https://news.example.org/item/1",
		Title:     "Item",
		WindowID:  2,
		CreatedAt: now,
		TimeSpent: 90 * time.Second,
	}

	stored, payload, err := s.SerializeTab(tab, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", stored.SessionID)
	assert.Equal(t, "news.example.org", stored.Domain)

	decoded, err := s.DecodeTab(payload, stored.Compressed)
	require.NoError(t, err)
	assert.Equal(t, int64(55), decoded.Tab.ID)
	assert.Equal(t, tab.TimeSpent, decoded.TimeSpent)
	assert.True(t, decoded.Valid)
}

func TestSerializeEvent_NeverCompressed(t *testing.T) {
	s := New(Options{EnableCompression: true, CompressionThreshold: 1}, nil, nil)
	ev := &types.NavigationEvent{
		TabID:          7,
		URL:            "https://example.com/" + strings.Repeat("a", 2000),
		Timestamp:      time.Now().UTC(),
		TransitionType: types.TransitionLink,
	}

	stored, payload, err := s.SerializeEvent(ev, "s1", "batch-1")
	require.NoError(t, err)
	assert.False(t, stored.Compressed)
	assert.Equal(t, "batch-1", stored.BatchID)

	decoded, err := s.DecodeEvent(payload, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), decoded.TabID)
	assert.Equal(t, types.TransitionLink, decoded.TransitionType)
}

func TestSerializeBoundary_RoundTrip(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	b := &types.SessionBoundary{
		SessionID:   "s1",
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		Reason:      types.BoundaryIdleTimeout,
		TabCount:    4,
		WindowCount: 1,
	}

	_, payload, err := s.SerializeBoundary(b)
	require.NoError(t, err)

	decoded, err := s.DecodeBoundary(payload, false)
	require.NoError(t, err)
	assert.Equal(t, b.SessionID, decoded.SessionID)
	assert.Equal(t, types.BoundaryIdleTimeout, decoded.Reason)
	assert.Equal(t, 4, decoded.TabCount)
}

func TestChecksummers(t *testing.T) {
	data := []byte("the same input")

	fnv := FNVChecksummer{}
	assert.Equal(t, fnv.Sum(data), fnv.Sum(data))
	assert.NotEqual(t, fnv.Sum(data), fnv.Sum([]byte("different input")))

	sha := SHA256Checksummer{}
	assert.Equal(t, sha.Sum(data), sha.Sum(data))
	assert.Len(t, sha.Sum(data), 64)
	assert.NotEqual(t, fnv.Sum(data), sha.Sum(data))
}
