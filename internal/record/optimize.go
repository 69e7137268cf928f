package record

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tabvault/tabvault/pkg/types"
)

// Optimization limits. Identity fields (IDs, owning-session ID, timestamps)
// are never touched; URLs are shortened only past the hard cap, preserving
// scheme, host, and a partial path.
const (
	maxURLLength   = 500
	maxTitleLength = 200
	maxNoteLength  = 1000
	formDataMaxAge = time.Hour
)

// optimizeSession applies the lossy optimization pass to a session in place.
// It runs before the checksum is computed, so what is checksummed is what
// is stored.
func (s *Serializer) optimizeSession(sess *types.Session) {
	for i := range sess.Tabs {
		s.optimizeTab(&sess.Tabs[i])
	}
	sess.Metadata.Notes = truncateText(sess.Metadata.Notes, maxNoteLength)
}

func (s *Serializer) optimizeTab(t *types.Tab) {
	t.URL = truncateURL(t.URL, maxURLLength)
	t.Title = truncateText(t.Title, maxTitleLength)
	if t.FormData != nil && s.now().Sub(t.CreatedAt) > formDataMaxAge {
		t.FormData = nil
	}
}

// truncateText cuts a string down to at most max bytes without splitting a
// multi-byte rune at the boundary.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// truncateURL shortens a URL past max characters while keeping the scheme,
// host, and as much of the path as fits.
func truncateURL(raw string, max int) string {
	if len(raw) <= max {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return truncateText(raw, max)
	}
	base := u.Scheme + "://" + u.Host
	if len(base) >= max {
		return base
	}
	path := u.EscapedPath()
	if room := max - len(base); len(path) > room {
		path = path[:room]
	}
	return base + path
}

// ExtractDomain pulls the hostname out of a URL string. An unparseable URL
// yields the empty string.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// DomainSet returns the sorted unique hostnames across a session's tabs.
func DomainSet(tabs []types.Tab) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range tabs {
		d := ExtractDomain(tabs[i].URL)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Hostname tokenization. Hostnames repeated across a session's tabs are
// replaced with short tokens and a token->hostname dictionary rides along
// in the envelope. The substitution is fully reversible; it runs after the
// checksum so decode can verify against the expanded form.

const tokenPrefix = "~h"

// tokenizeHosts rewrites repeated hostnames in the session's tab URLs and
// returns the dictionary needed to reverse the substitution. Hostnames seen
// once, or shorter than their token, are left alone.
func tokenizeHosts(sess *types.Session) map[string]string {
	counts := make(map[string]int)
	for i := range sess.Tabs {
		if d := ExtractDomain(sess.Tabs[i].URL); d != "" {
			counts[d]++
		}
	}

	tokens := make(map[string]string) // token -> hostname
	byHost := make(map[string]string) // hostname -> token
	next := 0
	for i := range sess.Tabs {
		host := ExtractDomain(sess.Tabs[i].URL)
		if host == "" || counts[host] < 2 {
			continue
		}
		tok, ok := byHost[host]
		if !ok {
			tok = fmt.Sprintf("%s%d~", tokenPrefix, next)
			if len(tok) >= len(host) {
				continue // substitution would not shrink anything
			}
			next++
			byHost[host] = tok
			tokens[tok] = host
		}
		sess.Tabs[i].URL = strings.Replace(sess.Tabs[i].URL, host, tok, 1)
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// expandHosts reverses tokenizeHosts using the stored dictionary.
func expandHosts(sess *types.Session, tokens map[string]string) {
	if len(tokens) == 0 {
		return
	}
	for i := range sess.Tabs {
		for tok, host := range tokens {
			if strings.Contains(sess.Tabs[i].URL, tok) {
				sess.Tabs[i].URL = strings.Replace(sess.Tabs[i].URL, tok, host, 1)
				break
			}
		}
	}
}
