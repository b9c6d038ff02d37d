// Package syntax provides the small string identifier types used across the
// AT Protocol: at:// URIs and TID record keys.
package syntax

import (
	"fmt"
	"strings"
)

const aturiScheme = "at://"

// ATURI addresses a repository, a collection within it, or a single record:
// at://<authority>[/<collection>[/<rkey>]]. The authority is a DID or handle.
type ATURI string

// NewATURI builds a record-level AT-URI from its three components.
func NewATURI(authority, collection, rkey string) ATURI {
	return ATURI(fmt.Sprintf("at://%s/%s/%s", authority, collection, rkey))
}

// ParseATURI validates the overall shape of an at:// URI. It checks the
// scheme and segment structure, not the syntax of the individual components.
func ParseATURI(s string) (ATURI, error) {
	rest, ok := strings.CutPrefix(s, aturiScheme)
	if !ok {
		return "", fmt.Errorf("at-uri %q: missing at:// scheme", s)
	}
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		return "", fmt.Errorf("at-uri %q: empty authority", s)
	}
	if len(parts) > 3 {
		return "", fmt.Errorf("at-uri %q: too many path segments", s)
	}
	for _, p := range parts[1:] {
		if p == "" {
			return "", fmt.Errorf("at-uri %q: empty path segment", s)
		}
	}
	return ATURI(s), nil
}

func (u ATURI) String() string {
	return string(u)
}

// Authority returns the DID or handle that owns the repository.
func (u ATURI) Authority() string {
	return u.segment(0)
}

// Collection returns the collection NSID, or "" for a repo-level URI.
func (u ATURI) Collection() string {
	return u.segment(1)
}

// RecordKey returns the record key, or "" for repo- or collection-level URIs.
func (u ATURI) RecordKey() string {
	return u.segment(2)
}

func (u ATURI) segment(i int) string {
	parts := strings.Split(strings.TrimPrefix(string(u), aturiScheme), "/")
	if i >= len(parts) {
		return ""
	}
	return parts[i]
}
