// Package lexicon provides the wire-level primitives shared by lexicon
// record types: datetimes, CID links, byte strings, blobs, raw union
// payloads, and grapheme-aware string truncation.
package lexicon

import "github.com/rivo/uniseg"

// GraphemeLen returns the length of s in extended grapheme clusters, the
// unit the protocol's string limits are counted in.
func GraphemeLen(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// TruncateGraphemes returns the longest prefix of s holding at most max
// grapheme clusters. The cut always lands on a cluster boundary, so emoji
// sequences, combining marks, and regional indicator pairs are never split.
func TruncateGraphemes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	// A cluster occupies at least one byte, so short strings cannot exceed
	// the limit.
	if len(s) <= max {
		return s
	}
	var count, end int
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		count++
		if count > max {
			return s[:end]
		}
		_, end = gr.Positions()
	}
	return s
}
