// Package bsky provides typed records and endpoint wrappers for the
// app.bsky lexicons. The central type is FeedPost, the post record; its JSON
// codec applies the wire format's field naming and truncation rules.
package bsky

import (
	"encoding/json"
	"strconv"
)

// marshalWithType emits v as a JSON object with the $type discriminator
// spliced in as the first key. v must marshal to an object.
func marshalWithType(typeID string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(typeID)+12)
	out = append(out, `{"$type":`...)
	out = strconv.AppendQuote(out, typeID)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// variantType reads the $type discriminator of a union member without
// decoding the rest. Returns "" when the payload carries none.
func variantType(data []byte) string {
	var probe struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.Type
}
