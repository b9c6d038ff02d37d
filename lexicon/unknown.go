package lexicon

import "encoding/json"

// Unknown preserves a JSON object that no typed union variant matched. The
// raw payload round-trips unchanged through decode and re-encode, so records
// written by newer lexicon revisions pass through without damage.
type Unknown struct {
	Raw json.RawMessage
}

// Type returns the object's $type discriminator, or "" when it has none.
func (u *Unknown) Type() string {
	var probe struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(u.Raw, &probe); err != nil {
		return ""
	}
	return probe.Type
}

// Decode unmarshals the raw payload into out, for callers that recognize
// the $type after inspection.
func (u *Unknown) Decode(out any) error {
	return json.Unmarshal(u.Raw, out)
}

func (u Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

func (u *Unknown) UnmarshalJSON(data []byte) error {
	u.Raw = append(u.Raw[:0], data...)
	return nil
}
