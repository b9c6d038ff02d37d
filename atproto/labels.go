package atproto

// TypeSelfLabels is the $type discriminator for self-applied label sets.
const TypeSelfLabels = "com.atproto.label.defs#selfLabels"

// SelfLabels is a set of labels an author applies to their own content
// (com.atproto.label.defs#selfLabels).
type SelfLabels struct {
	Values []SelfLabel `json:"values"`
}

// SelfLabel is a single self-applied label value, e.g. "porn" or
// "graphic-media".
type SelfLabel struct {
	Val string `json:"val"`
}
