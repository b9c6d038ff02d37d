package bsky

import (
	"encoding/json"
	"fmt"

	"github.com/skywatch-go/skywatch/lexicon"
)

// Facet feature $type discriminators (app.bsky.richtext.facet).
const (
	FacetMentionType = "app.bsky.richtext.facet#mention"
	FacetLinkType    = "app.bsky.richtext.facet#link"
	FacetTagType     = "app.bsky.richtext.facet#tag"
)

// Facet attaches features to a byte range of the post text.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// ByteSlice is a [start, end) range into the UTF-8 encoding of the post
// text. Offsets count bytes, not runes or graphemes.
type ByteSlice struct {
	ByteStart int64 `json:"byteStart"`
	ByteEnd   int64 `json:"byteEnd"`
}

// FacetMention links the range to an account.
type FacetMention struct {
	DID string `json:"did"`
}

// FacetLink turns the range into a hyperlink.
type FacetLink struct {
	URI string `json:"uri"`
}

// FacetTag marks the range as a hashtag. Tag carries the value without the
// leading #.
type FacetTag struct {
	Tag string `json:"tag"`
}

// FacetFeature is the feature union: exactly one variant is set.
// Unrecognized variants land in Unknown and survive re-encoding unchanged.
type FacetFeature struct {
	Mention *FacetMention
	Link    *FacetLink
	Tag     *FacetTag
	Unknown *lexicon.Unknown
}

func (f FacetFeature) MarshalJSON() ([]byte, error) {
	switch {
	case f.Mention != nil:
		return marshalWithType(FacetMentionType, f.Mention)
	case f.Link != nil:
		return marshalWithType(FacetLinkType, f.Link)
	case f.Tag != nil:
		return marshalWithType(FacetTagType, f.Tag)
	case f.Unknown != nil:
		return json.Marshal(f.Unknown)
	}
	return nil, fmt.Errorf("facet feature has no variant set")
}

func (f *FacetFeature) UnmarshalJSON(data []byte) error {
	*f = FacetFeature{}
	switch variantType(data) {
	case FacetMentionType:
		f.Mention = new(FacetMention)
		return json.Unmarshal(data, f.Mention)
	case FacetLinkType:
		f.Link = new(FacetLink)
		return json.Unmarshal(data, f.Link)
	case FacetTagType:
		f.Tag = new(FacetTag)
		return json.Unmarshal(data, f.Tag)
	default:
		f.Unknown = new(lexicon.Unknown)
		return json.Unmarshal(data, f.Unknown)
	}
}

// MentionFacet builds a facet that links text[start:end] to a DID.
func MentionFacet(start, end int, did string) Facet {
	return Facet{
		Index:    ByteSlice{ByteStart: int64(start), ByteEnd: int64(end)},
		Features: []FacetFeature{{Mention: &FacetMention{DID: did}}},
	}
}

// LinkFacet builds a facet that turns text[start:end] into a link.
func LinkFacet(start, end int, uri string) Facet {
	return Facet{
		Index:    ByteSlice{ByteStart: int64(start), ByteEnd: int64(end)},
		Features: []FacetFeature{{Link: &FacetLink{URI: uri}}},
	}
}

// TagFacet builds a facet that marks text[start:end] as a hashtag.
func TagFacet(start, end int, tag string) Facet {
	return Facet{
		Index:    ByteSlice{ByteStart: int64(start), ByteEnd: int64(end)},
		Features: []FacetFeature{{Tag: &FacetTag{Tag: tag}}},
	}
}
