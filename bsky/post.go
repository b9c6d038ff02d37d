package bsky

import (
	"encoding/json"
	"fmt"

	"github.com/skywatch-go/skywatch/atproto"
	"github.com/skywatch-go/skywatch/lexicon"
)

// Record type NSIDs for the app.bsky collections written by this package.
const (
	FeedPostType     = "app.bsky.feed.post"
	FeedLikeType     = "app.bsky.feed.like"
	FeedRepostType   = "app.bsky.feed.repost"
	GraphFollowType  = "app.bsky.graph.follow"
	GraphBlockType   = "app.bsky.graph.block"
	ActorProfileType = "app.bsky.actor.profile"
)

// Wire limits for app.bsky.feed.post. All string limits are counted in
// grapheme clusters, not bytes or runes.
const (
	MaxPostGraphemes = 300
	MaxPostLanguages = 3
	MaxPostTags      = 8
	MaxTagGraphemes  = 64
)

// FeedPost is an app.bsky.feed.post record. In-memory values may exceed the
// wire limits; MarshalJSON applies the protocol's truncation rules at the
// encoding boundary, so the value itself keeps the full data for editing and
// display.
type FeedPost struct {
	// Text is the post body. The wire caps it at 300 grapheme clusters.
	Text string

	// Facets annotate byte ranges of the encoded Text with mentions,
	// links, and hashtags.
	Facets []Facet

	// Reply places the post in a thread.
	Reply *ReplyRef

	// Embed attaches media, an external link card, or a quoted record.
	Embed *PostEmbed

	// Languages holds BCP-47 tags for the post body. At most three reach
	// the wire, under the key "langs".
	Languages []string

	// Labels carries self-applied content labels.
	Labels *PostLabels

	// Tags are additional hashtags not present in the body. At most eight
	// reach the wire, each capped at 64 graphemes.
	Tags []string

	// CreatedAt is the client-declared creation time.
	CreatedAt lexicon.Datetime
}

// ReplyRef connects a reply to its thread: the root is the first post of the
// thread, the parent is the post being directly replied to.
type ReplyRef struct {
	Root   atproto.StrongRef `json:"root"`
	Parent atproto.StrongRef `json:"parent"`
}

// IsRootReply reports whether the post replies directly to the thread root,
// in which case both references point at the same record.
func (r *ReplyRef) IsRootReply() bool {
	return r.Root == r.Parent
}

// feedPostWire is the canonical JSON layout of the record.
type feedPostWire struct {
	Type      string           `json:"$type"`
	Text      string           `json:"text"`
	Facets    []Facet          `json:"facets,omitempty"`
	Reply     *ReplyRef        `json:"reply,omitempty"`
	Embed     *PostEmbed       `json:"embed,omitempty"`
	Langs     []string         `json:"langs,omitempty"`
	Labels    *PostLabels      `json:"labels,omitempty"`
	Tags      []string         `json:"tags,omitempty"`
	CreatedAt lexicon.Datetime `json:"createdAt"`
}

// MarshalJSON emits the wire form of the record: the $type discriminator,
// the renamed langs key, unset optional fields omitted entirely, and the
// protocol limits enforced by truncation. The receiver is not modified, so
// encoding an oversized post twice yields the same bytes.
func (p FeedPost) MarshalJSON() ([]byte, error) {
	wire := feedPostWire{
		Type:      FeedPostType,
		Text:      lexicon.TruncateGraphemes(p.Text, MaxPostGraphemes),
		Facets:    p.Facets,
		Reply:     p.Reply,
		Embed:     p.Embed,
		Langs:     p.Languages,
		Labels:    p.Labels,
		Tags:      p.Tags,
		CreatedAt: p.CreatedAt,
	}
	if len(wire.Langs) > MaxPostLanguages {
		wire.Langs = wire.Langs[:MaxPostLanguages]
	}
	if len(wire.Tags) > 0 {
		n := len(wire.Tags)
		if n > MaxPostTags {
			n = MaxPostTags
		}
		tags := make([]string, n)
		for i := 0; i < n; i++ {
			tags[i] = lexicon.TruncateGraphemes(wire.Tags[i], MaxTagGraphemes)
		}
		wire.Tags = tags
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a wire post object. Only text is required; all other
// keys are optional. Length limits are not re-imposed on decode, since the
// origin server has already accepted the record as-is. A malformed createdAt
// is a decode error.
func (p *FeedPost) UnmarshalJSON(data []byte) error {
	var wire struct {
		Text      *string           `json:"text"`
		Facets    []Facet           `json:"facets"`
		Reply     *ReplyRef         `json:"reply"`
		Embed     *PostEmbed        `json:"embed"`
		Langs     []string          `json:"langs"`
		Labels    *PostLabels       `json:"labels"`
		Tags      []string          `json:"tags"`
		CreatedAt *lexicon.Datetime `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode post record: %w", err)
	}
	if wire.Text == nil {
		return fmt.Errorf("post record is missing required field \"text\"")
	}
	*p = FeedPost{
		Text:      *wire.Text,
		Facets:    wire.Facets,
		Reply:     wire.Reply,
		Embed:     wire.Embed,
		Languages: wire.Langs,
		Labels:    wire.Labels,
		Tags:      wire.Tags,
	}
	if wire.CreatedAt != nil {
		p.CreatedAt = *wire.CreatedAt
	}
	return nil
}

// PostLabels is the self-label union for post records. The only variant the
// lexicon defines is com.atproto.label.defs#selfLabels; anything else lands
// in Unknown and survives re-encoding.
type PostLabels struct {
	SelfLabels *atproto.SelfLabels
	Unknown    *lexicon.Unknown
}

// SelfLabelValues builds a label set from plain values, e.g.
// SelfLabelValues("graphic-media").
func SelfLabelValues(values ...string) *PostLabels {
	labels := &atproto.SelfLabels{Values: make([]atproto.SelfLabel, len(values))}
	for i, v := range values {
		labels.Values[i] = atproto.SelfLabel{Val: v}
	}
	return &PostLabels{SelfLabels: labels}
}

func (l PostLabels) MarshalJSON() ([]byte, error) {
	switch {
	case l.SelfLabels != nil:
		return marshalWithType(atproto.TypeSelfLabels, l.SelfLabels)
	case l.Unknown != nil:
		return json.Marshal(l.Unknown)
	}
	return nil, fmt.Errorf("label union has no variant set")
}

func (l *PostLabels) UnmarshalJSON(data []byte) error {
	*l = PostLabels{}
	if variantType(data) == atproto.TypeSelfLabels {
		l.SelfLabels = new(atproto.SelfLabels)
		return json.Unmarshal(data, l.SelfLabels)
	}
	l.Unknown = new(lexicon.Unknown)
	return json.Unmarshal(data, l.Unknown)
}
