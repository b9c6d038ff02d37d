package bsky

import (
	"github.com/skywatch-go/skywatch/atproto"
	"github.com/skywatch-go/skywatch/lexicon"
)

// FeedLike is an app.bsky.feed.like record.
type FeedLike struct {
	Subject   atproto.StrongRef `json:"subject"`
	CreatedAt lexicon.Datetime  `json:"createdAt"`
}

func (l FeedLike) MarshalJSON() ([]byte, error) {
	type wire FeedLike
	return marshalWithType(FeedLikeType, wire(l))
}

// FeedRepost is an app.bsky.feed.repost record.
type FeedRepost struct {
	Subject   atproto.StrongRef `json:"subject"`
	CreatedAt lexicon.Datetime  `json:"createdAt"`
}

func (r FeedRepost) MarshalJSON() ([]byte, error) {
	type wire FeedRepost
	return marshalWithType(FeedRepostType, wire(r))
}

// GraphFollow is an app.bsky.graph.follow record. Subject is the DID being
// followed.
type GraphFollow struct {
	Subject   string           `json:"subject"`
	CreatedAt lexicon.Datetime `json:"createdAt"`
}

func (f GraphFollow) MarshalJSON() ([]byte, error) {
	type wire GraphFollow
	return marshalWithType(GraphFollowType, wire(f))
}

// GraphBlock is an app.bsky.graph.block record. Subject is the DID being
// blocked.
type GraphBlock struct {
	Subject   string           `json:"subject"`
	CreatedAt lexicon.Datetime `json:"createdAt"`
}

func (b GraphBlock) MarshalJSON() ([]byte, error) {
	type wire GraphBlock
	return marshalWithType(GraphBlockType, wire(b))
}

// ActorProfile is an app.bsky.actor.profile record, stored under the fixed
// record key "self".
type ActorProfile struct {
	DisplayName string            `json:"displayName,omitempty"`
	Description string            `json:"description,omitempty"`
	Avatar      *lexicon.Blob     `json:"avatar,omitempty"`
	Banner      *lexicon.Blob     `json:"banner,omitempty"`
	CreatedAt   *lexicon.Datetime `json:"createdAt,omitempty"`
}

func (p ActorProfile) MarshalJSON() ([]byte, error) {
	type wire ActorProfile
	return marshalWithType(ActorProfileType, wire(p))
}
