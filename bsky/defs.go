package bsky

import (
	"encoding/json"
	"fmt"

	"github.com/skywatch-go/skywatch/lexicon"
	"github.com/skywatch-go/skywatch/syntax"
)

// View types returned by the app.bsky read endpoints. Views are hydrated
// server-side projections; the underlying record rides along under Record.

// ProfileViewBasic is the compact author card attached to posts.
type ProfileViewBasic struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// ProfileView adds profile metadata, as returned in search results and
// follow lists.
type ProfileView struct {
	ProfileViewBasic
	Description string            `json:"description,omitempty"`
	IndexedAt   *lexicon.Datetime `json:"indexedAt,omitempty"`
}

// ProfileViewDetailed is the full profile returned by getProfile.
type ProfileViewDetailed struct {
	ProfileView
	Banner         string `json:"banner,omitempty"`
	FollowersCount int64  `json:"followersCount"`
	FollowsCount   int64  `json:"followsCount"`
	PostsCount     int64  `json:"postsCount"`
}

// PostView is a hydrated post.
type PostView struct {
	URI         syntax.ATURI     `json:"uri"`
	CID         string           `json:"cid"`
	Author      ProfileViewBasic `json:"author"`
	Record      FeedPost         `json:"record"`
	Embed       *EmbedView       `json:"embed,omitempty"`
	ReplyCount  int64            `json:"replyCount"`
	RepostCount int64            `json:"repostCount"`
	LikeCount   int64            `json:"likeCount"`
	QuoteCount  int64            `json:"quoteCount"`
	IndexedAt   lexicon.Datetime `json:"indexedAt"`
}

// Embed view $type discriminators.
const (
	EmbedImagesViewType   = "app.bsky.embed.images#view"
	EmbedExternalViewType = "app.bsky.embed.external#view"
	EmbedVideoViewType    = "app.bsky.embed.video#view"
)

// EmbedView is the hydrated embed union on a post view. Record-quote views
// carry nested unions of their own and are kept raw in Unknown.
type EmbedView struct {
	Images   *EmbedImagesView
	External *EmbedExternalView
	Video    *EmbedVideoView
	Unknown  *lexicon.Unknown
}

func (e EmbedView) MarshalJSON() ([]byte, error) {
	switch {
	case e.Images != nil:
		return marshalWithType(EmbedImagesViewType, e.Images)
	case e.External != nil:
		return marshalWithType(EmbedExternalViewType, e.External)
	case e.Video != nil:
		return marshalWithType(EmbedVideoViewType, e.Video)
	case e.Unknown != nil:
		return json.Marshal(e.Unknown)
	}
	return nil, fmt.Errorf("embed view union has no variant set")
}

func (e *EmbedView) UnmarshalJSON(data []byte) error {
	*e = EmbedView{}
	switch variantType(data) {
	case EmbedImagesViewType:
		e.Images = new(EmbedImagesView)
		return json.Unmarshal(data, e.Images)
	case EmbedExternalViewType:
		e.External = new(EmbedExternalView)
		return json.Unmarshal(data, e.External)
	case EmbedVideoViewType:
		e.Video = new(EmbedVideoView)
		return json.Unmarshal(data, e.Video)
	default:
		e.Unknown = new(lexicon.Unknown)
		return json.Unmarshal(data, e.Unknown)
	}
}

// EmbedImagesView is the hydrated form of an images embed: CDN URLs instead
// of blobs.
type EmbedImagesView struct {
	Images []ViewImage `json:"images"`
}

// ViewImage is one hydrated image.
type ViewImage struct {
	Thumb       string       `json:"thumb"`
	Fullsize    string       `json:"fullsize"`
	Alt         string       `json:"alt"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// EmbedExternalView is the hydrated form of a link card.
type EmbedExternalView struct {
	External ExternalViewInfo `json:"external"`
}

// ExternalViewInfo describes the hydrated link card.
type ExternalViewInfo struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       string `json:"thumb,omitempty"`
}

// EmbedVideoView is the hydrated form of a video embed.
type EmbedVideoView struct {
	CID         string       `json:"cid"`
	Playlist    string       `json:"playlist"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Alt         string       `json:"alt,omitempty"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// FeedViewPost is one feed entry: the post plus optional thread context and
// the reason it appears (e.g. a repost).
type FeedViewPost struct {
	Post   PostView      `json:"post"`
	Reply  *FeedReplyRef `json:"reply,omitempty"`
	Reason *FeedReason   `json:"reason,omitempty"`
}

// FeedReplyRef is the hydrated reply context of a feed entry. Root and
// parent are unions (a post view, a not-found tombstone, or a blocked
// marker); they are kept raw and can be dispatched on their $type.
type FeedReplyRef struct {
	Root   lexicon.Unknown `json:"root"`
	Parent lexicon.Unknown `json:"parent"`
}

// ReasonRepostType marks feed entries surfaced by a repost.
const ReasonRepostType = "app.bsky.feed.defs#reasonRepost"

// ReasonRepost says who reposted the entry and when.
type ReasonRepost struct {
	By        ProfileViewBasic `json:"by"`
	IndexedAt lexicon.Datetime `json:"indexedAt"`
}

// FeedReason is the reason union on a feed entry.
type FeedReason struct {
	Repost  *ReasonRepost
	Unknown *lexicon.Unknown
}

func (r FeedReason) MarshalJSON() ([]byte, error) {
	switch {
	case r.Repost != nil:
		return marshalWithType(ReasonRepostType, r.Repost)
	case r.Unknown != nil:
		return json.Marshal(r.Unknown)
	}
	return nil, fmt.Errorf("feed reason union has no variant set")
}

func (r *FeedReason) UnmarshalJSON(data []byte) error {
	*r = FeedReason{}
	if variantType(data) == ReasonRepostType {
		r.Repost = new(ReasonRepost)
		return json.Unmarshal(data, r.Repost)
	}
	r.Unknown = new(lexicon.Unknown)
	return json.Unmarshal(data, r.Unknown)
}

// Thread node $type discriminators (app.bsky.feed.defs).
const (
	ThreadViewPostType = "app.bsky.feed.defs#threadViewPost"
	NotFoundPostType   = "app.bsky.feed.defs#notFoundPost"
	BlockedPostType    = "app.bsky.feed.defs#blockedPost"
)

// ThreadViewPost is a post with its resolved parent chain and replies.
type ThreadViewPost struct {
	Post    PostView     `json:"post"`
	Parent  *ThreadNode  `json:"parent,omitempty"`
	Replies []ThreadNode `json:"replies,omitempty"`
}

// NotFoundPost is the tombstone for a deleted or missing thread position.
type NotFoundPost struct {
	URI      syntax.ATURI `json:"uri"`
	NotFound bool         `json:"notFound"`
}

// BlockedPost marks a thread position hidden by a block.
type BlockedPost struct {
	URI     syntax.ATURI  `json:"uri"`
	Blocked bool          `json:"blocked"`
	Author  BlockedAuthor `json:"author"`
}

// BlockedAuthor identifies the author of a blocked post.
type BlockedAuthor struct {
	DID string `json:"did"`
}

// ThreadNode is the thread union: a resolved post, a tombstone, a blocked
// marker, or an unrecognized variant.
type ThreadNode struct {
	Post     *ThreadViewPost
	NotFound *NotFoundPost
	Blocked  *BlockedPost
	Unknown  *lexicon.Unknown
}

func (n ThreadNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Post != nil:
		return marshalWithType(ThreadViewPostType, n.Post)
	case n.NotFound != nil:
		return marshalWithType(NotFoundPostType, n.NotFound)
	case n.Blocked != nil:
		return marshalWithType(BlockedPostType, n.Blocked)
	case n.Unknown != nil:
		return json.Marshal(n.Unknown)
	}
	return nil, fmt.Errorf("thread node union has no variant set")
}

func (n *ThreadNode) UnmarshalJSON(data []byte) error {
	*n = ThreadNode{}
	switch variantType(data) {
	case ThreadViewPostType:
		n.Post = new(ThreadViewPost)
		return json.Unmarshal(data, n.Post)
	case NotFoundPostType:
		n.NotFound = new(NotFoundPost)
		return json.Unmarshal(data, n.NotFound)
	case BlockedPostType:
		n.Blocked = new(BlockedPost)
		return json.Unmarshal(data, n.Blocked)
	default:
		n.Unknown = new(lexicon.Unknown)
		return json.Unmarshal(data, n.Unknown)
	}
}
