package bsky

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/skywatch-go/skywatch/xrpc"
)

// maxFeedLimit is the page-size cap shared by the feed read endpoints.
const maxFeedLimit = 100

// maxGetPostsURIs is the batch cap of app.bsky.feed.getPosts.
const maxGetPostsURIs = 25

// Timeline is one page of the home timeline.
type Timeline struct {
	Cursor string         `json:"cursor,omitempty"`
	Feed   []FeedViewPost `json:"feed"`
}

// GetTimeline fetches the session account's home timeline. algorithm and
// cursor may be empty. limit is clamped into [1, 100]; non-positive leaves
// the server default in place.
func GetTimeline(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, algorithm, cursor string, limit int) (*Timeline, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	params := url.Values{}
	if algorithm != "" {
		params.Set("algorithm", algorithm)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	xrpc.LimitParam(params, limit, maxFeedLimit)
	var out Timeline
	if err := c.Query(ctx, sess, "app.bsky.feed.getTimeline", params, &out); err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	return &out, nil
}

// AuthorFeed is one page of an account's posts.
type AuthorFeed struct {
	Cursor string         `json:"cursor,omitempty"`
	Feed   []FeedViewPost `json:"feed"`
}

// Author feed filters.
const (
	FilterPostsWithReplies = "posts_with_replies"
	FilterPostsNoReplies   = "posts_no_replies"
	FilterPostsWithMedia   = "posts_with_media"
	FilterPostsAndReplies  = "posts_and_author_threads"
)

// GetAuthorFeed fetches an account's posts. actor is a handle or DID;
// filter is one of the Filter constants or empty for the server default.
// The endpoint is public for unrestricted accounts, so sess may be nil.
func GetAuthorFeed(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, actor, filter, cursor string, limit int) (*AuthorFeed, error) {
	if actor == "" {
		return nil, fmt.Errorf("bsky: actor is required")
	}
	params := url.Values{}
	params.Set("actor", actor)
	if filter != "" {
		params.Set("filter", filter)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	xrpc.LimitParam(params, limit, maxFeedLimit)
	var out AuthorFeed
	if err := c.Query(ctx, sess, "app.bsky.feed.getAuthorFeed", params, &out); err != nil {
		return nil, fmt.Errorf("get author feed: %w", err)
	}
	return &out, nil
}

// PostThread is the resolved thread around one post.
type PostThread struct {
	Thread ThreadNode `json:"thread"`
}

// GetPostThread fetches the thread around the post at uri. depth bounds how
// many reply levels are resolved below the post, parentHeight how many
// parents above it; non-positive values leave the server defaults in place.
func GetPostThread(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, uri string, depth, parentHeight int) (*PostThread, error) {
	if uri == "" {
		return nil, fmt.Errorf("bsky: uri is required")
	}
	params := url.Values{}
	params.Set("uri", uri)
	if depth > 0 {
		params.Set("depth", strconv.Itoa(depth))
	}
	if parentHeight > 0 {
		params.Set("parentHeight", strconv.Itoa(parentHeight))
	}
	var out PostThread
	if err := c.Query(ctx, sess, "app.bsky.feed.getPostThread", params, &out); err != nil {
		return nil, fmt.Errorf("get post thread: %w", err)
	}
	return &out, nil
}

// Posts is the hydrated result of a getPosts batch.
type Posts struct {
	Posts []PostView `json:"posts"`
}

// GetPosts hydrates up to 25 posts by AT-URI. URIs that no longer resolve
// are silently absent from the result.
func GetPosts(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, uris []string) (*Posts, error) {
	if len(uris) == 0 {
		return nil, fmt.Errorf("bsky: at least one uri is required")
	}
	if len(uris) > maxGetPostsURIs {
		return nil, fmt.Errorf("bsky: at most %d uris per getPosts call", maxGetPostsURIs)
	}
	params := url.Values{}
	for _, uri := range uris {
		params.Add("uris", uri)
	}
	var out Posts
	if err := c.Query(ctx, sess, "app.bsky.feed.getPosts", params, &out); err != nil {
		return nil, fmt.Errorf("get posts: %w", err)
	}
	return &out, nil
}

// SearchResults is one page of post search hits.
type SearchResults struct {
	Cursor    string     `json:"cursor,omitempty"`
	HitsTotal int64      `json:"hitsTotal,omitempty"`
	Posts     []PostView `json:"posts"`
}

// SearchPosts runs a full-text post search.
func SearchPosts(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, q, cursor string, limit int) (*SearchResults, error) {
	if q == "" {
		return nil, fmt.Errorf("bsky: search query is required")
	}
	params := url.Values{}
	params.Set("q", q)
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	xrpc.LimitParam(params, limit, maxFeedLimit)
	var out SearchResults
	if err := c.Query(ctx, sess, "app.bsky.feed.searchPosts", params, &out); err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return &out, nil
}
