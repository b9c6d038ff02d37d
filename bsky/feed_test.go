package bsky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-go/skywatch/atproto"
	"github.com/skywatch-go/skywatch/internal/testpds"
	"github.com/skywatch-go/skywatch/xrpc"
)

func newLoggedInPDS(t *testing.T) (*testpds.Server, *xrpc.Client, *xrpc.Session) {
	t.Helper()
	srv := testpds.New()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c := xrpc.NewClient(ts.URL)
	sess, err := atproto.CreateSession(context.Background(), c, srv.Handle, srv.Password)
	require.NoError(t, err)
	return srv, c, sess
}

func seedPost(srv *testpds.Server, rkey, text string) {
	record := fmt.Sprintf(`{"$type":"app.bsky.feed.post","text":%q,"createdAt":"2024-07-09T01:02:03.000Z"}`, text)
	srv.AddRecord("app.bsky.feed.post", rkey, json.RawMessage(record))
}

func TestGetTimeline(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)
	seedPost(srv, "3ka", "first post")
	seedPost(srv, "3kb", "second post")

	tl, err := GetTimeline(context.Background(), c, sess, "", "", 0)

	require.NoError(t, err)
	require.Len(t, tl.Feed, 2)
	texts := []string{tl.Feed[0].Post.Record.Text, tl.Feed[1].Post.Record.Text}
	assert.Contains(t, texts, "first post")
	assert.Contains(t, texts, "second post")
	assert.Equal(t, srv.Handle, tl.Feed[0].Post.Author.Handle)
}

func TestGetTimelineNoSession(t *testing.T) {
	_, c, _ := newLoggedInPDS(t)

	_, err := GetTimeline(context.Background(), c, nil, "", "", 0)
	assert.ErrorIs(t, err, xrpc.ErrNoSession)
}

func TestGetTimelineLimitClamped(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)
	seedPost(srv, "3ka", "only post")

	// The fake PDS rejects limit > 100 like the real one; the client clamp
	// keeps the call valid.
	tl, err := GetTimeline(context.Background(), c, sess, "", "", 5000)

	require.NoError(t, err)
	assert.Len(t, tl.Feed, 1)
}

func TestGetTimelineLimitApplied(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)
	seedPost(srv, "3ka", "one")
	seedPost(srv, "3kb", "two")
	seedPost(srv, "3kc", "three")

	tl, err := GetTimeline(context.Background(), c, sess, "", "", 2)

	require.NoError(t, err)
	assert.Len(t, tl.Feed, 2)
}

func TestGetAuthorFeed(t *testing.T) {
	srv, c, _ := newLoggedInPDS(t)
	seedPost(srv, "3ka", "authored post")

	feed, err := GetAuthorFeed(context.Background(), c, nil, srv.Handle, FilterPostsNoReplies, "", 10)

	require.NoError(t, err)
	require.Len(t, feed.Feed, 1)
	assert.Equal(t, "authored post", feed.Feed[0].Post.Record.Text)
}

func TestGetAuthorFeedMissingActor(t *testing.T) {
	_, c, _ := newLoggedInPDS(t)

	_, err := GetAuthorFeed(context.Background(), c, nil, "", "", "", 0)
	assert.Error(t, err)
}

func TestGetPostThread(t *testing.T) {
	srv, c, _ := newLoggedInPDS(t)
	seedPost(srv, "3ka", "thread root")

	uri := fmt.Sprintf("at://%s/app.bsky.feed.post/3ka", srv.DID)
	thread, err := GetPostThread(context.Background(), c, nil, uri, 6, 0)

	require.NoError(t, err)
	require.NotNil(t, thread.Thread.Post)
	assert.Equal(t, "thread root", thread.Thread.Post.Post.Record.Text)
}

func TestGetPostThreadNotFound(t *testing.T) {
	srv, c, _ := newLoggedInPDS(t)

	uri := fmt.Sprintf("at://%s/app.bsky.feed.post/missing", srv.DID)
	thread, err := GetPostThread(context.Background(), c, nil, uri, 0, 0)

	require.NoError(t, err)
	require.NotNil(t, thread.Thread.NotFound)
	assert.True(t, thread.Thread.NotFound.NotFound)
}

func TestGetPosts(t *testing.T) {
	srv, c, _ := newLoggedInPDS(t)
	seedPost(srv, "3ka", "hydrate me")

	uris := []string{
		fmt.Sprintf("at://%s/app.bsky.feed.post/3ka", srv.DID),
		fmt.Sprintf("at://%s/app.bsky.feed.post/gone", srv.DID),
	}
	posts, err := GetPosts(context.Background(), c, nil, uris)

	require.NoError(t, err)
	require.Len(t, posts.Posts, 1)
	assert.Equal(t, "hydrate me", posts.Posts[0].Record.Text)
}

func TestGetPostsBatchLimits(t *testing.T) {
	_, c, _ := newLoggedInPDS(t)

	_, err := GetPosts(context.Background(), c, nil, nil)
	assert.Error(t, err)

	uris := make([]string, 26)
	for i := range uris {
		uris[i] = fmt.Sprintf("at://did:plc:a/app.bsky.feed.post/%d", i)
	}
	_, err = GetPosts(context.Background(), c, nil, uris)
	assert.Error(t, err)
}

func TestSearchPosts(t *testing.T) {
	srv, c, _ := newLoggedInPDS(t)
	seedPost(srv, "3ka", "gophers assemble")
	seedPost(srv, "3kb", "unrelated chatter")

	results, err := SearchPosts(context.Background(), c, nil, "gophers", "", 25)

	require.NoError(t, err)
	require.Len(t, results.Posts, 1)
	assert.Equal(t, "gophers assemble", results.Posts[0].Record.Text)
	assert.Equal(t, int64(1), results.HitsTotal)
}

func TestSearchPostsEmptyQuery(t *testing.T) {
	_, c, _ := newLoggedInPDS(t)

	_, err := SearchPosts(context.Background(), c, nil, "", "", 0)
	assert.Error(t, err)
}
