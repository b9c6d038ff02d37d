package bsky

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-go/skywatch/atproto"
	"github.com/skywatch-go/skywatch/lexicon"
	"github.com/skywatch-go/skywatch/syntax"
	"github.com/skywatch-go/skywatch/xrpc"
)

func TestCreatePost(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)

	ref, err := CreatePost(context.Background(), c, sess, FeedPost{Text: "hello from the client"})

	require.NoError(t, err)
	assert.Equal(t, FeedPostType, ref.URI.Collection())
	assert.Equal(t, srv.DID, ref.URI.Authority())

	// Record keys are client-minted TIDs.
	_, err = syntax.ParseTID(ref.URI.RecordKey())
	assert.NoError(t, err)

	stored, ok := srv.Record(FeedPostType, ref.URI.RecordKey())
	require.True(t, ok)

	var record FeedPost
	require.NoError(t, json.Unmarshal(stored, &record))
	assert.Equal(t, "hello from the client", record.Text)
	// A zero CreatedAt was filled in before encoding.
	assert.False(t, record.CreatedAt.IsZero())
}

func TestCreatePostTruncatesOnWire(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)

	long := strings.Repeat("x", 350)
	ref, err := CreatePost(context.Background(), c, sess, FeedPost{Text: long})

	require.NoError(t, err)
	stored, ok := srv.Record(FeedPostType, ref.URI.RecordKey())
	require.True(t, ok)

	var record FeedPost
	require.NoError(t, json.Unmarshal(stored, &record))
	assert.Equal(t, MaxPostGraphemes, lexicon.GraphemeLen(record.Text))
}

func TestCreatePostNoSession(t *testing.T) {
	_, c, _ := newLoggedInPDS(t)

	_, err := CreatePost(context.Background(), c, nil, FeedPost{Text: "hi"})
	assert.ErrorIs(t, err, xrpc.ErrNoSession)
}

func TestDeletePost(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)
	ref, err := CreatePost(context.Background(), c, sess, FeedPost{Text: "temporary"})
	require.NoError(t, err)

	require.NoError(t, DeletePost(context.Background(), c, sess, ref.URI))

	_, ok := srv.Record(FeedPostType, ref.URI.RecordKey())
	assert.False(t, ok)
}

func TestDeletePostBadURI(t *testing.T) {
	_, c, sess := newLoggedInPDS(t)

	err := DeletePost(context.Background(), c, sess, "at://did:plc:abc")
	assert.Error(t, err)
}

func TestLike(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)
	subject := atproto.StrongRef{URI: "at://did:plc:abc/app.bsky.feed.post/3k", CID: "bafypost"}

	ref, err := Like(context.Background(), c, sess, subject)

	require.NoError(t, err)
	assert.Equal(t, FeedLikeType, ref.URI.Collection())

	stored, ok := srv.Record(FeedLikeType, ref.URI.RecordKey())
	require.True(t, ok)

	var m map[string]any
	require.NoError(t, json.Unmarshal(stored, &m))
	assert.Equal(t, FeedLikeType, m["$type"])
	subjectMap, ok := m["subject"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, subject.URI.String(), subjectMap["uri"])
}

func TestRepost(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)
	subject := atproto.StrongRef{URI: "at://did:plc:abc/app.bsky.feed.post/3k", CID: "bafypost"}

	ref, err := Repost(context.Background(), c, sess, subject)

	require.NoError(t, err)
	assert.Equal(t, FeedRepostType, ref.URI.Collection())

	_, ok := srv.Record(FeedRepostType, ref.URI.RecordKey())
	assert.True(t, ok)
}

func TestFollow(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)

	ref, err := Follow(context.Background(), c, sess, "did:plc:def456")

	require.NoError(t, err)
	assert.Equal(t, GraphFollowType, ref.URI.Collection())

	stored, ok := srv.Record(GraphFollowType, ref.URI.RecordKey())
	require.True(t, ok)

	var m map[string]any
	require.NoError(t, json.Unmarshal(stored, &m))
	assert.Equal(t, "did:plc:def456", m["subject"])
}

func TestFollowMissingDID(t *testing.T) {
	_, c, sess := newLoggedInPDS(t)

	_, err := Follow(context.Background(), c, sess, "")
	assert.Error(t, err)
}

func TestUpdateProfile(t *testing.T) {
	srv, c, sess := newLoggedInPDS(t)

	ref, err := UpdateProfile(context.Background(), c, sess, ActorProfile{
		DisplayName: "Alice",
		Description: "gopher",
	})

	require.NoError(t, err)
	assert.Equal(t, "self", ref.URI.RecordKey())

	stored, ok := srv.Record(ActorProfileType, "self")
	require.True(t, ok)

	var m map[string]any
	require.NoError(t, json.Unmarshal(stored, &m))
	assert.Equal(t, ActorProfileType, m["$type"])
	assert.Equal(t, "Alice", m["displayName"])
}

func TestReplyTo(t *testing.T) {
	rootRef := atproto.StrongRef{URI: "at://did:plc:a/app.bsky.feed.post/1", CID: "bafyroot"}
	parentRef := atproto.StrongRef{URI: "at://did:plc:b/app.bsky.feed.post/2", CID: "bafyparent"}

	// Replying to a root post: parent is the root.
	reply := ReplyTo(rootRef, &FeedPost{Text: "root"})
	assert.Equal(t, rootRef, reply.Root)
	assert.Equal(t, rootRef, reply.Parent)
	assert.True(t, reply.IsRootReply())

	// Replying deeper in a thread: the parent's root is reused.
	parentPost := &FeedPost{Text: "mid-thread", Reply: &ReplyRef{Root: rootRef, Parent: rootRef}}
	reply = ReplyTo(parentRef, parentPost)
	assert.Equal(t, rootRef, reply.Root)
	assert.Equal(t, parentRef, reply.Parent)
	assert.False(t, reply.IsRootReply())
}
