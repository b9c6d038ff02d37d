package bsky

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A trimmed but structurally faithful getTimeline response.
const timelineFixture = `{
  "cursor": "2024-07-09T01:02:03.156Z::bafyreicursor",
  "feed": [
    {
      "post": {
        "uri": "at://did:plc:abc123/app.bsky.feed.post/3jt5tlqadkt2v",
        "cid": "bafyreipost1",
        "author": {"did": "did:plc:abc123", "handle": "alice.test", "displayName": "Alice"},
        "record": {"$type": "app.bsky.feed.post", "text": "morning all", "langs": ["en"], "createdAt": "2024-07-09T01:02:03.156Z"},
        "embed": {"$type": "app.bsky.embed.images#view", "images": [{"thumb": "https://cdn/thumb.jpg", "fullsize": "https://cdn/full.jpg", "alt": "sunrise"}]},
        "replyCount": 1,
        "repostCount": 2,
        "likeCount": 3,
        "indexedAt": "2024-07-09T01:02:10.000Z"
      },
      "reason": {"$type": "app.bsky.feed.defs#reasonRepost", "by": {"did": "did:plc:def456", "handle": "bob.test"}, "indexedAt": "2024-07-09T02:00:00.000Z"}
    },
    {
      "post": {
        "uri": "at://did:plc:def456/app.bsky.feed.post/3jt5tlqadkt3w",
        "cid": "bafyreipost2",
        "author": {"did": "did:plc:def456", "handle": "bob.test"},
        "record": {"$type": "app.bsky.feed.post", "text": "replying", "createdAt": "2024-07-09T03:00:00.000Z"},
        "replyCount": 0,
        "repostCount": 0,
        "likeCount": 0,
        "indexedAt": "2024-07-09T03:00:05.000Z"
      },
      "reply": {
        "root": {"$type": "app.bsky.feed.defs#postView", "uri": "at://did:plc:abc123/app.bsky.feed.post/3jt5tlqadkt2v", "cid": "bafyreipost1"},
        "parent": {"$type": "app.bsky.feed.defs#notFoundPost", "uri": "at://did:plc:gone/app.bsky.feed.post/3x", "notFound": true}
      }
    }
  ]
}`

func TestTimelineDecode(t *testing.T) {
	var tl Timeline
	require.NoError(t, json.Unmarshal([]byte(timelineFixture), &tl))

	assert.Equal(t, "2024-07-09T01:02:03.156Z::bafyreicursor", tl.Cursor)
	require.Len(t, tl.Feed, 2)

	first := tl.Feed[0]
	assert.Equal(t, "alice.test", first.Post.Author.Handle)
	assert.Equal(t, "morning all", first.Post.Record.Text)
	assert.Equal(t, []string{"en"}, first.Post.Record.Languages)
	assert.Equal(t, int64(3), first.Post.LikeCount)
	assert.Equal(t, "3jt5tlqadkt2v", first.Post.URI.RecordKey())

	require.NotNil(t, first.Post.Embed)
	require.NotNil(t, first.Post.Embed.Images)
	require.Len(t, first.Post.Embed.Images.Images, 1)
	assert.Equal(t, "sunrise", first.Post.Embed.Images.Images[0].Alt)

	require.NotNil(t, first.Reason)
	require.NotNil(t, first.Reason.Repost)
	assert.Equal(t, "bob.test", first.Reason.Repost.By.Handle)

	second := tl.Feed[1]
	require.NotNil(t, second.Reply)
	assert.Equal(t, "app.bsky.feed.defs#postView", second.Reply.Root.Type())
	assert.Equal(t, "app.bsky.feed.defs#notFoundPost", second.Reply.Parent.Type())
}

func TestThreadNodeDecode(t *testing.T) {
	input := `{
	  "$type": "app.bsky.feed.defs#threadViewPost",
	  "post": {
	    "uri": "at://did:plc:abc/app.bsky.feed.post/3k",
	    "cid": "bafyreiroot",
	    "author": {"did": "did:plc:abc", "handle": "alice.test"},
	    "record": {"text": "root post", "createdAt": "2024-07-09T01:00:00.000Z"},
	    "replyCount": 2,
	    "repostCount": 0,
	    "likeCount": 5,
	    "indexedAt": "2024-07-09T01:00:01.000Z"
	  },
	  "replies": [
	    {
	      "$type": "app.bsky.feed.defs#threadViewPost",
	      "post": {
	        "uri": "at://did:plc:def/app.bsky.feed.post/3m",
	        "cid": "bafyreireply",
	        "author": {"did": "did:plc:def", "handle": "bob.test"},
	        "record": {"text": "nice", "createdAt": "2024-07-09T01:05:00.000Z"},
	        "replyCount": 0, "repostCount": 0, "likeCount": 0,
	        "indexedAt": "2024-07-09T01:05:01.000Z"
	      }
	    },
	    {"$type": "app.bsky.feed.defs#notFoundPost", "uri": "at://did:plc:gone/app.bsky.feed.post/3n", "notFound": true},
	    {"$type": "app.bsky.feed.defs#blockedPost", "uri": "at://did:plc:foe/app.bsky.feed.post/3o", "blocked": true, "author": {"did": "did:plc:foe"}}
	  ]
	}`

	var node ThreadNode
	require.NoError(t, json.Unmarshal([]byte(input), &node))

	require.NotNil(t, node.Post)
	assert.Equal(t, "root post", node.Post.Post.Record.Text)
	require.Len(t, node.Post.Replies, 3)

	require.NotNil(t, node.Post.Replies[0].Post)
	assert.Equal(t, "nice", node.Post.Replies[0].Post.Post.Record.Text)

	require.NotNil(t, node.Post.Replies[1].NotFound)
	assert.True(t, node.Post.Replies[1].NotFound.NotFound)

	require.NotNil(t, node.Post.Replies[2].Blocked)
	assert.Equal(t, "did:plc:foe", node.Post.Replies[2].Blocked.Author.DID)
}

func TestThreadNodeUnknownVariant(t *testing.T) {
	input := `{"$type":"app.bsky.feed.defs#hologramPost","uri":"at://x/y/z"}`

	var node ThreadNode
	require.NoError(t, json.Unmarshal([]byte(input), &node))
	require.NotNil(t, node.Unknown)
	assert.Equal(t, "app.bsky.feed.defs#hologramPost", node.Unknown.Type())

	encoded, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(encoded))
}

func TestProfileViewDetailedDecode(t *testing.T) {
	input := `{
	  "did": "did:plc:abc123",
	  "handle": "alice.test",
	  "displayName": "Alice",
	  "description": "says hi",
	  "banner": "https://cdn/banner.jpg",
	  "followersCount": 42,
	  "followsCount": 7,
	  "postsCount": 99,
	  "indexedAt": "2024-07-09T01:02:03.000Z"
	}`

	var profile ProfileViewDetailed
	require.NoError(t, json.Unmarshal([]byte(input), &profile))

	assert.Equal(t, "did:plc:abc123", profile.DID)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, int64(42), profile.FollowersCount)
	require.NotNil(t, profile.IndexedAt)
}
