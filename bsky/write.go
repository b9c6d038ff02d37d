package bsky

import (
	"context"
	"fmt"

	"github.com/skywatch-go/skywatch/atproto"
	"github.com/skywatch-go/skywatch/lexicon"
	"github.com/skywatch-go/skywatch/syntax"
	"github.com/skywatch-go/skywatch/xrpc"
)

// Write helpers wrapping com.atproto.repo with the right collection NSIDs
// and client-minted TID record keys.

// CreatePost writes post as a new record in the session's repository and
// returns its strong reference. A zero CreatedAt is filled with the current
// time before encoding.
func CreatePost(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, post FeedPost) (*atproto.StrongRef, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = lexicon.Now()
	}
	ref, err := atproto.CreateRecord(ctx, c, sess, atproto.CreateRecordInput{
		Collection: FeedPostType,
		RKey:       syntax.NewTID().String(),
		Record:     post,
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return ref, nil
}

// ReplyTo builds the reply reference for a post answering parent. When
// parent is itself a reply its thread root is reused, otherwise parent is
// the root.
func ReplyTo(parentRef atproto.StrongRef, parent *FeedPost) *ReplyRef {
	root := parentRef
	if parent != nil && parent.Reply != nil {
		root = parent.Reply.Root
	}
	return &ReplyRef{Root: root, Parent: parentRef}
}

// DeletePost removes the post at uri from the session's repository.
func DeletePost(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, uri syntax.ATURI) error {
	if sess == nil {
		return xrpc.ErrNoSession
	}
	if uri.Collection() == "" || uri.RecordKey() == "" {
		return fmt.Errorf("bsky: %q is not a record-level uri", uri)
	}
	if err := atproto.DeleteRecord(ctx, c, sess, uri.Authority(), uri.Collection(), uri.RecordKey()); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// Like records a like of the referenced post and returns the like record's
// own reference, needed to undo it later.
func Like(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, subject atproto.StrongRef) (*atproto.StrongRef, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	ref, err := atproto.CreateRecord(ctx, c, sess, atproto.CreateRecordInput{
		Collection: FeedLikeType,
		RKey:       syntax.NewTID().String(),
		Record:     FeedLike{Subject: subject, CreatedAt: lexicon.Now()},
	})
	if err != nil {
		return nil, fmt.Errorf("like: %w", err)
	}
	return ref, nil
}

// Repost records a repost of the referenced post.
func Repost(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, subject atproto.StrongRef) (*atproto.StrongRef, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	ref, err := atproto.CreateRecord(ctx, c, sess, atproto.CreateRecordInput{
		Collection: FeedRepostType,
		RKey:       syntax.NewTID().String(),
		Record:     FeedRepost{Subject: subject, CreatedAt: lexicon.Now()},
	})
	if err != nil {
		return nil, fmt.Errorf("repost: %w", err)
	}
	return ref, nil
}

// Follow creates a follow of the given DID.
func Follow(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, did string) (*atproto.StrongRef, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	if did == "" {
		return nil, fmt.Errorf("bsky: subject did is required")
	}
	ref, err := atproto.CreateRecord(ctx, c, sess, atproto.CreateRecordInput{
		Collection: GraphFollowType,
		RKey:       syntax.NewTID().String(),
		Record:     GraphFollow{Subject: did, CreatedAt: lexicon.Now()},
	})
	if err != nil {
		return nil, fmt.Errorf("follow: %w", err)
	}
	return ref, nil
}

// UpdateProfile upserts the session account's profile record at the fixed
// key "self".
func UpdateProfile(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, profile ActorProfile) (*atproto.StrongRef, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	ref, err := atproto.PutRecord(ctx, c, sess, atproto.PutRecordInput{
		Collection: ActorProfileType,
		RKey:       "self",
		Record:     profile,
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return ref, nil
}
