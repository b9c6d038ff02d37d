package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/skywatch-go/skywatch/lexicon"
	"github.com/skywatch-go/skywatch/syntax"
	"github.com/skywatch-go/skywatch/xrpc"
)

// StrongRef pins an exact version of a record by URI and content hash
// (com.atproto.repo.strongRef). It is also the shape the record write
// endpoints return.
type StrongRef struct {
	URI syntax.ATURI `json:"uri"`
	CID string       `json:"cid"`
}

// CreateRecordInput describes a record write. Repo defaults to the session
// DID; RKey is assigned by the server when empty.
type CreateRecordInput struct {
	Repo       string
	Collection string
	RKey       string
	// Validate asks the server to validate the record against its lexicon.
	// Nil leaves the server default in place.
	Validate *bool
	Record   any
	// SwapCommit makes the write conditional on the repo head.
	SwapCommit string
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey,omitempty"`
	Validate   *bool  `json:"validate,omitempty"`
	Record     any    `json:"record"`
	SwapCommit string `json:"swapCommit,omitempty"`
}

// CreateRecord writes a new record and returns its strong reference.
func CreateRecord(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, in CreateRecordInput) (*StrongRef, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	if in.Collection == "" {
		return nil, fmt.Errorf("atproto: collection is required")
	}
	repo := in.Repo
	if repo == "" {
		repo = sess.DID
	}
	var ref StrongRef
	err := c.Procedure(ctx, sess, "com.atproto.repo.createRecord", createRecordRequest{
		Repo:       repo,
		Collection: in.Collection,
		RKey:       in.RKey,
		Validate:   in.Validate,
		Record:     in.Record,
		SwapCommit: in.SwapCommit,
	}, &ref)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return &ref, nil
}

type putRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
	Validate   *bool  `json:"validate,omitempty"`
	Record     any    `json:"record"`
	SwapRecord string `json:"swapRecord,omitempty"`
	SwapCommit string `json:"swapCommit,omitempty"`
}

// PutRecordInput describes an upsert of a record at a known key.
type PutRecordInput struct {
	Repo       string
	Collection string
	RKey       string
	Validate   *bool
	Record     any
	// SwapRecord makes the write conditional on the record's current CID.
	SwapRecord string
	SwapCommit string
}

// PutRecord creates or replaces the record at Collection/RKey and returns
// the new strong reference.
func PutRecord(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, in PutRecordInput) (*StrongRef, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	if in.Collection == "" || in.RKey == "" {
		return nil, fmt.Errorf("atproto: collection and rkey are required")
	}
	repo := in.Repo
	if repo == "" {
		repo = sess.DID
	}
	var ref StrongRef
	err := c.Procedure(ctx, sess, "com.atproto.repo.putRecord", putRecordRequest{
		Repo:       repo,
		Collection: in.Collection,
		RKey:       in.RKey,
		Validate:   in.Validate,
		Record:     in.Record,
		SwapRecord: in.SwapRecord,
		SwapCommit: in.SwapCommit,
	}, &ref)
	if err != nil {
		return nil, fmt.Errorf("put record: %w", err)
	}
	return &ref, nil
}

type deleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
	SwapRecord string `json:"swapRecord,omitempty"`
	SwapCommit string `json:"swapCommit,omitempty"`
}

// DeleteRecord removes a record. repo defaults to the session DID when
// empty. Deleting a record that does not exist is not an error on most
// servers.
func DeleteRecord(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, repo, collection, rkey string) error {
	if sess == nil {
		return xrpc.ErrNoSession
	}
	if collection == "" || rkey == "" {
		return fmt.Errorf("atproto: collection and rkey are required")
	}
	if repo == "" {
		repo = sess.DID
	}
	err := c.Procedure(ctx, sess, "com.atproto.repo.deleteRecord", deleteRecordRequest{
		Repo:       repo,
		Collection: collection,
		RKey:       rkey,
	}, nil)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Record is one stored record with its address and raw value. Decode Value
// into the matching record type once the collection is known.
type Record struct {
	URI   syntax.ATURI    `json:"uri"`
	CID   string          `json:"cid,omitempty"`
	Value json.RawMessage `json:"value"`
}

// Decode decodes the record value into out, e.g. a *bsky.FeedPost for an
// app.bsky.feed.post record.
func (r *Record) Decode(out any) error {
	if len(r.Value) == 0 {
		return fmt.Errorf("record %s has no value", r.URI)
	}
	if err := json.Unmarshal(r.Value, out); err != nil {
		return fmt.Errorf("decode record %s: %w", r.URI, err)
	}
	return nil
}

// GetRecord fetches a single record. cid pins a specific version; pass ""
// for the latest. The endpoint is public, so sess may be nil.
func GetRecord(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, repo, collection, rkey, cid string) (*Record, error) {
	if repo == "" || collection == "" || rkey == "" {
		return nil, fmt.Errorf("atproto: repo, collection and rkey are required")
	}
	params := url.Values{}
	params.Set("repo", repo)
	params.Set("collection", collection)
	params.Set("rkey", rkey)
	if cid != "" {
		params.Set("cid", cid)
	}
	var rec Record
	if err := c.Query(ctx, sess, "com.atproto.repo.getRecord", params, &rec); err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListRecordsOutput is one page of records from a collection.
type ListRecordsOutput struct {
	Cursor  string   `json:"cursor,omitempty"`
	Records []Record `json:"records"`
}

// ListRecords pages through a collection in a repository. limit is clamped
// into [1, 100]; non-positive means the server default. reverse walks the
// collection in ascending key order.
func ListRecords(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, repo, collection string, limit int, cursor string, reverse bool) (*ListRecordsOutput, error) {
	if repo == "" || collection == "" {
		return nil, fmt.Errorf("atproto: repo and collection are required")
	}
	params := url.Values{}
	params.Set("repo", repo)
	params.Set("collection", collection)
	xrpc.LimitParam(params, limit, 100)
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if reverse {
		params.Set("reverse", strconv.FormatBool(reverse))
	}
	var out ListRecordsOutput
	if err := c.Query(ctx, sess, "com.atproto.repo.listRecords", params, &out); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return &out, nil
}

// RepoDescription summarizes a repository: its identity and the collections
// it holds.
type RepoDescription struct {
	Handle          string       `json:"handle"`
	DID             string       `json:"did"`
	DIDDoc          *DIDDocument `json:"didDoc,omitempty"`
	Collections     []string     `json:"collections"`
	HandleIsCorrect bool         `json:"handleIsCorrect"`
}

// DescribeRepo fetches repository metadata. The endpoint is public.
func DescribeRepo(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, repo string) (*RepoDescription, error) {
	if repo == "" {
		return nil, fmt.Errorf("atproto: repo is required")
	}
	params := url.Values{}
	params.Set("repo", repo)
	var desc RepoDescription
	if err := c.Query(ctx, sess, "com.atproto.repo.describeRepo", params, &desc); err != nil {
		return nil, fmt.Errorf("describe repo: %w", err)
	}
	return &desc, nil
}

// UploadBlob uploads raw bytes and returns the blob handle to embed in a
// record. Servers garbage-collect blobs that no record references within
// their grace window, so write the referencing record promptly.
func UploadBlob(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, contentType string, r io.Reader) (*lexicon.Blob, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	var resp struct {
		Blob lexicon.Blob `json:"blob"`
	}
	if err := c.ProcedureRaw(ctx, sess, "com.atproto.repo.uploadBlob", contentType, r, &resp); err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	return &resp.Blob, nil
}
