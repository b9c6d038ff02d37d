// Package jetstream consumes a Bluesky Jetstream endpoint: a websocket
// stream of JSON events covering repo commits, identity changes, and account
// status changes. The subscriber reconnects on failure and can resume from a
// persisted cursor.
package jetstream

import (
	"encoding/json"
	"fmt"

	"github.com/skywatch-go/skywatch/syntax"
)

// Event kinds.
const (
	KindCommit   = "commit"
	KindIdentity = "identity"
	KindAccount  = "account"
)

// Commit operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event is one Jetstream message. TimeUS is the event's microsecond cursor;
// the payload field matching Kind is set, the others are nil.
type Event struct {
	DID      string    `json:"did"`
	TimeUS   int64     `json:"time_us"`
	Kind     string    `json:"kind"`
	Commit   *Commit   `json:"commit,omitempty"`
	Identity *Identity `json:"identity,omitempty"`
	Account  *Account  `json:"account,omitempty"`
}

// URI returns the AT-URI of the record a commit event touches, or "" for
// non-commit events.
func (e *Event) URI() syntax.ATURI {
	if e.Commit == nil {
		return ""
	}
	return syntax.NewATURI(e.DID, e.Commit.Collection, e.Commit.RKey)
}

// Commit describes one repository operation. Record is the raw record JSON
// for create and update operations and empty for deletes.
type Commit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid,omitempty"`
}

// DecodeRecord decodes the commit's record payload into out, e.g. a
// *bsky.FeedPost for app.bsky.feed.post commits.
func (c *Commit) DecodeRecord(out any) error {
	if len(c.Record) == 0 {
		return fmt.Errorf("commit has no record payload")
	}
	if err := json.Unmarshal(c.Record, out); err != nil {
		return fmt.Errorf("decode %s record: %w", c.Collection, err)
	}
	return nil
}

// Identity is an identity-change event: a handle update or DID document
// rotation.
type Identity struct {
	DID    string `json:"did"`
	Handle string `json:"handle,omitempty"`
	Seq    int64  `json:"seq"`
	Time   string `json:"time"`
}

// Account is an account-status event.
type Account struct {
	DID    string `json:"did"`
	Active bool   `json:"active"`
	Seq    int64  `json:"seq"`
	Status string `json:"status,omitempty"`
	Time   string `json:"time"`
}
