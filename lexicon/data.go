package lexicon

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The atproto data model wraps CID links and byte strings in single-key
// objects on the JSON side and uses native CBOR forms on the CBOR side:
// tag 42 for links, byte strings for bytes.

// cidLinkTag is the IPLD content-identifier CBOR tag.
const cidLinkTag = 42

// base32CID decodes the body of a base32 ("b" prefix) multibase CID string.
var base32CID = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// base64Bytes is the $bytes payload encoding: standard alphabet, no padding.
var base64Bytes = base64.StdEncoding.WithPadding(base64.NoPadding)

// CIDLink is a reference to content-addressed data, held in its string form
// (e.g. "bafyrei..."). JSON carries {"$link": "..."}; CBOR carries tag 42
// over the binary CID with the multibase identity prefix.
type CIDLink string

func (c CIDLink) String() string {
	return string(c)
}

// Binary returns the raw CID bytes with the multibase prefix stripped and
// the base32 body decoded.
func (c CIDLink) Binary() ([]byte, error) {
	s := string(c)
	if len(s) < 2 || s[0] != 'b' {
		return nil, fmt.Errorf("cid %q: only base32 multibase (b...) is supported", s)
	}
	raw, err := base32CID.DecodeString(s[1:])
	if err != nil {
		return nil, fmt.Errorf("decode cid %q: %w", s, err)
	}
	return raw, nil
}

type jsonLink struct {
	Link string `json:"$link"`
}

func (c CIDLink) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonLink{Link: string(c)})
}

func (c *CIDLink) UnmarshalJSON(data []byte) error {
	var l jsonLink
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf(`cid link must be a {"$link"} object: %w`, err)
	}
	if l.Link == "" {
		return fmt.Errorf("cid link object is missing $link")
	}
	*c = CIDLink(l.Link)
	return nil
}

func (c CIDLink) MarshalCBOR() ([]byte, error) {
	raw, err := c.Binary()
	if err != nil {
		return nil, err
	}
	content := make([]byte, 0, len(raw)+1)
	content = append(content, 0x00)
	content = append(content, raw...)
	return cbor.Marshal(cbor.Tag{Number: cidLinkTag, Content: content})
}

func (c *CIDLink) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("decode cid link: %w", err)
	}
	if tag.Number != cidLinkTag {
		return fmt.Errorf("cid link has cbor tag %d, want %d", tag.Number, cidLinkTag)
	}
	content, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("cid link tag content must be a byte string")
	}
	if len(content) < 2 || content[0] != 0x00 {
		return fmt.Errorf("cid link bytes are missing the identity multibase prefix")
	}
	*c = CIDLink("b" + base32CID.EncodeToString(content[1:]))
	return nil
}

// Bytes is a raw byte string field. JSON carries {"$bytes": "<base64>"};
// CBOR carries a native byte string.
type Bytes []byte

type jsonBytes struct {
	Bytes string `json:"$bytes"`
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBytes{Bytes: base64Bytes.EncodeToString(b)})
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var w jsonBytes
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf(`bytes must be a {"$bytes"} object: %w`, err)
	}
	raw, err := base64Bytes.DecodeString(w.Bytes)
	if err != nil {
		return fmt.Errorf("decode $bytes payload: %w", err)
	}
	*b = raw
	return nil
}

func (b Bytes) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal([]byte(b))
}

func (b *Bytes) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode bytes: %w", err)
	}
	*b = raw
	return nil
}

// BlobType is the $type discriminator carried by every blob reference.
const BlobType = "blob"

// Blob references uploaded binary content, as returned by
// com.atproto.repo.uploadBlob and embedded in records that carry media.
type Blob struct {
	Type     string  `json:"$type" cbor:"$type"`
	Ref      CIDLink `json:"ref" cbor:"ref"`
	MimeType string  `json:"mimeType" cbor:"mimeType"`
	Size     int64   `json:"size" cbor:"size"`
}

// NewBlob builds a blob reference with the $type discriminator set.
func NewBlob(ref CIDLink, mimeType string, size int64) *Blob {
	return &Blob{Type: BlobType, Ref: ref, MimeType: mimeType, Size: size}
}
