package bsky

import (
	"encoding/json"
	"fmt"

	"github.com/skywatch-go/skywatch/atproto"
	"github.com/skywatch-go/skywatch/lexicon"
)

// Embed $type discriminators (app.bsky.embed.*).
const (
	EmbedImagesType          = "app.bsky.embed.images"
	EmbedExternalType        = "app.bsky.embed.external"
	EmbedRecordType          = "app.bsky.embed.record"
	EmbedRecordWithMediaType = "app.bsky.embed.recordWithMedia"
	EmbedVideoType           = "app.bsky.embed.video"
)

// PostEmbed is the embed union for post records: exactly one variant is set.
// Unrecognized variants land in Unknown and survive re-encoding unchanged.
type PostEmbed struct {
	Images          *EmbedImages
	External        *EmbedExternal
	Record          *EmbedRecord
	RecordWithMedia *EmbedRecordWithMedia
	Video           *EmbedVideo
	Unknown         *lexicon.Unknown
}

func (e PostEmbed) MarshalJSON() ([]byte, error) {
	switch {
	case e.Images != nil:
		return marshalWithType(EmbedImagesType, e.Images)
	case e.External != nil:
		return marshalWithType(EmbedExternalType, e.External)
	case e.Record != nil:
		return marshalWithType(EmbedRecordType, e.Record)
	case e.RecordWithMedia != nil:
		return marshalWithType(EmbedRecordWithMediaType, e.RecordWithMedia)
	case e.Video != nil:
		return marshalWithType(EmbedVideoType, e.Video)
	case e.Unknown != nil:
		return json.Marshal(e.Unknown)
	}
	return nil, fmt.Errorf("embed union has no variant set")
}

func (e *PostEmbed) UnmarshalJSON(data []byte) error {
	*e = PostEmbed{}
	switch variantType(data) {
	case EmbedImagesType:
		e.Images = new(EmbedImages)
		return json.Unmarshal(data, e.Images)
	case EmbedExternalType:
		e.External = new(EmbedExternal)
		return json.Unmarshal(data, e.External)
	case EmbedRecordType:
		e.Record = new(EmbedRecord)
		return json.Unmarshal(data, e.Record)
	case EmbedRecordWithMediaType:
		e.RecordWithMedia = new(EmbedRecordWithMedia)
		return json.Unmarshal(data, e.RecordWithMedia)
	case EmbedVideoType:
		e.Video = new(EmbedVideo)
		return json.Unmarshal(data, e.Video)
	default:
		e.Unknown = new(lexicon.Unknown)
		return json.Unmarshal(data, e.Unknown)
	}
}

// AspectRatio preserves display proportions for media
// (app.bsky.embed.defs#aspectRatio).
type AspectRatio struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// EmbedImages attaches up to four images to a post.
type EmbedImages struct {
	Images []EmbedImage `json:"images"`
}

// EmbedImage is one attached image with its alt text.
type EmbedImage struct {
	Image       lexicon.Blob `json:"image"`
	Alt         string       `json:"alt"`
	AspectRatio *AspectRatio `json:"aspectRatio,omitempty"`
}

// EmbedExternal is a link preview card for an external URL.
type EmbedExternal struct {
	External ExternalInfo `json:"external"`
}

// ExternalInfo describes the link card.
type ExternalInfo struct {
	URI         string        `json:"uri"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Thumb       *lexicon.Blob `json:"thumb,omitempty"`
}

// EmbedRecord quotes another record.
type EmbedRecord struct {
	Record atproto.StrongRef `json:"record"`
}

// EmbedRecordWithMedia quotes a record alongside media. The media union is
// restricted to images, external, and video.
type EmbedRecordWithMedia struct {
	Record EmbedRecord `json:"record"`
	Media  *PostEmbed  `json:"media"`
}

// EmbedVideo attaches a video blob.
type EmbedVideo struct {
	Video       lexicon.Blob   `json:"video"`
	Captions    []VideoCaption `json:"captions,omitempty"`
	Alt         string         `json:"alt,omitempty"`
	AspectRatio *AspectRatio   `json:"aspectRatio,omitempty"`
}

// VideoCaption pairs a WebVTT caption file with its language.
type VideoCaption struct {
	Lang string       `json:"lang"`
	File lexicon.Blob `json:"file"`
}
