package medialib

import (
	"encoding/json"
	"path"
	"strings"
	"time"
)

// MediaKind is the domain type for the broad media category of a record.
type MediaKind string

// Media kind constants (typed).
const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindOther MediaKind = "other"
)

// KindFromMime derives the media kind from a declared MIME type string.
func KindFromMime(mimeType string) MediaKind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	default:
		return KindOther
	}
}

// StorageMode identifies how a record's backing bytes are fetched.
type StorageMode string

// Storage mode constants (typed). The mode is fixed when the record is
// created and never changes afterwards.
const (
	StorageModeFile     StorageMode = "file"
	StorageModeBlob     StorageMode = "blob"
	StorageModeExternal StorageMode = "external"
)

// MediaRecord represents one uploaded asset.
//
// OwnerID always carries the canonical string form of the owner identifier.
// Legacy physical representations (binary-encoded ids, the retired owner
// field name) are normalized at the repository boundary; no code outside a
// Repository implementation ever sees them.
type MediaRecord struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"owner_id"`
	Filename         string       `json:"filename"`
	OriginalFilename string       `json:"original_filename,omitempty"`
	Kind             MediaKind    `json:"media_kind"`
	Storage          StorageMode  `json:"storage_mode"`
	StorageKey       string       `json:"storage_key"`
	OriginalURL      string       `json:"original_url,omitempty"`
	Thumbnail        ThumbnailURL `json:"thumbnail_url"`
	SoftDeleted      bool         `json:"deleted,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Stem returns the filename without its extension. It is the derived key
// shared by the thumbnail artifact and the description side-store.
func (r *MediaRecord) Stem() string {
	return strings.TrimSuffix(r.Filename, path.Ext(r.Filename))
}

// NeedsThumbnail reports whether the record is eligible for thumbnail
// generation and does not have a well-formed thumbnail URL yet.
func (r *MediaRecord) NeedsThumbnail() bool {
	if r.SoftDeleted {
		return false
	}
	if r.Kind != KindImage && r.Kind != KindVideo {
		return false
	}
	return !r.Thumbnail.IsValid()
}

type thumbnailState int

const (
	thumbnailAbsent thumbnailState = iota
	thumbnailEmpty
	thumbnailValid
	thumbnailMalformed
)

// ThumbnailURL is the decoded state of a record's thumbnail_url field.
//
// The physical field has drifted over time: besides plain strings it has been
// observed as null, empty, entirely absent, and (on corrupted records) a
// persisted query expression instead of a value. Repositories decode the raw
// field into this tagged union so downstream code never branches on dynamic
// shape.
type ThumbnailURL struct {
	state thumbnailState
	value string
	raw   string
}

// AbsentThumbnail returns the state for a missing or null field.
func AbsentThumbnail() ThumbnailURL { return ThumbnailURL{state: thumbnailAbsent} }

// EmptyThumbnail returns the state for an empty string value.
func EmptyThumbnail() ThumbnailURL { return ThumbnailURL{state: thumbnailEmpty} }

// ValidThumbnail returns the state for a well-formed URL string. An empty
// input collapses to the empty state.
func ValidThumbnail(url string) ThumbnailURL {
	if url == "" {
		return EmptyThumbnail()
	}
	return ThumbnailURL{state: thumbnailValid, value: url}
}

// MalformedThumbnail returns the state for a non-string value. The raw
// encoding is retained for diagnostics only.
func MalformedThumbnail(raw string) ThumbnailURL {
	return ThumbnailURL{state: thumbnailMalformed, raw: raw}
}

func (t ThumbnailURL) IsAbsent() bool    { return t.state == thumbnailAbsent }
func (t ThumbnailURL) IsEmpty() bool     { return t.state == thumbnailEmpty }
func (t ThumbnailURL) IsValid() bool     { return t.state == thumbnailValid }
func (t ThumbnailURL) IsMalformed() bool { return t.state == thumbnailMalformed }

// URL returns the thumbnail URL and true when the field holds a well-formed
// value.
func (t ThumbnailURL) URL() (string, bool) {
	return t.value, t.state == thumbnailValid
}

// Raw returns the opaque original encoding of a malformed field.
func (t ThumbnailURL) Raw() string { return t.raw }

func (t ThumbnailURL) String() string {
	switch t.state {
	case thumbnailValid:
		return t.value
	case thumbnailEmpty:
		return ""
	case thumbnailMalformed:
		return "<malformed>"
	default:
		return "<absent>"
	}
}

// MarshalJSON renders the valid state as a string and every other state as
// null, so a malformed value is never re-serialized.
func (t ThumbnailURL) MarshalJSON() ([]byte, error) {
	if t.state == thumbnailValid {
		return json.Marshal(t.value)
	}
	return []byte("null"), nil
}

// ThumbnailStats summarizes thumbnail coverage for an owner's records.
type ThumbnailStats struct {
	Total         int64   `json:"total"`
	WithThumbnail int64   `json:"with_thumbnail"`
	Missing       int64   `json:"missing"`
	Percent       float64 `json:"percent"`
}
