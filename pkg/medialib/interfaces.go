package medialib

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for byte storage backends
type BlobStore interface {
	// Upload stores content under the given key
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Download retrieves the content stored under the given key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content stored under the given key
	Delete(ctx context.Context, key string) error

	// Meta retrieves metadata for stored content
	Meta(ctx context.Context, key string) (*BlobMeta, error)
}

// BlobMeta contains metadata about stored content
type BlobMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// Repository defines the interface for media record persistence.
//
// Implementations own the translation between the canonical MediaRecord and
// whatever physical shapes the underlying store has accumulated: legacy owner
// field names, binary-encoded owner ids, and malformed thumbnail values all
// stay behind this boundary.
type Repository interface {
	// Record operations
	CreateRecord(ctx context.Context, record *MediaRecord) error
	GetRecord(ctx context.Context, id string) (*MediaRecord, error)
	UpdateRecord(ctx context.Context, record *MediaRecord) error

	// SetThumbnailURL atomically updates the thumbnail field of a single
	// record, keyed by the immutable record id.
	SetThumbnailURL(ctx context.Context, id, url string) error

	// ClearThumbnailURL resets the thumbnail field to the empty state.
	ClearThumbnailURL(ctx context.Context, id string) error

	// Listing operations. Soft-deleted records are excluded from all of them.
	ListByOwner(ctx context.Context, ownerID string) ([]*MediaRecord, error)
	ListMissingThumbnails(ctx context.Context, ownerID string, limit int) ([]*MediaRecord, error)
	ListBatch(ctx context.Context, offset, limit int) ([]*MediaRecord, error)

	// CountThumbnails reports thumbnail coverage for an owner.
	CountThumbnails(ctx context.Context, ownerID string) (*ThumbnailStats, error)

	// SoftDeleteRecord marks a record deleted without removing it.
	SoftDeleteRecord(ctx context.Context, id string) error

	// PurgeRecord physically removes a record.
	PurgeRecord(ctx context.Context, id string) error

	// BackfillRecordIDs assigns ids to legacy records that lack one, derived
	// from the internal storage key. Returns the number of records updated.
	BackfillRecordIDs(ctx context.Context) (int64, error)
}

// DescriptionStore is the side-store holding per-record descriptions, keyed
// by the filename stem shared with the thumbnail artifact.
type DescriptionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, text string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Thumbnailer produces encoded thumbnail bytes from source media.
type Thumbnailer interface {
	// FromImage generates a thumbnail from raw image bytes
	FromImage(ctx context.Context, reader io.Reader) ([]byte, error)

	// FromVideo generates a thumbnail from a video file on disk
	FromVideo(ctx context.Context, srcPath string) ([]byte, error)
}

// SourceOpener resolves a record to its backing bytes.
type SourceOpener interface {
	OpenSource(ctx context.Context, record *MediaRecord) (io.ReadCloser, error)
}
