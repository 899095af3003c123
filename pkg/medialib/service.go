package medialib

import (
	"context"
	"io"
)

// Service defines the main interface for the media library backend
type Service interface {
	// Media record operations
	UploadMedia(ctx context.Context, req UploadMediaRequest) (*MediaRecord, error)
	GetMedia(ctx context.Context, id string) (*MediaRecord, error)
	ListMedia(ctx context.Context, ownerID string) ([]*MediaRecord, error)
	DeleteMedia(ctx context.Context, id string) error

	// Thumbnail operations. EnsureThumbnail and BackfillThumbnails schedule
	// background work and return without waiting for generation to finish.
	EnsureThumbnail(ctx context.Context, id string) error
	BackfillThumbnails(ctx context.Context, ownerID string, limit int) (int, error)
	ThumbnailStats(ctx context.Context, ownerID string) (*ThumbnailStats, error)

	// Close drains the background worker pool. In-flight jobs run to
	// completion; their writes are idempotent and keyed by record id.
	Close() error
}

// UploadMediaRequest contains parameters for uploading a new media asset
type UploadMediaRequest struct {
	OwnerID  string
	FileName string
	MimeType string
	Reader   io.Reader
}
