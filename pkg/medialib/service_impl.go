package medialib

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository   Repository
	blobStores   map[StorageMode]BlobStore
	thumbStore   BlobStore
	descriptions DescriptionStore
	thumbnailer  Thumbnailer
	logger       *slog.Logger

	baseURL     string
	defaultMode StorageMode
	workers     int
	queueDepth  int

	resolver *SourceResolver
	orch     *orchestrator
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore registers the blob store backing a storage mode
func WithBlobStore(mode StorageMode, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[StorageMode]BlobStore)
		}
		s.blobStores[mode] = store
	}
}

// WithThumbnailStore sets the store thumbnail artifacts are written to.
// Defaults to the store registered for the default storage mode.
func WithThumbnailStore(store BlobStore) Option {
	return func(s *service) {
		s.thumbStore = store
	}
}

// WithDescriptionStore sets the description side-store
func WithDescriptionStore(store DescriptionStore) Option {
	return func(s *service) {
		s.descriptions = store
	}
}

// WithThumbnailer sets the thumbnail generation engine
func WithThumbnailer(t Thumbnailer) Option {
	return func(s *service) {
		s.thumbnailer = t
	}
}

// WithLogger sets the logger used by background jobs
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithPublicBaseURL sets the public origin assets and thumbnails are served
// from
func WithPublicBaseURL(base string) Option {
	return func(s *service) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithDefaultStorageMode sets the storage mode assigned to new uploads
func WithDefaultStorageMode(mode StorageMode) Option {
	return func(s *service) {
		s.defaultMode = mode
	}
}

// WithWorkers sets the background worker pool size
func WithWorkers(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueDepth sets the background job queue capacity
func WithQueueDepth(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.queueDepth = n
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores:  make(map[StorageMode]BlobStore),
		defaultMode: StorageModeFile,
		workers:     4,
		queueDepth:  64,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.thumbnailer == nil {
		return nil, fmt.Errorf("thumbnailer is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.thumbStore == nil {
		s.thumbStore = s.blobStores[s.defaultMode]
	}
	if s.thumbStore == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBlobStore, s.defaultMode)
	}

	s.resolver = NewSourceResolver(s.blobStores)
	s.orch = newOrchestrator(s)

	return s, nil
}

// UploadMedia stores the uploaded bytes, creates the record and schedules
// thumbnail generation for images and videos. The storage mode of a record is
// fixed here and never changes afterwards.
func (s *service) UploadMedia(ctx context.Context, req UploadMediaRequest) (*MediaRecord, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	if req.FileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if req.Reader == nil {
		return nil, fmt.Errorf("reader is required")
	}

	store, ok := s.blobStores[s.defaultMode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBlobStore, s.defaultMode)
	}

	id := uuid.New().String()
	filename := id + strings.ToLower(path.Ext(req.FileName))

	if err := store.Upload(ctx, filename, req.Reader); err != nil {
		return nil, &StorageError{Mode: s.defaultMode, Key: filename, Op: "upload", Err: err}
	}

	now := time.Now().UTC()
	record := &MediaRecord{
		ID:               id,
		OwnerID:          req.OwnerID,
		Filename:         filename,
		OriginalFilename: req.FileName,
		Kind:             KindFromMime(req.MimeType),
		Storage:          s.defaultMode,
		StorageKey:       filename,
		OriginalURL:      s.publicURL(filename),
		Thumbnail:        EmptyThumbnail(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repository.CreateRecord(ctx, record); err != nil {
		// The blob was already written; remove it so a failed insert does
		// not leave an orphaned object behind.
		if delErr := store.Delete(ctx, filename); delErr != nil {
			s.logger.Warn("remove orphaned upload", "key", filename, "err", delErr)
		}
		return nil, &RecordError{RecordID: id, Op: "create", Err: err}
	}

	// Keep the side-store in 1:1 correspondence from the start.
	if s.descriptions != nil {
		if err := s.descriptions.Set(ctx, record.Stem(), ""); err != nil {
			s.logger.Warn("seed description entry", "record_id", id, "err", err)
		}
	}

	if record.NeedsThumbnail() {
		if err := s.orch.enqueue(record.ID); err != nil {
			s.logger.Warn("schedule thumbnail after upload", "record_id", id, "err", err)
		}
	}

	return record, nil
}

func (s *service) GetMedia(ctx context.Context, id string) (*MediaRecord, error) {
	return s.repository.GetRecord(ctx, id)
}

func (s *service) ListMedia(ctx context.Context, ownerID string) ([]*MediaRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	return s.repository.ListByOwner(ctx, ownerID)
}

func (s *service) DeleteMedia(ctx context.Context, id string) error {
	if err := s.repository.SoftDeleteRecord(ctx, id); err != nil {
		return &RecordError{RecordID: id, Op: "delete", Err: err}
	}
	return nil
}

func (s *service) EnsureThumbnail(ctx context.Context, id string) error {
	return s.orch.Ensure(ctx, id)
}

func (s *service) BackfillThumbnails(ctx context.Context, ownerID string, limit int) (int, error) {
	return s.orch.Backfill(ctx, ownerID, limit)
}

func (s *service) ThumbnailStats(ctx context.Context, ownerID string) (*ThumbnailStats, error) {
	return s.repository.CountThumbnails(ctx, ownerID)
}

func (s *service) Close() error {
	return s.orch.close()
}

func (s *service) publicURL(key string) string {
	if s.baseURL == "" {
		return "/" + key
	}
	return s.baseURL + "/" + key
}
