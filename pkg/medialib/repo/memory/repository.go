package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// Repository implements medialib.Repository using in-memory storage.
//
// Records are keyed by their storage key so legacy records without an
// external id can exist until BackfillRecordIDs assigns one, mirroring the
// document store's behavior.
type Repository struct {
	mu      sync.RWMutex
	records map[string]*medialib.MediaRecord // storage key -> record
	byID    map[string]string                // record id -> storage key
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		records: make(map[string]*medialib.MediaRecord),
		byID:    make(map[string]string),
	}
}

func (r *Repository) CreateRecord(ctx context.Context, record *medialib.MediaRecord) error {
	if record.StorageKey == "" {
		return fmt.Errorf("storage key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.StorageKey]; exists {
		return fmt.Errorf("record already exists for storage key %s", record.StorageKey)
	}

	// Store a copy to avoid external modifications
	recordCopy := *record
	r.records[record.StorageKey] = &recordCopy
	if record.ID != "" {
		r.byID[record.ID] = record.StorageKey
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id string) (*medialib.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	recordCopy := *record
	return &recordCopy, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *medialib.MediaRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.lookup(record.ID)
	if err != nil {
		return err
	}

	recordCopy := *record
	recordCopy.UpdatedAt = time.Now().UTC()
	r.records[existing.StorageKey] = &recordCopy
	return nil
}

func (r *Repository) SetThumbnailURL(ctx context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookup(id)
	if err != nil {
		return err
	}
	record.Thumbnail = medialib.ValidThumbnail(url)
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) ClearThumbnailURL(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookup(id)
	if err != nil {
		return err
	}
	record.Thumbnail = medialib.EmptyThumbnail()
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]*medialib.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*medialib.MediaRecord
	for _, record := range r.records {
		if record.SoftDeleted || record.OwnerID != ownerID {
			continue
		}
		recordCopy := *record
		result = append(result, &recordCopy)
	}
	sortNewestFirst(result)
	return result, nil
}

func (r *Repository) ListMissingThumbnails(ctx context.Context, ownerID string, limit int) ([]*medialib.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*medialib.MediaRecord
	for _, record := range r.records {
		if record.OwnerID != ownerID || !record.NeedsThumbnail() {
			continue
		}
		recordCopy := *record
		result = append(result, &recordCopy)
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *Repository) ListBatch(ctx context.Context, offset, limit int) ([]*medialib.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*medialib.MediaRecord
	for _, record := range r.records {
		if record.SoftDeleted {
			continue
		}
		recordCopy := *record
		all = append(all, &recordCopy)
	}
	slices.SortFunc(all, func(a, b *medialib.MediaRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *Repository) CountThumbnails(ctx context.Context, ownerID string) (*medialib.ThumbnailStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &medialib.ThumbnailStats{}
	for _, record := range r.records {
		if record.SoftDeleted || record.OwnerID != ownerID {
			continue
		}
		if record.Kind != medialib.KindImage && record.Kind != medialib.KindVideo {
			continue
		}
		stats.Total++
		if record.Thumbnail.IsValid() {
			stats.WithThumbnail++
		}
	}
	stats.Missing = stats.Total - stats.WithThumbnail
	if stats.Total > 0 {
		stats.Percent = 100 * float64(stats.WithThumbnail) / float64(stats.Total)
	}
	return stats, nil
}

func (r *Repository) SoftDeleteRecord(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookup(id)
	if err != nil {
		return err
	}
	record.SoftDeleted = true
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) PurgeRecord(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, exists := r.byID[id]
	if !exists {
		return medialib.ErrRecordNotFound
	}
	delete(r.records, key)
	delete(r.byID, id)
	return nil
}

func (r *Repository) BackfillRecordIDs(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for key, record := range r.records {
		if record.ID != "" {
			continue
		}
		id := record.Stem()
		if id == "" {
			id = uuid.New().String()
		}
		if _, taken := r.byID[id]; taken {
			id = uuid.New().String()
		}
		record.ID = id
		record.UpdatedAt = time.Now().UTC()
		r.byID[id] = key
		updated++
	}
	return updated, nil
}

// lookup resolves a live record by id. Callers hold the lock.
func (r *Repository) lookup(id string) (*medialib.MediaRecord, error) {
	key, exists := r.byID[id]
	if !exists {
		return nil, medialib.ErrRecordNotFound
	}
	record := r.records[key]
	if record == nil || record.SoftDeleted {
		return nil, medialib.ErrRecordNotFound
	}
	return record, nil
}

func sortNewestFirst(records []*medialib.MediaRecord) {
	slices.SortFunc(records, func(a, b *medialib.MediaRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
