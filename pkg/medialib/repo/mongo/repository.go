// Package mongo implements medialib.Repository on a MongoDB collection.
//
// The collection has lived through several schema generations: owner ids
// stored as strings or ObjectIDs under two field names, records without an
// external id, and thumbnail fields holding things that are not strings. All
// of that is absorbed here; the rest of the system only ever sees canonical
// records.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mediaplan/medialib/pkg/medialib"
	"github.com/mediaplan/medialib/pkg/medialib/ownerquery"
)

const recordCollection = "media"

// Repository implements medialib.Repository backed by MongoDB
type Repository struct {
	records *mongo.Collection
}

// New creates a new MongoDB repository on the given database
func New(db *mongo.Database) *Repository {
	return &Repository{records: db.Collection(recordCollection)}
}

func (r *Repository) CreateRecord(ctx context.Context, record *medialib.MediaRecord) error {
	doc := bson.M{
		"id":                record.ID,
		"owner_id":          record.OwnerID,
		"filename":          record.Filename,
		"original_filename": record.OriginalFilename,
		"media_kind":        string(record.Kind),
		"storage_mode":      string(record.Storage),
		"storage_key":       record.StorageKey,
		"original_url":      record.OriginalURL,
		"thumbnail_url":     thumbnailValue(record.Thumbnail),
		"deleted":           record.SoftDeleted,
		"created_at":        record.CreatedAt,
		"updated_at":        record.UpdatedAt,
	}
	if _, err := r.records.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id string) (*medialib.MediaRecord, error) {
	var doc recordDoc
	err := r.records.FindOne(ctx, liveFilter(bson.M{"id": id})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, medialib.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return doc.toDomain(), nil
}

// UpdateRecord rewrites the record's mutable fields. It also normalizes the
// owner representation: the canonical string lands in owner_id and the
// retired field is dropped, so every update shrinks the legacy surface the
// tolerant filter has to cover.
func (r *Repository) UpdateRecord(ctx context.Context, record *medialib.MediaRecord) error {
	update := bson.M{
		"$set": bson.M{
			"owner_id":          record.OwnerID,
			"filename":          record.Filename,
			"original_filename": record.OriginalFilename,
			"media_kind":        string(record.Kind),
			"storage_mode":      string(record.Storage),
			"storage_key":       record.StorageKey,
			"original_url":      record.OriginalURL,
			"thumbnail_url":     thumbnailValue(record.Thumbnail),
			"deleted":           record.SoftDeleted,
			"updated_at":        time.Now().UTC(),
		},
		"$unset": bson.M{"user_id": ""},
	}
	res, err := r.records.UpdateOne(ctx, bson.M{"id": record.ID}, update)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if res.MatchedCount == 0 {
		return medialib.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) SetThumbnailURL(ctx context.Context, id, url string) error {
	return r.setThumbnail(ctx, id, url)
}

func (r *Repository) ClearThumbnailURL(ctx context.Context, id string) error {
	return r.setThumbnail(ctx, id, "")
}

func (r *Repository) setThumbnail(ctx context.Context, id string, value interface{}) error {
	res, err := r.records.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"thumbnail_url": value, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update thumbnail url: %w", err)
	}
	if res.MatchedCount == 0 {
		return medialib.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]*medialib.MediaRecord, error) {
	filter := liveFilter(ownerquery.Filter(ownerID))
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.list(ctx, filter, opts)
}

func (r *Repository) ListMissingThumbnails(ctx context.Context, ownerID string, limit int) ([]*medialib.MediaRecord, error) {
	filter := bson.M{"$and": bson.A{
		ownerquery.Filter(ownerID),
		bson.M{"deleted": bson.M{"$ne": true}},
		bson.M{"media_kind": bson.M{"$in": bson.A{string(medialib.KindImage), string(medialib.KindVideo)}}},
		missingThumbnailFilter(),
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return r.list(ctx, filter, opts)
}

func (r *Repository) ListBatch(ctx context.Context, offset, limit int) ([]*medialib.MediaRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return r.list(ctx, liveFilter(bson.M{}), opts)
}

func (r *Repository) CountThumbnails(ctx context.Context, ownerID string) (*medialib.ThumbnailStats, error) {
	base := bson.A{
		ownerquery.Filter(ownerID),
		bson.M{"deleted": bson.M{"$ne": true}},
		bson.M{"media_kind": bson.M{"$in": bson.A{string(medialib.KindImage), string(medialib.KindVideo)}}},
	}

	total, err := r.records.CountDocuments(ctx, bson.M{"$and": base})
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	missing, err := r.records.CountDocuments(ctx, bson.M{"$and": append(base, missingThumbnailFilter())})
	if err != nil {
		return nil, fmt.Errorf("count missing thumbnails: %w", err)
	}

	stats := &medialib.ThumbnailStats{
		Total:         total,
		WithThumbnail: total - missing,
		Missing:       missing,
	}
	if total > 0 {
		stats.Percent = 100 * float64(stats.WithThumbnail) / float64(total)
	}
	return stats, nil
}

func (r *Repository) SoftDeleteRecord(ctx context.Context, id string) error {
	res, err := r.records.UpdateOne(ctx,
		liveFilter(bson.M{"id": id}),
		bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	if res.MatchedCount == 0 {
		return medialib.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) PurgeRecord(ctx context.Context, id string) error {
	res, err := r.records.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("purge record: %w", err)
	}
	if res.DeletedCount == 0 {
		return medialib.ErrRecordNotFound
	}
	return nil
}

// BackfillRecordIDs assigns an external id to legacy records that lack one.
// The id comes from the storage key stem when available, so the join key to
// the description side-store stays stable.
func (r *Repository) BackfillRecordIDs(ctx context.Context) (int64, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"id": bson.M{"$exists": false}},
		bson.M{"id": ""},
		bson.M{"id": nil},
	}}

	cursor, err := r.records.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("find records without id: %w", err)
	}
	defer cursor.Close(ctx)

	var updated int64
	for cursor.Next(ctx) {
		var doc recordDoc
		if err := cursor.Decode(&doc); err != nil {
			return updated, fmt.Errorf("decode record: %w", err)
		}

		id := stem(doc.StorageKey)
		if id == "" {
			id = uuid.New().String()
		}
		taken, err := r.records.CountDocuments(ctx, bson.M{"id": id})
		if err != nil {
			return updated, fmt.Errorf("check id collision: %w", err)
		}
		if taken > 0 {
			id = uuid.New().String()
		}

		_, err = r.records.UpdateByID(ctx, doc.OID, bson.M{
			"$set": bson.M{"id": id, "updated_at": time.Now().UTC()},
		})
		if err != nil {
			return updated, fmt.Errorf("assign record id: %w", err)
		}
		updated++
	}
	return updated, cursor.Err()
}

func (r *Repository) list(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*medialib.MediaRecord, error) {
	cursor, err := r.records.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*medialib.MediaRecord
	for cursor.Next(ctx) {
		var doc recordDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		result = append(result, doc.toDomain())
	}
	return result, cursor.Err()
}

func liveFilter(filter bson.M) bson.M {
	filter["deleted"] = bson.M{"$ne": true}
	return filter
}

// missingThumbnailFilter matches the absent, null and empty states; a
// malformed (non-string) value is not "missing", it needs clearing first.
func missingThumbnailFilter() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"thumbnail_url": bson.M{"$exists": false}},
		bson.M{"thumbnail_url": nil},
		bson.M{"thumbnail_url": ""},
	}}
}
