// Package gridfs implements the blob-reference storage mode on top of
// MongoDB GridFS, keeping metadata and legacy blob bytes in the same
// database.
package gridfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// Backend is a GridFS implementation of the medialib.BlobStore interface
type Backend struct {
	bucket *gridfs.Bucket
}

// New creates a new GridFS storage backend on the given database
func New(db *mongo.Database, bucketName string) (medialib.BlobStore, error) {
	opts := options.GridFSBucket()
	if bucketName != "" {
		opts = opts.SetName(bucketName)
	}
	bucket, err := gridfs.NewBucket(db, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}
	return &Backend{bucket: bucket}, nil
}

// Upload stores content under the given key, replacing any previous revision
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader) error {
	// Drop older revisions first so a key always resolves to one file.
	if err := b.deleteByName(ctx, key); err != nil {
		return err
	}

	stream, err := b.bucket.OpenUploadStream(key)
	if err != nil {
		return fmt.Errorf("failed to open upload stream: %w", err)
	}
	if _, err := io.Copy(stream, reader); err != nil {
		stream.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to finish upload: %w", err)
	}
	return nil
}

// Download retrieves the content stored under the given key
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	stream, err := b.bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, errors.New("object not found")
		}
		return nil, fmt.Errorf("failed to open download stream: %w", err)
	}
	return stream, nil
}

// Delete removes the content stored under the given key
func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.deleteByName(ctx, key)
}

// Meta retrieves metadata for the stored content
func (b *Backend) Meta(ctx context.Context, key string) (*medialib.BlobMeta, error) {
	var file struct {
		Length     int64     `bson:"length"`
		UploadDate time.Time `bson:"uploadDate"`
	}
	err := b.bucket.GetFilesCollection().
		FindOne(ctx, bson.M{"filename": key}).
		Decode(&file)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.New("object not found")
		}
		return nil, fmt.Errorf("failed to look up blob: %w", err)
	}

	return &medialib.BlobMeta{
		Key:       key,
		Size:      file.Length,
		UpdatedAt: file.UploadDate,
	}, nil
}

func (b *Backend) deleteByName(ctx context.Context, key string) error {
	cursor, err := b.bucket.GetFilesCollection().Find(ctx, bson.M{"filename": key})
	if err != nil {
		return fmt.Errorf("failed to look up blob: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var file struct {
			ID interface{} `bson:"_id"`
		}
		if err := cursor.Decode(&file); err != nil {
			return fmt.Errorf("failed to decode blob entry: %w", err)
		}
		if err := b.bucket.Delete(file.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("failed to delete blob: %w", err)
		}
	}
	return cursor.Err()
}
