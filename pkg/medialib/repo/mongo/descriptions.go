package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mediaplan/medialib/pkg/medialib"
)

const descriptionCollection = "descriptions"

// DescriptionStore implements medialib.DescriptionStore on a MongoDB
// collection keyed by the filename stem.
type DescriptionStore struct {
	entries *mongo.Collection
}

// NewDescriptionStore creates a description store on the given database
func NewDescriptionStore(db *mongo.Database) *DescriptionStore {
	return &DescriptionStore{entries: db.Collection(descriptionCollection)}
}

func (s *DescriptionStore) Get(ctx context.Context, key string) (string, error) {
	var doc struct {
		Text string `bson:"text"`
	}
	err := s.entries.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", medialib.ErrDescriptionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find description: %w", err)
	}
	return doc.Text, nil
}

func (s *DescriptionStore) Set(ctx context.Context, key, text string) error {
	_, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"text": text, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert description: %w", err)
	}
	return nil
}

func (s *DescriptionStore) Delete(ctx context.Context, key string) error {
	res, err := s.entries.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("delete description: %w", err)
	}
	if res.DeletedCount == 0 {
		return medialib.ErrDescriptionNotFound
	}
	return nil
}

func (s *DescriptionStore) Keys(ctx context.Context) ([]string, error) {
	values, err := s.entries.Distinct(ctx, "_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list description keys: %w", err)
	}

	keys := make([]string, 0, len(values))
	for _, v := range values {
		if key, ok := v.(string); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
