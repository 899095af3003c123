package mongo

import (
	"path"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// recordDoc is the raw persisted shape of a media record. The drifted fields
// (owner id, thumbnail url) are captured as raw values and decoded explicitly
// so no dynamic shape escapes this package.
type recordDoc struct {
	OID              primitive.ObjectID `bson:"_id,omitempty"`
	ID               string             `bson:"id,omitempty"`
	OwnerID          bson.RawValue      `bson:"owner_id,omitempty"`
	UserID           bson.RawValue      `bson:"user_id,omitempty"`
	Filename         string             `bson:"filename,omitempty"`
	OriginalFilename string             `bson:"original_filename,omitempty"`
	Kind             string             `bson:"media_kind,omitempty"`
	Storage          string             `bson:"storage_mode,omitempty"`
	StorageKey       string             `bson:"storage_key,omitempty"`
	OriginalURL      string             `bson:"original_url,omitempty"`
	Thumbnail        bson.RawValue      `bson:"thumbnail_url,omitempty"`
	Deleted          bool               `bson:"deleted,omitempty"`
	CreatedAt        time.Time          `bson:"created_at,omitempty"`
	UpdatedAt        time.Time          `bson:"updated_at,omitempty"`
}

func (d *recordDoc) toDomain() *medialib.MediaRecord {
	return &medialib.MediaRecord{
		ID:               d.ID,
		OwnerID:          decodeOwner(d.OwnerID, d.UserID),
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		Kind:             medialib.MediaKind(d.Kind),
		Storage:          medialib.StorageMode(d.Storage),
		StorageKey:       d.StorageKey,
		OriginalURL:      d.OriginalURL,
		Thumbnail:        decodeThumbnail(d.Thumbnail),
		SoftDeleted:      d.Deleted,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// decodeOwner canonicalizes the first usable owner value: plain strings pass
// through, binary-encoded ids are rendered as hex.
func decodeOwner(values ...bson.RawValue) string {
	for _, rv := range values {
		if rv.Value == nil {
			continue
		}
		switch rv.Type {
		case bsontype.String:
			if s := rv.StringValue(); s != "" {
				return s
			}
		case bsontype.ObjectID:
			return rv.ObjectID().Hex()
		}
	}
	return ""
}

// decodeThumbnail maps the raw field onto the tagged union. Anything that is
// not a string or null is malformed, including persisted query expressions.
func decodeThumbnail(rv bson.RawValue) medialib.ThumbnailURL {
	if rv.Value == nil {
		return medialib.AbsentThumbnail()
	}
	switch rv.Type {
	case bsontype.Null:
		return medialib.AbsentThumbnail()
	case bsontype.String:
		return medialib.ValidThumbnail(rv.StringValue())
	default:
		return medialib.MalformedThumbnail(rv.String())
	}
}

// thumbnailValue is the write-side inverse: valid states persist as plain
// strings, everything else as null. A malformed value is never written back.
func thumbnailValue(t medialib.ThumbnailURL) interface{} {
	if url, ok := t.URL(); ok {
		return url
	}
	if t.IsEmpty() {
		return ""
	}
	return nil
}

func stem(storageKey string) string {
	base := path.Base(strings.TrimSpace(storageKey))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
