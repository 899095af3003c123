package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mediaplan/medialib/pkg/medialib"
)

func rawValue(t *testing.T, v interface{}) bson.RawValue {
	t.Helper()

	typ, data, err := bson.MarshalValue(v)
	require.NoError(t, err)
	return bson.RawValue{Type: typ, Value: data}
}

func TestDecodeOwner(t *testing.T) {
	oid := primitive.NewObjectID()

	tests := []struct {
		name   string
		owner  bson.RawValue
		user   bson.RawValue
		expect string
	}{
		{
			name:   "plain string owner",
			owner:  rawValue(t, "owner-123"),
			expect: "owner-123",
		},
		{
			name:   "objectid owner renders as hex",
			owner:  rawValue(t, oid),
			expect: oid.Hex(),
		},
		{
			name:   "legacy user field when owner absent",
			user:   rawValue(t, "legacy-owner"),
			expect: "legacy-owner",
		},
		{
			name:   "owner field wins over legacy field",
			owner:  rawValue(t, "current"),
			user:   rawValue(t, "legacy"),
			expect: "current",
		},
		{
			name:   "empty owner string falls through to legacy field",
			owner:  rawValue(t, ""),
			user:   rawValue(t, oid),
			expect: oid.Hex(),
		},
		{
			name:   "no usable value",
			expect: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, decodeOwner(tc.owner, tc.user))
		})
	}
}

func TestDecodeThumbnail(t *testing.T) {
	t.Run("absent field", func(t *testing.T) {
		assert.True(t, decodeThumbnail(bson.RawValue{}).IsAbsent())
	})

	t.Run("null value", func(t *testing.T) {
		rv := bson.RawValue{Type: bsontype.Null, Value: []byte{}}
		assert.True(t, decodeThumbnail(rv).IsAbsent())
	})

	t.Run("url string", func(t *testing.T) {
		got := decodeThumbnail(rawValue(t, "https://cdn.example.com/thumbnails/a.jpg"))
		url, ok := got.URL()
		require.True(t, ok)
		assert.Equal(t, "https://cdn.example.com/thumbnails/a.jpg", url)
	})

	t.Run("empty string", func(t *testing.T) {
		assert.True(t, decodeThumbnail(rawValue(t, "")).IsEmpty())
	})

	t.Run("persisted query expression is malformed", func(t *testing.T) {
		expr := bson.M{"$replaceOne": bson.M{"input": "$thumbnail_url", "find": "a", "replacement": "b"}}
		got := decodeThumbnail(rawValue(t, expr))
		assert.True(t, got.IsMalformed())
		assert.Contains(t, got.Raw(), "$replaceOne")
	})

	t.Run("numeric value is malformed", func(t *testing.T) {
		assert.True(t, decodeThumbnail(rawValue(t, int32(7))).IsMalformed())
	})
}

func TestThumbnailValueWriteSide(t *testing.T) {
	url := "https://cdn.example.com/thumbnails/a.jpg"
	assert.Equal(t, url, thumbnailValue(medialib.ValidThumbnail(url)))
	assert.Equal(t, "", thumbnailValue(medialib.EmptyThumbnail()))
	assert.Nil(t, thumbnailValue(medialib.AbsentThumbnail()))

	// A malformed value is cleared on write, never echoed back.
	assert.Nil(t, thumbnailValue(medialib.MalformedThumbnail("junk")))
}

func TestStem(t *testing.T) {
	assert.Equal(t, "photo", stem("photo.png"))
	assert.Equal(t, "photo", stem("uploads/photo.png"))
	assert.Equal(t, "archive.tar", stem("archive.tar.gz"))
	assert.Equal(t, "", stem(""))
	assert.Equal(t, "noext", stem("noext"))
}
