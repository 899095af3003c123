package migrate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaplan/medialib/pkg/medialib"
	"github.com/mediaplan/medialib/pkg/medialib/reconcile"
	memoryrepo "github.com/mediaplan/medialib/pkg/medialib/repo/memory"
	memorystorage "github.com/mediaplan/medialib/pkg/medialib/storage/memory"
)

type harness struct {
	repo   *memoryrepo.Repository
	store  medialib.BlobStore
	descs  *memoryrepo.DescriptionStore
	driver *Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		repo:  memoryrepo.New(),
		store: memorystorage.New(),
		descs: memoryrepo.NewDescriptionStore(),
	}
	detector, err := reconcile.NewDetector(reconcile.Config{
		Repository: h.repo,
		Source: medialib.NewSourceResolver(map[medialib.StorageMode]medialib.BlobStore{
			medialib.StorageModeFile: h.store,
		}),
		Descriptions: h.descs,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	driver, err := NewDriver(h.repo, detector, logger)
	require.NoError(t, err)
	h.driver = driver
	return h
}

func (h *harness) seed(t *testing.T, record *medialib.MediaRecord, data []byte) *medialib.MediaRecord {
	t.Helper()

	if record.Kind == "" {
		record.Kind = medialib.KindImage
	}
	if record.Storage == "" {
		record.Storage = medialib.StorageModeFile
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	}
	require.NoError(t, h.repo.CreateRecord(context.Background(), record))
	if data != nil {
		require.NoError(t, h.store.Upload(context.Background(), record.StorageKey, bytes.NewReader(data)))
	}
	return record
}

func smallPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRunCountsEveryCategory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(t, &medialib.MediaRecord{
		ID: "healthy", OwnerID: "o1", Filename: "healthy.png", StorageKey: "healthy.png",
		Thumbnail: medialib.ValidThumbnail("https://cdn.example.com/thumbnails/healthy.jpg"),
	}, smallPNG(t))
	h.seed(t, &medialib.MediaRecord{
		ID: "bytes-gone", OwnerID: "o1", Filename: "bytes-gone.png", StorageKey: "bytes-gone.png",
	}, nil)
	h.seed(t, &medialib.MediaRecord{
		ID: "still-fresh", OwnerID: "o1", Filename: "still-fresh.png", StorageKey: "still-fresh.png",
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}, nil)
	h.seed(t, &medialib.MediaRecord{
		ID: "bad-meta", OwnerID: "o1", Filename: "bad-meta.png", StorageKey: "bad-meta.png",
		Thumbnail: medialib.MalformedThumbnail(`{"$replaceOne": {}}`),
	}, smallPNG(t))

	result, err := h.driver.Run(ctx, Options{BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.Processed)
	assert.Equal(t, int64(1), result.Purged)
	assert.Equal(t, int64(1), result.Flagged)
	assert.Equal(t, int64(1), result.Repaired)
	assert.Equal(t, int64(0), result.Errors)

	_, err = h.repo.GetRecord(ctx, "bytes-gone")
	assert.ErrorIs(t, err, medialib.ErrRecordNotFound)
	_, err = h.repo.GetRecord(ctx, "still-fresh")
	require.NoError(t, err)

	cleared, err := h.repo.GetRecord(ctx, "bad-meta")
	require.NoError(t, err)
	assert.True(t, cleared.Thumbnail.IsEmpty())
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(t, &medialib.MediaRecord{
		ID: "gone", OwnerID: "o1", Filename: "gone.png", StorageKey: "gone.png",
	}, nil)
	h.seed(t, &medialib.MediaRecord{
		ID: "bad-meta", OwnerID: "o1", Filename: "bad-meta.png", StorageKey: "bad-meta.png",
		Thumbnail: medialib.MalformedThumbnail("binary payload"),
	}, smallPNG(t))

	first, err := h.driver.Run(ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Purged)
	require.Equal(t, int64(1), first.Repaired)

	// The second run finds a corpus that is already remediated: the purged
	// record is gone and the cleared one only needs regeneration.
	second, err := h.driver.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Processed)
	assert.Zero(t, second.Purged)
	assert.Zero(t, second.Repaired)
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(t, &medialib.MediaRecord{
		ID: "gone", OwnerID: "o1", Filename: "gone.png", StorageKey: "gone.png",
	}, nil)
	h.seed(t, &medialib.MediaRecord{
		ID: "bad-meta", OwnerID: "o1", Filename: "bad-meta.png", StorageKey: "bad-meta.png",
		Thumbnail: medialib.MalformedThumbnail("binary payload"),
	}, smallPNG(t))

	result, err := h.driver.Run(ctx, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Processed)
	assert.Equal(t, int64(1), result.Purged)
	assert.Equal(t, int64(1), result.Repaired)

	_, err = h.repo.GetRecord(ctx, "gone")
	require.NoError(t, err)
	rec, err := h.repo.GetRecord(ctx, "bad-meta")
	require.NoError(t, err)
	assert.True(t, rec.Thumbnail.IsMalformed())
}

func TestRunScopedToOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(t, &medialib.MediaRecord{
		ID: "mine", OwnerID: "o1", Filename: "mine.png", StorageKey: "mine.png",
	}, nil)
	h.seed(t, &medialib.MediaRecord{
		ID: "theirs", OwnerID: "o2", Filename: "theirs.png", StorageKey: "theirs.png",
	}, nil)

	result, err := h.driver.Run(ctx, Options{OwnerID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Processed)

	_, err = h.repo.GetRecord(ctx, "mine")
	assert.ErrorIs(t, err, medialib.ErrRecordNotFound)
	_, err = h.repo.GetRecord(ctx, "theirs")
	require.NoError(t, err)
}

func TestRewriteOrigins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(t, &medialib.MediaRecord{
		ID: "moved", OwnerID: "o1", Filename: "moved.png", StorageKey: "moved.png",
		OriginalURL: "http://old-cdn.example.com/media/moved.png",
		Thumbnail:   medialib.ValidThumbnail("http://old-cdn.example.com/thumbnails/moved.jpg"),
	}, smallPNG(t))
	h.seed(t, &medialib.MediaRecord{
		ID: "current", OwnerID: "o1", Filename: "current.png", StorageKey: "current.png",
		Thumbnail: medialib.ValidThumbnail("https://cdn.example.com/thumbnails/current.jpg"),
	}, smallPNG(t))
	h.seed(t, &medialib.MediaRecord{
		ID: "broken", OwnerID: "o1", Filename: "broken.png", StorageKey: "broken.png",
		Thumbnail: medialib.MalformedThumbnail("garbage"),
	}, smallPNG(t))

	result, err := h.driver.RewriteOrigins(ctx,
		[]string{"old-cdn.example.com"}, "https://cdn.example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Scanned)
	assert.Equal(t, int64(1), result.Rewritten)
	assert.Equal(t, int64(2), result.Skipped)

	moved, err := h.repo.GetRecord(ctx, "moved")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/moved.png", moved.OriginalURL)
	url, ok := moved.Thumbnail.URL()
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/thumbnails/moved.jpg", url)

	// The malformed value is routed through reconciliation, never rewritten.
	broken, err := h.repo.GetRecord(ctx, "broken")
	require.NoError(t, err)
	assert.True(t, broken.Thumbnail.IsMalformed())

	// A second pass finds nothing left to rewrite.
	again, err := h.driver.RewriteOrigins(ctx,
		[]string{"old-cdn.example.com"}, "https://cdn.example.com")
	require.NoError(t, err)
	assert.Zero(t, again.Rewritten)
}

func TestDeduplicateKeepsOldest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	oldest := time.Now().UTC().Add(-72 * time.Hour)
	h.seed(t, &medialib.MediaRecord{
		ID: "dup-1", OwnerID: "o1", Filename: "photo.png", StorageKey: "photo-1.png",
		CreatedAt: oldest,
	}, smallPNG(t))
	h.seed(t, &medialib.MediaRecord{
		ID: "dup-2", OwnerID: "o1", Filename: "photo.png", StorageKey: "photo-2.png",
		CreatedAt: oldest.Add(time.Hour),
	}, smallPNG(t))
	h.seed(t, &medialib.MediaRecord{
		ID: "dup-3", OwnerID: "o1", Filename: "photo.png", StorageKey: "photo-3.png",
		CreatedAt: oldest.Add(2 * time.Hour),
	}, smallPNG(t))
	// Same filename, different owner: not a duplicate.
	h.seed(t, &medialib.MediaRecord{
		ID: "other-owner", OwnerID: "o2", Filename: "photo.png", StorageKey: "photo-4.png",
		CreatedAt: oldest,
	}, smallPNG(t))

	result, err := h.driver.Deduplicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Scanned)
	assert.Equal(t, int64(1), result.Groups)
	assert.Equal(t, int64(2), result.Purged)

	_, err = h.repo.GetRecord(ctx, "dup-1")
	require.NoError(t, err)
	_, err = h.repo.GetRecord(ctx, "dup-2")
	assert.ErrorIs(t, err, medialib.ErrRecordNotFound)
	_, err = h.repo.GetRecord(ctx, "dup-3")
	assert.ErrorIs(t, err, medialib.ErrRecordNotFound)
	_, err = h.repo.GetRecord(ctx, "other-owner")
	require.NoError(t, err)
}

func TestBackfillIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seed(t, &medialib.MediaRecord{
		OwnerID: "o1", Filename: "legacy.png", StorageKey: "legacy.png",
	}, smallPNG(t))
	h.seed(t, &medialib.MediaRecord{
		ID: "has-id", OwnerID: "o1", Filename: "has-id.png", StorageKey: "has-id.png",
	}, smallPNG(t))

	updated, err := h.driver.BackfillIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	rec, err := h.repo.GetRecord(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy.png", rec.StorageKey)

	again, err := h.driver.BackfillIDs(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}
