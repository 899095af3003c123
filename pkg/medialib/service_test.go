package medialib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRepo is an id-keyed Repository for exercising the service and its
// worker pool without pulling in a storage-backed implementation.
type stubRepo struct {
	mu        sync.Mutex
	records   map[string]*MediaRecord
	createErr error // returned by CreateRecord when set
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: make(map[string]*MediaRecord)}
}

func (r *stubRepo) CreateRecord(ctx context.Context, record *MediaRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r *stubRepo) GetRecord(ctx context.Context, id string) (*MediaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok || record.SoftDeleted {
		return nil, ErrRecordNotFound
	}
	cp := *record
	return &cp, nil
}

func (r *stubRepo) UpdateRecord(ctx context.Context, record *MediaRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; !ok {
		return ErrRecordNotFound
	}
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r *stubRepo) SetThumbnailURL(ctx context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	record.Thumbnail = ValidThumbnail(url)
	return nil
}

func (r *stubRepo) ClearThumbnailURL(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	record.Thumbnail = EmptyThumbnail()
	return nil
}

func (r *stubRepo) ListByOwner(ctx context.Context, ownerID string) ([]*MediaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*MediaRecord
	for _, record := range r.records {
		if record.SoftDeleted || record.OwnerID != ownerID {
			continue
		}
		cp := *record
		result = append(result, &cp)
	}
	return result, nil
}

func (r *stubRepo) ListMissingThumbnails(ctx context.Context, ownerID string, limit int) ([]*MediaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*MediaRecord
	for _, record := range r.records {
		if record.OwnerID != ownerID || !record.NeedsThumbnail() {
			continue
		}
		cp := *record
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *stubRepo) ListBatch(ctx context.Context, offset, limit int) ([]*MediaRecord, error) {
	return nil, nil
}

func (r *stubRepo) CountThumbnails(ctx context.Context, ownerID string) (*ThumbnailStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &ThumbnailStats{}
	for _, record := range r.records {
		if record.SoftDeleted || record.OwnerID != ownerID {
			continue
		}
		if record.Kind != KindImage && record.Kind != KindVideo {
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

func (r *stubRepo) SoftDeleteRecord(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	record.SoftDeleted = true
	return nil
}

func (r *stubRepo) PurgeRecord(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *stubRepo) BackfillRecordIDs(ctx context.Context) (int64, error) {
	return 0, nil
}

// stubStore is an in-memory BlobStore.
type stubStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStubStore() *stubStore {
	return &stubStore{objects: make(map[string][]byte)}
}

func (s *stubStore) Upload(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *stubStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *stubStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *stubStore) Meta(ctx context.Context, key string) (*BlobMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return &BlobMeta{Key: key, Size: int64(len(data))}, nil
}

func (s *stubStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// stubThumbnailer counts invocations and can block mid-job so tests can hold
// a worker in flight deterministically.
type stubThumbnailer struct {
	calls   atomic.Int32
	started chan string // receives before blocking, when non-nil
	gate    chan struct{}
}

func (g *stubThumbnailer) FromImage(ctx context.Context, reader io.Reader) ([]byte, error) {
	g.calls.Add(1)
	if g.started != nil {
		g.started <- "image"
	}
	if g.gate != nil {
		<-g.gate
	}
	io.Copy(io.Discard, reader)
	return []byte("jpeg-bytes"), nil
}

func (g *stubThumbnailer) FromVideo(ctx context.Context, srcPath string) ([]byte, error) {
	g.calls.Add(1)
	return []byte("jpeg-bytes"), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, thumb *stubThumbnailer, extra ...Option) (Service, *stubRepo, *stubStore) {
	t.Helper()

	repo := newStubRepo()
	store := newStubStore()
	options := append([]Option{
		WithRepository(repo),
		WithBlobStore(StorageModeFile, store),
		WithThumbnailer(thumb),
		WithLogger(quietLogger()),
		WithPublicBaseURL("https://cdn.example.com"),
	}, extra...)

	svc, err := New(options...)
	require.NoError(t, err)
	return svc, repo, store
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(WithThumbnailer(&stubThumbnailer{}))
	assert.Error(t, err)

	_, err = New(WithRepository(newStubRepo()))
	assert.Error(t, err)

	// No blob store registered for the default mode.
	_, err = New(WithRepository(newStubRepo()), WithThumbnailer(&stubThumbnailer{}))
	assert.ErrorIs(t, err, ErrNoBlobStore)
}

func TestUploadMediaGeneratesThumbnail(t *testing.T) {
	thumb := &stubThumbnailer{}
	svc, repo, store := newTestService(t, thumb)

	record, err := svc.UploadMedia(context.Background(), UploadMediaRequest{
		OwnerID:  "owner-1",
		FileName: "Vacation Photo.PNG",
		MimeType: "image/png",
		Reader:   strings.NewReader("pretend image bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, KindImage, record.Kind)
	assert.Equal(t, record.ID+".png", record.Filename)
	assert.Equal(t, "Vacation Photo.PNG", record.OriginalFilename)
	assert.Equal(t, "https://cdn.example.com/"+record.Filename, record.OriginalURL)
	assert.True(t, store.has(record.Filename))

	require.NoError(t, svc.Close())

	got, err := repo.GetRecord(context.Background(), record.ID)
	require.NoError(t, err)
	url, ok := got.Thumbnail.URL()
	require.True(t, ok, "thumbnail should be set after workers drain")
	assert.Equal(t, "https://cdn.example.com/thumbnails/"+record.ID+".jpg", url)
	assert.True(t, store.has("thumbnails/"+record.ID+".jpg"))
	assert.Equal(t, int32(1), thumb.calls.Load())
}

func TestUploadMediaSkipsThumbnailForOtherKinds(t *testing.T) {
	thumb := &stubThumbnailer{}
	svc, repo, _ := newTestService(t, thumb)

	record, err := svc.UploadMedia(context.Background(), UploadMediaRequest{
		OwnerID:  "owner-1",
		FileName: "report.pdf",
		MimeType: "application/pdf",
		Reader:   strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	got, err := repo.GetRecord(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, got.Thumbnail.IsEmpty())
	assert.Zero(t, thumb.calls.Load())
}

func TestEnsureThumbnailCoalescesConcurrentRequests(t *testing.T) {
	thumb := &stubThumbnailer{
		started: make(chan string, 1),
		gate:    make(chan struct{}),
	}
	svc, repo, store := newTestService(t, thumb, WithWorkers(1))

	require.NoError(t, store.Upload(context.Background(), "pic.png", strings.NewReader("bytes")))
	require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
		ID: "pic", OwnerID: "owner-1", Filename: "pic.png", StorageKey: "pic.png",
		Kind: KindImage, Storage: StorageModeFile,
		Thumbnail: EmptyThumbnail(), CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, svc.EnsureThumbnail(context.Background(), "pic"))
	<-thumb.started // worker is now inside the job

	// While the job is in flight, further requests coalesce onto it.
	require.NoError(t, svc.EnsureThumbnail(context.Background(), "pic"))
	require.NoError(t, svc.EnsureThumbnail(context.Background(), "pic"))

	close(thumb.gate)
	require.NoError(t, svc.Close())

	assert.Equal(t, int32(1), thumb.calls.Load())
	got, err := repo.GetRecord(context.Background(), "pic")
	require.NoError(t, err)
	assert.True(t, got.Thumbnail.IsValid())
}

func TestUploadMediaRemovesBlobWhenCreateFails(t *testing.T) {
	svc, repo, store := newTestService(t, &stubThumbnailer{})
	defer svc.Close()

	repo.createErr = errors.New("duplicate key")

	_, err := svc.UploadMedia(context.Background(), UploadMediaRequest{
		OwnerID:  "owner-1",
		FileName: "photo.png",
		MimeType: "image/png",
		Reader:   strings.NewReader("pretend image bytes"),
	})
	var recordErr *RecordError
	require.ErrorAs(t, err, &recordErr)
	assert.Equal(t, "create", recordErr.Op)

	// The blob written before the insert failed must not linger.
	store.mu.Lock()
	leftover := len(store.objects)
	store.mu.Unlock()
	assert.Zero(t, leftover)
}

func TestEnsureThumbnailValidIsNoop(t *testing.T) {
	thumb := &stubThumbnailer{}
	svc, repo, _ := newTestService(t, thumb)

	require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
		ID: "done", OwnerID: "owner-1", Filename: "done.png", StorageKey: "done.png",
		Kind: KindImage, Storage: StorageModeFile,
		Thumbnail: ValidThumbnail("https://cdn.example.com/thumbnails/done.jpg"),
	}))

	require.NoError(t, svc.EnsureThumbnail(context.Background(), "done"))
	require.NoError(t, svc.Close())
	assert.Zero(t, thumb.calls.Load())
}

func TestEnsureThumbnailErrors(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubThumbnailer{})
	defer svc.Close()

	err := svc.EnsureThumbnail(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
		ID: "doc", OwnerID: "owner-1", Filename: "doc.pdf", StorageKey: "doc.pdf",
		Kind: KindOther, Storage: StorageModeFile,
	}))
	err = svc.EnsureThumbnail(context.Background(), "doc")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestBackfillThumbnailsHonorsLimit(t *testing.T) {
	thumb := &stubThumbnailer{}
	svc, repo, store := newTestService(t, thumb)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("rec-%d", i)
		require.NoError(t, store.Upload(context.Background(), id+".png", strings.NewReader("bytes")))
		require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
			ID: id, OwnerID: "owner-1", Filename: id + ".png", StorageKey: id + ".png",
			Kind: KindImage, Storage: StorageModeFile,
			Thumbnail: EmptyThumbnail(),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	scheduled, err := svc.BackfillThumbnails(context.Background(), "owner-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, scheduled)

	require.NoError(t, svc.Close())

	// The newest five got thumbnails, the oldest three were left for the
	// next pass.
	stats, err := svc.ThumbnailStats(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.Total)
	assert.Equal(t, int64(5), stats.WithThumbnail)
	assert.Equal(t, int64(3), stats.Missing)

	for i := 3; i < 8; i++ {
		got, err := repo.GetRecord(context.Background(), fmt.Sprintf("rec-%d", i))
		require.NoError(t, err)
		assert.True(t, got.Thumbnail.IsValid(), "rec-%d should have a thumbnail", i)
	}
}

func TestEnqueueReportsQueueFull(t *testing.T) {
	thumb := &stubThumbnailer{
		started: make(chan string, 1),
		gate:    make(chan struct{}),
	}
	svc, repo, store := newTestService(t, thumb, WithWorkers(1), WithQueueDepth(1))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Upload(context.Background(), id+".png", strings.NewReader("bytes")))
		require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
			ID: id, OwnerID: "owner-1", Filename: id + ".png", StorageKey: id + ".png",
			Kind: KindImage, Storage: StorageModeFile,
			Thumbnail: EmptyThumbnail(), CreatedAt: time.Now().UTC(),
		}))
	}

	require.NoError(t, svc.EnsureThumbnail(context.Background(), "a"))
	<-thumb.started // "a" occupies the only worker

	require.NoError(t, svc.EnsureThumbnail(context.Background(), "b")) // fills the queue
	err := svc.EnsureThumbnail(context.Background(), "c")
	assert.ErrorIs(t, err, ErrQueueFull)

	close(thumb.gate)
	require.NoError(t, svc.Close())
}

func TestCloseDuringConcurrentEnsureCalls(t *testing.T) {
	// Close must never race an in-flight enqueue onto the closed queue.
	// Shutdowns are repeated with enqueues in flight; a regression here
	// panics with "send on closed channel".
	for i := 0; i < 50; i++ {
		svc, repo, store := newTestService(t, &stubThumbnailer{}, WithWorkers(2), WithQueueDepth(2))

		ids := []string{"a", "b", "c", "d"}
		for _, id := range ids {
			require.NoError(t, store.Upload(context.Background(), id+".png", strings.NewReader("bytes")))
			require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
				ID: id, OwnerID: "owner-1", Filename: id + ".png", StorageKey: id + ".png",
				Kind: KindImage, Storage: StorageModeFile,
				Thumbnail: EmptyThumbnail(), CreatedAt: time.Now().UTC(),
			}))
		}

		var wg sync.WaitGroup
		start := make(chan struct{})
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				<-start
				for j := 0; j < 20; j++ {
					// Closed, full and coalesced outcomes are all fine;
					// only a panic fails the test.
					_ = svc.EnsureThumbnail(context.Background(), id)
				}
			}(id)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, svc.Close())
		}()

		close(start)
		wg.Wait()
	}
}

func TestFailedGenerationLeavesFieldUntouched(t *testing.T) {
	thumb := &stubThumbnailer{}
	svc, repo, _ := newTestService(t, thumb)

	// No bytes uploaded for this record: the job fails at source resolution.
	require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
		ID: "lost", OwnerID: "owner-1", Filename: "lost.png", StorageKey: "lost.png",
		Kind: KindImage, Storage: StorageModeFile,
		Thumbnail: EmptyThumbnail(), CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, svc.EnsureThumbnail(context.Background(), "lost"))
	require.NoError(t, svc.Close())

	got, err := repo.GetRecord(context.Background(), "lost")
	require.NoError(t, err)
	assert.True(t, got.Thumbnail.IsEmpty())
}

func TestDeleteMediaSoftDeletes(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubThumbnailer{})
	defer svc.Close()

	require.NoError(t, repo.CreateRecord(context.Background(), &MediaRecord{
		ID: "bye", OwnerID: "owner-1", Filename: "bye.png", StorageKey: "bye.png",
		Kind: KindImage, Storage: StorageModeFile,
	}))

	require.NoError(t, svc.DeleteMedia(context.Background(), "bye"))
	_, err := svc.GetMedia(context.Background(), "bye")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
