package medialib

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// orchestrator runs thumbnail generation on a bounded worker pool. At most
// one job is in flight per record id: the inflight set is claimed before a
// job is queued and released only after its result is written, so duplicate
// requests arriving in between are coalesced.
//
// Failed jobs are not retried here. A failed record keeps its empty thumbnail
// field and is picked up again by the next backfill pass.
type orchestrator struct {
	svc   *service
	queue chan string

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	group     *errgroup.Group
	completed atomic.Int64
	failed    atomic.Int64
}

func newOrchestrator(svc *service) *orchestrator {
	o := &orchestrator{
		svc:      svc,
		queue:    make(chan string, svc.queueDepth),
		inflight: make(map[string]struct{}),
		group:    new(errgroup.Group),
	}
	for i := 0; i < svc.workers; i++ {
		o.group.Go(o.run)
	}
	return o
}

func (o *orchestrator) run() error {
	for id := range o.queue {
		o.process(id)
		o.release(id)
	}
	return nil
}

// Ensure validates the record synchronously and schedules generation without
// blocking on it. A record that already has a well-formed thumbnail is left
// alone.
func (o *orchestrator) Ensure(ctx context.Context, id string) error {
	record, err := o.svc.repository.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.Kind != KindImage && record.Kind != KindVideo {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, record.Kind)
	}
	if record.Thumbnail.IsValid() {
		return nil
	}
	return o.enqueue(id)
}

// Backfill schedules generation for up to limit of the owner's records that
// lack thumbnails, newest first. Returns the number of jobs scheduled.
func (o *orchestrator) Backfill(ctx context.Context, ownerID string, limit int) (int, error) {
	records, err := o.svc.repository.ListMissingThumbnails(ctx, ownerID, limit)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, record := range records {
		if err := o.enqueue(record.ID); err != nil {
			o.svc.logger.Warn("backfill enqueue", "record_id", record.ID, "err", err)
			continue
		}
		scheduled++
	}
	return scheduled, nil
}

// enqueue claims the inflight slot for the record and queues the job. A
// record already in flight is coalesced and reports success.
//
// The closed-check and the channel send happen under the same mutex that
// close() holds while closing the queue, so a send can never race the close.
// The send is non-blocking, so holding the lock across it is safe.
func (o *orchestrator) enqueue(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("orchestrator closed")
	}
	if _, running := o.inflight[id]; running {
		return nil
	}

	select {
	case o.queue <- id:
		o.inflight[id] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

func (o *orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

// process generates and persists one thumbnail. Engine failures leave the
// record's thumbnail field untouched; they are counted, never surfaced to the
// request that scheduled the job.
func (o *orchestrator) process(id string) {
	ctx := context.Background()
	log := o.svc.logger.With("record_id", id)

	record, err := o.svc.repository.GetRecord(ctx, id)
	if err != nil {
		o.failed.Add(1)
		log.Warn("thumbnail job: load record", "err", err)
		return
	}

	source, err := o.svc.resolver.OpenSource(ctx, record)
	if err != nil {
		o.failed.Add(1)
		log.Warn("thumbnail job: open source", "err", err)
		return
	}
	defer source.Close()

	var data []byte
	switch record.Kind {
	case KindImage:
		data, err = o.svc.thumbnailer.FromImage(ctx, source)
	case KindVideo:
		data, err = o.fromVideoSource(ctx, record, source)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedKind, record.Kind)
	}
	if err != nil {
		o.failed.Add(1)
		log.Warn("thumbnail job: generate", "kind", record.Kind, "err", err)
		return
	}

	key := thumbnailKey(record)
	if err := o.svc.thumbStore.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		o.failed.Add(1)
		log.Warn("thumbnail job: store artifact", "key", key, "err", err)
		return
	}

	url := o.svc.publicURL(key)
	if err := o.svc.repository.SetThumbnailURL(ctx, record.ID, url); err != nil {
		o.failed.Add(1)
		log.Warn("thumbnail job: persist url", "err", err)
		return
	}

	o.completed.Add(1)
	log.Info("thumbnail generated", "url", url, "bytes", len(data))
}

// fromVideoSource writes the stream to a temporary file for the external
// frame-extraction process. The file is removed on every exit path.
func (o *orchestrator) fromVideoSource(ctx context.Context, record *MediaRecord, source io.Reader) ([]byte, error) {
	tmp, err := os.CreateTemp("", "media-src-*"+path.Ext(record.Filename))
	if err != nil {
		return nil, fmt.Errorf("create temp video file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("spool video source: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("spool video source: %w", err)
	}

	return o.svc.thumbnailer.FromVideo(ctx, tmp.Name())
}

// close stops accepting work and waits for queued jobs to finish.
func (o *orchestrator) close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	return o.group.Wait()
}

// thumbnailKey partitions the thumbnail namespace by the derived filename so
// concurrent jobs for different records never contend on one output path.
func thumbnailKey(record *MediaRecord) string {
	return "thumbnails/" + record.Stem() + ".jpg"
}
