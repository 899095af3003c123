package reconcile

import (
	"context"
	"fmt"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// SyncResult reports what a description sync changed.
type SyncResult struct {
	Pruned     int64
	Backfilled int64
}

const syncBatchSize = 200

// SyncDescriptions restores the 1:1 correspondence between live records and
// the description side-store: entries whose key matches no live record are
// pruned, and live records lacking an entry get an empty one.
func (d *Detector) SyncDescriptions(ctx context.Context) (*SyncResult, error) {
	if d.descs == nil {
		return nil, fmt.Errorf("description store is not configured")
	}

	live := make(map[string]struct{})
	for offset := 0; ; offset += syncBatchSize {
		records, err := d.repo.ListBatch(ctx, offset, syncBatchSize)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		if len(records) == 0 {
			break
		}
		for _, record := range records {
			live[record.Stem()] = struct{}{}
		}
	}

	keys, err := d.descs.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list description keys: %w", err)
	}

	result := &SyncResult{}
	known := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		known[key] = struct{}{}
		if _, ok := live[key]; ok {
			continue
		}
		if err := d.descs.Delete(ctx, key); err != nil && err != medialib.ErrDescriptionNotFound {
			return result, fmt.Errorf("prune description %s: %w", key, err)
		}
		result.Pruned++
	}

	for stem := range live {
		if _, ok := known[stem]; ok {
			continue
		}
		if err := d.descs.Set(ctx, stem, ""); err != nil {
			return result, fmt.Errorf("backfill description %s: %w", stem, err)
		}
		result.Backfilled++
	}

	return result, nil
}
