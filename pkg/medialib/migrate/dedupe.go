package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// DedupeResult contains counters for a duplicate collapse pass.
type DedupeResult struct {
	Scanned int64
	Groups  int64
	Purged  int64
	Errors  int64
}

type dedupeKey struct {
	owner    string
	filename string
}

type dedupeCandidate struct {
	id        string
	createdAt time.Time
}

// Deduplicate collapses records that share (owner, filename), keeping the
// oldest record of each group and purging the rest. The full corpus is
// scanned before any purge so shrinking pages cannot skip records.
func (d *Driver) Deduplicate(ctx context.Context) (*DedupeResult, error) {
	result := &DedupeResult{}

	groups := make(map[dedupeKey][]dedupeCandidate)
	offset := 0
	for {
		records, err := d.repo.ListBatch(ctx, offset, defaultBatchSize)
		if err != nil {
			return result, fmt.Errorf("list record batch: %w", err)
		}
		if len(records) == 0 {
			break
		}
		offset += len(records)

		for _, record := range records {
			result.Scanned++
			key := dedupeKey{owner: record.OwnerID, filename: record.Filename}
			groups[key] = append(groups[key], dedupeCandidate{
				id:        record.ID,
				createdAt: record.CreatedAt,
			})
		}
	}

	for key, candidates := range groups {
		if len(candidates) < 2 {
			continue
		}
		result.Groups++

		keep := candidates[0]
		for _, c := range candidates[1:] {
			if c.createdAt.Before(keep.createdAt) {
				keep = c
			}
		}

		for _, c := range candidates {
			if c.id == keep.id {
				continue
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := d.repo.PurgeRecord(ctx, c.id); err != nil {
				if errors.Is(err, medialib.ErrRecordNotFound) {
					continue
				}
				result.Errors++
				d.logger.Warn("purge duplicate",
					"record_id", c.id, "owner_id", key.owner, "filename", key.filename, "err", err)
				continue
			}
			result.Purged++
		}
	}

	d.logger.Info("duplicate collapse finished",
		"scanned", result.Scanned,
		"groups", result.Groups,
		"purged", result.Purged,
		"errors", result.Errors,
	)
	return result, nil
}
