// Package migrate provides the offline batch operations that walk the full
// record corpus: reconciliation sweeps, origin rewrites, id backfills and
// duplicate collapses. Every operation is restartable and safe to run
// repeatedly; a record that needs nothing contributes to the processed count
// and triggers no mutation.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mediaplan/medialib/pkg/medialib"
	"github.com/mediaplan/medialib/pkg/medialib/reconcile"
)

const defaultBatchSize = 100

// Driver runs batch operations over the record corpus.
type Driver struct {
	repo     medialib.Repository
	detector *reconcile.Detector
	logger   *slog.Logger
}

// NewDriver creates a batch driver.
func NewDriver(repo medialib.Repository, detector *reconcile.Detector, logger *slog.Logger) (*Driver, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{repo: repo, detector: detector, logger: logger}, nil
}

// Options configures a reconciliation run.
type Options struct {
	// OwnerID restricts the run to one owner's records when set.
	OwnerID string

	// BatchSize controls how many records are loaded per page (default 100).
	BatchSize int

	// DryRun reports what would be done without applying any action.
	DryRun bool

	// OnProgress is called after each batch (optional).
	OnProgress func(processed int64)
}

// Result contains counters for one reconciliation run.
type Result struct {
	Processed int64
	Repaired  int64
	Purged    int64
	Flagged   int64
	Skipped   int64
	Errors    int64
	FailedIDs []string
}

// Run sweeps the corpus, classifying each record and applying the
// recommended action. Per-record errors are recorded and the sweep continues.
func (d *Driver) Run(ctx context.Context, opts Options) (*Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	result := &Result{}
	offset := 0
	for {
		records, err := d.loadBatch(ctx, opts.OwnerID, offset, batchSize)
		if err != nil {
			return result, err
		}
		if len(records) == 0 {
			break
		}

		purgedInBatch := 0
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			action := d.reconcileOne(ctx, record, opts.DryRun, result)
			if action == reconcile.ActionPurge && !opts.DryRun {
				purgedInBatch++
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.Processed)
		}

		// Purged records shrink the remaining set; keep the offset in step so
		// no record is skipped on the next page.
		offset += len(records) - purgedInBatch
	}

	d.logger.Info("reconciliation sweep finished",
		"processed", result.Processed,
		"repaired", result.Repaired,
		"purged", result.Purged,
		"flagged", result.Flagged,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)
	return result, nil
}

func (d *Driver) reconcileOne(ctx context.Context, record *medialib.MediaRecord, dryRun bool, result *Result) reconcile.Action {
	result.Processed++

	report, err := d.detector.Inspect(ctx, record)
	if err != nil {
		result.Errors++
		result.FailedIDs = append(result.FailedIDs, record.ID)
		d.logger.Warn("inspect record", "record_id", record.ID, "err", err)
		return reconcile.ActionNone
	}

	if dryRun {
		d.tally(report, result)
		return report.Action
	}

	if err := d.detector.Apply(ctx, record, report); err != nil {
		result.Errors++
		result.FailedIDs = append(result.FailedIDs, record.ID)
		d.logger.Warn("apply remediation", "record_id", record.ID, "action", string(report.Action), "err", err)
		return reconcile.ActionNone
	}
	d.tally(report, result)
	return report.Action
}

func (d *Driver) tally(report *reconcile.Report, result *Result) {
	switch report.Action {
	case reconcile.ActionPurge:
		result.Purged++
	case reconcile.ActionFlag:
		result.Flagged++
	case reconcile.ActionClearAndRegenerate:
		result.Repaired++
	default:
		result.Skipped++
	}
}

func (d *Driver) loadBatch(ctx context.Context, ownerID string, offset, limit int) ([]*medialib.MediaRecord, error) {
	if ownerID != "" {
		records, err := d.repo.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("list records by owner: %w", err)
		}
		if offset >= len(records) {
			return nil, nil
		}
		records = records[offset:]
		if len(records) > limit {
			records = records[:limit]
		}
		return records, nil
	}

	records, err := d.repo.ListBatch(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list record batch: %w", err)
	}
	return records, nil
}

// SyncDescriptions delegates to the detector's side-store sync.
func (d *Driver) SyncDescriptions(ctx context.Context) (*reconcile.SyncResult, error) {
	return d.detector.SyncDescriptions(ctx)
}

// BackfillIDs assigns external ids to legacy records lacking one.
func (d *Driver) BackfillIDs(ctx context.Context) (int64, error) {
	updated, err := d.repo.BackfillRecordIDs(ctx)
	if err != nil {
		return updated, fmt.Errorf("backfill record ids: %w", err)
	}
	if updated > 0 {
		d.logger.Info("assigned record ids", "updated", updated)
	}
	return updated, nil
}
