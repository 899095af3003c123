// Package reconcile detects and repairs inconsistency between media records,
// their backing bytes, and the description side-store.
package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// Classification is the detector's verdict on a record.
type Classification string

// Classification constants (typed).
const (
	Healthy           Classification = "healthy"
	MissingBytes      Classification = "missing-bytes"
	MalformedBytes    Classification = "malformed-bytes"
	CorruptedMetadata Classification = "corrupted-metadata"
	MissingThumbnail  Classification = "missing-thumbnail"
)

// Action is the remediation the detector recommends.
type Action string

// Action constants (typed).
const (
	ActionNone               Action = "none"
	ActionPurge              Action = "purge"
	ActionFlag               Action = "flag"
	ActionClearAndRegenerate Action = "clear-and-regenerate"
	ActionRegenerate         Action = "regenerate"
)

// Report is the outcome of inspecting one record.
type Report struct {
	Classification Classification
	Action         Action
	Reason         string
}

// DefaultGraceWindow protects young records whose bytes may still be in
// transit from auto-purge.
const DefaultGraceWindow = 7 * 24 * time.Hour

// minPlausibleBytes is the floor below which no real media file exists.
const minPlausibleBytes = 256

// Config assembles a Detector's collaborators.
type Config struct {
	Repository   medialib.Repository
	Source       medialib.SourceOpener
	Descriptions medialib.DescriptionStore

	// GraceWindow defaults to DefaultGraceWindow when zero.
	GraceWindow time.Duration

	// RetiredOrigins lists hosts whose URLs no longer resolve. A thumbnail
	// URL pointing at one of them is treated as corrupted metadata.
	RetiredOrigins []string

	// Schedule, when set, enqueues thumbnail regeneration for a record id.
	// When nil, regeneration is left to the next backfill pass.
	Schedule func(ctx context.Context, recordID string) error

	Logger *slog.Logger
}

// Detector classifies media records and applies the recommended remediation.
type Detector struct {
	repo     medialib.Repository
	source   medialib.SourceOpener
	descs    medialib.DescriptionStore
	grace    time.Duration
	retired  map[string]struct{}
	schedule func(ctx context.Context, recordID string) error
	logger   *slog.Logger

	now func() time.Time
}

// NewDetector creates a detector from the given configuration.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("source opener is required")
	}

	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retired := make(map[string]struct{}, len(cfg.RetiredOrigins))
	for _, origin := range cfg.RetiredOrigins {
		retired[originHost(origin)] = struct{}{}
	}

	return &Detector{
		repo:     cfg.Repository,
		source:   cfg.Source,
		descs:    cfg.Descriptions,
		grace:    grace,
		retired:  retired,
		schedule: cfg.Schedule,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Inspect classifies the record without mutating anything. Running it twice
// on an unchanged record yields the same report.
func (d *Detector) Inspect(ctx context.Context, record *medialib.MediaRecord) (*Report, error) {
	source, err := d.source.OpenSource(ctx, record)
	if err != nil {
		if age := d.now().UTC().Sub(record.CreatedAt); age < d.grace {
			return &Report{
				Classification: MissingBytes,
				Action:         ActionFlag,
				Reason:         fmt.Sprintf("no bytes retrievable, record is %s old (inside grace window)", age.Round(time.Second)),
			}, nil
		}
		return &Report{
			Classification: MissingBytes,
			Action:         ActionPurge,
			Reason:         "no bytes retrievable from any source",
		}, nil
	}
	defer source.Close()

	data, err := io.ReadAll(source)
	if err != nil {
		return &Report{
			Classification: MissingBytes,
			Action:         ActionPurge,
			Reason:         fmt.Sprintf("read source: %v", err),
		}, nil
	}

	if len(data) < minPlausibleBytes {
		return &Report{
			Classification: MalformedBytes,
			Action:         ActionPurge,
			Reason:         fmt.Sprintf("%d bytes is implausibly small for any media file", len(data)),
		}, nil
	}
	if record.Kind == medialib.KindImage {
		if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
			return &Report{
				Classification: MalformedBytes,
				Action:         ActionPurge,
				Reason:         fmt.Sprintf("image does not decode: %v", err),
			}, nil
		}
	}

	switch {
	case record.Thumbnail.IsMalformed():
		return &Report{
			Classification: CorruptedMetadata,
			Action:         ActionClearAndRegenerate,
			Reason:         "thumbnail field holds a non-string value",
		}, nil
	case d.onRetiredOrigin(record.Thumbnail):
		return &Report{
			Classification: CorruptedMetadata,
			Action:         ActionClearAndRegenerate,
			Reason:         "thumbnail URL references a retired origin",
		}, nil
	case record.NeedsThumbnail():
		return &Report{
			Classification: MissingThumbnail,
			Action:         ActionRegenerate,
			Reason:         "no thumbnail present",
		}, nil
	}

	return &Report{Classification: Healthy, Action: ActionNone}, nil
}

// Apply performs the report's recommended action. It is idempotent: applying
// the same report to an already-remediated record performs no further writes.
func (d *Detector) Apply(ctx context.Context, record *medialib.MediaRecord, report *Report) error {
	switch report.Action {
	case ActionNone:
		return nil

	case ActionFlag:
		d.logger.Warn("record flagged for manual review",
			"record_id", record.ID,
			"classification", string(report.Classification),
			"reason", report.Reason)
		return nil

	case ActionPurge:
		if err := d.repo.PurgeRecord(ctx, record.ID); err != nil && err != medialib.ErrRecordNotFound {
			return &medialib.RecordError{RecordID: record.ID, Op: "purge", Err: err}
		}
		if d.descs != nil {
			if err := d.descs.Delete(ctx, record.Stem()); err != nil && err != medialib.ErrDescriptionNotFound {
				return fmt.Errorf("purge description %s: %w", record.Stem(), err)
			}
		}
		return nil

	case ActionClearAndRegenerate:
		if !record.Thumbnail.IsEmpty() && !record.Thumbnail.IsAbsent() {
			if err := d.repo.ClearThumbnailURL(ctx, record.ID); err != nil {
				return &medialib.RecordError{RecordID: record.ID, Op: "clear thumbnail", Err: err}
			}
			record.Thumbnail = medialib.EmptyThumbnail()
		}
		return d.maybeSchedule(ctx, record.ID)

	case ActionRegenerate:
		return d.maybeSchedule(ctx, record.ID)

	default:
		return fmt.Errorf("unknown action %q", report.Action)
	}
}

func (d *Detector) maybeSchedule(ctx context.Context, recordID string) error {
	if d.schedule == nil {
		return nil
	}
	if err := d.schedule(ctx, recordID); err != nil {
		d.logger.Warn("schedule regeneration", "record_id", recordID, "err", err)
	}
	return nil
}

func (d *Detector) onRetiredOrigin(thumb medialib.ThumbnailURL) bool {
	u, ok := thumb.URL()
	if !ok || len(d.retired) == 0 {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	_, retired := d.retired[parsed.Host]
	return retired
}

func originHost(origin string) string {
	if strings.Contains(origin, "://") {
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return strings.TrimSuffix(origin, "/")
}
