package migrate

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// RewriteResult contains counters for an origin rewrite pass.
type RewriteResult struct {
	Scanned   int64
	Rewritten int64
	Skipped   int64
	Errors    int64
}

// RewriteOrigins moves every well-formed originalUrl/thumbnailUrl whose host
// matches a retired origin onto the current origin, leaving path and filename
// untouched. Malformed thumbnail values are never string-munged here; the
// reconciliation sweep routes those through the detector.
func (d *Driver) RewriteOrigins(ctx context.Context, retired []string, current string) (*RewriteResult, error) {
	currentURL, err := url.Parse(current)
	if err != nil || currentURL.Host == "" {
		return nil, fmt.Errorf("current origin %q is not a valid URL", current)
	}

	retiredHosts := make(map[string]struct{}, len(retired))
	for _, origin := range retired {
		host := origin
		if strings.Contains(origin, "://") {
			if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
				host = parsed.Host
			}
		}
		retiredHosts[strings.TrimSuffix(host, "/")] = struct{}{}
	}

	result := &RewriteResult{}
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
			changed := false

			if rewritten, ok := rewriteURL(record.OriginalURL, retiredHosts, currentURL); ok {
				record.OriginalURL = rewritten
				changed = true
			}
			if thumbURL, ok := record.Thumbnail.URL(); ok {
				if rewritten, ok := rewriteURL(thumbURL, retiredHosts, currentURL); ok {
					record.Thumbnail = medialib.ValidThumbnail(rewritten)
					changed = true
				}
			}

			if !changed {
				result.Skipped++
				continue
			}
			if err := d.repo.UpdateRecord(ctx, record); err != nil {
				result.Errors++
				d.logger.Warn("rewrite origin", "record_id", record.ID, "err", err)
				continue
			}
			result.Rewritten++
		}
	}

	d.logger.Info("origin rewrite finished",
		"scanned", result.Scanned,
		"rewritten", result.Rewritten,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)
	return result, nil
}

// rewriteURL swaps the scheme and host when the URL points at a retired
// origin. Unparseable values are left alone.
func rewriteURL(raw string, retired map[string]struct{}, current *url.URL) (string, bool) {
	if raw == "" {
		return "", false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	if _, ok := retired[parsed.Host]; !ok {
		return "", false
	}
	parsed.Scheme = current.Scheme
	parsed.Host = current.Host
	return parsed.String(), true
}
