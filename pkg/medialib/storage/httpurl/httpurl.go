// Package httpurl provides a read-only BlobStore over externally hosted
// URLs. It backs the external storage mode and the last-resort fetch of
// legacy original URLs during reconciliation.
package httpurl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// Backend fetches objects over HTTP. Keys that parse as absolute URLs are
// fetched directly; relative keys are resolved against the configured base.
type Backend struct {
	base   string
	client *http.Client
}

// New creates a new HTTP-backed read-only storage backend
func New(base string) *Backend {
	return &Backend{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload is not supported; external URLs are read-only
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader) error {
	return errors.New("httpurl backend is read-only")
}

// Download fetches the object over HTTP
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.resolve(key), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", key, resp.StatusCode)
	}
	return resp.Body, nil
}

// Delete is not supported; external URLs are read-only
func (b *Backend) Delete(ctx context.Context, key string) error {
	return errors.New("httpurl backend is read-only")
}

// Meta issues a HEAD request for the object
func (b *Backend) Meta(ctx context.Context, key string) (*medialib.BlobMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.resolve(key), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("head %s: unexpected status %d", key, resp.StatusCode)
	}

	return &medialib.BlobMeta{
		Key:         key,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (b *Backend) resolve(key string) string {
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	if b.base == "" {
		return key
	}
	return b.base + "/" + strings.TrimLeft(key, "/")
}
