package medialib

import (
	"context"
	"fmt"
	"io"
)

// SourceResolver opens a record's backing bytes by trying the blob store
// registered for the record's storage mode first, then falling back to the
// externally hosted original URL. The fallback matters for legacy records
// whose local bytes were lost but whose public URL still resolves.
type SourceResolver struct {
	stores map[StorageMode]BlobStore
}

// NewSourceResolver creates a resolver over the given per-mode blob stores.
func NewSourceResolver(stores map[StorageMode]BlobStore) *SourceResolver {
	return &SourceResolver{stores: stores}
}

// OpenSource implements SourceOpener. It returns ErrBytesUnavailable (wrapped)
// when no configured source can produce bytes for the record.
func (r *SourceResolver) OpenSource(ctx context.Context, record *MediaRecord) (io.ReadCloser, error) {
	var firstErr error

	if store, ok := r.stores[record.Storage]; ok && record.StorageKey != "" {
		rc, err := store.Download(ctx, record.StorageKey)
		if err == nil {
			return rc, nil
		}
		firstErr = err
	} else if !ok {
		firstErr = fmt.Errorf("%w: %s", ErrNoBlobStore, record.Storage)
	}

	// Last resort: the external original URL, when a fetcher is registered.
	if record.Storage != StorageModeExternal && record.OriginalURL != "" {
		if external, ok := r.stores[StorageModeExternal]; ok {
			rc, err := external.Download(ctx, record.OriginalURL)
			if err == nil {
				return rc, nil
			}
		}
	}

	if firstErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrBytesUnavailable, firstErr)
	}
	return nil, ErrBytesUnavailable
}
