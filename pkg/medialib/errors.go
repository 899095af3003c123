package medialib

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrRecordNotFound indicates a media record was not found
	ErrRecordNotFound = errors.New("media record not found")

	// ErrBytesUnavailable indicates no backing bytes could be retrieved from
	// any configured source
	ErrBytesUnavailable = errors.New("media bytes unavailable")

	// ErrDescriptionNotFound indicates a side-store description was not found
	ErrDescriptionNotFound = errors.New("description not found")

	// ErrUnsupportedKind indicates an operation that requires an image or
	// video was invoked on another media kind
	ErrUnsupportedKind = errors.New("unsupported media kind")

	// ErrNoBlobStore indicates no blob store is registered for a storage mode
	ErrNoBlobStore = errors.New("no blob store registered for storage mode")

	// ErrQueueFull indicates the background job queue cannot accept more work
	ErrQueueFull = errors.New("job queue full")
)

// RecordError represents an error related to media record operations
type RecordError struct {
	RecordID string
	Op       string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record operation %s failed for record %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Mode StorageMode
	Key  string
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on %s store: %v", e.Op, e.Key, e.Mode, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
