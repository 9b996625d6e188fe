// Package storage defines interfaces for blob storage backends.
// The storage layer is responsible for persisting and retrieving raw object
// data. It implements Content-Addressable Storage (CAS) for deduplication:
// identical bodies share one blob, and CopyObject reuses the source blob.
package storage

import (
	"context"
	"io"
)

// Backend defines the interface for storage backends.
// Implementations include the local filesystem and remote S3-compatible
// stores. The interface is stateless; reference counting lives in the
// metadata repository.
type Backend interface {
	// Store stores content from a reader and returns the content hash (SHA-256).
	// The content is staged while streaming and promoted atomically, so a
	// cancelled or failed write leaves nothing visible. If the content
	// already exists (same hash), no new blob is created.
	Store(ctx context.Context, reader io.Reader, size int64) (contentHash string, err error)

	// Retrieve retrieves content by its hash.
	// Returns a ReadCloser that must be closed after use.
	// Returns ErrBlobNotFound if the content doesn't exist.
	Retrieve(ctx context.Context, contentHash string) (io.ReadCloser, error)

	// Delete removes content by its hash.
	// This should only be called when the reference count reaches zero.
	Delete(ctx context.Context, contentHash string) error

	// Exists checks if content with the given hash exists.
	Exists(ctx context.Context, contentHash string) (bool, error)

	// GetSize returns the size of stored content.
	// Returns ErrBlobNotFound if the content doesn't exist.
	GetSize(ctx context.Context, contentHash string) (int64, error)

	// GetPath returns the storage path for a content hash.
	// This is useful for debugging and direct access scenarios.
	GetPath(contentHash string) string
}
