package domain

import "time"

// Blob represents a content-addressed body shared by reference between
// entries. The entry index is the source of truth for ownership; RefCount
// mirrors how many data versions reference the content.
type Blob struct {
	// ContentHash is the SHA-256 hash of the content (64 hex characters).
	ContentHash string `json:"content_hash"`

	// Size is the content size in bytes.
	Size int64 `json:"size"`

	// StoragePath is the backend location of the content.
	StoragePath string `json:"storage_path"`

	// RefCount is the number of data versions referencing this blob.
	// Zero means the blob is an orphan eligible for garbage collection.
	RefCount int32 `json:"ref_count"`

	// CreatedAt is the timestamp when the blob was first stored.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed is the timestamp of the most recent reference.
	LastAccessed time.Time `json:"last_accessed"`
}
