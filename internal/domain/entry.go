// Package domain contains the core business entities for the Alexander engine.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NullVersionID is the literal version ID of entries written while a bucket
// is Unversioned or Suspended.
const NullVersionID = "null"

// MaxKeyLength is the maximum object key length in bytes.
const MaxKeyLength = 1024

// Entry is one item in a key's version list: either a data version or a
// delete marker. Exactly one entry per key is latest at any time.
type Entry struct {
	// ID is the unique identifier for this entry row.
	ID int64 `json:"id"`

	// BucketID is the ID of the bucket containing this entry.
	BucketID int64 `json:"bucket_id"`

	// Key is the object key within the bucket. Stored verbatim,
	// 1-1024 bytes, may contain "/".
	Key string `json:"key"`

	// VersionID identifies this entry within the key.
	// 32 lowercase hex characters for Enabled-mode writes, "null" otherwise.
	VersionID string `json:"version_id"`

	// IsLatest indicates whether this is the key's current entry.
	// Only one entry per bucket+key can have IsLatest=true.
	IsLatest bool `json:"is_latest"`

	// IsDeleteMarker indicates whether this entry is a delete marker.
	// Delete markers carry no body and hide the key from current-view reads.
	IsDeleteMarker bool `json:"is_delete_marker"`

	// ContentHash is the SHA-256 content address of the body.
	// Nil for delete markers.
	ContentHash *string `json:"content_hash,omitempty"`

	// Size is the body size in bytes. 0 for delete markers.
	Size int64 `json:"size"`

	// ContentType is the MIME type of the body.
	ContentType string `json:"content_type"`

	// ETag is the entity tag: lowercase MD5 hex of the body bytes.
	// Empty for delete markers.
	ETag string `json:"etag"`

	// Metadata contains user-defined metadata.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Retention is the entry's Object Lock retention, if any.
	Retention *Retention `json:"retention,omitempty"`

	// LegalHold indicates whether a legal hold is placed on this version.
	LegalHold bool `json:"legal_hold"`

	// Seq is the bucket sequence number assigned at commit time.
	// Together with CreatedAt it is the authoritative order of entries.
	Seq int64 `json:"seq"`

	// CreatedAt is the timestamp when this entry was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewDataVersion creates a data-version entry for an Enabled-mode write,
// with a freshly generated version ID.
func NewDataVersion(bucketID int64, key, contentHash, contentType, etag string, size int64) *Entry {
	return &Entry{
		BucketID:    bucketID,
		Key:         key,
		VersionID:   NewVersionID(),
		IsLatest:    true,
		ContentHash: &contentHash,
		Size:        size,
		ContentType: contentType,
		ETag:        etag,
		Metadata:    make(map[string]string),
		CreatedAt:   time.Now().UTC(),
	}
}

// NewNullDataVersion creates a data-version entry occupying the "null"
// version slot (Unversioned or Suspended writes).
func NewNullDataVersion(bucketID int64, key, contentHash, contentType, etag string, size int64) *Entry {
	e := NewDataVersion(bucketID, key, contentHash, contentType, etag, size)
	e.VersionID = NullVersionID
	return e
}

// NewDeleteMarker creates a delete-marker entry with a fresh version ID.
func NewDeleteMarker(bucketID int64, key string) *Entry {
	return &Entry{
		BucketID:       bucketID,
		Key:            key,
		VersionID:      NewVersionID(),
		IsLatest:       true,
		IsDeleteMarker: true,
		Metadata:       make(map[string]string),
		CreatedAt:      time.Now().UTC(),
	}
}

// NewNullDeleteMarker creates a delete marker occupying the "null" version
// slot (simple delete under Suspended versioning).
func NewNullDeleteMarker(bucketID int64, key string) *Entry {
	e := NewDeleteMarker(bucketID, key)
	e.VersionID = NullVersionID
	return e
}

// IsNullVersion reports whether this entry occupies the "null" version slot.
func (e *Entry) IsNullVersion() bool {
	return e.VersionID == NullVersionID
}

// NewVersionID generates a fresh opaque version ID: a UUIDv4 rendered as 32
// lowercase hex characters. Uniqueness comes from the random source; ordering
// is carried separately by the bucket sequence counter.
func NewVersionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ValidateObjectKey validates an object key: 1-1024 bytes, stored verbatim.
func ValidateObjectKey(key string) error {
	if key == "" {
		return ErrObjectKeyEmpty
	}
	if len(key) > MaxKeyLength {
		return ErrObjectKeyTooLong
	}
	return nil
}

// EntryInfo is a summary of a current-view entry returned by ListObjects.
type EntryInfo struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// VersionInfo is one row of a ListVersions result: a data version or a
// delete marker.
type VersionInfo struct {
	Key            string    `json:"key"`
	VersionID      string    `json:"version_id"`
	IsLatest       bool      `json:"is_latest"`
	IsDeleteMarker bool      `json:"is_delete_marker"`
	ETag           string    `json:"etag,omitempty"`
	Size           int64     `json:"size,omitempty"`
	LastModified   time.Time `json:"last_modified"`

	// Seq is the entry's commit sequence, carried for pagination markers.
	Seq int64 `json:"-"`
}
