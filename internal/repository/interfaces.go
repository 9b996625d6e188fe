// Package repository defines data access interfaces for the Alexander engine.
// These interfaces abstract database operations, allowing for different
// implementations (SQLite, PostgreSQL, mocks for testing) while keeping the
// service layer clean.
//
// Mutating entry operations are compound and atomic: a reader observes either
// the state before or after a mutation, never an intermediate one. Atomicity
// is scoped to a single (bucket, key); cross-key atomicity is not provided.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/alexander-engine/internal/domain"
)

// =============================================================================
// Bucket Repository
// =============================================================================

// BucketRepository defines the interface for bucket metadata access.
type BucketRepository interface {
	// Create creates a new bucket. Returns domain.ErrBucketAlreadyExists
	// when the name is taken.
	Create(ctx context.Context, bucket *domain.Bucket) error

	// GetByID retrieves a bucket by ID.
	GetByID(ctx context.Context, id int64) (*domain.Bucket, error)

	// GetByName retrieves a bucket by name.
	GetByName(ctx context.Context, name string) (*domain.Bucket, error)

	// List returns all buckets ordered by name.
	List(ctx context.Context) ([]*domain.Bucket, error)

	// UpdateVersioning updates the versioning state and MFA-Delete flag.
	UpdateVersioning(ctx context.Context, id int64, state domain.VersioningState, mfaDelete bool) error

	// UpdateObjectLock stores the bucket's Object Lock configuration.
	UpdateObjectLock(ctx context.Context, id int64, cfg *domain.ObjectLockConfig) error

	// Delete deletes a bucket by ID.
	Delete(ctx context.Context, id int64) error

	// ExistsByName checks if a bucket with the given name exists.
	ExistsByName(ctx context.Context, name string) (bool, error)

	// IsEmpty checks if a bucket holds any entries, delete markers included.
	IsEmpty(ctx context.Context, id int64) (bool, error)
}

// =============================================================================
// Entry Repository
// =============================================================================

// EntryRepository defines the interface for the per-bucket object index:
// for each key, an ordered list of data versions and delete markers.
type EntryRepository interface {
	// AppendVersion inserts the entry as the key's new latest and flips any
	// previously latest sibling, in one transaction. The entry is assigned
	// the bucket's next sequence number; ID and Seq are set on return.
	AppendVersion(ctx context.Context, entry *domain.Entry) error

	// ReplaceNull removes the key's "null"-version entry if one exists,
	// flips any other latest sibling, and inserts the entry as the key's
	// latest, in one transaction. The entry must carry the "null" version
	// ID. Returns the content hash of the removed entry when it was a data
	// version, for reference-count bookkeeping.
	ReplaceNull(ctx context.Context, entry *domain.Entry) (removedHash *string, err error)

	// ReplaceUnversioned removes every entry for the key and inserts the
	// entry as its sole latest, in one transaction. Returns the content
	// hashes of all removed data versions.
	ReplaceUnversioned(ctx context.Context, entry *domain.Entry) (removedHashes []string, err error)

	// GetLatest returns the key's latest entry (data version or delete
	// marker). Returns domain.ErrObjectNotFound when the key has none.
	GetLatest(ctx context.Context, bucketID int64, key string) (*domain.Entry, error)

	// GetByVersion returns the entry with the given version ID.
	// Returns domain.ErrVersionNotFound when absent.
	GetByVersion(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error)

	// ListForKey returns every entry for the key ordered newest first.
	ListForKey(ctx context.Context, bucketID int64, key string) ([]*domain.Entry, error)

	// Remove deletes the entry with the given version ID and, when it was
	// the latest, promotes the greatest remaining entry, in one
	// transaction. Returns the removed entry, or nil when the version was
	// absent (removal is idempotent).
	Remove(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error)

	// UpdateRetention replaces the entry's retention. Nil clears it.
	UpdateRetention(ctx context.Context, id int64, retention *domain.Retention) error

	// UpdateLegalHold sets the entry's legal hold flag.
	UpdateLegalHold(ctx context.Context, id int64, hold bool) error

	// ListCurrent returns latest data-version rows in byte-lexicographic
	// key order, skipping keys whose latest entry is a delete marker.
	ListCurrent(ctx context.Context, bucketID int64, opts CurrentListOptions) ([]*domain.EntryInfo, error)

	// ListVersions returns raw entry rows, delete markers included,
	// ordered (key asc, seq desc).
	ListVersions(ctx context.Context, bucketID int64, opts VersionListOptions) ([]*domain.VersionInfo, error)

	// GetSeqForVersion resolves a version ID on a key to its sequence
	// number, for version-marker pagination.
	GetSeqForVersion(ctx context.Context, bucketID int64, key, versionID string) (int64, error)

	// CountByBucket counts all entries in a bucket, delete markers included.
	CountByBucket(ctx context.Context, bucketID int64) (int64, error)
}

// CurrentListOptions narrows a current-view listing scan.
type CurrentListOptions struct {
	// Prefix filters keys by byte prefix.
	Prefix string

	// StartAfter resumes the scan strictly after this key.
	StartAfter string

	// Limit caps the number of returned rows.
	Limit int
}

// VersionListOptions narrows a version listing scan.
type VersionListOptions struct {
	// Prefix filters keys by byte prefix.
	Prefix string

	// KeyMarker resumes the scan at or after this key.
	KeyMarker string

	// SeqMarker, when positive, resumes strictly below this sequence on
	// KeyMarker; keys greater than KeyMarker are unaffected. When zero the
	// scan starts strictly after KeyMarker.
	SeqMarker int64

	// Limit caps the number of returned rows.
	Limit int
}

// =============================================================================
// Blob Repository (Content-Addressable Storage Metadata)
// =============================================================================

// BlobRepository defines the interface for blob metadata access.
// This manages the reference counting for content-addressable storage.
type BlobRepository interface {
	// UpsertWithRefIncrement creates a new blob or increments ref_count if it exists.
	// This is an atomic operation that handles deduplication.
	// Returns (isNew, error) where isNew indicates if a new blob was created.
	UpsertWithRefIncrement(ctx context.Context, contentHash string, size int64, storagePath string) (isNew bool, err error)

	// GetByHash retrieves a blob by its content hash.
	GetByHash(ctx context.Context, contentHash string) (*domain.Blob, error)

	// IncrementRef atomically increments the reference count.
	IncrementRef(ctx context.Context, contentHash string) error

	// DecrementRef atomically decrements the reference count.
	// Returns the new reference count (0 means blob can be garbage collected).
	DecrementRef(ctx context.Context, contentHash string) (newRefCount int32, err error)

	// GetRefCount returns the current reference count for a blob.
	GetRefCount(ctx context.Context, contentHash string) (int32, error)

	// Exists checks if a blob with the given hash exists.
	Exists(ctx context.Context, contentHash string) (bool, error)

	// Delete deletes a blob by its content hash.
	// Should only be called when ref_count is 0.
	Delete(ctx context.Context, contentHash string) error

	// ListOrphans returns blobs with ref_count = 0 that are older than the grace period.
	// Used by garbage collection.
	ListOrphans(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.Blob, error)

	// UpdateLastAccessed updates the last_accessed timestamp.
	UpdateLastAccessed(ctx context.Context, contentHash string) error
}

// =============================================================================
// Cache
// =============================================================================

// Cache is a byte-value cache with per-key TTL, used in front of bucket
// metadata lookups.
type Cache interface {
	// Get retrieves a value. Returns ErrCacheMiss when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// Aggregates
// =============================================================================

// Repositories bundles the repository set handed to the service layer.
type Repositories struct {
	Bucket BucketRepository
	Entry  EntryRepository
	Blob   BlobRepository
}
