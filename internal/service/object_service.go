// Package service provides the business logic of the Alexander engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/keylock"
	"github.com/prn-tf/alexander-engine/internal/pkg/crypto"
	"github.com/prn-tf/alexander-engine/internal/repository"
	"github.com/prn-tf/alexander-engine/internal/storage"
)

// ObjectService implements the versioning controller: PUT, GET, HEAD,
// DELETE, COPY, and batch delete with Unversioned, Enabled, and Suspended
// semantics. Writers on the same key serialize through the key lock; every
// index mutation commits atomically in the entry repository.
type ObjectService struct {
	entryRepo   repository.EntryRepository
	blobRepo    repository.BlobRepository
	buckets     *BucketService
	storage     storage.Backend
	keys        *keylock.KeyLock
	conditional bool
	logger      zerolog.Logger
}

// NewObjectService creates a new ObjectService.
// conditional enables enforcement of conditional request predicates.
func NewObjectService(
	entryRepo repository.EntryRepository,
	blobRepo repository.BlobRepository,
	buckets *BucketService,
	backend storage.Backend,
	keys *keylock.KeyLock,
	conditional bool,
	logger zerolog.Logger,
) *ObjectService {
	return &ObjectService{
		entryRepo:   entryRepo,
		blobRepo:    blobRepo,
		buckets:     buckets,
		storage:     backend,
		keys:        keys,
		conditional: conditional,
		logger:      logger.With().Str("service", "object").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// PutObjectInput contains the data needed to store an object.
type PutObjectInput struct {
	BucketName  string
	Key         string
	Body        io.Reader
	Size        int64 // -1 when unknown
	ContentType string
	Metadata    map[string]string
	Conditions  *Conditions
}

// PutObjectOutput contains the result of storing an object.
type PutObjectOutput struct {
	ETag      string
	VersionID string
	Size      int64
}

// GetObjectInput contains the data needed to retrieve an object.
type GetObjectInput struct {
	BucketName string
	Key        string
	VersionID  string // Optional
	Conditions *Conditions
}

// GetObjectOutput contains the result of retrieving an object.
type GetObjectOutput struct {
	Body           io.ReadCloser
	ContentLength  int64
	ContentType    string
	ETag           string
	LastModified   time.Time
	VersionID      string
	IsDeleteMarker bool
	Metadata       map[string]string
}

// HeadObjectOutput contains object metadata without the body.
type HeadObjectOutput struct {
	ContentLength  int64
	ContentType    string
	ETag           string
	LastModified   time.Time
	VersionID      string
	IsDeleteMarker bool
	Metadata       map[string]string
}

// DeleteObjectInput contains the data needed to delete an object.
type DeleteObjectInput struct {
	BucketName string
	Key        string
	VersionID  string // Optional - if provided, permanently deletes that version

	// BypassGovernance asserts the bypass-governance capability. The engine
	// exposes the flag but does not authenticate it.
	BypassGovernance bool
	Conditions       *Conditions
}

// DeleteObjectOutput contains the result of deleting an object.
type DeleteObjectOutput struct {
	// DeleteMarker is true when a delete marker was created, or when the
	// permanently removed version was one.
	DeleteMarker bool

	// VersionID identifies the removed version or the new delete marker.
	VersionID string
}

// ObjectIdentifier names one object (and optionally a version) in a batch
// delete request.
type ObjectIdentifier struct {
	Key       string
	VersionID string
}

// DeleteObjectsInput contains a batch delete request.
type DeleteObjectsInput struct {
	BucketName       string
	Objects          []ObjectIdentifier
	Quiet            bool
	BypassGovernance bool
}

// DeletedObject is one successful outcome of a batch delete.
type DeletedObject struct {
	Key                   string
	VersionID             string
	DeleteMarker          bool
	DeleteMarkerVersionID string
}

// DeleteError is one failed outcome of a batch delete.
type DeleteError struct {
	Key       string
	VersionID string
	Code      string
	Message   string
}

// DeleteObjectsOutput contains both outcome lists of a batch delete.
// Every requested item lands in exactly one of the two.
type DeleteObjectsOutput struct {
	Deleted []DeletedObject
	Errors  []DeleteError
}

// CopyObjectInput contains the data needed to copy an object.
type CopyObjectInput struct {
	SourceBucket    string
	SourceKey       string
	SourceVersionID string // Optional
	DestBucket      string
	DestKey         string
	ContentType     string            // Optional - override content type
	Metadata        map[string]string // Optional - new metadata
	// MetadataDirective is COPY (default) or REPLACE.
	MetadataDirective string
}

// CopyObjectOutput contains the result of copying an object.
type CopyObjectOutput struct {
	ETag         string
	LastModified time.Time
	VersionID    string
}

// =============================================================================
// PutObject
// =============================================================================

// PutObject stores an object in the specified bucket, applying the bucket's
// versioning semantics.
func (s *ObjectService) PutObject(ctx context.Context, input PutObjectInput) (*PutObjectOutput, error) {
	if err := domain.ValidateObjectKey(input.Key); err != nil {
		return nil, err
	}

	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return nil, err
	}

	s.keys.Lock(bucket.ID, input.Key)
	defer s.keys.Unlock(bucket.ID, input.Key)

	if s.conditional && !input.Conditions.IsZero() {
		current, err := s.currentEntry(ctx, bucket.ID, input.Key)
		if err != nil {
			return nil, err
		}
		if err := checkWriteConditions(input.Conditions, current); err != nil {
			return nil, err
		}
	}

	// Stream the body to the backend. The backend derives the content
	// address while staging; the tee picks up the ETag on the same pass.
	// A failed or cancelled write stays invisible: the entry insert below
	// is the single commit point.
	body := crypto.NewETagReader(input.Body)
	contentHash, err := s.storage.Store(ctx, body, input.Size)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("key", input.Key).Msg("failed to store content")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	etag := body.Sum()
	size := body.BytesRead()

	if _, err := s.blobRepo.UpsertWithRefIncrement(ctx, contentHash, size, s.storage.GetPath(contentHash)); err != nil {
		s.logger.Error().Err(err).Str("content_hash", contentHash).Msg("failed to upsert blob")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	entry, err := s.commitWrite(ctx, bucket, input.Key, contentHash, contentType, etag, size, input.Metadata)
	if err != nil {
		// Roll back the reference taken above; GC reclaims the blob.
		_, _ = s.blobRepo.DecrementRef(ctx, contentHash)
		return nil, err
	}

	s.logger.Info().
		Str("bucket", input.BucketName).
		Str("key", input.Key).
		Str("version_id", entry.VersionID).
		Int64("size", size).
		Str("etag", etag).
		Msg("object stored")

	return &PutObjectOutput{
		ETag:      etag,
		VersionID: entry.VersionID,
		Size:      size,
	}, nil
}

// commitWrite builds and commits the index entry for a write under the
// bucket's current versioning state.
func (s *ObjectService) commitWrite(
	ctx context.Context,
	bucket *domain.Bucket,
	key, contentHash, contentType, etag string,
	size int64,
	metadata map[string]string,
) (*domain.Entry, error) {
	var entry *domain.Entry

	switch bucket.Versioning {
	case domain.VersioningEnabled:
		entry = domain.NewDataVersion(bucket.ID, key, contentHash, contentType, etag, size)
		if metadata != nil {
			entry.Metadata = metadata
		}
		// Default retention is stamped at write time; existing versions
		// are never retrofitted.
		if bucket.ObjectLock != nil && bucket.ObjectLock.Enabled && bucket.ObjectLock.DefaultRetention != nil {
			dr := bucket.ObjectLock.DefaultRetention
			entry.Retention = &domain.Retention{
				Mode:        dr.Mode,
				RetainUntil: entry.CreatedAt.Add(dr.Duration()),
			}
		}
		if err := s.entryRepo.AppendVersion(ctx, entry); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to append version")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}

	case domain.VersioningSuspended:
		entry = domain.NewNullDataVersion(bucket.ID, key, contentHash, contentType, etag, size)
		if metadata != nil {
			entry.Metadata = metadata
		}
		removedHash, err := s.entryRepo.ReplaceNull(ctx, entry)
		if err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to replace null version")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		s.releaseBlob(ctx, removedHash)

	default: // Unversioned
		entry = domain.NewNullDataVersion(bucket.ID, key, contentHash, contentType, etag, size)
		if metadata != nil {
			entry.Metadata = metadata
		}
		removedHashes, err := s.entryRepo.ReplaceUnversioned(ctx, entry)
		if err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to replace object")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		for i := range removedHashes {
			s.releaseBlob(ctx, &removedHashes[i])
		}
	}

	return entry, nil
}

// =============================================================================
// GetObject / HeadObject
// =============================================================================

// GetObject retrieves an object body and metadata.
// Without a version ID the latest data version is served; a delete-marker
// latest reads as NoSuchKey. With a version ID a delete marker reads as
// MethodNotAllowed.
func (s *ObjectService) GetObject(ctx context.Context, input GetObjectInput) (*GetObjectOutput, error) {
	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return nil, err
	}

	entry, err := s.resolveRead(ctx, bucket.ID, input.Key, input.VersionID)
	if err != nil {
		return nil, err
	}

	if s.conditional {
		if err := checkReadConditions(input.Conditions, entry); err != nil {
			return nil, err
		}
	}

	if entry.ContentHash == nil {
		return nil, domain.ErrObjectNotFound
	}

	reader, err := s.storage.Retrieve(ctx, *entry.ContentHash)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, domain.ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &GetObjectOutput{
		Body:          reader,
		ContentLength: entry.Size,
		ContentType:   entry.ContentType,
		ETag:          entry.ETag,
		LastModified:  entry.CreatedAt,
		VersionID:     entry.VersionID,
		Metadata:      entry.Metadata,
	}, nil
}

// HeadObject retrieves object metadata without the body.
func (s *ObjectService) HeadObject(ctx context.Context, input GetObjectInput) (*HeadObjectOutput, error) {
	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return nil, err
	}

	entry, err := s.resolveRead(ctx, bucket.ID, input.Key, input.VersionID)
	if err != nil {
		return nil, err
	}

	if s.conditional {
		if err := checkReadConditions(input.Conditions, entry); err != nil {
			return nil, err
		}
	}

	return &HeadObjectOutput{
		ContentLength: entry.Size,
		ContentType:   entry.ContentType,
		ETag:          entry.ETag,
		LastModified:  entry.CreatedAt,
		VersionID:     entry.VersionID,
		Metadata:      entry.Metadata,
	}, nil
}

// resolveRead resolves the entry a read targets, applying delete-marker
// visibility rules.
func (s *ObjectService) resolveRead(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error) {
	if versionID == "" {
		entry, err := s.entryRepo.GetLatest(ctx, bucketID, key)
		if err != nil {
			if errors.Is(err, domain.ErrObjectNotFound) {
				return nil, domain.ErrObjectNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if entry.IsDeleteMarker {
			// Hidden by the marker; the key has no current data version.
			return nil, domain.ErrObjectNotFound
		}
		return entry, nil
	}

	entry, err := s.entryRepo.GetByVersion(ctx, bucketID, key, versionID)
	if err != nil {
		if errors.Is(err, domain.ErrVersionNotFound) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if entry.IsDeleteMarker {
		return nil, domain.ErrMethodNotAllowed
	}
	return entry, nil
}

// currentEntry returns the key's latest entry or nil when absent.
func (s *ObjectService) currentEntry(ctx context.Context, bucketID int64, key string) (*domain.Entry, error) {
	entry, err := s.entryRepo.GetLatest(ctx, bucketID, key)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return entry, nil
}

// =============================================================================
// DeleteObject
// =============================================================================

// DeleteObject deletes an object or a specific version.
// Without a version ID the bucket's versioning state decides between
// removal, a fresh delete marker, or the null-slot marker. With a version
// ID the exact entry is removed, subject to Object Lock.
func (s *ObjectService) DeleteObject(ctx context.Context, input DeleteObjectInput) (*DeleteObjectOutput, error) {
	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return nil, err
	}

	s.keys.Lock(bucket.ID, input.Key)
	defer s.keys.Unlock(bucket.ID, input.Key)

	if input.VersionID != "" {
		return s.deleteVersion(ctx, bucket, input)
	}

	if s.conditional && !input.Conditions.IsZero() {
		current, err := s.currentEntry(ctx, bucket.ID, input.Key)
		if err != nil {
			return nil, err
		}
		if err := checkWriteConditions(input.Conditions, current); err != nil {
			return nil, err
		}
	}

	switch bucket.Versioning {
	case domain.VersioningEnabled:
		// Simple delete never touches existing versions; it stacks a
		// fresh delete marker on top.
		dm := domain.NewDeleteMarker(bucket.ID, input.Key)
		if err := s.entryRepo.AppendVersion(ctx, dm); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}

		s.logger.Info().
			Str("bucket", input.BucketName).
			Str("key", input.Key).
			Str("version_id", dm.VersionID).
			Msg("delete marker created")

		return &DeleteObjectOutput{
			DeleteMarker: true,
			VersionID:    dm.VersionID,
		}, nil

	case domain.VersioningSuspended:
		// The null slot is replaced by a null delete marker; versioned
		// entries stay put.
		dm := domain.NewNullDeleteMarker(bucket.ID, input.Key)
		removedHash, err := s.entryRepo.ReplaceNull(ctx, dm)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		s.releaseBlob(ctx, removedHash)

		s.logger.Info().
			Str("bucket", input.BucketName).
			Str("key", input.Key).
			Msg("null delete marker created")

		return &DeleteObjectOutput{
			DeleteMarker: true,
			VersionID:    domain.NullVersionID,
		}, nil

	default: // Unversioned
		removed, err := s.entryRepo.Remove(ctx, bucket.ID, input.Key, domain.NullVersionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if removed != nil && removed.ContentHash != nil {
			s.releaseBlob(ctx, removed.ContentHash)
		}

		// Idempotent: success whether or not the key existed.
		return &DeleteObjectOutput{}, nil
	}
}

// deleteVersion permanently removes one entry, enforcing Object Lock.
func (s *ObjectService) deleteVersion(ctx context.Context, bucket *domain.Bucket, input DeleteObjectInput) (*DeleteObjectOutput, error) {
	entry, err := s.entryRepo.GetByVersion(ctx, bucket.ID, input.Key, input.VersionID)
	if err != nil {
		if errors.Is(err, domain.ErrVersionNotFound) {
			// Idempotent: success with no state change.
			return &DeleteObjectOutput{VersionID: input.VersionID}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if entry.BlocksPermanentDelete(time.Now().UTC(), input.BypassGovernance) {
		return nil, domain.ErrAccessDenied
	}

	removed, err := s.entryRepo.Remove(ctx, bucket.ID, input.Key, input.VersionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if removed == nil {
		// Raced with another deleter; still idempotent success.
		return &DeleteObjectOutput{VersionID: input.VersionID}, nil
	}

	if removed.ContentHash != nil {
		s.releaseBlob(ctx, removed.ContentHash)
	}

	s.logger.Info().
		Str("bucket", input.BucketName).
		Str("key", input.Key).
		Str("version_id", input.VersionID).
		Bool("delete_marker", removed.IsDeleteMarker).
		Msg("version deleted")

	return &DeleteObjectOutput{
		DeleteMarker: removed.IsDeleteMarker,
		VersionID:    removed.VersionID,
	}, nil
}

// =============================================================================
// DeleteObjects (batch)
// =============================================================================

// DeleteObjects deletes a batch of objects. The call never aborts midway:
// every requested item yields exactly one deleted record or one error
// record. Quiet mode suppresses the deleted list.
func (s *ObjectService) DeleteObjects(ctx context.Context, input DeleteObjectsInput) (*DeleteObjectsOutput, error) {
	// Bucket absence fails the whole request.
	if _, err := s.buckets.GetBucket(ctx, input.BucketName); err != nil {
		return nil, err
	}

	out := &DeleteObjectsOutput{}
	for _, obj := range input.Objects {
		res, err := s.DeleteObject(ctx, DeleteObjectInput{
			BucketName:       input.BucketName,
			Key:              obj.Key,
			VersionID:        obj.VersionID,
			BypassGovernance: input.BypassGovernance,
		})
		if err != nil {
			out.Errors = append(out.Errors, DeleteError{
				Key:       obj.Key,
				VersionID: obj.VersionID,
				Code:      domain.Code(err),
				Message:   err.Error(),
			})
			continue
		}

		if input.Quiet {
			continue
		}

		deleted := DeletedObject{
			Key:          obj.Key,
			VersionID:    obj.VersionID,
			DeleteMarker: res.DeleteMarker,
		}
		if res.DeleteMarker && obj.VersionID == "" {
			deleted.DeleteMarkerVersionID = res.VersionID
		}
		out.Deleted = append(out.Deleted, deleted)
	}

	return out, nil
}

// =============================================================================
// CopyObject
// =============================================================================

// CopyObject copies an object within or between buckets, reusing the source
// blob by reference. The destination write follows the destination bucket's
// versioning semantics.
func (s *ObjectService) CopyObject(ctx context.Context, input CopyObjectInput) (*CopyObjectOutput, error) {
	srcBucket, err := s.buckets.GetBucket(ctx, input.SourceBucket)
	if err != nil {
		return nil, err
	}

	srcEntry, err := s.resolveCopySource(ctx, srcBucket.ID, input.SourceKey, input.SourceVersionID)
	if err != nil {
		return nil, err
	}

	dstBucket, err := s.buckets.GetBucket(ctx, input.DestBucket)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateObjectKey(input.DestKey); err != nil {
		return nil, err
	}

	s.keys.Lock(dstBucket.ID, input.DestKey)
	defer s.keys.Unlock(dstBucket.ID, input.DestKey)

	// Same backend on both ends: the copy shares the blob by reference.
	if err := s.blobRepo.IncrementRef(ctx, *srcEntry.ContentHash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	contentType := srcEntry.ContentType
	metadata := srcEntry.Metadata
	if input.MetadataDirective == "REPLACE" {
		if input.ContentType != "" {
			contentType = input.ContentType
		}
		if input.Metadata != nil {
			metadata = input.Metadata
		}
	}

	entry, err := s.commitWrite(ctx, dstBucket, input.DestKey, *srcEntry.ContentHash, contentType, srcEntry.ETag, srcEntry.Size, metadata)
	if err != nil {
		// Roll back the reference taken above.
		_, _ = s.blobRepo.DecrementRef(ctx, *srcEntry.ContentHash)
		return nil, err
	}

	s.logger.Info().
		Str("source_bucket", input.SourceBucket).
		Str("source_key", input.SourceKey).
		Str("dest_bucket", input.DestBucket).
		Str("dest_key", input.DestKey).
		Str("version_id", entry.VersionID).
		Msg("object copied")

	return &CopyObjectOutput{
		ETag:         entry.ETag,
		LastModified: entry.CreatedAt,
		VersionID:    entry.VersionID,
	}, nil
}

// resolveCopySource resolves the entry a copy reads from. Delete markers
// are not copyable: the key effectively has no current data version.
func (s *ObjectService) resolveCopySource(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error) {
	var entry *domain.Entry
	var err error

	if versionID == "" {
		entry, err = s.entryRepo.GetLatest(ctx, bucketID, key)
		if err != nil {
			if errors.Is(err, domain.ErrObjectNotFound) {
				return nil, domain.ErrObjectNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	} else {
		entry, err = s.entryRepo.GetByVersion(ctx, bucketID, key, versionID)
		if err != nil {
			if errors.Is(err, domain.ErrVersionNotFound) {
				return nil, domain.ErrVersionNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	if entry.IsDeleteMarker || entry.ContentHash == nil {
		return nil, domain.ErrObjectNotFound
	}

	return entry, nil
}

// =============================================================================
// Helpers
// =============================================================================

// releaseBlob decrements a blob reference after an entry stopped pointing
// at it. Physical removal is the garbage collector's job.
func (s *ObjectService) releaseBlob(ctx context.Context, contentHash *string) {
	if contentHash == nil {
		return
	}
	if _, err := s.blobRepo.DecrementRef(ctx, *contentHash); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		s.logger.Error().Err(err).Str("content_hash", *contentHash).Msg("failed to decrement ref count")
	}
}
