package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/keylock"
	"github.com/prn-tf/alexander-engine/internal/pkg/crypto"
)

// newTestObjectService wires an ObjectService over mocks.
func newTestObjectService(bucketRepo *mockBucketRepository, entryRepo *mockEntryRepository, blobRepo *mockBlobRepository, backend *mockBackend) *ObjectService {
	buckets := NewBucketService(bucketRepo, entryRepo, nil, zerolog.Nop())
	return NewObjectService(entryRepo, blobRepo, buckets, backend, keylock.New(8), true, zerolog.Nop())
}

func enabledBucket() *domain.Bucket {
	return &domain.Bucket{ID: 1, Name: "vb", Versioning: domain.VersioningEnabled}
}

func TestPutObjectEnabledAppendsVersion(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	blobRepo := &mockBlobRepository{}
	backend := &mockBackend{}
	svc := newTestObjectService(bucketRepo, entryRepo, blobRepo, backend)

	body := []byte("hello")
	hash := crypto.ComputeSHA256(body)
	etag := crypto.ComputeETag(body)

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	backend.On("Store", mock.Anything, body, int64(5)).Return(hash, nil)
	backend.On("GetPath", hash).Return("/data/" + hash)
	blobRepo.On("UpsertWithRefIncrement", mock.Anything, hash, int64(5), "/data/"+hash).Return(true, nil)
	entryRepo.On("AppendVersion", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.Key == "f" && !e.IsDeleteMarker && e.IsLatest &&
			len(e.VersionID) == 32 && *e.ContentHash == hash && e.ETag == etag
	})).Return(nil)

	out, err := svc.PutObject(context.Background(), PutObjectInput{
		BucketName: "vb",
		Key:        "f",
		Body:       bytes.NewReader(body),
		Size:       5,
	})
	require.NoError(t, err)
	require.Equal(t, etag, out.ETag)
	require.Len(t, out.VersionID, 32)
	require.Equal(t, int64(5), out.Size)

	entryRepo.AssertExpectations(t)
	blobRepo.AssertExpectations(t)
}

func TestPutObjectStampsDefaultRetention(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	blobRepo := &mockBlobRepository{}
	backend := &mockBackend{}
	svc := newTestObjectService(bucketRepo, entryRepo, blobRepo, backend)

	bucket := enabledBucket()
	bucket.ObjectLock = &domain.ObjectLockConfig{
		Enabled:          true,
		DefaultRetention: &domain.DefaultRetention{Mode: domain.RetentionCompliance, Days: 30},
	}

	body := []byte("locked")
	hash := crypto.ComputeSHA256(body)

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(bucket, nil)
	backend.On("Store", mock.Anything, body, int64(-1)).Return(hash, nil)
	backend.On("GetPath", hash).Return("/data/" + hash)
	blobRepo.On("UpsertWithRefIncrement", mock.Anything, hash, int64(6), "/data/"+hash).Return(true, nil)
	entryRepo.On("AppendVersion", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.Retention != nil &&
			e.Retention.Mode == domain.RetentionCompliance &&
			e.Retention.RetainUntil.After(time.Now().Add(29*24*time.Hour))
	})).Return(nil)

	_, err := svc.PutObject(context.Background(), PutObjectInput{
		BucketName: "vb",
		Key:        "e",
		Body:       bytes.NewReader(body),
		Size:       -1,
	})
	require.NoError(t, err)
	entryRepo.AssertExpectations(t)
}

func TestPutObjectSuspendedReplacesNull(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	blobRepo := &mockBlobRepository{}
	backend := &mockBackend{}
	svc := newTestObjectService(bucketRepo, entryRepo, blobRepo, backend)

	bucket := enabledBucket()
	bucket.Versioning = domain.VersioningSuspended

	body := []byte("c")
	hash := crypto.ComputeSHA256(body)
	oldHash := "old-hash"

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(bucket, nil)
	backend.On("Store", mock.Anything, body, int64(-1)).Return(hash, nil)
	backend.On("GetPath", hash).Return("/data/" + hash)
	blobRepo.On("UpsertWithRefIncrement", mock.Anything, hash, int64(1), "/data/"+hash).Return(true, nil)
	entryRepo.On("ReplaceNull", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.VersionID == domain.NullVersionID && !e.IsDeleteMarker
	})).Return(&oldHash, nil)
	blobRepo.On("DecrementRef", mock.Anything, oldHash).Return(int32(0), nil)

	out, err := svc.PutObject(context.Background(), PutObjectInput{
		BucketName: "vb",
		Key:        "f",
		Body:       bytes.NewReader(body),
		Size:       -1,
	})
	require.NoError(t, err)
	require.Equal(t, domain.NullVersionID, out.VersionID)
	blobRepo.AssertExpectations(t)
}

func TestPutObjectUnversionedReplacesAll(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	blobRepo := &mockBlobRepository{}
	backend := &mockBackend{}
	svc := newTestObjectService(bucketRepo, entryRepo, blobRepo, backend)

	bucket := enabledBucket()
	bucket.Versioning = domain.VersioningUnversioned

	body := []byte("v2")
	hash := crypto.ComputeSHA256(body)

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(bucket, nil)
	backend.On("Store", mock.Anything, body, int64(-1)).Return(hash, nil)
	backend.On("GetPath", hash).Return("/data/" + hash)
	blobRepo.On("UpsertWithRefIncrement", mock.Anything, hash, int64(2), "/data/"+hash).Return(true, nil)
	entryRepo.On("ReplaceUnversioned", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.VersionID == domain.NullVersionID
	})).Return([]string{"prior-hash"}, nil)
	blobRepo.On("DecrementRef", mock.Anything, "prior-hash").Return(int32(0), nil)

	_, err := svc.PutObject(context.Background(), PutObjectInput{
		BucketName: "vb",
		Key:        "f",
		Body:       bytes.NewReader(body),
		Size:       -1,
	})
	require.NoError(t, err)
	blobRepo.AssertExpectations(t)
}

func TestPutObjectBucketNotFound(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	svc := newTestObjectService(bucketRepo, &mockEntryRepository{}, &mockBlobRepository{}, &mockBackend{})

	bucketRepo.On("GetByName", mock.Anything, "missing").Return(nil, domain.ErrBucketNotFound)

	_, err := svc.PutObject(context.Background(), PutObjectInput{
		BucketName: "missing",
		Key:        "f",
		Body:       bytes.NewReader([]byte("x")),
		Size:       -1,
	})
	require.ErrorIs(t, err, domain.ErrBucketNotFound)
}

func TestPutObjectIfNoneMatchStarRejectsExisting(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	backend := &mockBackend{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, backend)

	hash := "h"
	existing := &domain.Entry{Key: "f", VersionID: domain.NewVersionID(), ContentHash: &hash, ETag: "e1"}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetLatest", mock.Anything, int64(1), "f").Return(existing, nil)

	_, err := svc.PutObject(context.Background(), PutObjectInput{
		BucketName: "vb",
		Key:        "f",
		Body:       bytes.NewReader([]byte("x")),
		Size:       -1,
		Conditions: &Conditions{IfNoneMatch: []string{"*"}},
	})
	require.ErrorIs(t, err, domain.ErrPreconditionFailed)

	// The body must never reach the backend when the precondition fails.
	backend.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetObjectHiddenByDeleteMarker(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	dm := &domain.Entry{Key: "f", VersionID: domain.NewVersionID(), IsLatest: true, IsDeleteMarker: true}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetLatest", mock.Anything, int64(1), "f").Return(dm, nil)

	_, err := svc.GetObject(context.Background(), GetObjectInput{BucketName: "vb", Key: "f"})
	require.ErrorIs(t, err, domain.ErrObjectNotFound)
}

func TestGetObjectDeleteMarkerByVersion(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	dm := &domain.Entry{Key: "f", VersionID: "v1", IsDeleteMarker: true}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(dm, nil)

	_, err := svc.GetObject(context.Background(), GetObjectInput{BucketName: "vb", Key: "f", VersionID: "v1"})
	require.ErrorIs(t, err, domain.ErrMethodNotAllowed)
}

func TestGetObjectStreamsBody(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	backend := &mockBackend{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, backend)

	hash := "h"
	entry := &domain.Entry{
		Key:         "f",
		VersionID:   "v1",
		IsLatest:    true,
		ContentHash: &hash,
		Size:        5,
		ContentType: "text/plain",
		ETag:        "e1",
		CreatedAt:   time.Now().UTC(),
	}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetLatest", mock.Anything, int64(1), "f").Return(entry, nil)
	backend.On("Retrieve", mock.Anything, hash).Return(io.NopCloser(bytes.NewReader([]byte("hello"))), nil)

	out, err := svc.GetObject(context.Background(), GetObjectInput{BucketName: "vb", Key: "f"})
	require.NoError(t, err)
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
	require.Equal(t, "v1", out.VersionID)
	require.Equal(t, "e1", out.ETag)
}

func TestDeleteObjectEnabledCreatesMarker(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("AppendVersion", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.IsDeleteMarker && len(e.VersionID) == 32
	})).Return(nil)

	out, err := svc.DeleteObject(context.Background(), DeleteObjectInput{BucketName: "vb", Key: "f"})
	require.NoError(t, err)
	require.True(t, out.DeleteMarker)
	require.Len(t, out.VersionID, 32)
	entryRepo.AssertExpectations(t)
}

func TestDeleteObjectSuspendedNullMarker(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	blobRepo := &mockBlobRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, blobRepo, &mockBackend{})

	bucket := enabledBucket()
	bucket.Versioning = domain.VersioningSuspended

	oldHash := "replaced"
	bucketRepo.On("GetByName", mock.Anything, "vb").Return(bucket, nil)
	entryRepo.On("ReplaceNull", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.IsDeleteMarker && e.VersionID == domain.NullVersionID
	})).Return(&oldHash, nil)
	blobRepo.On("DecrementRef", mock.Anything, oldHash).Return(int32(0), nil)

	out, err := svc.DeleteObject(context.Background(), DeleteObjectInput{BucketName: "vb", Key: "f"})
	require.NoError(t, err)
	require.True(t, out.DeleteMarker)
	require.Equal(t, domain.NullVersionID, out.VersionID)
	blobRepo.AssertExpectations(t)
}

func TestDeleteVersionBlockedByLegalHold(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	hash := "h"
	held := &domain.Entry{ID: 9, Key: "f", VersionID: "v1", ContentHash: &hash, LegalHold: true}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(held, nil)

	_, err := svc.DeleteObject(context.Background(), DeleteObjectInput{BucketName: "vb", Key: "f", VersionID: "v1"})
	require.ErrorIs(t, err, domain.ErrAccessDenied)
	entryRepo.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteVersionGovernanceBypass(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	blobRepo := &mockBlobRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, blobRepo, &mockBackend{})

	hash := "h"
	governed := &domain.Entry{
		ID: 9, Key: "f", VersionID: "v1", ContentHash: &hash,
		Retention: &domain.Retention{Mode: domain.RetentionGovernance, RetainUntil: time.Now().Add(time.Hour)},
	}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(governed, nil)

	// Without bypass the lock wins.
	_, err := svc.DeleteObject(context.Background(), DeleteObjectInput{BucketName: "vb", Key: "f", VersionID: "v1"})
	require.ErrorIs(t, err, domain.ErrAccessDenied)

	// With bypass asserted the version goes away.
	entryRepo.On("Remove", mock.Anything, int64(1), "f", "v1").Return(governed, nil)
	blobRepo.On("DecrementRef", mock.Anything, hash).Return(int32(0), nil)

	out, err := svc.DeleteObject(context.Background(), DeleteObjectInput{
		BucketName: "vb", Key: "f", VersionID: "v1", BypassGovernance: true,
	})
	require.NoError(t, err)
	require.Equal(t, "v1", out.VersionID)
}

func TestDeleteVersionAbsentIsIdempotent(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "gone").Return(nil, domain.ErrVersionNotFound)

	out, err := svc.DeleteObject(context.Background(), DeleteObjectInput{BucketName: "vb", Key: "f", VersionID: "gone"})
	require.NoError(t, err)
	require.Equal(t, "gone", out.VersionID)
}

func TestDeleteObjectsMixedOutcomes(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	hash := "h"
	held := &domain.Entry{ID: 9, Key: "b", VersionID: "vb1", ContentHash: &hash, LegalHold: true}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("AppendVersion", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.Key == "a" && e.IsDeleteMarker
	})).Return(nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "b", "vb1").Return(held, nil)

	out, err := svc.DeleteObjects(context.Background(), DeleteObjectsInput{
		BucketName: "vb",
		Objects: []ObjectIdentifier{
			{Key: "a"},
			{Key: "b", VersionID: "vb1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Deleted, 1)
	require.Equal(t, "a", out.Deleted[0].Key)
	require.True(t, out.Deleted[0].DeleteMarker)
	require.NotEmpty(t, out.Deleted[0].DeleteMarkerVersionID)
	require.Len(t, out.Errors, 1)
	require.Equal(t, "b", out.Errors[0].Key)
	require.Equal(t, domain.CodeAccessDenied, out.Errors[0].Code)
}

func TestDeleteObjectsQuietSuppressesDeleted(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("AppendVersion", mock.Anything, mock.Anything).Return(nil)

	out, err := svc.DeleteObjects(context.Background(), DeleteObjectsInput{
		BucketName: "vb",
		Objects:    []ObjectIdentifier{{Key: "a"}, {Key: "b"}},
		Quiet:      true,
	})
	require.NoError(t, err)
	require.Empty(t, out.Deleted)
	require.Empty(t, out.Errors)
}

func TestCopyObjectSharesBlob(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	blobRepo := &mockBlobRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, blobRepo, &mockBackend{})

	hash := "shared"
	src := &domain.Entry{
		Key: "src", VersionID: "v1", IsLatest: true,
		ContentHash: &hash, Size: 5, ContentType: "text/plain", ETag: "e1",
	}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetLatest", mock.Anything, int64(1), "src").Return(src, nil)
	blobRepo.On("IncrementRef", mock.Anything, hash).Return(nil)
	entryRepo.On("AppendVersion", mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
		return e.Key == "dst" && *e.ContentHash == hash && e.ETag == "e1" && e.ContentType == "text/plain"
	})).Return(nil)

	out, err := svc.CopyObject(context.Background(), CopyObjectInput{
		SourceBucket: "vb", SourceKey: "src",
		DestBucket: "vb", DestKey: "dst",
	})
	require.NoError(t, err)
	require.Equal(t, "e1", out.ETag)
	blobRepo.AssertExpectations(t)
}

func TestCopyObjectDeleteMarkerSource(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestObjectService(bucketRepo, entryRepo, &mockBlobRepository{}, &mockBackend{})

	dm := &domain.Entry{Key: "src", VersionID: "v1", IsLatest: true, IsDeleteMarker: true}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(enabledBucket(), nil)
	entryRepo.On("GetLatest", mock.Anything, int64(1), "src").Return(dm, nil)

	_, err := svc.CopyObject(context.Background(), CopyObjectInput{
		SourceBucket: "vb", SourceKey: "src",
		DestBucket: "vb", DestKey: "dst",
	})
	require.ErrorIs(t, err, domain.ErrObjectNotFound)
}
