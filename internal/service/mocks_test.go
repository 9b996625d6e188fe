package service

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// =============================================================================
// Mock Repository Types
// =============================================================================

type mockBucketRepository struct {
	mock.Mock
}

func (m *mockBucketRepository) Create(ctx context.Context, bucket *domain.Bucket) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}

func (m *mockBucketRepository) GetByID(ctx context.Context, id int64) (*domain.Bucket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bucket), args.Error(1)
}

func (m *mockBucketRepository) GetByName(ctx context.Context, name string) (*domain.Bucket, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bucket), args.Error(1)
}

func (m *mockBucketRepository) List(ctx context.Context) ([]*domain.Bucket, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Bucket), args.Error(1)
}

func (m *mockBucketRepository) UpdateVersioning(ctx context.Context, id int64, state domain.VersioningState, mfaDelete bool) error {
	args := m.Called(ctx, id, state, mfaDelete)
	return args.Error(0)
}

func (m *mockBucketRepository) UpdateObjectLock(ctx context.Context, id int64, cfg *domain.ObjectLockConfig) error {
	args := m.Called(ctx, id, cfg)
	return args.Error(0)
}

func (m *mockBucketRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockBucketRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockBucketRepository) IsEmpty(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockEntryRepository struct {
	mock.Mock
}

func (m *mockEntryRepository) AppendVersion(ctx context.Context, entry *domain.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockEntryRepository) ReplaceNull(ctx context.Context, entry *domain.Entry) (*string, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

func (m *mockEntryRepository) ReplaceUnversioned(ctx context.Context, entry *domain.Entry) ([]string, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockEntryRepository) GetLatest(ctx context.Context, bucketID int64, key string) (*domain.Entry, error) {
	args := m.Called(ctx, bucketID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entry), args.Error(1)
}

func (m *mockEntryRepository) GetByVersion(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error) {
	args := m.Called(ctx, bucketID, key, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entry), args.Error(1)
}

func (m *mockEntryRepository) ListForKey(ctx context.Context, bucketID int64, key string) ([]*domain.Entry, error) {
	args := m.Called(ctx, bucketID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Entry), args.Error(1)
}

func (m *mockEntryRepository) Remove(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error) {
	args := m.Called(ctx, bucketID, key, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entry), args.Error(1)
}

func (m *mockEntryRepository) UpdateRetention(ctx context.Context, id int64, retention *domain.Retention) error {
	args := m.Called(ctx, id, retention)
	return args.Error(0)
}

func (m *mockEntryRepository) UpdateLegalHold(ctx context.Context, id int64, hold bool) error {
	args := m.Called(ctx, id, hold)
	return args.Error(0)
}

func (m *mockEntryRepository) ListCurrent(ctx context.Context, bucketID int64, opts repository.CurrentListOptions) ([]*domain.EntryInfo, error) {
	args := m.Called(ctx, bucketID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EntryInfo), args.Error(1)
}

func (m *mockEntryRepository) ListVersions(ctx context.Context, bucketID int64, opts repository.VersionListOptions) ([]*domain.VersionInfo, error) {
	args := m.Called(ctx, bucketID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.VersionInfo), args.Error(1)
}

func (m *mockEntryRepository) GetSeqForVersion(ctx context.Context, bucketID int64, key, versionID string) (int64, error) {
	args := m.Called(ctx, bucketID, key, versionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockEntryRepository) CountByBucket(ctx context.Context, bucketID int64) (int64, error) {
	args := m.Called(ctx, bucketID)
	return args.Get(0).(int64), args.Error(1)
}

type mockBlobRepository struct {
	mock.Mock
}

func (m *mockBlobRepository) UpsertWithRefIncrement(ctx context.Context, contentHash string, size int64, storagePath string) (bool, error) {
	args := m.Called(ctx, contentHash, size, storagePath)
	return args.Bool(0), args.Error(1)
}

func (m *mockBlobRepository) GetByHash(ctx context.Context, contentHash string) (*domain.Blob, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Blob), args.Error(1)
}

func (m *mockBlobRepository) IncrementRef(ctx context.Context, contentHash string) error {
	args := m.Called(ctx, contentHash)
	return args.Error(0)
}

func (m *mockBlobRepository) DecrementRef(ctx context.Context, contentHash string) (int32, error) {
	args := m.Called(ctx, contentHash)
	return args.Get(0).(int32), args.Error(1)
}

func (m *mockBlobRepository) GetRefCount(ctx context.Context, contentHash string) (int32, error) {
	args := m.Called(ctx, contentHash)
	return args.Get(0).(int32), args.Error(1)
}

func (m *mockBlobRepository) Exists(ctx context.Context, contentHash string) (bool, error) {
	args := m.Called(ctx, contentHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockBlobRepository) Delete(ctx context.Context, contentHash string) error {
	args := m.Called(ctx, contentHash)
	return args.Error(0)
}

func (m *mockBlobRepository) ListOrphans(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.Blob, error) {
	args := m.Called(ctx, gracePeriod, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Blob), args.Error(1)
}

func (m *mockBlobRepository) UpdateLastAccessed(ctx context.Context, contentHash string) error {
	args := m.Called(ctx, contentHash)
	return args.Error(0)
}

// =============================================================================
// Mock Storage Backend
// =============================================================================

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Store(ctx context.Context, reader io.Reader, size int64) (string, error) {
	// Drain the reader so hashing wrappers observe the body.
	data, _ := io.ReadAll(reader)
	args := m.Called(ctx, data, size)
	return args.String(0), args.Error(1)
}

func (m *mockBackend) Retrieve(ctx context.Context, contentHash string) (io.ReadCloser, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockBackend) Delete(ctx context.Context, contentHash string) error {
	args := m.Called(ctx, contentHash)
	return args.Error(0)
}

func (m *mockBackend) Exists(ctx context.Context, contentHash string) (bool, error) {
	args := m.Called(ctx, contentHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockBackend) GetSize(ctx context.Context, contentHash string) (int64, error) {
	args := m.Called(ctx, contentHash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBackend) GetPath(contentHash string) string {
	args := m.Called(contentHash)
	return args.String(0)
}
