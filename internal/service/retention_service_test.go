package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-engine/internal/domain"
)

func newTestRetentionService(bucketRepo *mockBucketRepository, entryRepo *mockEntryRepository) *RetentionService {
	buckets := NewBucketService(bucketRepo, entryRepo, nil, zerolog.Nop())
	return NewRetentionService(entryRepo, buckets, zerolog.Nop())
}

func lockedBucket() *domain.Bucket {
	return &domain.Bucket{
		ID:         1,
		Name:       "vb",
		Versioning: domain.VersioningEnabled,
		ObjectLock: &domain.ObjectLockConfig{Enabled: true},
	}
}

func dataVersion(id int64, key, versionID string) *domain.Entry {
	hash := "h"
	return &domain.Entry{ID: id, Key: key, VersionID: versionID, IsLatest: true, ContentHash: &hash}
}

func TestPutRetentionRequiresObjectLock(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestRetentionService(bucketRepo, entryRepo)

	plain := &domain.Bucket{ID: 1, Name: "vb", Versioning: domain.VersioningEnabled}
	bucketRepo.On("GetByName", mock.Anything, "vb").Return(plain, nil)

	err := svc.PutObjectRetention(context.Background(), PutRetentionInput{
		BucketName: "vb",
		Key:        "f",
		Retention:  &domain.Retention{Mode: domain.RetentionGovernance, RetainUntil: time.Now().Add(time.Hour)},
	})
	require.ErrorIs(t, err, domain.ErrInvalidRetention)
}

func TestPutRetentionRejectsPastDate(t *testing.T) {
	svc := newTestRetentionService(&mockBucketRepository{}, &mockEntryRepository{})

	err := svc.PutObjectRetention(context.Background(), PutRetentionInput{
		BucketName: "vb",
		Key:        "f",
		Retention:  &domain.Retention{Mode: domain.RetentionCompliance, RetainUntil: time.Now().Add(-time.Hour)},
	})
	require.ErrorIs(t, err, domain.ErrInvalidRetention)
}

func TestPutRetentionComplianceCannotShorten(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestRetentionService(bucketRepo, entryRepo)

	until := time.Now().UTC().Add(48 * time.Hour)
	entry := dataVersion(9, "f", "v1")
	entry.Retention = &domain.Retention{Mode: domain.RetentionCompliance, RetainUntil: until}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(lockedBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(entry, nil)

	// Shortening fails even with bypass asserted.
	err := svc.PutObjectRetention(context.Background(), PutRetentionInput{
		BucketName:       "vb",
		Key:              "f",
		VersionID:        "v1",
		Retention:        &domain.Retention{Mode: domain.RetentionCompliance, RetainUntil: until.Add(-time.Hour)},
		BypassGovernance: true,
	})
	require.ErrorIs(t, err, domain.ErrInvalidRetention)

	// Downgrading to Governance fails.
	err = svc.PutObjectRetention(context.Background(), PutRetentionInput{
		BucketName: "vb",
		Key:        "f",
		VersionID:  "v1",
		Retention:  &domain.Retention{Mode: domain.RetentionGovernance, RetainUntil: until.Add(time.Hour)},
	})
	require.ErrorIs(t, err, domain.ErrInvalidRetention)

	// Extending succeeds.
	entryRepo.On("UpdateRetention", mock.Anything, int64(9), mock.MatchedBy(func(r *domain.Retention) bool {
		return r.Mode == domain.RetentionCompliance && r.RetainUntil.After(until)
	})).Return(nil)
	err = svc.PutObjectRetention(context.Background(), PutRetentionInput{
		BucketName: "vb",
		Key:        "f",
		VersionID:  "v1",
		Retention:  &domain.Retention{Mode: domain.RetentionCompliance, RetainUntil: until.Add(time.Hour)},
	})
	require.NoError(t, err)
	entryRepo.AssertExpectations(t)
}

func TestPutRetentionGovernanceBypassAllowsRemoval(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestRetentionService(bucketRepo, entryRepo)

	entry := dataVersion(9, "f", "v1")
	entry.Retention = &domain.Retention{Mode: domain.RetentionGovernance, RetainUntil: time.Now().UTC().Add(time.Hour)}

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(lockedBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(entry, nil)

	// Removal without bypass is rejected.
	err := svc.PutObjectRetention(context.Background(), PutRetentionInput{
		BucketName: "vb", Key: "f", VersionID: "v1", Retention: nil,
	})
	require.ErrorIs(t, err, domain.ErrInvalidRetention)

	// Removal with bypass clears the lock.
	entryRepo.On("UpdateRetention", mock.Anything, int64(9), (*domain.Retention)(nil)).Return(nil)
	err = svc.PutObjectRetention(context.Background(), PutRetentionInput{
		BucketName: "vb", Key: "f", VersionID: "v1", Retention: nil, BypassGovernance: true,
	})
	require.NoError(t, err)
	entryRepo.AssertExpectations(t)
}

func TestGetRetentionNoneIsNil(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestRetentionService(bucketRepo, entryRepo)

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(lockedBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(dataVersion(9, "f", "v1"), nil)

	retention, err := svc.GetObjectRetention(context.Background(), "vb", "f", "v1")
	require.NoError(t, err)
	require.Nil(t, retention)
}

func TestLegalHoldToggle(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestRetentionService(bucketRepo, entryRepo)

	entry := dataVersion(9, "f", "v1")
	bucketRepo.On("GetByName", mock.Anything, "vb").Return(lockedBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(entry, nil)
	entryRepo.On("UpdateLegalHold", mock.Anything, int64(9), true).Return(nil)
	entryRepo.On("UpdateLegalHold", mock.Anything, int64(9), false).Return(nil)

	require.NoError(t, svc.PutObjectLegalHold(context.Background(), PutLegalHoldInput{
		BucketName: "vb", Key: "f", VersionID: "v1", Hold: true,
	}))
	require.NoError(t, svc.PutObjectLegalHold(context.Background(), PutLegalHoldInput{
		BucketName: "vb", Key: "f", VersionID: "v1", Hold: false,
	}))
	entryRepo.AssertExpectations(t)
}

func TestLockStateOnDeleteMarker(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestRetentionService(bucketRepo, entryRepo)

	dm := &domain.Entry{ID: 9, Key: "f", VersionID: "v1", IsDeleteMarker: true}
	bucketRepo.On("GetByName", mock.Anything, "vb").Return(lockedBucket(), nil)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "v1").Return(dm, nil)

	_, err := svc.GetObjectRetention(context.Background(), "vb", "f", "v1")
	require.ErrorIs(t, err, domain.ErrMethodNotAllowed)
}

func TestRetentionTargetMissing(t *testing.T) {
	bucketRepo := &mockBucketRepository{}
	entryRepo := &mockEntryRepository{}
	svc := newTestRetentionService(bucketRepo, entryRepo)

	bucketRepo.On("GetByName", mock.Anything, "vb").Return(lockedBucket(), nil)
	entryRepo.On("GetLatest", mock.Anything, int64(1), "gone").Return(nil, domain.ErrObjectNotFound)
	entryRepo.On("GetByVersion", mock.Anything, int64(1), "f", "gone").Return(nil, domain.ErrVersionNotFound)

	_, err := svc.GetObjectRetention(context.Background(), "vb", "gone", "")
	require.ErrorIs(t, err, domain.ErrObjectNotFound)

	_, err = svc.GetObjectRetention(context.Background(), "vb", "f", "gone")
	require.ErrorIs(t, err, domain.ErrVersionNotFound)
}
