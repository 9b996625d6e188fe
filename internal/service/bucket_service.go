// Package service provides the business logic of the Alexander engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// bucketCacheTTL bounds staleness of cached bucket metadata.
const bucketCacheTTL = 5 * time.Second

// BucketService handles bucket registry operations: existence, creation,
// deletion, versioning state, and Object Lock configuration.
type BucketService struct {
	bucketRepo repository.BucketRepository
	entryRepo  repository.EntryRepository
	cache      repository.Cache
	logger     zerolog.Logger
}

// NewBucketService creates a new BucketService. The cache is optional.
func NewBucketService(
	bucketRepo repository.BucketRepository,
	entryRepo repository.EntryRepository,
	cache repository.Cache,
	logger zerolog.Logger,
) *BucketService {
	return &BucketService{
		bucketRepo: bucketRepo,
		entryRepo:  entryRepo,
		cache:      cache,
		logger:     logger.With().Str("service", "bucket").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateBucketInput contains the data needed to create a bucket.
type CreateBucketInput struct {
	Name string

	// ObjectLockEnabled creates the bucket with Object Lock on, which also
	// forces versioning to Enabled.
	ObjectLockEnabled bool
}

// CreateBucketOutput contains the result of creating a bucket.
type CreateBucketOutput struct {
	Bucket *domain.Bucket
}

// PutBucketVersioningInput contains the data needed to set bucket versioning.
type PutBucketVersioningInput struct {
	Name      string
	State     domain.VersioningState
	MFADelete *bool // nil leaves the stored flag untouched
}

// GetBucketVersioningOutput contains the versioning state and MFA flag.
type GetBucketVersioningOutput struct {
	State     domain.VersioningState
	MFADelete bool
}

// =============================================================================
// Service Methods
// =============================================================================

// CreateBucket creates a new bucket, failing when the name is taken.
func (s *BucketService) CreateBucket(ctx context.Context, input CreateBucketInput) (*CreateBucketOutput, error) {
	// Validate bucket name
	if err := domain.ValidateBucketName(input.Name); err != nil {
		return nil, err
	}

	bucket := domain.NewBucket(input.Name)
	if input.ObjectLockEnabled {
		bucket.Versioning = domain.VersioningEnabled
		bucket.ObjectLock = &domain.ObjectLockConfig{Enabled: true}
	}

	if err := s.bucketRepo.Create(ctx, bucket); err != nil {
		if errors.Is(err, domain.ErrBucketAlreadyExists) {
			return nil, domain.ErrBucketAlreadyExists
		}
		s.logger.Error().Err(err).Str("bucket", input.Name).Msg("failed to create bucket")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("bucket", input.Name).
		Bool("object_lock", input.ObjectLockEnabled).
		Msg("bucket created")

	return &CreateBucketOutput{Bucket: bucket}, nil
}

// EnsureBucket idempotently ensures the bucket exists, creating it when
// missing. Unlike CreateBucket it succeeds on an existing name.
func (s *BucketService) EnsureBucket(ctx context.Context, name string) (*domain.Bucket, error) {
	bucket, err := s.GetBucket(ctx, name)
	if err == nil {
		return bucket, nil
	}
	if !errors.Is(err, domain.ErrBucketNotFound) {
		return nil, err
	}

	out, err := s.CreateBucket(ctx, CreateBucketInput{Name: name})
	if err != nil {
		// Lost the race to a concurrent creator.
		if errors.Is(err, domain.ErrBucketAlreadyExists) {
			return s.GetBucket(ctx, name)
		}
		return nil, err
	}
	return out.Bucket, nil
}

// GetBucket retrieves a bucket by name, consulting the metadata cache first.
func (s *BucketService) GetBucket(ctx context.Context, name string) (*domain.Bucket, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, bucketCacheKey(name)); err == nil {
			var bucket domain.Bucket
			if err := json.Unmarshal(data, &bucket); err == nil {
				return &bucket, nil
			}
		}
	}

	bucket, err := s.bucketRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrBucketNotFound) {
			return nil, domain.ErrBucketNotFound
		}
		s.logger.Error().Err(err).Str("bucket", name).Msg("failed to get bucket")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(bucket); err == nil {
			_ = s.cache.Set(ctx, bucketCacheKey(name), data, bucketCacheTTL)
		}
	}

	return bucket, nil
}

// HeadBucket checks bucket existence.
func (s *BucketService) HeadBucket(ctx context.Context, name string) error {
	_, err := s.GetBucket(ctx, name)
	return err
}

// ListBuckets returns all buckets ordered by name.
func (s *BucketService) ListBuckets(ctx context.Context) ([]*domain.Bucket, error) {
	buckets, err := s.bucketRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list buckets")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return buckets, nil
}

// DeleteBucket deletes a bucket. Fails while any entry, delete markers
// included, remains in the index.
func (s *BucketService) DeleteBucket(ctx context.Context, name string) error {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return err
	}

	isEmpty, err := s.bucketRepo.IsEmpty(ctx, bucket.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("bucket", name).Msg("failed to check if bucket is empty")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !isEmpty {
		return domain.ErrBucketNotEmpty
	}

	if err := s.bucketRepo.Delete(ctx, bucket.ID); err != nil {
		if errors.Is(err, domain.ErrBucketNotFound) {
			return domain.ErrBucketNotFound
		}
		s.logger.Error().Err(err).Str("bucket", name).Msg("failed to delete bucket")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, name)

	s.logger.Info().Str("bucket", name).Msg("bucket deleted")

	return nil
}

// GetBucketVersioning retrieves the versioning state and MFA-Delete flag.
func (s *BucketService) GetBucketVersioning(ctx context.Context, name string) (*GetBucketVersioningOutput, error) {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}

	return &GetBucketVersioningOutput{
		State:     bucket.Versioning,
		MFADelete: bucket.MFADelete,
	}, nil
}

// PutBucketVersioning transitions the bucket's versioning state.
// Unversioned may become Enabled; Enabled and Suspended may swap; moving
// back to Unversioned is rejected.
func (s *BucketService) PutBucketVersioning(ctx context.Context, input PutBucketVersioningInput) error {
	if input.State != domain.VersioningEnabled && input.State != domain.VersioningSuspended {
		return domain.ErrInvalidTransition
	}

	bucket, err := s.GetBucket(ctx, input.Name)
	if err != nil {
		return err
	}

	if !bucket.CanTransitionTo(input.State) {
		return domain.ErrInvalidTransition
	}

	// Lock-enabled buckets must stay versioned.
	if bucket.ObjectLock != nil && bucket.ObjectLock.Enabled && input.State != domain.VersioningEnabled {
		return domain.ErrInvalidTransition
	}

	mfaDelete := bucket.MFADelete
	if input.MFADelete != nil {
		mfaDelete = *input.MFADelete
	}

	if err := s.bucketRepo.UpdateVersioning(ctx, bucket.ID, input.State, mfaDelete); err != nil {
		if errors.Is(err, domain.ErrBucketNotFound) {
			return domain.ErrBucketNotFound
		}
		s.logger.Error().Err(err).Str("bucket", input.Name).Msg("failed to update versioning")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, input.Name)

	s.logger.Info().
		Str("bucket", input.Name).
		Str("versioning", string(input.State)).
		Msg("bucket versioning updated")

	return nil
}

// GetObjectLockConfig returns the bucket's Object Lock configuration.
func (s *BucketService) GetObjectLockConfig(ctx context.Context, name string) (*domain.ObjectLockConfig, error) {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}

	if bucket.ObjectLock == nil || !bucket.ObjectLock.Enabled {
		return nil, domain.ErrObjectLockConfigurationNotFound
	}

	return bucket.ObjectLock, nil
}

// PutObjectLockConfig stores the bucket's Object Lock configuration.
// Valid only on versioning-Enabled buckets; once enabled the configuration
// may be updated but never fully disabled.
func (s *BucketService) PutObjectLockConfig(ctx context.Context, name string, cfg domain.ObjectLockConfig) error {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return err
	}

	if bucket.Versioning != domain.VersioningEnabled {
		return domain.ErrInvalidTransition
	}

	alreadyEnabled := bucket.ObjectLock != nil && bucket.ObjectLock.Enabled
	if !cfg.Enabled && alreadyEnabled {
		return domain.ErrInvalidTransition
	}
	if !cfg.Enabled {
		return domain.ErrInvalidTransition
	}

	if cfg.DefaultRetention != nil {
		if err := cfg.DefaultRetention.Validate(); err != nil {
			return err
		}
	}

	if err := s.bucketRepo.UpdateObjectLock(ctx, bucket.ID, &cfg); err != nil {
		if errors.Is(err, domain.ErrBucketNotFound) {
			return domain.ErrBucketNotFound
		}
		s.logger.Error().Err(err).Str("bucket", name).Msg("failed to update object lock config")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, name)

	s.logger.Info().
		Str("bucket", name).
		Bool("default_retention", cfg.DefaultRetention != nil).
		Msg("object lock config updated")

	return nil
}

// invalidate drops a bucket from the metadata cache after a mutation.
func (s *BucketService) invalidate(ctx context.Context, name string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, bucketCacheKey(name))
	}
}

// bucketCacheKey names a bucket's cache slot.
func bucketCacheKey(name string) string {
	return "bucket:" + name
}
