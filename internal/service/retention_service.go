// Package service provides the business logic of the Alexander engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// RetentionService implements the Object Lock manager: per-version
// retention and legal hold. Bucket-level lock configuration lives in
// BucketService; enforcement against permanent deletes lives in
// ObjectService.
type RetentionService struct {
	entryRepo repository.EntryRepository
	buckets   *BucketService
	logger    zerolog.Logger
}

// NewRetentionService creates a new RetentionService.
func NewRetentionService(
	entryRepo repository.EntryRepository,
	buckets *BucketService,
	logger zerolog.Logger,
) *RetentionService {
	return &RetentionService{
		entryRepo: entryRepo,
		buckets:   buckets,
		logger:    logger.With().Str("service", "retention").Logger(),
	}
}

// =============================================================================
// Input Structs
// =============================================================================

// PutRetentionInput contains the data needed to set or replace retention.
type PutRetentionInput struct {
	BucketName string
	Key        string
	VersionID  string // Optional; empty targets the latest data version

	// Retention is the new lock state. Nil clears it, subject to the
	// replacement rules.
	Retention *domain.Retention

	// BypassGovernance asserts the bypass-governance capability.
	BypassGovernance bool
}

// PutLegalHoldInput contains the data needed to toggle a legal hold.
type PutLegalHoldInput struct {
	BucketName string
	Key        string
	VersionID  string // Optional; empty targets the latest data version
	Hold       bool
}

// =============================================================================
// Service Methods
// =============================================================================

// PutObjectRetention sets or replaces retention on a data version.
// Compliance retention may only be extended; Governance retention may be
// loosened only with bypass-governance asserted.
func (s *RetentionService) PutObjectRetention(ctx context.Context, input PutRetentionInput) error {
	now := time.Now().UTC()

	if err := input.Retention.Validate(now); err != nil {
		return err
	}

	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return err
	}

	// Retention needs Object Lock on the bucket.
	if bucket.ObjectLock == nil || !bucket.ObjectLock.Enabled {
		return domain.ErrInvalidRetention
	}

	entry, err := s.resolveDataVersion(ctx, bucket.ID, input.Key, input.VersionID)
	if err != nil {
		return err
	}

	if !entry.Retention.CanReplaceWith(input.Retention, now, input.BypassGovernance) {
		return domain.ErrInvalidRetention
	}

	if err := s.entryRepo.UpdateRetention(ctx, entry.ID, input.Retention); err != nil {
		if errors.Is(err, domain.ErrVersionNotFound) {
			return domain.ErrVersionNotFound
		}
		s.logger.Error().Err(err).Str("key", input.Key).Msg("failed to update retention")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("bucket", input.BucketName).
		Str("key", input.Key).
		Str("version_id", entry.VersionID).
		Bool("cleared", input.Retention == nil).
		Msg("retention updated")

	return nil
}

// GetObjectRetention returns the retention of a data version, nil when none.
func (s *RetentionService) GetObjectRetention(ctx context.Context, bucketName, key, versionID string) (*domain.Retention, error) {
	bucket, err := s.buckets.GetBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	entry, err := s.resolveDataVersion(ctx, bucket.ID, key, versionID)
	if err != nil {
		return nil, err
	}

	return entry.Retention, nil
}

// PutObjectLegalHold toggles the legal hold on a data version.
// Holds toggle freely and block permanent deletes while on, even after
// retention expires.
func (s *RetentionService) PutObjectLegalHold(ctx context.Context, input PutLegalHoldInput) error {
	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return err
	}

	entry, err := s.resolveDataVersion(ctx, bucket.ID, input.Key, input.VersionID)
	if err != nil {
		return err
	}

	if err := s.entryRepo.UpdateLegalHold(ctx, entry.ID, input.Hold); err != nil {
		if errors.Is(err, domain.ErrVersionNotFound) {
			return domain.ErrVersionNotFound
		}
		s.logger.Error().Err(err).Str("key", input.Key).Msg("failed to update legal hold")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("bucket", input.BucketName).
		Str("key", input.Key).
		Str("version_id", entry.VersionID).
		Bool("hold", input.Hold).
		Msg("legal hold updated")

	return nil
}

// GetObjectLegalHold returns the legal hold state of a data version.
func (s *RetentionService) GetObjectLegalHold(ctx context.Context, bucketName, key, versionID string) (bool, error) {
	bucket, err := s.buckets.GetBucket(ctx, bucketName)
	if err != nil {
		return false, err
	}

	entry, err := s.resolveDataVersion(ctx, bucket.ID, key, versionID)
	if err != nil {
		return false, err
	}

	return entry.LegalHold, nil
}

// resolveDataVersion resolves the data version a lock operation targets.
// Delete markers carry no lock state.
func (s *RetentionService) resolveDataVersion(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error) {
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
		if entry.IsDeleteMarker {
			return nil, domain.ErrObjectNotFound
		}
	} else {
		entry, err = s.entryRepo.GetByVersion(ctx, bucketID, key, versionID)
		if err != nil {
			if errors.Is(err, domain.ErrVersionNotFound) {
				return nil, domain.ErrVersionNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if entry.IsDeleteMarker {
			return nil, domain.ErrMethodNotAllowed
		}
	}

	return entry, nil
}
