// Package service provides the business logic of the Alexander engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/pagination"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// scanBatchSize is how many index rows a listing pulls per query while
// folding delimiter groups.
const scanBatchSize = 1000

// maxListKeys caps page sizes, matching the S3 limit.
const maxListKeys = 1000

// ListService implements the query engine: the current-view listing, the
// full version listing, delimiter grouping, and pagination. Repositories
// hand back raw key-ordered rows; grouping and page assembly happen here.
type ListService struct {
	entryRepo repository.EntryRepository
	buckets   *BucketService
	tokens    *pagination.Codec
	logger    zerolog.Logger
}

// NewListService creates a new ListService.
func NewListService(
	entryRepo repository.EntryRepository,
	buckets *BucketService,
	tokens *pagination.Codec,
	logger zerolog.Logger,
) *ListService {
	return &ListService{
		entryRepo: entryRepo,
		buckets:   buckets,
		tokens:    tokens,
		logger:    logger.With().Str("service", "list").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// ListObjectsInput contains the data needed to list the current view.
type ListObjectsInput struct {
	BucketName        string
	Prefix            string
	Delimiter         string
	Marker            string
	ContinuationToken string
	MaxKeys           int
}

// ListObjectsOutput contains one page of the current view.
type ListObjectsOutput struct {
	Name                  string
	Prefix                string
	Delimiter             string
	MaxKeys               int
	IsTruncated           bool
	Contents              []domain.EntryInfo
	CommonPrefixes        []string
	NextMarker            string
	NextContinuationToken string
	KeyCount              int
}

// ListVersionsInput contains the data needed to list all entries.
type ListVersionsInput struct {
	BucketName      string
	Prefix          string
	Delimiter       string
	KeyMarker       string
	VersionIDMarker string
	MaxKeys         int
}

// ListVersionsOutput contains one page of the version listing.
type ListVersionsOutput struct {
	Name                string
	Prefix              string
	Delimiter           string
	MaxKeys             int
	IsTruncated         bool
	Versions            []domain.VersionInfo
	CommonPrefixes      []string
	NextKeyMarker       string
	NextVersionIDMarker string
}

// =============================================================================
// ListObjects
// =============================================================================

// ListObjects lists the bucket's current view: for each key in byte order,
// the latest entry iff it is a data version. Keys sharing a delimiter-bound
// prefix roll up into one common prefix.
func (s *ListService) ListObjects(ctx context.Context, input ListObjectsInput) (*ListObjectsOutput, error) {
	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return nil, err
	}

	maxKeys := clampMaxKeys(input.MaxKeys)

	marker := input.Marker
	if marker == "" && input.ContinuationToken != "" {
		cur, err := s.tokens.Decode(input.ContinuationToken)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrInvalidArgument, "bad continuation token", input.BucketName)
		}
		marker = cur.Key
	}

	var contents []domain.EntryInfo
	var prefixes []string
	after := marker
	truncated := false

scan:
	for {
		rows, err := s.entryRepo.ListCurrent(ctx, bucket.ID, repository.CurrentListOptions{
			Prefix:     input.Prefix,
			StartAfter: after,
			Limit:      scanBatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			cp, grouped := commonPrefix(row.Key, input.Prefix, input.Delimiter)

			if grouped {
				// A group already returned on an earlier page rolls past
				// without being emitted again.
				if marker != "" && cp <= marker {
					after = groupEnd(cp)
					continue scan
				}
				if len(contents)+len(prefixes) == maxKeys {
					truncated = true
					break scan
				}
				prefixes = append(prefixes, cp)
				// Seek past the whole group.
				after = groupEnd(cp)
				continue scan
			}

			if len(contents)+len(prefixes) == maxKeys {
				truncated = true
				break scan
			}
			contents = append(contents, *row)
			after = row.Key
		}

		if len(rows) < scanBatchSize {
			break
		}
	}

	output := &ListObjectsOutput{
		Name:           input.BucketName,
		Prefix:         input.Prefix,
		Delimiter:      input.Delimiter,
		MaxKeys:        maxKeys,
		IsTruncated:    truncated,
		Contents:       contents,
		CommonPrefixes: lo.Uniq(prefixes),
		KeyCount:       len(contents) + len(prefixes),
	}

	if truncated {
		output.NextMarker = lastEmitted(contents, prefixes)
		token, err := s.tokens.Encode(pagination.Cursor{Key: output.NextMarker})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		output.NextContinuationToken = token
	}

	return output, nil
}

// =============================================================================
// ListVersions
// =============================================================================

// ListVersions lists every entry, delete markers included, ordered
// (key asc, newest first per key).
func (s *ListService) ListVersions(ctx context.Context, input ListVersionsInput) (*ListVersionsOutput, error) {
	bucket, err := s.buckets.GetBucket(ctx, input.BucketName)
	if err != nil {
		return nil, err
	}

	maxKeys := clampMaxKeys(input.MaxKeys)

	// The version marker narrows the resume point within the marker key.
	var seqMarker int64
	if input.VersionIDMarker != "" {
		if input.KeyMarker == "" {
			return nil, domain.ErrInvalidVersionID
		}
		seq, err := s.entryRepo.GetSeqForVersion(ctx, bucket.ID, input.KeyMarker, input.VersionIDMarker)
		if err != nil {
			if errors.Is(err, domain.ErrVersionNotFound) {
				return nil, domain.ErrVersionNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		seqMarker = seq
	}

	var versions []domain.VersionInfo
	var prefixes []string
	keyAfter := input.KeyMarker
	seqAfter := seqMarker
	truncated := false

scan:
	for {
		rows, err := s.entryRepo.ListVersions(ctx, bucket.ID, repository.VersionListOptions{
			Prefix:    input.Prefix,
			KeyMarker: keyAfter,
			SeqMarker: seqAfter,
			Limit:     scanBatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			cp, grouped := commonPrefix(row.Key, input.Prefix, input.Delimiter)

			if grouped {
				if input.KeyMarker != "" && cp <= input.KeyMarker {
					keyAfter, seqAfter = groupEnd(cp), 0
					continue scan
				}
				if len(versions)+len(prefixes) == maxKeys {
					truncated = true
					break scan
				}
				prefixes = append(prefixes, cp)
				keyAfter, seqAfter = groupEnd(cp), 0
				continue scan
			}

			if len(versions)+len(prefixes) == maxKeys {
				truncated = true
				break scan
			}
			versions = append(versions, *row)
			keyAfter = row.Key
			seqAfter = row.Seq
		}

		if len(rows) < scanBatchSize {
			break
		}
	}

	output := &ListVersionsOutput{
		Name:           input.BucketName,
		Prefix:         input.Prefix,
		Delimiter:      input.Delimiter,
		MaxKeys:        maxKeys,
		IsTruncated:    truncated,
		Versions:       versions,
		CommonPrefixes: lo.Uniq(prefixes),
	}

	if truncated {
		if len(versions) > 0 {
			last := versions[len(versions)-1]
			output.NextKeyMarker = last.Key
			output.NextVersionIDMarker = last.VersionID
		}
		if len(prefixes) > 0 {
			cp := prefixes[len(prefixes)-1]
			if cp > output.NextKeyMarker {
				output.NextKeyMarker = cp
				output.NextVersionIDMarker = ""
			}
		}
	}

	return output, nil
}

// =============================================================================
// Helpers
// =============================================================================

// clampMaxKeys applies the default and the S3 page-size cap.
func clampMaxKeys(maxKeys int) int {
	if maxKeys <= 0 {
		return maxListKeys
	}
	if maxKeys > maxListKeys {
		return maxListKeys
	}
	return maxKeys
}

// commonPrefix reports whether the key rolls up under the delimiter, and
// the group prefix when it does. The group boundary is the first delimiter
// occurrence past the listing prefix.
func commonPrefix(key, prefix, delimiter string) (string, bool) {
	if delimiter == "" {
		return "", false
	}
	rest := key[len(prefix):]
	idx := strings.Index(rest, delimiter)
	if idx < 0 {
		return "", false
	}
	return key[:len(prefix)+idx+len(delimiter)], true
}

// groupEnd returns an exclusive scan marker past every key in the group:
// keys are at most MaxKeyLength bytes, so cp padded with that many 0xFF
// bytes sorts after every member and before every non-member.
func groupEnd(cp string) string {
	return cp + strings.Repeat("\xff", domain.MaxKeyLength)
}

// lastEmitted returns the greatest key or common prefix on the page.
func lastEmitted(contents []domain.EntryInfo, prefixes []string) string {
	last := ""
	if len(contents) > 0 {
		last = contents[len(contents)-1].Key
	}
	if len(prefixes) > 0 {
		if cp := prefixes[len(prefixes)-1]; cp > last {
			last = cp
		}
	}
	return last
}
