// Package s3 implements a blob storage backend on a remote S3-compatible
// store. Blobs live under a content-addressed key prefix inside a single
// backing bucket; the engine's metadata store still owns reference counting.
package s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/internal/storage"
)

// Config holds S3 backend settings.
type Config struct {
	// Endpoint is the S3-compatible endpoint URL. Empty means AWS.
	Endpoint string

	// Region is the bucket region.
	Region string

	// Bucket is the backing bucket holding all blobs.
	Bucket string

	// KeyPrefix is prepended to every blob key. Default "blobs".
	KeyPrefix string

	// AccessKeyID and SecretAccessKey are static credentials.
	// Empty means the default credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle forces path-style addressing (most non-AWS endpoints).
	UsePathStyle bool

	// TempDir is the staging directory used to hash bodies before upload.
	TempDir string
}

// Storage implements storage.Backend on a remote S3-compatible store.
type Storage struct {
	client    *awss3.Client
	bucket    string
	keyPrefix string
	tempDir   string
	logger    zerolog.Logger
}

// NewStorage creates a new S3 storage backend.
func NewStorage(ctx context.Context, cfg Config, logger zerolog.Logger) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a backing bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "blobs"
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Storage{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: keyPrefix,
		tempDir:   tempDir,
		logger:    logger.With().Str("storage", "s3").Logger(),
	}, nil
}

// Store stages the body locally to compute its content hash, then uploads it
// under the content-addressed key. Existing blobs are not re-uploaded.
func (s *Storage) Store(ctx context.Context, reader io.Reader, size int64) (string, error) {
	tmp, err := os.CreateTemp(s.tempDir, "blob-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), reader)
	if err != nil {
		return "", fmt.Errorf("failed to stage blob: %w", err)
	}
	contentHash := hex.EncodeToString(hasher.Sum(nil))
	if size >= 0 && written != size {
		return "", storage.ErrSizeMismatch
	}

	exists, err := s.Exists(ctx, contentHash)
	if err != nil {
		return "", err
	}
	if exists {
		return contentHash, nil
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind temp file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(contentHash)),
		Body:          tmp,
		ContentLength: aws.Int64(written),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}

	s.logger.Debug().
		Str("content_hash", contentHash).
		Int64("size", written).
		Msg("blob uploaded")

	return contentHash, nil
}

// Retrieve streams the blob from the backing bucket.
func (s *Storage) Retrieve(ctx context.Context, contentHash string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(contentHash)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return out.Body, nil
}

// Delete removes the blob from the backing bucket.
func (s *Storage) Delete(ctx context.Context, contentHash string) error {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(contentHash)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists checks for the blob with a HEAD request.
func (s *Storage) Exists(ctx context.Context, contentHash string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(contentHash)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head blob: %w", err)
	}
	return true, nil
}

// GetSize returns the blob size from a HEAD request.
func (s *Storage) GetSize(ctx context.Context, contentHash string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(contentHash)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, storage.ErrBlobNotFound
		}
		return 0, fmt.Errorf("failed to head blob: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// GetPath returns the blob's key in the backing bucket.
func (s *Storage) GetPath(contentHash string) string {
	return s.key(contentHash)
}

// key shards the content hash the same way the filesystem backend does.
func (s *Storage) key(contentHash string) string {
	if len(contentHash) < 4 {
		return path.Join(s.keyPrefix, contentHash)
	}
	return path.Join(s.keyPrefix, contentHash[0:2], contentHash[2:4], contentHash)
}

// isNoSuchKey reports whether the error is an S3 NoSuchKey.
func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	return errors.As(err, &noKey)
}

// isNotFound reports whether the error is an S3 NotFound (HEAD responses).
func isNotFound(err error) bool {
	var notFound *types.NotFound
	return errors.As(err, &notFound) || isNoSuchKey(err)
}

// Ensure Storage implements storage.Backend.
var _ storage.Backend = (*Storage)(nil)
