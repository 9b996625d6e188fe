// Package filesystem implements a content-addressable blob store on the
// local filesystem. Bodies stream into a temp file while hashing, then are
// promoted into the sharded data directory with an atomic rename.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/internal/storage"
)

// Config holds filesystem backend settings.
type Config struct {
	// DataDir is the root directory for blob storage.
	DataDir string

	// TempDir is the staging directory for in-flight writes.
	// Must be on the same filesystem as DataDir for atomic renames.
	TempDir string
}

// Storage implements storage.Backend on the local filesystem.
type Storage struct {
	pathConfig storage.PathConfig
	tempDir    string
	logger     zerolog.Logger
}

// NewStorage creates a new filesystem storage backend, creating the data and
// temp directories if needed.
func NewStorage(cfg Config, logger zerolog.Logger) (*Storage, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("filesystem storage requires a data directory")
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(cfg.DataDir, ".tmp")
	}

	for _, dir := range []string{cfg.DataDir, tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	return &Storage{
		pathConfig: storage.DefaultPathConfig(cfg.DataDir),
		tempDir:    tempDir,
		logger:     logger.With().Str("storage", "filesystem").Logger(),
	}, nil
}

// Store streams content to a temp file while hashing, then promotes it to
// its content-addressed location. A failed or cancelled write only leaves a
// temp file, which is removed before returning.
func (s *Storage) Store(ctx context.Context, reader io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

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
	written, err := io.Copy(io.MultiWriter(tmp, hasher), &contextReader{ctx: ctx, r: reader})
	if err != nil {
		return "", fmt.Errorf("failed to stage blob: %w", err)
	}
	if size >= 0 && written != size {
		return "", storage.ErrSizeMismatch
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	contentHash := hex.EncodeToString(hasher.Sum(nil))
	finalPath := storage.ComputePath(s.pathConfig, contentHash)

	// Deduplicate: identical content is already in place.
	if _, err := os.Stat(finalPath); err == nil {
		return contentHash, nil
	}

	if err := os.MkdirAll(storage.GetShardPath(s.pathConfig, contentHash), 0o755); err != nil {
		return "", fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to promote blob: %w", err)
	}

	s.logger.Debug().
		Str("content_hash", contentHash).
		Int64("size", written).
		Msg("blob stored")

	return contentHash, nil
}

// Retrieve opens the blob at its content-addressed location.
func (s *Storage) Retrieve(ctx context.Context, contentHash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(storage.ComputePath(s.pathConfig, contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob file. Missing blobs yield ErrBlobNotFound.
func (s *Storage) Delete(ctx context.Context, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(storage.ComputePath(s.pathConfig, contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists checks if a blob file is present.
func (s *Storage) Exists(ctx context.Context, contentHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(storage.ComputePath(s.pathConfig, contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return true, nil
}

// GetSize returns the blob file size.
func (s *Storage) GetSize(ctx context.Context, contentHash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(storage.ComputePath(s.pathConfig, contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, storage.ErrBlobNotFound
		}
		return 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Size(), nil
}

// GetPath returns the content-addressed path for a hash.
func (s *Storage) GetPath(contentHash string) string {
	return storage.ComputePath(s.pathConfig, contentHash)
}

// contextReader aborts a copy when the context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

// Read implements io.Reader.
func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Ensure Storage implements storage.Backend.
var _ storage.Backend = (*Storage)(nil)
