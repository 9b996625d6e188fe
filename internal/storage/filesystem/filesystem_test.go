package filesystem

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-engine/internal/pkg/crypto"
	"github.com/prn-tf/alexander-engine/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := NewStorage(Config{DataDir: filepath.Join(t.TempDir(), "blobs")}, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestStoreAndRetrieve(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	body := []byte("hello blob")

	hash, err := s.Store(ctx, bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Equal(t, crypto.ComputeSHA256(body), hash)

	reader, err := s.Retrieve(ctx, hash)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, body, data)

	size, err := s.GetSize(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), size)

	exists, err := s.Exists(ctx, hash)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestStoreDeduplicates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	body := []byte("same content")

	h1, err := s.Store(ctx, bytes.NewReader(body), -1)
	require.NoError(t, err)
	h2, err := s.Store(ctx, bytes.NewReader(body), -1)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestStoreSizeMismatch(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Store(context.Background(), bytes.NewReader([]byte("abc")), 5)
	require.ErrorIs(t, err, storage.ErrSizeMismatch)
}

func TestStoreCancelledLeavesNothing(t *testing.T) {
	s := newTestStorage(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Store(ctx, bytes.NewReader([]byte("body")), 4)
	require.Error(t, err)

	// No staged temp file survives a cancelled write.
	entries, err := os.ReadDir(s.tempDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDeleteAndMissing(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	hash, err := s.Store(ctx, bytes.NewReader([]byte("gone soon")), -1)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, hash))
	require.ErrorIs(t, s.Delete(ctx, hash), storage.ErrBlobNotFound)

	_, err = s.Retrieve(ctx, hash)
	require.ErrorIs(t, err, storage.ErrBlobNotFound)

	_, err = s.GetSize(ctx, hash)
	require.ErrorIs(t, err, storage.ErrBlobNotFound)

	exists, err := s.Exists(ctx, hash)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestShardedPaths(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	hash, err := s.Store(ctx, bytes.NewReader([]byte("sharded")), -1)
	require.NoError(t, err)

	path := s.GetPath(hash)
	require.Contains(t, path, filepath.Join(hash[0:2], hash[2:4], hash))

	_, err = os.Stat(path)
	require.NoError(t, err)
}
