package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// blobRepository implements repository.BlobRepository for SQLite.
// Reference counts mutate through single UPSERT/RETURNING statements, so a
// count is never read and written in separate steps.
type blobRepository struct {
	db *DB
}

// NewBlobRepository creates a new SQLite blob repository.
func NewBlobRepository(db *DB) repository.BlobRepository {
	return &blobRepository{db: db}
}

const blobColumns = `content_hash, size, storage_path, ref_count, created_at, last_accessed`

// UpsertWithRefIncrement registers one reference to the content: the first
// reference inserts the row, later ones bump ref_count and refresh
// last_accessed. The update branch leaves created_at alone, so a returned
// created_at equal to this call's timestamp identifies a newly created blob.
func (r *blobRepository) UpsertWithRefIncrement(ctx context.Context, contentHash string, size int64, storagePath string) (bool, error) {
	query := `
		INSERT INTO blobs (content_hash, size, storage_path, ref_count, created_at, last_accessed)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (content_hash) DO UPDATE
		SET ref_count = ref_count + 1, last_accessed = excluded.last_accessed
		RETURNING created_at
	`

	now := time.Now().UTC().Format(timeLayout)
	var createdAt string
	if err := r.db.QueryRowContext(ctx, query, contentHash, size, storagePath, now, now).Scan(&createdAt); err != nil {
		return false, fmt.Errorf("failed to upsert blob: %w", err)
	}

	return createdAt == now, nil
}

// GetByHash retrieves a blob by its content hash.
func (r *blobRepository) GetByHash(ctx context.Context, contentHash string) (*domain.Blob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+blobColumns+` FROM blobs WHERE content_hash = ?`, contentHash)

	blob, err := scanBlob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, err
	}
	return blob, nil
}

// IncrementRef adds a reference, refreshing last_accessed. Used by copies
// that share the underlying content.
func (r *blobRepository) IncrementRef(ctx context.Context, contentHash string) error {
	query := `
		UPDATE blobs
		SET ref_count = ref_count + 1, last_accessed = ?
		WHERE content_hash = ?
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(timeLayout), contentHash)
	if err != nil {
		return fmt.Errorf("failed to increment ref count: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrBlobNotFound
	}
	return nil
}

// DecrementRef drops a reference and reports the remaining count in the
// same statement; a zero result marks the blob as a GC candidate.
func (r *blobRepository) DecrementRef(ctx context.Context, contentHash string) (int32, error) {
	query := `
		UPDATE blobs
		SET ref_count = ref_count - 1
		WHERE content_hash = ?
		RETURNING ref_count
	`

	var refCount int32
	err := r.db.QueryRowContext(ctx, query, contentHash).Scan(&refCount)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrBlobNotFound
		}
		return 0, fmt.Errorf("failed to decrement ref count: %w", err)
	}
	return refCount, nil
}

// GetRefCount returns the current reference count for a blob.
func (r *blobRepository) GetRefCount(ctx context.Context, contentHash string) (int32, error) {
	var refCount int32
	err := r.db.QueryRowContext(ctx,
		`SELECT ref_count FROM blobs WHERE content_hash = ?`, contentHash,
	).Scan(&refCount)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrBlobNotFound
		}
		return 0, fmt.Errorf("failed to get ref count: %w", err)
	}
	return refCount, nil
}

// Exists checks if a blob with the given hash exists.
func (r *blobRepository) Exists(ctx context.Context, contentHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blobs WHERE content_hash = ?)`, contentHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blob existence: %w", err)
	}
	return exists, nil
}

// Delete removes a blob's metadata row. The ref_count guard makes a racing
// re-reference win over the sweep.
func (r *blobRepository) Delete(ctx context.Context, contentHash string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE content_hash = ? AND ref_count <= 0`, contentHash)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrBlobNotFound
	}
	return nil
}

// ListOrphans returns unreferenced blobs past the grace period, oldest
// first so the sweep retires the longest-dead content before fresh churn.
func (r *blobRepository) ListOrphans(ctx context.Context, gracePeriod time.Duration, limit int) ([]*domain.Blob, error) {
	cutoff := time.Now().UTC().Add(-gracePeriod).Format(timeLayout)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+blobColumns+`
		FROM blobs
		WHERE ref_count <= 0 AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan blobs: %w", err)
	}
	defer rows.Close()

	var blobs []*domain.Blob
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blobs: %w", err)
	}

	return blobs, nil
}

// UpdateLastAccessed updates the last_accessed timestamp.
func (r *blobRepository) UpdateLastAccessed(ctx context.Context, contentHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE blobs SET last_accessed = ? WHERE content_hash = ?`,
		time.Now().UTC().Format(timeLayout), contentHash)
	if err != nil {
		return fmt.Errorf("failed to update last accessed: %w", err)
	}
	return nil
}

// scanBlob scans one blob row from either a Row or Rows.
func scanBlob(row scanner) (*domain.Blob, error) {
	blob := &domain.Blob{}
	var createdAt, lastAccessed string

	err := row.Scan(
		&blob.ContentHash,
		&blob.Size,
		&blob.StoragePath,
		&blob.RefCount,
		&createdAt,
		&lastAccessed,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan blob: %w", err)
	}

	blob.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	blob.LastAccessed, _ = time.Parse(timeLayout, lastAccessed)

	return blob, nil
}

// Ensure blobRepository implements repository.BlobRepository.
var _ repository.BlobRepository = (*blobRepository)(nil)
