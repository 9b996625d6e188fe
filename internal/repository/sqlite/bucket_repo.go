package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// bucketRepository implements repository.BucketRepository for SQLite.
type bucketRepository struct {
	db *DB
}

// NewBucketRepository creates a new SQLite bucket repository.
func NewBucketRepository(db *DB) repository.BucketRepository {
	return &bucketRepository{db: db}
}

// Create creates a new bucket.
func (r *bucketRepository) Create(ctx context.Context, bucket *domain.Bucket) error {
	query := `
		INSERT INTO buckets (name, versioning, mfa_delete, lock_enabled,
			lock_default_mode, lock_default_days, lock_default_years, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	var lockEnabled int
	var lockMode sql.NullString
	var lockDays, lockYears sql.NullInt64
	if bucket.ObjectLock != nil {
		lockEnabled = boolToInt(bucket.ObjectLock.Enabled)
		if dr := bucket.ObjectLock.DefaultRetention; dr != nil {
			lockMode = sql.NullString{String: string(dr.Mode), Valid: true}
			lockDays = sql.NullInt64{Int64: int64(dr.Days), Valid: true}
			lockYears = sql.NullInt64{Int64: int64(dr.Years), Valid: true}
		}
	}

	result, err := r.db.ExecContext(ctx, query,
		bucket.Name,
		string(bucket.Versioning),
		boolToInt(bucket.MFADelete),
		lockEnabled,
		lockMode,
		lockDays,
		lockYears,
		bucket.CreatedAt.Format(timeLayout),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBucketAlreadyExists
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	bucket.ID = id

	return nil
}

// GetByID retrieves a bucket by ID.
func (r *bucketRepository) GetByID(ctx context.Context, id int64) (*domain.Bucket, error) {
	return r.scanBucket(r.db.QueryRowContext(ctx, bucketSelect+` WHERE id = ?`, id))
}

// GetByName retrieves a bucket by name.
func (r *bucketRepository) GetByName(ctx context.Context, name string) (*domain.Bucket, error) {
	return r.scanBucket(r.db.QueryRowContext(ctx, bucketSelect+` WHERE name = ?`, name))
}

const bucketSelect = `
	SELECT id, name, versioning, mfa_delete, lock_enabled,
		lock_default_mode, lock_default_days, lock_default_years, seq, created_at
	FROM buckets`

// scanBucket scans a single bucket row.
func (r *bucketRepository) scanBucket(row *sql.Row) (*domain.Bucket, error) {
	bucket := &domain.Bucket{}
	var versioning string
	var mfaDelete, lockEnabled int
	var lockMode sql.NullString
	var lockDays, lockYears sql.NullInt64
	var createdAt string

	err := row.Scan(
		&bucket.ID,
		&bucket.Name,
		&versioning,
		&mfaDelete,
		&lockEnabled,
		&lockMode,
		&lockDays,
		&lockYears,
		&bucket.Seq,
		&createdAt,
	)

	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBucketNotFound
		}
		return nil, fmt.Errorf("failed to scan bucket: %w", err)
	}

	bucket.Versioning = domain.VersioningState(versioning)
	bucket.MFADelete = mfaDelete != 0
	if lockEnabled != 0 {
		cfg := &domain.ObjectLockConfig{Enabled: true}
		if lockMode.Valid {
			cfg.DefaultRetention = &domain.DefaultRetention{
				Mode:  domain.RetentionMode(lockMode.String),
				Days:  int(lockDays.Int64),
				Years: int(lockYears.Int64),
			}
		}
		bucket.ObjectLock = cfg
	}
	bucket.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	return bucket, nil
}

// List returns all buckets ordered by name.
func (r *bucketRepository) List(ctx context.Context) ([]*domain.Bucket, error) {
	rows, err := r.db.QueryContext(ctx, bucketSelect+` ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer rows.Close()

	var buckets []*domain.Bucket
	for rows.Next() {
		bucket := &domain.Bucket{}
		var versioning string
		var mfaDelete, lockEnabled int
		var lockMode sql.NullString
		var lockDays, lockYears sql.NullInt64
		var createdAt string

		err := rows.Scan(
			&bucket.ID,
			&bucket.Name,
			&versioning,
			&mfaDelete,
			&lockEnabled,
			&lockMode,
			&lockDays,
			&lockYears,
			&bucket.Seq,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}

		bucket.Versioning = domain.VersioningState(versioning)
		bucket.MFADelete = mfaDelete != 0
		if lockEnabled != 0 {
			cfg := &domain.ObjectLockConfig{Enabled: true}
			if lockMode.Valid {
				cfg.DefaultRetention = &domain.DefaultRetention{
					Mode:  domain.RetentionMode(lockMode.String),
					Days:  int(lockDays.Int64),
					Years: int(lockYears.Int64),
				}
			}
			bucket.ObjectLock = cfg
		}
		bucket.CreatedAt, _ = time.Parse(timeLayout, createdAt)

		buckets = append(buckets, bucket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buckets: %w", err)
	}

	return buckets, nil
}

// UpdateVersioning updates the versioning state and MFA-Delete flag.
func (r *bucketRepository) UpdateVersioning(ctx context.Context, id int64, state domain.VersioningState, mfaDelete bool) error {
	query := `UPDATE buckets SET versioning = ?, mfa_delete = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(state), boolToInt(mfaDelete), id)
	if err != nil {
		return fmt.Errorf("failed to update versioning: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrBucketNotFound
	}

	return nil
}

// UpdateObjectLock stores the bucket's Object Lock configuration.
func (r *bucketRepository) UpdateObjectLock(ctx context.Context, id int64, cfg *domain.ObjectLockConfig) error {
	query := `
		UPDATE buckets
		SET lock_enabled = ?, lock_default_mode = ?, lock_default_days = ?, lock_default_years = ?
		WHERE id = ?
	`

	var lockEnabled int
	var lockMode sql.NullString
	var lockDays, lockYears sql.NullInt64
	if cfg != nil {
		lockEnabled = boolToInt(cfg.Enabled)
		if dr := cfg.DefaultRetention; dr != nil {
			lockMode = sql.NullString{String: string(dr.Mode), Valid: true}
			lockDays = sql.NullInt64{Int64: int64(dr.Days), Valid: true}
			lockYears = sql.NullInt64{Int64: int64(dr.Years), Valid: true}
		}
	}

	result, err := r.db.ExecContext(ctx, query, lockEnabled, lockMode, lockDays, lockYears, id)
	if err != nil {
		return fmt.Errorf("failed to update object lock config: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrBucketNotFound
	}

	return nil
}

// Delete deletes a bucket by ID.
func (r *bucketRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM buckets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrBucketNotFound
	}

	return nil
}

// ExistsByName checks if a bucket with the given name exists.
func (r *bucketRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	return count > 0, nil
}

// IsEmpty checks if a bucket holds any entries, delete markers included.
func (r *bucketRepository) IsEmpty(ctx context.Context, id int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE bucket_id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check if bucket is empty: %w", err)
	}
	return count == 0, nil
}

// Ensure bucketRepository implements repository.BucketRepository.
var _ repository.BucketRepository = (*bucketRepository)(nil)
