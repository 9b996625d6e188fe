package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// entryRepository implements repository.EntryRepository for SQLite.
// Compound mutations run inside one transaction so readers observe either
// the old or the new state of a key, never an intermediate one.
type entryRepository struct {
	db *DB
}

// NewEntryRepository creates a new SQLite entry repository.
func NewEntryRepository(db *DB) repository.EntryRepository {
	return &entryRepository{db: db}
}

const entryColumns = `id, bucket_id, key, version_id, is_latest, is_delete_marker,
		content_hash, size, content_type, etag, metadata,
		retention_mode, retain_until, legal_hold, seq, created_at`

// AppendVersion inserts the entry as the key's new latest and flips any
// previously latest sibling, in one transaction.
func (r *entryRepository) AppendVersion(ctx context.Context, entry *domain.Entry) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSeq(ctx, tx, entry.BucketID)
		if err != nil {
			return err
		}
		entry.Seq = seq

		if err := markNotLatest(ctx, tx, entry.BucketID, entry.Key); err != nil {
			return err
		}

		return insertEntry(ctx, tx, entry)
	})
}

// ReplaceNull removes the key's "null"-version entry if present, flips any
// other latest sibling, and inserts the entry as the key's latest.
func (r *entryRepository) ReplaceNull(ctx context.Context, entry *domain.Entry) (*string, error) {
	var removedHash *string

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var contentHash sql.NullString
		var isDeleteMarker int
		err := tx.QueryRowContext(ctx,
			`SELECT content_hash, is_delete_marker FROM entries
				WHERE bucket_id = ? AND key = ? AND version_id = ?`,
			entry.BucketID, entry.Key, domain.NullVersionID,
		).Scan(&contentHash, &isDeleteMarker)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM entries WHERE bucket_id = ? AND key = ? AND version_id = ?`,
				entry.BucketID, entry.Key, domain.NullVersionID,
			); err != nil {
				return fmt.Errorf("failed to remove null entry: %w", err)
			}
			if contentHash.Valid && isDeleteMarker == 0 {
				removedHash = &contentHash.String
			}
		case isNoRows(err):
			// No null entry to replace.
		default:
			return fmt.Errorf("failed to look up null entry: %w", err)
		}

		seq, err := nextSeq(ctx, tx, entry.BucketID)
		if err != nil {
			return err
		}
		entry.Seq = seq

		if err := markNotLatest(ctx, tx, entry.BucketID, entry.Key); err != nil {
			return err
		}

		return insertEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	return removedHash, nil
}

// ReplaceUnversioned removes every entry for the key and inserts the entry
// as its sole latest.
func (r *entryRepository) ReplaceUnversioned(ctx context.Context, entry *domain.Entry) ([]string, error) {
	var removedHashes []string

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT content_hash FROM entries
				WHERE bucket_id = ? AND key = ? AND content_hash IS NOT NULL`,
			entry.BucketID, entry.Key,
		)
		if err != nil {
			return fmt.Errorf("failed to list replaced entries: %w", err)
		}
		for rows.Next() {
			var hash string
			if err := rows.Scan(&hash); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan replaced entry: %w", err)
			}
			removedHashes = append(removedHashes, hash)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating replaced entries: %w", err)
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entries WHERE bucket_id = ? AND key = ?`,
			entry.BucketID, entry.Key,
		); err != nil {
			return fmt.Errorf("failed to remove replaced entries: %w", err)
		}

		seq, err := nextSeq(ctx, tx, entry.BucketID)
		if err != nil {
			return err
		}
		entry.Seq = seq

		return insertEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	return removedHashes, nil
}

// GetLatest returns the key's latest entry.
func (r *entryRepository) GetLatest(ctx context.Context, bucketID int64, key string) (*domain.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM entries
		WHERE bucket_id = ? AND key = ? AND is_latest = 1`
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, bucketID, key))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrObjectNotFound
		}
		return nil, err
	}
	return entry, nil
}

// GetByVersion returns the entry with the given version ID.
func (r *entryRepository) GetByVersion(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM entries
		WHERE bucket_id = ? AND key = ? AND version_id = ?`
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, bucketID, key, versionID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListForKey returns every entry for the key ordered newest first.
func (r *entryRepository) ListForKey(ctx context.Context, bucketID int64, key string) ([]*domain.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM entries
		WHERE bucket_id = ? AND key = ?
		ORDER BY seq DESC`

	rows, err := r.db.QueryContext(ctx, query, bucketID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for key: %w", err)
	}
	defer rows.Close()

	var entries []*domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// Remove deletes the entry with the given version ID and promotes the
// greatest remaining entry when the removed one was latest.
func (r *entryRepository) Remove(ctx context.Context, bucketID int64, key, versionID string) (*domain.Entry, error) {
	var removed *domain.Entry

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + entryColumns + `
			FROM entries
			WHERE bucket_id = ? AND key = ? AND version_id = ?`
		entry, err := scanEntry(tx.QueryRowContext(ctx, query, bucketID, key, versionID))
		if err != nil {
			if isNoRows(err) {
				// Absent version: removal is idempotent.
				return nil
			}
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, entry.ID); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}

		if entry.IsLatest {
			if _, err := tx.ExecContext(ctx, `
				UPDATE entries SET is_latest = 1
				WHERE id = (
					SELECT id FROM entries
					WHERE bucket_id = ? AND key = ?
					ORDER BY seq DESC
					LIMIT 1
				)`, bucketID, key,
			); err != nil {
				return fmt.Errorf("failed to promote latest entry: %w", err)
			}
		}

		removed = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	return removed, nil
}

// UpdateRetention replaces the entry's retention. Nil clears it.
func (r *entryRepository) UpdateRetention(ctx context.Context, id int64, retention *domain.Retention) error {
	var mode sql.NullString
	var until sql.NullString
	if retention != nil {
		mode = sql.NullString{String: string(retention.Mode), Valid: true}
		until = sql.NullString{String: retention.RetainUntil.UTC().Format(timeLayout), Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE entries SET retention_mode = ?, retain_until = ? WHERE id = ?`,
		mode, until, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update retention: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrVersionNotFound
	}

	return nil
}

// UpdateLegalHold sets the entry's legal hold flag.
func (r *entryRepository) UpdateLegalHold(ctx context.Context, id int64, hold bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE entries SET legal_hold = ? WHERE id = ?`,
		boolToInt(hold), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update legal hold: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrVersionNotFound
	}

	return nil
}

// ListCurrent returns latest data-version rows in key order.
func (r *entryRepository) ListCurrent(ctx context.Context, bucketID int64, opts repository.CurrentListOptions) ([]*domain.EntryInfo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT key, etag, size, created_at
		FROM entries
		WHERE bucket_id = ? AND is_latest = 1 AND is_delete_marker = 0
			AND (? = '' OR instr(key, ?) = 1)
			AND (? = '' OR key > ?)
		ORDER BY key ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		bucketID, opts.Prefix, opts.Prefix, opts.StartAfter, opts.StartAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list current entries: %w", err)
	}
	defer rows.Close()

	var infos []*domain.EntryInfo
	for rows.Next() {
		info := &domain.EntryInfo{}
		var etag sql.NullString
		var createdAt string

		if err := rows.Scan(&info.Key, &etag, &info.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan current entry: %w", err)
		}
		if etag.Valid {
			info.ETag = etag.String
		}
		info.LastModified, _ = time.Parse(timeLayout, createdAt)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating current entries: %w", err)
	}

	return infos, nil
}

// ListVersions returns raw entry rows ordered (key asc, seq desc).
func (r *entryRepository) ListVersions(ctx context.Context, bucketID int64, opts repository.VersionListOptions) ([]*domain.VersionInfo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT key, version_id, is_latest, is_delete_marker, etag, size, created_at, seq
		FROM entries
		WHERE bucket_id = ?
			AND (? = '' OR instr(key, ?) = 1)
			AND (? = '' OR key > ? OR (? > 0 AND key = ? AND seq < ?))
		ORDER BY key ASC, seq DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		bucketID,
		opts.Prefix, opts.Prefix,
		opts.KeyMarker, opts.KeyMarker, opts.SeqMarker, opts.KeyMarker, opts.SeqMarker,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var infos []*domain.VersionInfo
	for rows.Next() {
		info := &domain.VersionInfo{}
		var isLatest, isDeleteMarker int
		var etag sql.NullString
		var createdAt string

		err := rows.Scan(
			&info.Key,
			&info.VersionID,
			&isLatest,
			&isDeleteMarker,
			&etag,
			&info.Size,
			&createdAt,
			&info.Seq,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		info.IsLatest = isLatest != 0
		info.IsDeleteMarker = isDeleteMarker != 0
		if etag.Valid {
			info.ETag = etag.String
		}
		info.LastModified, _ = time.Parse(timeLayout, createdAt)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return infos, nil
}

// GetSeqForVersion resolves a version ID on a key to its sequence number.
func (r *entryRepository) GetSeqForVersion(ctx context.Context, bucketID int64, key, versionID string) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx,
		`SELECT seq FROM entries WHERE bucket_id = ? AND key = ? AND version_id = ?`,
		bucketID, key, versionID,
	).Scan(&seq)
	if err != nil {
		if isNoRows(err) {
			return 0, domain.ErrVersionNotFound
		}
		return 0, fmt.Errorf("failed to get version sequence: %w", err)
	}
	return seq, nil
}

// CountByBucket counts all entries in a bucket, delete markers included.
func (r *entryRepository) CountByBucket(ctx context.Context, bucketID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE bucket_id = ?`,
		bucketID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// =============================================================================
// Transaction Helpers
// =============================================================================

// nextSeq advances and returns the bucket's write sequence inside tx.
func nextSeq(ctx context.Context, tx *sql.Tx, bucketID int64) (int64, error) {
	result, err := tx.ExecContext(ctx, `UPDATE buckets SET seq = seq + 1 WHERE id = ?`, bucketID)
	if err != nil {
		return 0, fmt.Errorf("failed to advance bucket sequence: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return 0, domain.ErrBucketNotFound
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM buckets WHERE id = ?`, bucketID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read bucket sequence: %w", err)
	}
	return seq, nil
}

// markNotLatest flips the key's latest entry to non-latest inside tx.
func markNotLatest(ctx context.Context, tx *sql.Tx, bucketID int64, key string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE entries SET is_latest = 0 WHERE bucket_id = ? AND key = ? AND is_latest = 1`,
		bucketID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to mark as not latest: %w", err)
	}
	return nil
}

// insertEntry inserts the entry row inside tx and fills entry.ID.
func insertEntry(ctx context.Context, tx *sql.Tx, entry *domain.Entry) error {
	query := `
		INSERT INTO entries (bucket_id, key, version_id, is_latest, is_delete_marker,
			content_hash, size, content_type, etag, metadata,
			retention_mode, retain_until, legal_hold, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var metadataJSON string
	if entry.Metadata != nil {
		data, _ := json.Marshal(entry.Metadata)
		metadataJSON = string(data)
	} else {
		metadataJSON = "{}"
	}

	var etag sql.NullString
	if entry.ETag != "" {
		etag = sql.NullString{String: entry.ETag, Valid: true}
	}

	var retentionMode, retainUntil sql.NullString
	if entry.Retention != nil {
		retentionMode = sql.NullString{String: string(entry.Retention.Mode), Valid: true}
		retainUntil = sql.NullString{String: entry.Retention.RetainUntil.UTC().Format(timeLayout), Valid: true}
	}

	result, err := tx.ExecContext(ctx, query,
		entry.BucketID,
		entry.Key,
		entry.VersionID,
		boolToInt(entry.IsLatest),
		boolToInt(entry.IsDeleteMarker),
		entry.ContentHash,
		entry.Size,
		entry.ContentType,
		etag,
		metadataJSON,
		retentionMode,
		retainUntil,
		boolToInt(entry.LegalHold),
		entry.Seq,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	entry.ID = id

	return nil
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans a full entry row.
func scanEntry(row scanner) (*domain.Entry, error) {
	entry := &domain.Entry{}
	var isLatest, isDeleteMarker, legalHold int
	var contentHash, etag, metadataJSON sql.NullString
	var retentionMode, retainUntil sql.NullString
	var createdAt string

	err := row.Scan(
		&entry.ID,
		&entry.BucketID,
		&entry.Key,
		&entry.VersionID,
		&isLatest,
		&isDeleteMarker,
		&contentHash,
		&entry.Size,
		&entry.ContentType,
		&etag,
		&metadataJSON,
		&retentionMode,
		&retainUntil,
		&legalHold,
		&entry.Seq,
		&createdAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}

	entry.IsLatest = isLatest != 0
	entry.IsDeleteMarker = isDeleteMarker != 0
	entry.LegalHold = legalHold != 0
	if contentHash.Valid {
		entry.ContentHash = &contentHash.String
	}
	if etag.Valid {
		entry.ETag = etag.String
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata)
	}
	if retentionMode.Valid && retainUntil.Valid {
		until, _ := time.Parse(timeLayout, retainUntil.String)
		entry.Retention = &domain.Retention{
			Mode:        domain.RetentionMode(retentionMode.String),
			RetainUntil: until,
		}
	}
	entry.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	return entry, nil
}

// Ensure entryRepository implements repository.EntryRepository.
var _ repository.EntryRepository = (*entryRepository)(nil)
