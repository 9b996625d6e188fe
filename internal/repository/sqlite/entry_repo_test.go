package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/repository"
)

// newTestDB opens a migrated in-memory database.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(context.Background(), DefaultConfig(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

// newTestBucket creates a bucket row and returns it.
func newTestBucket(t *testing.T, db *DB, name string, state domain.VersioningState) *domain.Bucket {
	t.Helper()

	repo := NewBucketRepository(db)
	bucket := domain.NewBucket(name)
	bucket.Versioning = state
	require.NoError(t, repo.Create(context.Background(), bucket))
	return bucket
}

func appendData(t *testing.T, repo repository.EntryRepository, bucketID int64, key, body string) *domain.Entry {
	t.Helper()

	hash := "hash-" + body
	entry := domain.NewDataVersion(bucketID, key, hash, "text/plain", "etag-"+body, int64(len(body)))
	require.NoError(t, repo.AppendVersion(context.Background(), entry))
	return entry
}

func TestAppendVersionFlipsLatest(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "append-test", domain.VersioningEnabled)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	e1 := appendData(t, repo, bucket.ID, "f", "one")
	e2 := appendData(t, repo, bucket.ID, "f", "two")

	require.Less(t, e1.Seq, e2.Seq)

	entries, err := repo.ListForKey(ctx, bucket.ID, "f")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, e2.VersionID, entries[0].VersionID)
	require.True(t, entries[0].IsLatest)
	require.Equal(t, e1.VersionID, entries[1].VersionID)
	require.False(t, entries[1].IsLatest)

	latest, err := repo.GetLatest(ctx, bucket.ID, "f")
	require.NoError(t, err)
	require.Equal(t, e2.VersionID, latest.VersionID)
}

func TestRemovePromotesPrevious(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "remove-test", domain.VersioningEnabled)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	e1 := appendData(t, repo, bucket.ID, "f", "one")
	dm := domain.NewDeleteMarker(bucket.ID, "f")
	require.NoError(t, repo.AppendVersion(ctx, dm))

	// The marker is latest and the data version is not.
	latest, err := repo.GetLatest(ctx, bucket.ID, "f")
	require.NoError(t, err)
	require.True(t, latest.IsDeleteMarker)

	// Removing the marker restores the data version to latest.
	removed, err := repo.Remove(ctx, bucket.ID, "f", dm.VersionID)
	require.NoError(t, err)
	require.NotNil(t, removed)
	require.True(t, removed.IsDeleteMarker)

	latest, err = repo.GetLatest(ctx, bucket.ID, "f")
	require.NoError(t, err)
	require.Equal(t, e1.VersionID, latest.VersionID)
	require.True(t, latest.IsLatest)
}

func TestRemoveAbsentVersionIsNil(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "absent-test", domain.VersioningEnabled)
	repo := NewEntryRepository(db)

	removed, err := repo.Remove(context.Background(), bucket.ID, "f", "nope")
	require.NoError(t, err)
	require.Nil(t, removed)
}

func TestReplaceNullKeepsVersionedEntries(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "null-test", domain.VersioningEnabled)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	versioned := appendData(t, repo, bucket.ID, "f", "versioned")

	// First null write appends, nothing removed.
	null1 := domain.NewNullDataVersion(bucket.ID, "f", "hash-null1", "text/plain", "etag-null1", 5)
	removedHash, err := repo.ReplaceNull(ctx, null1)
	require.NoError(t, err)
	require.Nil(t, removedHash)

	// Second null write replaces the first in place.
	null2 := domain.NewNullDataVersion(bucket.ID, "f", "hash-null2", "text/plain", "etag-null2", 5)
	removedHash, err = repo.ReplaceNull(ctx, null2)
	require.NoError(t, err)
	require.NotNil(t, removedHash)
	require.Equal(t, "hash-null1", *removedHash)

	entries, err := repo.ListForKey(ctx, bucket.ID, "f")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, domain.NullVersionID, entries[0].VersionID)
	require.True(t, entries[0].IsLatest)
	require.Equal(t, versioned.VersionID, entries[1].VersionID)
	require.False(t, entries[1].IsLatest)
}

func TestReplaceUnversionedRemovesAll(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "plain-test", domain.VersioningUnversioned)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	first := domain.NewNullDataVersion(bucket.ID, "f", "hash-a", "text/plain", "etag-a", 1)
	removed, err := repo.ReplaceUnversioned(ctx, first)
	require.NoError(t, err)
	require.Empty(t, removed)

	second := domain.NewNullDataVersion(bucket.ID, "f", "hash-b", "text/plain", "etag-b", 1)
	removed, err = repo.ReplaceUnversioned(ctx, second)
	require.NoError(t, err)
	require.Equal(t, []string{"hash-a"}, removed)

	entries, err := repo.ListForKey(ctx, bucket.ID, "f")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hash-b", *entries[0].ContentHash)
}

func TestListCurrentSkipsDeleteMarkers(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "current-test", domain.VersioningEnabled)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	appendData(t, repo, bucket.ID, "x", "1")
	appendData(t, repo, bucket.ID, "y", "2")
	appendData(t, repo, bucket.ID, "z", "3")
	require.NoError(t, repo.AppendVersion(ctx, domain.NewDeleteMarker(bucket.ID, "y")))

	rows, err := repo.ListCurrent(ctx, bucket.ID, repository.CurrentListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "x", rows[0].Key)
	require.Equal(t, "z", rows[1].Key)

	// Start-after narrows the scan.
	rows, err = repo.ListCurrent(ctx, bucket.ID, repository.CurrentListOptions{StartAfter: "x", Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "z", rows[0].Key)
}

func TestListVersionsMarkerPredicate(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "marker-test", domain.VersioningEnabled)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	e1 := appendData(t, repo, bucket.ID, "f", "one")
	e2 := appendData(t, repo, bucket.ID, "f", "two")
	e3 := appendData(t, repo, bucket.ID, "g", "three")

	all, err := repo.ListVersions(ctx, bucket.ID, repository.VersionListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, e2.VersionID, all[0].VersionID)
	require.Equal(t, e1.VersionID, all[1].VersionID)
	require.Equal(t, e3.VersionID, all[2].VersionID)

	// Resume below e2 on key "f".
	seq, err := repo.GetSeqForVersion(ctx, bucket.ID, "f", e2.VersionID)
	require.NoError(t, err)
	rest, err := repo.ListVersions(ctx, bucket.ID, repository.VersionListOptions{
		KeyMarker: "f",
		SeqMarker: seq,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, e1.VersionID, rest[0].VersionID)
	require.Equal(t, e3.VersionID, rest[1].VersionID)
}

func TestRetentionAndLegalHoldPersist(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "lockstate-test", domain.VersioningEnabled)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	entry := appendData(t, repo, bucket.ID, "f", "locked")

	retention := &domain.Retention{Mode: domain.RetentionCompliance, RetainUntil: entry.CreatedAt.Add(24 * time.Hour)}
	require.NoError(t, repo.UpdateRetention(ctx, entry.ID, retention))
	require.NoError(t, repo.UpdateLegalHold(ctx, entry.ID, true))

	got, err := repo.GetByVersion(ctx, bucket.ID, "f", entry.VersionID)
	require.NoError(t, err)
	require.NotNil(t, got.Retention)
	require.Equal(t, domain.RetentionCompliance, got.Retention.Mode)
	require.True(t, got.LegalHold)

	// Clearing retention leaves the hold in place.
	require.NoError(t, repo.UpdateRetention(ctx, entry.ID, nil))
	got, err = repo.GetByVersion(ctx, bucket.ID, "f", entry.VersionID)
	require.NoError(t, err)
	require.Nil(t, got.Retention)
	require.True(t, got.LegalHold)
}

func TestBucketIsEmptyCountsMarkers(t *testing.T) {
	db := newTestDB(t)
	bucket := newTestBucket(t, db, "empty-test", domain.VersioningEnabled)
	bucketRepo := NewBucketRepository(db)
	repo := NewEntryRepository(db)
	ctx := context.Background()

	empty, err := bucketRepo.IsEmpty(ctx, bucket.ID)
	require.NoError(t, err)
	require.True(t, empty)

	dm := domain.NewDeleteMarker(bucket.ID, "ghost")
	require.NoError(t, repo.AppendVersion(ctx, dm))

	empty, err = bucketRepo.IsEmpty(ctx, bucket.ID)
	require.NoError(t, err)
	require.False(t, empty)
}
