package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	cachemem "github.com/prn-tf/alexander-engine/internal/cache/memory"
	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/keylock"
	"github.com/prn-tf/alexander-engine/internal/lock"
	"github.com/prn-tf/alexander-engine/internal/metrics"
	"github.com/prn-tf/alexander-engine/internal/pagination"
	"github.com/prn-tf/alexander-engine/internal/repository"
	"github.com/prn-tf/alexander-engine/internal/repository/sqlite"
	"github.com/prn-tf/alexander-engine/internal/service"
	"github.com/prn-tf/alexander-engine/internal/storage"
	"github.com/prn-tf/alexander-engine/internal/storage/filesystem"
)

// Config configures an embedded engine instance.
// DataDir is the single mandatory option.
type Config struct {
	// DataDir is the on-disk location of the metadata database and the
	// blob directory.
	DataDir string

	// Conditional enables enforcement of conditional request predicates.
	// When disabled, conditions behave as if absent.
	Conditional bool

	// Logger receives structured logs. The zero value disables logging.
	Logger zerolog.Logger

	// Backend overrides the blob storage backend. Nil selects the
	// filesystem backend under DataDir.
	Backend storage.Backend

	// BlobRepository overrides the blob metadata repository. Nil keeps
	// blob metadata in the embedded SQLite store; deployments sharing a
	// blob directory across processes point this at PostgreSQL.
	BlobRepository repository.BlobRepository

	// Locker overrides the GC process lock. Nil selects in-memory locking.
	Locker lock.Locker

	// Metrics receives engine instrumentation. Optional.
	Metrics *metrics.Metrics

	// GC configures background blob garbage collection. Zero value
	// disables the scheduler; RunGC remains available.
	GC service.GCConfig

	// KeyLockStripes sizes the per-key write serialization table.
	KeyLockStripes int
}

// Engine is an embedded, S3-compatible object-store engine.
// All methods are safe for concurrent use.
type Engine struct {
	db      *sqlite.DB
	cache   *cachemem.Cache
	buckets *service.BucketService
	objects *service.ObjectService
	lists   *service.ListService
	locks   *service.RetentionService
	gc      *service.GarbageCollector
	logger  zerolog.Logger
}

// Open initializes an engine rooted at cfg.DataDir: opens (and migrates)
// the metadata database, prepares the blob backend, and wires the services.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("engine: data directory is required")
	}

	logger := cfg.Logger

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: failed to create data directory: %w", err)
	}

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(filepath.Join(cfg.DataDir, "metadata.db")), logger)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to open metadata store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: failed to migrate metadata store: %w", err)
	}

	backend := cfg.Backend
	if backend == nil {
		backend, err = filesystem.NewStorage(filesystem.Config{
			DataDir: filepath.Join(cfg.DataDir, "blobs"),
			TempDir: filepath.Join(cfg.DataDir, "tmp"),
		}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("engine: failed to init blob storage: %w", err)
		}
	}

	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}

	tokens, err := pagination.NewCodec(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: failed to init pagination codec: %w", err)
	}

	repos := repository.Repositories{
		Bucket: sqlite.NewBucketRepository(db),
		Entry:  sqlite.NewEntryRepository(db),
		Blob:   cfg.BlobRepository,
	}
	if repos.Blob == nil {
		repos.Blob = sqlite.NewBlobRepository(db)
	}

	cache := cachemem.NewCache()
	keys := keylock.New(cfg.KeyLockStripes)

	buckets := service.NewBucketService(repos.Bucket, repos.Entry, cache, logger)
	objects := service.NewObjectService(repos.Entry, repos.Blob, buckets, backend, keys, cfg.Conditional, logger)
	lists := service.NewListService(repos.Entry, buckets, tokens, logger)
	locks := service.NewRetentionService(repos.Entry, buckets, logger)

	gc := service.NewGarbageCollector(repos.Blob, backend, locker, cfg.Metrics, logger, cfg.GC)
	if cfg.GC.Enabled {
		gc.Start()
	}

	return &Engine{
		db:      db,
		cache:   cache,
		buckets: buckets,
		objects: objects,
		lists:   lists,
		locks:   locks,
		gc:      gc,
		logger:  logger,
	}, nil
}

// Close stops background work and releases the metadata store.
// Persisted state is fully recoverable by a subsequent Open.
func (e *Engine) Close() error {
	if e.gc != nil {
		e.gc.Stop()
	}
	e.cache.Stop()
	return e.db.Close()
}

// ErrorCode maps an engine error to its stable wire code (empty for nil).
func ErrorCode(err error) string {
	return domain.Code(err)
}

// HTTPStatus maps a wire code to the HTTP status a facade should use.
func HTTPStatus(code string) int {
	return domain.HTTPStatus(code)
}

// =============================================================================
// Bucket Operations
// =============================================================================

// CreateBucket creates a bucket, failing when the name is taken.
// objectLock creates the bucket with Object Lock on (forces versioning).
func (e *Engine) CreateBucket(ctx context.Context, name string, objectLock bool) error {
	_, err := e.buckets.CreateBucket(ctx, service.CreateBucketInput{
		Name:              name,
		ObjectLockEnabled: objectLock,
	})
	return err
}

// EnsureBucket idempotently ensures the bucket exists.
func (e *Engine) EnsureBucket(ctx context.Context, name string) error {
	_, err := e.buckets.EnsureBucket(ctx, name)
	return err
}

// DeleteBucket deletes an empty bucket.
func (e *Engine) DeleteBucket(ctx context.Context, name string) error {
	return e.buckets.DeleteBucket(ctx, name)
}

// HeadBucket checks bucket existence.
func (e *Engine) HeadBucket(ctx context.Context, name string) error {
	return e.buckets.HeadBucket(ctx, name)
}

// ListBuckets returns all buckets ordered by name.
func (e *Engine) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	buckets, err := e.buckets.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(buckets, func(b *domain.Bucket, _ int) BucketInfo {
		return BucketInfo{
			Name:       b.Name,
			Versioning: VersioningState(b.Versioning),
			MFADelete:  b.MFADelete,
			ObjectLock: b.ObjectLock != nil && b.ObjectLock.Enabled,
			CreatedAt:  b.CreatedAt,
		}
	}), nil
}

// PutBucketVersioning transitions the bucket's versioning state.
// mfaDelete nil leaves the stored flag untouched.
func (e *Engine) PutBucketVersioning(ctx context.Context, name string, state VersioningState, mfaDelete *bool) error {
	return e.buckets.PutBucketVersioning(ctx, service.PutBucketVersioningInput{
		Name:      name,
		State:     domain.VersioningState(state),
		MFADelete: mfaDelete,
	})
}

// GetBucketVersioning returns the versioning state and MFA-Delete flag.
func (e *Engine) GetBucketVersioning(ctx context.Context, name string) (*VersioningInfo, error) {
	out, err := e.buckets.GetBucketVersioning(ctx, name)
	if err != nil {
		return nil, err
	}
	return &VersioningInfo{
		State:     VersioningState(out.State),
		MFADelete: out.MFADelete,
	}, nil
}

// PutObjectLockConfiguration stores the bucket's Object Lock configuration.
func (e *Engine) PutObjectLockConfiguration(ctx context.Context, name string, cfg ObjectLockConfig) error {
	return e.buckets.PutObjectLockConfig(ctx, name, toDomainLockConfig(cfg))
}

// GetObjectLockConfiguration returns the bucket's Object Lock configuration.
func (e *Engine) GetObjectLockConfiguration(ctx context.Context, name string) (*ObjectLockConfig, error) {
	cfg, err := e.buckets.GetObjectLockConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	out := &ObjectLockConfig{Enabled: cfg.Enabled}
	if cfg.DefaultRetention != nil {
		out.DefaultRetention = &DefaultRetention{
			Mode:  RetentionMode(cfg.DefaultRetention.Mode),
			Days:  cfg.DefaultRetention.Days,
			Years: cfg.DefaultRetention.Years,
		}
	}
	return out, nil
}

// =============================================================================
// Object Operations
// =============================================================================

// PutObject stores an object under the bucket's versioning semantics.
func (e *Engine) PutObject(ctx context.Context, input PutObjectInput) (*PutObjectResult, error) {
	out, err := e.objects.PutObject(ctx, service.PutObjectInput{
		BucketName:  input.Bucket,
		Key:         input.Key,
		Body:        input.Body,
		Size:        input.Size,
		ContentType: input.ContentType,
		Metadata:    input.Metadata,
		Conditions:  toServiceConditions(input.Conditions),
	})
	if err != nil {
		return nil, err
	}
	return &PutObjectResult{
		ETag:      out.ETag,
		VersionID: out.VersionID,
		Size:      out.Size,
	}, nil
}

// GetObject retrieves an object body and metadata. The returned Body must
// be closed by the caller.
func (e *Engine) GetObject(ctx context.Context, input GetObjectInput) (*Object, error) {
	out, err := e.objects.GetObject(ctx, service.GetObjectInput{
		BucketName: input.Bucket,
		Key:        input.Key,
		VersionID:  input.VersionID,
		Conditions: toServiceConditions(input.Conditions),
	})
	if err != nil {
		return nil, err
	}
	return &Object{
		Body:          out.Body,
		ContentLength: out.ContentLength,
		ContentType:   out.ContentType,
		ETag:          out.ETag,
		LastModified:  out.LastModified,
		VersionID:     out.VersionID,
		Metadata:      out.Metadata,
	}, nil
}

// HeadObject retrieves object metadata without the body.
func (e *Engine) HeadObject(ctx context.Context, input GetObjectInput) (*Object, error) {
	out, err := e.objects.HeadObject(ctx, service.GetObjectInput{
		BucketName: input.Bucket,
		Key:        input.Key,
		VersionID:  input.VersionID,
		Conditions: toServiceConditions(input.Conditions),
	})
	if err != nil {
		return nil, err
	}
	return &Object{
		ContentLength: out.ContentLength,
		ContentType:   out.ContentType,
		ETag:          out.ETag,
		LastModified:  out.LastModified,
		VersionID:     out.VersionID,
		Metadata:      out.Metadata,
	}, nil
}

// DeleteObject deletes an object or a specific version.
func (e *Engine) DeleteObject(ctx context.Context, input DeleteObjectInput) (*DeleteObjectResult, error) {
	out, err := e.objects.DeleteObject(ctx, service.DeleteObjectInput{
		BucketName:       input.Bucket,
		Key:              input.Key,
		VersionID:        input.VersionID,
		BypassGovernance: input.BypassGovernance,
		Conditions:       toServiceConditions(input.Conditions),
	})
	if err != nil {
		return nil, err
	}
	return &DeleteObjectResult{
		DeleteMarker: out.DeleteMarker,
		VersionID:    out.VersionID,
	}, nil
}

// DeleteObjects deletes a batch of objects; every item yields exactly one
// deleted record or one error record.
func (e *Engine) DeleteObjects(ctx context.Context, input DeleteObjectsInput) (*DeleteObjectsResult, error) {
	out, err := e.objects.DeleteObjects(ctx, service.DeleteObjectsInput{
		BucketName: input.Bucket,
		Objects: lo.Map(input.Objects, func(o ObjectIdentifier, _ int) service.ObjectIdentifier {
			return service.ObjectIdentifier{Key: o.Key, VersionID: o.VersionID}
		}),
		Quiet:            input.Quiet,
		BypassGovernance: input.BypassGovernance,
	})
	if err != nil {
		return nil, err
	}
	return &DeleteObjectsResult{
		Deleted: lo.Map(out.Deleted, func(d service.DeletedObject, _ int) DeletedObject {
			return DeletedObject{
				Key:                   d.Key,
				VersionID:             d.VersionID,
				DeleteMarker:          d.DeleteMarker,
				DeleteMarkerVersionID: d.DeleteMarkerVersionID,
			}
		}),
		Errors: lo.Map(out.Errors, func(d service.DeleteError, _ int) DeleteErrorEntry {
			return DeleteErrorEntry{
				Key:       d.Key,
				VersionID: d.VersionID,
				Code:      d.Code,
				Message:   d.Message,
			}
		}),
	}, nil
}

// CopyObject copies an object, reusing the source blob by reference.
func (e *Engine) CopyObject(ctx context.Context, input CopyObjectInput) (*CopyObjectResult, error) {
	out, err := e.objects.CopyObject(ctx, service.CopyObjectInput{
		SourceBucket:      input.SourceBucket,
		SourceKey:         input.SourceKey,
		SourceVersionID:   input.SourceVersionID,
		DestBucket:        input.DestBucket,
		DestKey:           input.DestKey,
		ContentType:       input.ContentType,
		Metadata:          input.Metadata,
		MetadataDirective: input.MetadataDirective,
	})
	if err != nil {
		return nil, err
	}
	return &CopyObjectResult{
		ETag:         out.ETag,
		LastModified: out.LastModified,
		VersionID:    out.VersionID,
	}, nil
}

// =============================================================================
// Listing Operations
// =============================================================================

// ListObjects lists the bucket's current view.
func (e *Engine) ListObjects(ctx context.Context, input ListObjectsInput) (*ListObjectsResult, error) {
	out, err := e.lists.ListObjects(ctx, service.ListObjectsInput{
		BucketName:        input.Bucket,
		Prefix:            input.Prefix,
		Delimiter:         input.Delimiter,
		Marker:            input.Marker,
		ContinuationToken: input.ContinuationToken,
		MaxKeys:           input.MaxKeys,
	})
	if err != nil {
		return nil, err
	}
	return &ListObjectsResult{
		Name:        out.Name,
		Prefix:      out.Prefix,
		Delimiter:   out.Delimiter,
		MaxKeys:     out.MaxKeys,
		IsTruncated: out.IsTruncated,
		Contents: lo.Map(out.Contents, func(c domain.EntryInfo, _ int) ObjectSummary {
			return ObjectSummary{
				Key:          c.Key,
				ETag:         c.ETag,
				Size:         c.Size,
				LastModified: c.LastModified,
			}
		}),
		CommonPrefixes:        out.CommonPrefixes,
		NextMarker:            out.NextMarker,
		NextContinuationToken: out.NextContinuationToken,
		KeyCount:              out.KeyCount,
	}, nil
}

// ListVersions lists every entry, delete markers included.
func (e *Engine) ListVersions(ctx context.Context, input ListVersionsInput) (*ListVersionsResult, error) {
	out, err := e.lists.ListVersions(ctx, service.ListVersionsInput{
		BucketName:      input.Bucket,
		Prefix:          input.Prefix,
		Delimiter:       input.Delimiter,
		KeyMarker:       input.KeyMarker,
		VersionIDMarker: input.VersionIDMarker,
		MaxKeys:         input.MaxKeys,
	})
	if err != nil {
		return nil, err
	}
	return &ListVersionsResult{
		Name:        out.Name,
		Prefix:      out.Prefix,
		Delimiter:   out.Delimiter,
		MaxKeys:     out.MaxKeys,
		IsTruncated: out.IsTruncated,
		Versions: lo.Map(out.Versions, func(v domain.VersionInfo, _ int) VersionSummary {
			return VersionSummary{
				Key:            v.Key,
				VersionID:      v.VersionID,
				IsLatest:       v.IsLatest,
				IsDeleteMarker: v.IsDeleteMarker,
				ETag:           v.ETag,
				Size:           v.Size,
				LastModified:   v.LastModified,
			}
		}),
		CommonPrefixes:      out.CommonPrefixes,
		NextKeyMarker:       out.NextKeyMarker,
		NextVersionIDMarker: out.NextVersionIDMarker,
	}, nil
}

// =============================================================================
// Object Lock Operations
// =============================================================================

// PutObjectRetention sets or replaces retention on a data version.
func (e *Engine) PutObjectRetention(ctx context.Context, input PutRetentionInput) error {
	var retention *domain.Retention
	if input.Retention != nil {
		retention = &domain.Retention{
			Mode:        domain.RetentionMode(input.Retention.Mode),
			RetainUntil: input.Retention.RetainUntil,
		}
	}
	return e.locks.PutObjectRetention(ctx, service.PutRetentionInput{
		BucketName:       input.Bucket,
		Key:              input.Key,
		VersionID:        input.VersionID,
		Retention:        retention,
		BypassGovernance: input.BypassGovernance,
	})
}

// GetObjectRetention returns the retention of a data version, nil when none.
func (e *Engine) GetObjectRetention(ctx context.Context, bucket, key, versionID string) (*Retention, error) {
	retention, err := e.locks.GetObjectRetention(ctx, bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	if retention == nil {
		return nil, nil
	}
	return &Retention{
		Mode:        RetentionMode(retention.Mode),
		RetainUntil: retention.RetainUntil,
	}, nil
}

// PutObjectLegalHold toggles the legal hold on a data version.
func (e *Engine) PutObjectLegalHold(ctx context.Context, input PutLegalHoldInput) error {
	return e.locks.PutObjectLegalHold(ctx, service.PutLegalHoldInput{
		BucketName: input.Bucket,
		Key:        input.Key,
		VersionID:  input.VersionID,
		Hold:       input.Hold,
	})
}

// GetObjectLegalHold returns the legal hold state of a data version.
func (e *Engine) GetObjectLegalHold(ctx context.Context, bucket, key, versionID string) (bool, error) {
	return e.locks.GetObjectLegalHold(ctx, bucket, key, versionID)
}

// =============================================================================
// Maintenance
// =============================================================================

// GCResult summarizes one garbage collection pass.
type GCResult struct {
	BlobsDeleted int           `json:"blobs_deleted"`
	BytesFreed   int64         `json:"bytes_freed"`
	Errors       int           `json:"errors"`
	Duration     time.Duration `json:"duration"`
}

// RunGC runs one blob garbage collection pass and returns its result.
func (e *Engine) RunGC(ctx context.Context) GCResult {
	res := e.gc.RunOnce(ctx)
	return GCResult{
		BlobsDeleted: res.BlobsDeleted,
		BytesFreed:   res.BytesFreed,
		Errors:       res.Errors,
		Duration:     res.Duration,
	}
}

// GCStats summarizes the garbage collector's backlog.
type GCStats struct {
	OrphanBlobCount int   `json:"orphan_blob_count"`
	OrphanBlobSize  int64 `json:"orphan_blob_size"`
	HasMoreOrphans  bool  `json:"has_more_orphans"`
}

// GCStats reports the current orphan-blob backlog.
func (e *Engine) GCStats(ctx context.Context) (*GCStats, error) {
	stats, err := e.gc.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &GCStats{
		OrphanBlobCount: stats.OrphanBlobCount,
		OrphanBlobSize:  stats.OrphanBlobSize,
		HasMoreOrphans:  stats.HasMoreOrphans,
	}, nil
}

// Health reports metadata store liveness.
func (e *Engine) Health(ctx context.Context) error {
	return e.db.Health(ctx)
}

// =============================================================================
// Conversions
// =============================================================================

// toServiceConditions maps boundary conditions to the service layer.
func toServiceConditions(c *Conditions) *service.Conditions {
	if c == nil {
		return nil
	}
	return &service.Conditions{
		IfMatch:           c.IfMatch,
		IfNoneMatch:       c.IfNoneMatch,
		IfModifiedSince:   c.IfModifiedSince,
		IfUnmodifiedSince: c.IfUnmodifiedSince,
	}
}

// toDomainLockConfig maps a boundary lock config to the domain.
func toDomainLockConfig(cfg ObjectLockConfig) domain.ObjectLockConfig {
	out := domain.ObjectLockConfig{Enabled: cfg.Enabled}
	if cfg.DefaultRetention != nil {
		out.DefaultRetention = &domain.DefaultRetention{
			Mode:  domain.RetentionMode(cfg.DefaultRetention.Mode),
			Days:  cfg.DefaultRetention.Days,
			Years: cfg.DefaultRetention.Years,
		}
	}
	return out
}
