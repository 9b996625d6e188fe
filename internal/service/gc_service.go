// Package service provides the business logic of the Alexander engine.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-engine/internal/domain"
	"github.com/prn-tf/alexander-engine/internal/lock"
	"github.com/prn-tf/alexander-engine/internal/metrics"
	"github.com/prn-tf/alexander-engine/internal/repository"
	"github.com/prn-tf/alexander-engine/internal/storage"
)

// minLockTTL is the floor for the GC slot expiry; a sweep that outlives its
// hold would let a second process start while this one is mid-batch.
const minLockTTL = 5 * time.Minute

// GarbageCollector reclaims orphan blobs: content no data version
// references anymore. A run drains the backlog batch by batch under the GC
// slot lock; failures are counted, logged, and never surfaced to callers.
type GarbageCollector struct {
	blobRepo repository.BlobRepository
	storage  storage.Backend
	locker   lock.Locker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	config   GCConfig

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// GCConfig contains garbage collection configuration.
type GCConfig struct {
	// Enabled determines if GC runs automatically.
	Enabled bool

	// Interval is how often to run garbage collection.
	Interval time.Duration

	// GracePeriod is how long to wait before deleting orphan blobs.
	// This prevents race conditions during uploads.
	GracePeriod time.Duration

	// BatchSize is the number of orphans fetched per sweep batch.
	BatchSize int

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool
}

// DefaultGCConfig returns sensible defaults.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Enabled:     true,
		Interval:    1 * time.Hour,
		GracePeriod: 24 * time.Hour,
		BatchSize:   1000,
		DryRun:      false,
	}
}

// NewGarbageCollector creates a new garbage collector.
func NewGarbageCollector(
	blobRepo repository.BlobRepository,
	backend storage.Backend,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config GCConfig,
) *GarbageCollector {
	return &GarbageCollector{
		blobRepo: blobRepo,
		storage:  backend,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "gc").Logger(),
		config:   config,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the garbage collection scheduler.
func (gc *GarbageCollector) Start() {
	gc.mu.Lock()
	if gc.running {
		gc.mu.Unlock()
		return
	}
	gc.running = true
	gc.mu.Unlock()

	gc.logger.Info().
		Dur("interval", gc.config.Interval).
		Dur("grace_period", gc.config.GracePeriod).
		Int("batch_size", gc.config.BatchSize).
		Bool("dry_run", gc.config.DryRun).
		Msg("starting garbage collector")

	go gc.runLoop()
}

// Stop stops the garbage collection scheduler.
func (gc *GarbageCollector) Stop() {
	gc.mu.Lock()
	if !gc.running {
		gc.mu.Unlock()
		return
	}
	gc.running = false
	gc.mu.Unlock()

	close(gc.stopChan)
	<-gc.doneChan

	gc.logger.Info().Msg("garbage collector stopped")
}

// runLoop drives scheduled runs until Stop.
func (gc *GarbageCollector) runLoop() {
	defer close(gc.doneChan)

	// Run immediately on start
	gc.RunOnce(context.Background())

	ticker := time.NewTicker(gc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gc.RunOnce(context.Background())
		case <-gc.stopChan:
			return
		}
	}
}

// GCResult contains the result of a garbage collection run.
type GCResult struct {
	// BlobsDeleted is the number of blobs deleted.
	BlobsDeleted int

	// BytesFreed is the total bytes freed.
	BytesFreed int64

	// Errors is the number of errors encountered.
	Errors int

	// Duration is how long the run took.
	Duration time.Duration
}

// RunOnce takes the GC slot and drains the orphan backlog.
// Callable manually or by the scheduler; a run that loses the slot to
// another process is a clean no-op.
func (gc *GarbageCollector) RunOnce(ctx context.Context) (result GCResult) {
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	ttl := gc.config.Interval / 2
	if ttl < minLockTTL {
		ttl = minLockTTL
	}

	acquired, err := gc.locker.TryAcquire(ctx, ttl)
	if err != nil {
		gc.logger.Error().Err(err).Msg("failed to acquire gc slot")
		result.Errors++
		return result
	}
	if !acquired {
		gc.logger.Debug().Msg("gc slot held elsewhere, skipping run")
		return result
	}
	defer func() {
		if _, err := gc.locker.Release(ctx); err != nil {
			gc.logger.Error().Err(err).Msg("failed to release gc slot")
		}
	}()

	gc.sweep(ctx, &result)
	gc.observe(time.Since(start), result)

	gc.logger.Info().
		Int("blobs_deleted", result.BlobsDeleted).
		Int64("bytes_freed", result.BytesFreed).
		Int("errors", result.Errors).
		Msg("garbage collection run completed")

	return result
}

// sweep drains the orphan backlog batch by batch. It stops when a batch
// comes back short (backlog drained), when no blob in a batch could be
// reclaimed (every row would repeat next batch), or on cancellation.
func (gc *GarbageCollector) sweep(ctx context.Context, result *GCResult) {
	for {
		if ctx.Err() != nil {
			return
		}

		orphans, err := gc.blobRepo.ListOrphans(ctx, gc.config.GracePeriod, gc.config.BatchSize)
		if err != nil {
			gc.logger.Error().Err(err).Msg("failed to list orphan blobs")
			result.Errors++
			return
		}
		if gc.metrics != nil {
			gc.metrics.GCOrphanBlobs.Set(float64(len(orphans)))
		}
		if len(orphans) == 0 {
			return
		}

		reclaimed := 0
		for _, blob := range orphans {
			if gc.config.DryRun {
				gc.logger.Info().
					Str("content_hash", blob.ContentHash).
					Int64("size", blob.Size).
					Msg("[dry run] would delete orphan blob")
				result.BlobsDeleted++
				result.BytesFreed += blob.Size
				continue
			}

			if err := gc.reclaim(ctx, blob); err != nil {
				gc.logger.Error().
					Err(err).
					Str("content_hash", blob.ContentHash).
					Msg("failed to reclaim orphan blob")
				result.Errors++
				continue
			}

			reclaimed++
			result.BlobsDeleted++
			result.BytesFreed += blob.Size
		}

		// A dry run never shrinks the backlog; neither does a batch of
		// pure failures. Either way the next fetch would return the same
		// rows, so stop instead of spinning.
		if gc.config.DryRun || reclaimed == 0 {
			return
		}
		if len(orphans) < gc.config.BatchSize {
			return
		}
	}
}

// reclaim removes one orphan: content first, then its metadata row, so a
// crash between the two leaves a row the next sweep retries rather than an
// untracked file. Content already missing from the backend is fine; the
// metadata row is simply dropped.
func (gc *GarbageCollector) reclaim(ctx context.Context, blob *domain.Blob) error {
	if err := gc.storage.Delete(ctx, blob.ContentHash); err != nil && !storage.IsNotFound(err) {
		return err
	}

	gc.logger.Debug().
		Str("content_hash", blob.ContentHash).
		Int64("size", blob.Size).
		Msg("reclaimed orphan blob")

	return gc.blobRepo.Delete(ctx, blob.ContentHash)
}

// observe records run metrics.
func (gc *GarbageCollector) observe(elapsed time.Duration, result GCResult) {
	if gc.metrics == nil {
		return
	}
	gc.metrics.RecordGCRun(elapsed.Seconds(), result.BlobsDeleted, result.BytesFreed)
	gc.metrics.GCLastRunTime.SetToCurrentTime()
}

// GetStats returns the current orphan backlog without taking the GC slot.
func (gc *GarbageCollector) GetStats(ctx context.Context) (*GCStats, error) {
	orphans, err := gc.blobRepo.ListOrphans(ctx, gc.config.GracePeriod, gc.config.BatchSize+1)
	if err != nil {
		return nil, err
	}

	var totalSize int64
	for _, blob := range orphans {
		totalSize += blob.Size
	}

	hasMore := len(orphans) > gc.config.BatchSize
	if hasMore {
		orphans = orphans[:gc.config.BatchSize]
	}

	return &GCStats{
		OrphanBlobCount: len(orphans),
		OrphanBlobSize:  totalSize,
		HasMoreOrphans:  hasMore,
		GracePeriod:     gc.config.GracePeriod,
		NextRunIn:       gc.config.Interval,
	}, nil
}

// GCStats contains garbage collection statistics.
type GCStats struct {
	OrphanBlobCount int
	OrphanBlobSize  int64
	HasMoreOrphans  bool
	GracePeriod     time.Duration
	NextRunIn       time.Duration
}
