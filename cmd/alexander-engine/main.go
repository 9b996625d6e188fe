// Package main is the tooling entry point around the Alexander engine:
// a development gateway server and one-shot maintenance commands. The
// engine itself is a library; production deployments embed it behind
// their own facade.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-engine/engine"
	"github.com/prn-tf/alexander-engine/internal/config"
	"github.com/prn-tf/alexander-engine/internal/gateway"
	"github.com/prn-tf/alexander-engine/internal/lock"
	"github.com/prn-tf/alexander-engine/internal/metrics"
	"github.com/prn-tf/alexander-engine/internal/repository"
	"github.com/prn-tf/alexander-engine/internal/repository/postgres"
	"github.com/prn-tf/alexander-engine/internal/service"
	"github.com/prn-tf/alexander-engine/internal/storage"
	s3storage "github.com/prn-tf/alexander-engine/internal/storage/s3"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	dataDir    string
)

func main() {
	root := &cobra.Command{
		Use:   "alexander-engine",
		Short: "Embedded S3-compatible object-store engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "engine data directory (overrides config)")

	root.AddCommand(serveCmd(), gcCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and applies the data-dir flag override.
func loadConfig() (*config.Config, error) {
	if dataDir != "" {
		os.Setenv("ALEXANDER_ENGINE_DATA_DIR", dataDir)
	}
	return config.Load(configPath)
}

// setupLogger configures the global logger from config.
func setupLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return log.Logger
}

// openEngine builds an engine instance from config.
func openEngine(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withGC bool, m *metrics.Metrics) (*engine.Engine, error) {
	var backend storage.Backend
	var err error
	if cfg.Storage.Backend == "s3" {
		backend, err = s3storage.NewStorage(ctx, s3storage.Config{
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			Bucket:          cfg.Storage.S3.Bucket,
			KeyPrefix:       cfg.Storage.S3.KeyPrefix,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			TempDir:         cfg.Storage.TempDir,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	// Shared deployments keep blob metadata in PostgreSQL; the embedded
	// default stays in SQLite.
	var blobRepo repository.BlobRepository
	if cfg.Database.Driver == "postgres" {
		pgDB, err := postgres.NewDB(ctx, postgres.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, err
		}
		blobRepo = postgres.NewBlobRepository(pgDB)
	}

	var locker lock.Locker
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lock.NewRedisLocker(client)
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("using redis GC lock")
	}

	gcConfig := service.GCConfig{
		Enabled:     withGC && cfg.GC.Enabled,
		Interval:    cfg.GC.Interval,
		GracePeriod: cfg.GC.GracePeriod,
		BatchSize:   cfg.GC.BatchSize,
		DryRun:      cfg.GC.DryRun,
	}

	return engine.Open(ctx, engine.Config{
		DataDir:        cfg.Engine.DataDir,
		Conditional:    cfg.Engine.Conditional,
		Logger:         logger,
		Backend:        backend,
		BlobRepository: blobRepo,
		Locker:         locker,
		Metrics:        m,
		GC:             gcConfig,
		KeyLockStripes: cfg.Engine.KeyLockStripes,
	})
}

// serveCmd runs the development gateway.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the development JSON gateway over the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			logger.Info().
				Str("version", Version).
				Str("build_time", BuildTime).
				Str("git_commit", GitCommit).
				Msg("starting alexander engine")

			ctx := context.Background()

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.New()
			}

			eng, err := openEngine(ctx, cfg, logger, true, m)
			if err != nil {
				return err
			}
			defer eng.Close()

			router := gateway.NewRouter(gateway.Config{
				Engine:      eng,
				Metrics:     m,
				MetricsPath: cfg.Metrics.Path,
				MaxBodySize: cfg.Gateway.MaxBodySize,
				Logger:      logger,
			})

			server := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
				Handler:      router.Handler(),
				ReadTimeout:  cfg.Gateway.ReadTimeout,
				WriteTimeout: cfg.Gateway.WriteTimeout,
				IdleTimeout:  cfg.Gateway.IdleTimeout,
			}

			go func() {
				logger.Info().
					Str("addr", server.Addr).
					Msg("gateway listening")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("gateway failed")
				}
			}()

			// Wait for shutdown signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			logger.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("gateway shutdown error")
			}

			logger.Info().Msg("stopped")
			return nil
		},
	}
}

// gcCmd runs one garbage collection pass and exits.
func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Run one blob garbage collection pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			ctx := context.Background()
			eng, err := openEngine(ctx, cfg, logger, false, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			result := eng.RunGC(ctx)
			logger.Info().
				Int("blobs_deleted", result.BlobsDeleted).
				Int64("bytes_freed", result.BytesFreed).
				Int("errors", result.Errors).
				Dur("duration", result.Duration).
				Msg("garbage collection finished")

			if result.Errors > 0 {
				return fmt.Errorf("garbage collection finished with %d errors", result.Errors)
			}
			return nil
		},
	}
}

// versionCmd prints build information.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("alexander-engine %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		},
	}
}
