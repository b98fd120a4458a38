// Package infrastructure assembles the systems a paperclip process needs from
// its configuration: logging, the optional database, the storage backend
// with its cache or upload queue, metrics, the thumbnail processor and the
// record system.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/internal/config"
	"github.com/kirill555101/paperclip/internal/jobs"
	"github.com/kirill555101/paperclip/internal/records"
	"github.com/kirill555101/paperclip/pkg/database"
	"github.com/kirill555101/paperclip/pkg/lifecycle"
	"github.com/kirill555101/paperclip/pkg/logging"
	"github.com/kirill555101/paperclip/pkg/storage"
	"github.com/kirill555101/paperclip/pkg/thumbnail"
)

// UploadQueue is a deferred upload queue that can run its own workers.
type UploadQueue interface {
	storage.Queue
	Start(lc *lifecycle.Coordinator, handle jobs.Handler) error
}

// Infrastructure holds the systems shared by the server and the CLI.
// Database is nil when no configured component persists to PostgreSQL.
// Deferred and Queue are nil unless the deferred backend is selected.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.Backend
	Deferred  *storage.Deferred
	Queue     UploadQueue
	Processor *thumbnail.Processor
	Registry  *records.Registry
	Records   records.System
	Metrics   *prometheus.Registry

	cfg      *config.Config
	starters []func(lc *lifecycle.Coordinator) error
}

// New creates an Infrastructure from cfg. Nothing connects or spawns
// goroutines until Start.
func New(cfg *config.Config) (*Infrastructure, error) {
	i := &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logging.New(&cfg.Logging),
		cfg:       cfg,
	}

	if cfg.NeedsDatabase() {
		db, err := database.New(&cfg.Database, i.Logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		i.Database = db
		i.starters = append(i.starters, db.Start)
	}

	if cfg.Metrics.On() {
		i.Metrics = prometheus.NewRegistry()
		i.Metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	backend, err := i.backend(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	if i.Metrics != nil {
		obs, err := storage.NewPrometheusObserver(cfg.Metrics.Namespace, i.Metrics)
		if err != nil {
			return nil, fmt.Errorf("metrics init failed: %w", err)
		}
		backend = storage.Instrument(backend, obs, cfg.Storage.Backend)
	}
	i.Storage = backend

	i.Processor = thumbnail.NewProcessor(runner(&cfg.Processor), cfg.Processor.Thumbnail(), i.Logger)

	defs, err := cfg.Definitions()
	if err != nil {
		return nil, err
	}
	i.Registry, err = records.NewRegistry(defs...)
	if err != nil {
		return nil, fmt.Errorf("registry init failed: %w", err)
	}

	var store records.Store
	switch cfg.Records.Store {
	case config.RecordsPostgres:
		store = records.NewPostgresStore(i.Database.Connection(), i.Logger)
	default:
		store = records.NewMemoryStore(i.Logger)
	}

	var opts []attachment.Option
	if cfg.Processor.TempDir != "" {
		opts = append(opts, attachment.WithTempDir(cfg.Processor.TempDir))
	}
	i.Records = records.New(store, i.Registry, i.Storage, i.Processor, i.Logger, opts...)

	return i, nil
}

// Start registers every system with the lifecycle coordinator. Upload
// workers are started separately by StartWorkers.
func (i *Infrastructure) Start() error {
	for _, start := range i.starters {
		if err := start(i.Lifecycle); err != nil {
			return err
		}
	}
	return nil
}

// StartWorkers runs the deferred upload workers and the staging reaper.
// It is a no-op for other backends.
func (i *Infrastructure) StartWorkers() error {
	if i.Deferred == nil {
		return nil
	}

	if err := i.Queue.Start(i.Lifecycle, i.Deferred.Upload); err != nil {
		return fmt.Errorf("upload workers start failed: %w", err)
	}

	d := &i.cfg.Storage.Deferred
	reaper, err := jobs.NewReaper(d.ReapSchedule, d.ReapAfterDuration(), i.Deferred, i.Logger)
	if err != nil {
		return err
	}
	return reaper.Start(i.Lifecycle)
}

// Drain uploads every job buffered in an in-memory queue. One-shot
// commands call it so staged files reach the remote store before exit.
func (i *Infrastructure) Drain(ctx context.Context) int {
	q, ok := i.Queue.(*jobs.MemoryQueue)
	if !ok || i.Deferred == nil {
		return 0
	}
	return q.Drain(ctx, i.Deferred.Upload)
}

// Shutdown stops every system within the configured timeout.
func (i *Infrastructure) Shutdown() error {
	return i.Lifecycle.Shutdown(i.cfg.ShutdownTimeoutDuration())
}

func (i *Infrastructure) backend(cfg *storage.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case storage.KindRemote:
		return i.remote(&cfg.Remote)
	case storage.KindCached:
		return i.cached(cfg)
	case storage.KindDeferred:
		return i.deferred(cfg)
	default:
		return i.filesystem(cfg.BasePath)
	}
}

func (i *Infrastructure) filesystem(path string) (*storage.Filesystem, error) {
	fs, err := storage.NewFilesystem(path, i.Logger)
	if err != nil {
		return nil, err
	}
	i.starters = append(i.starters, fs.Start)
	return fs, nil
}

func (i *Infrastructure) remote(cfg *storage.RemoteConfig) (*storage.Remote, error) {
	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}

	logger := i.Logger.With("system", "storage", "backend", "remote")
	i.starters = append(i.starters, func(lc *lifecycle.Coordinator) error {
		lc.OnStartup(func() {
			ctx, cancel := context.WithTimeout(lc.Context(), 30*time.Second)
			defer cancel()

			if err := store.EnsureBucket(ctx); err != nil {
				logger.Error("bucket check failed", "bucket", cfg.Bucket, "error", err)
				return
			}
			logger.Info("bucket ready", "bucket", cfg.Bucket)
		})
		return nil
	})

	return storage.NewRemote(store, cfg, i.Logger), nil
}

func (i *Infrastructure) cached(cfg *storage.Config) (storage.Backend, error) {
	inner, err := i.remote(&cfg.Remote)
	if err != nil {
		return nil, err
	}

	var cache storage.CacheStore
	switch cfg.Cache.Store {
	case storage.CacheRedis:
		cache = i.redis(&cfg.Cache)
	case storage.CacheFilesystem:
		fs, err := i.filesystem(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		cache = storage.NewBackendCache(fs)
	default:
		lru, err := storage.NewLRUCache(cfg.Cache.Entries)
		if err != nil {
			return nil, err
		}
		cache = lru
	}

	return storage.NewCached(inner, cache, cfg.Cache.MaxEntryBytes(), i.Logger), nil
}

func (i *Infrastructure) redis(cfg *storage.CacheConfig) *storage.RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPass,
	})
	cache := storage.NewRedisCache(rdb, cfg.Prefix, cfg.TTLDuration())
	logger := i.Logger.With("system", "storage", "cache", "redis")

	i.starters = append(i.starters, func(lc *lifecycle.Coordinator) error {
		lc.OnStartup(func() {
			ctx, cancel := context.WithTimeout(lc.Context(), 10*time.Second)
			defer cancel()

			if err := cache.Ping(ctx); err != nil {
				logger.Error("redis ping failed", "addr", cfg.RedisAddr, "error", err)
				return
			}
			logger.Info("redis connection established", "addr", cfg.RedisAddr)
		})

		lc.OnShutdown(func() {
			<-lc.Context().Done()
			if err := rdb.Close(); err != nil {
				logger.Error("redis close failed", "error", err)
			}
		})
		return nil
	})

	return cache
}

func (i *Infrastructure) deferred(cfg *storage.Config) (storage.Backend, error) {
	staging, err := i.filesystem(cfg.Deferred.StagingPath)
	if err != nil {
		return nil, err
	}

	remote, err := i.remote(&cfg.Remote)
	if err != nil {
		return nil, err
	}

	opts := jobs.Options{
		Workers:      cfg.Deferred.Workers,
		MaxAttempts:  cfg.Deferred.MaxAttempts,
		PollInterval: cfg.Deferred.PollIntervalDuration(),
	}
	switch cfg.Deferred.Queue {
	case storage.QueuePostgres:
		i.Queue = jobs.NewPostgresQueue(i.Database.Connection(), opts, i.Logger)
	default:
		i.Queue = jobs.NewMemoryQueue(opts, i.Logger)
	}

	retryFor := cfg.Deferred.RetryForDuration()
	i.Deferred = storage.NewDeferred(staging, remote, i.Queue, func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxElapsedTime = retryFor
		return b
	}, i.Logger)

	return i.Deferred, nil
}

func runner(cfg *config.ProcessorConfig) thumbnail.CommandRunner {
	if cfg.Runner == config.RunnerNative {
		return thumbnail.NativeRunner{}
	}
	return thumbnail.ExecRunner{Timeout: cfg.TimeoutDuration()}
}
