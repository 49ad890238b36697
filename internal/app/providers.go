// Package app assembles the video service from its infrastructure.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/domain/encoder"
	"github.com/janhq/video-api/internal/domain/hls"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/domain/publish"
	"github.com/janhq/video-api/internal/domain/retry"
	"github.com/janhq/video-api/internal/infrastructure/auth"
	"github.com/janhq/video-api/internal/infrastructure/cache"
	"github.com/janhq/video-api/internal/infrastructure/crontab"
	"github.com/janhq/video-api/internal/infrastructure/database"
	"github.com/janhq/video-api/internal/infrastructure/ffmpeg"
	"github.com/janhq/video-api/internal/infrastructure/metrics"
	"github.com/janhq/video-api/internal/infrastructure/observability"
	"github.com/janhq/video-api/internal/infrastructure/queue"
	assetrepo "github.com/janhq/video-api/internal/infrastructure/repository/asset"
	"github.com/janhq/video-api/internal/infrastructure/storage"
	"github.com/janhq/video-api/internal/interfaces/httpserver"
	"github.com/janhq/video-api/internal/interfaces/httpserver/handlers"
	"github.com/janhq/video-api/internal/worker"
)

// ProviderSet is the full dependency graph of the service.
var ProviderSet = wire.NewSet(
	ProvideDatabase,
	ProvideStorage,
	ProvideRedis,
	ProvideLocker,
	ProvideProgressCache,
	ProvideLadder,
	ProvideEncoder,
	ProvidePublisher,
	ProvideRepository,
	wire.Bind(new(asset.Repository), new(*assetrepo.Repository)),
	ProvideOrchestrator,
	ProvideQueue,
	ProvideAssetService,
	ProvideWorkerInstrumenter,
	ProvideWorkerPool,
	ProvideCrontab,
	ProvideManifestCache,
	ProvideAuth,
	ProvideHTTPServer,
	wire.Struct(new(Container), "*"),
)

// Storage bundles the configured object store with the views the service needs.
type Storage struct {
	Backend string
	Objects publish.ObjectStore
	Sources asset.SourceStorage
	Fetcher *storage.SourceResolver
	Health  func(ctx context.Context) error
	closer  io.Closer
}

// Close releases the store client when it holds one.
func (s *Storage) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func ProvideDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	driver := cfg.DatabaseDriver()
	dsn := cfg.DatabaseURL
	if driver == database.DriverSQLite {
		dsn = cfg.SQLiteDSN()
	}
	db, err := database.Connect(database.Config{
		Driver:          driver,
		DSN:             dsn,
		ReadDSNs:        cfg.DatabaseReadURLs,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(ctx, db, log); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// ProvideStorage opens the backend named by VIDEO_STORAGE_BACKEND. Sources
// live in the same store as the published trees.
func ProvideStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageGCS:
		store, err := storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:          cfg.GCSBucket,
			EmulatorHost:    cfg.GCSEmulatorHost,
			PublicBaseURL:   cfg.PublicBaseURL,
			CredentialsFile: cfg.GCSCredentialsFile,
		}, log)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Backend: config.StorageGCS,
			Objects: store,
			Sources: store,
			Fetcher: storage.NewSourceResolver(store, nil, store, log),
			Health:  store.Health,
			closer:  store,
		}, nil
	case config.StorageLocal:
		store, err := storage.NewLocalStore(cfg.LocalStoragePath, cfg.LocalStorageBaseURL, log)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Backend: config.StorageLocal,
			Objects: store,
			Sources: store,
			Fetcher: storage.NewSourceResolver(store, nil, nil, log),
			Health:  store.Health,
		}, nil
	default:
		publicEndpoint := cfg.S3PublicEndpoint
		if publicEndpoint == "" {
			publicEndpoint = cfg.PublicBaseURL
		}
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: publicEndpoint,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			AccessKeyID:    cfg.S3AccessKeyID,
			SecretKey:      cfg.S3SecretKey,
			UsePathStyle:   cfg.S3UsePathStyle,
		}, log)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Backend: config.StorageS3,
			Objects: store,
			Sources: store,
			Fetcher: storage.NewSourceResolver(store, store, nil, log),
			Health:  store.Health,
		}, nil
	}
}

// ProvideRedis connects to Redis when REDIS_URL is set and returns nil otherwise.
func ProvideRedis(cfg *config.Config, log zerolog.Logger) (*cache.Redis, error) {
	if !cfg.RedisEnabled() {
		log.Info().Msg("redis disabled, using in-process locks and no progress cache")
		return nil, nil
	}
	return cache.NewRedis(cfg.RedisURL, log)
}

// ProvideLocker picks a distributed lock when Redis is available.
func ProvideLocker(r *cache.Redis) publish.Locker {
	if r == nil {
		return cache.NewMemoryLocker()
	}
	return cache.NewRedisLocker(r, 30*time.Second)
}

func ProvideProgressCache(r *cache.Redis) *cache.RedisProgressCache {
	if r == nil {
		return nil
	}
	return cache.NewRedisProgressCache(r)
}

func ProvideLadder(cfg *config.Config) (encoder.Config, error) {
	return config.LoadLadder(cfg.LadderFile, cfg.SegmentDuration)
}

func ProvideEncoder(cfg *config.Config, log zerolog.Logger) *encoder.Encoder {
	paths := ffmpeg.Paths{FFmpeg: cfg.FFmpegPath, FFprobe: cfg.FFprobePath}
	runner := ffmpeg.NewCommandRunner()
	return encoder.New(
		ffmpeg.NewProber(paths, runner),
		ffmpeg.NewTranscoder(paths, runner, ffmpeg.TranscoderOptions{Preset: cfg.EncodePreset}, log),
		encoder.Options{StagingDir: cfg.StagingDir, Concurrency: cfg.EncodeConcurrency},
		log,
	)
}

func ProvidePublisher(st *Storage, locker publish.Locker, cfg *config.Config, log zerolog.Logger) *publish.Publisher {
	return publish.New(st.Objects, locker, publish.Options{
		Concurrency: cfg.PublishWorkers,
		Retry:       retry.DefaultPolicy(),
		Prune:       cfg.PruneStale,
		Observer:    metrics.NewRecorder(),
	}, log)
}

func ProvideRepository(db *gorm.DB) *assetrepo.Repository {
	return assetrepo.NewRepository(db)
}

func ProvideOrchestrator(
	repo asset.Repository,
	st *Storage,
	enc *encoder.Encoder,
	pub *publish.Publisher,
	progress *cache.RedisProgressCache,
	cfg *config.Config,
	log zerolog.Logger,
) *processing.Orchestrator {
	ffmpegPaths := ffmpeg.Paths{FFmpeg: cfg.FFmpegPath, FFprobe: cfg.FFprobePath}
	deps := processing.Dependencies{
		Repository: repo,
		Sources:    st.Fetcher,
		Encoder:    enc,
		Publisher:  pub,
		Thumbnails: ffmpeg.NewThumbnailer(ffmpegPaths, ffmpeg.NewCommandRunner()),
		Recorder:   metrics.NewRecorder(),
	}
	if progress != nil {
		deps.Progress = progress
	}
	return processing.NewOrchestrator(deps, processing.Options{
		Layout:      publish.Layout{Prefix: cfg.PublishPrefix},
		Resolver:    hls.Resolver{BaseURL: cfg.ManifestBaseURL},
		RunTimeout:  RunTimeout(cfg),
		ThumbnailAt: cfg.ThumbnailAt,
		Lease:       cfg.ProcessingLease,
	}, log)
}

// RunTimeout bounds one processing run: the encode budget plus the publish budget.
func RunTimeout(cfg *config.Config) time.Duration {
	if cfg.EncodeTimeout <= 0 || cfg.PublishTimeout <= 0 {
		return 0
	}
	return cfg.EncodeTimeout + cfg.PublishTimeout
}

func ProvideQueue(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *queue.PostgresQueue {
	return queue.NewPostgresQueue(db, cfg.JobMaxAttempts, log)
}

func ProvideAssetService(cfg *config.Config, repo asset.Repository, st *Storage, jobs *queue.PostgresQueue, log zerolog.Logger) *asset.Service {
	return asset.NewService(asset.ServiceOptions{
		MaxUploadBytes: cfg.MaxUploadBytes,
		SourcePrefix:   cfg.SourcePrefix,
	}, repo, st.Sources, jobs, log)
}

// ProvideWorkerInstrumenter returns nil when the meter cannot create instruments.
func ProvideWorkerInstrumenter(cfg *config.Config, log zerolog.Logger) *observability.WorkerInstrumenter {
	instrumenter, err := observability.NewWorkerInstrumenter(cfg.ServiceName)
	if err != nil {
		log.Warn().Err(err).Msg("worker instrumentation disabled")
		return nil
	}
	return instrumenter
}

func ProvideWorkerPool(
	jobs *queue.PostgresQueue,
	orchestrator *processing.Orchestrator,
	instrumenter *observability.WorkerInstrumenter,
	ladder encoder.Config,
	cfg *config.Config,
	log zerolog.Logger,
) *worker.Pool {
	return worker.NewPool(jobs, orchestrator, instrumenter, worker.Config{
		WorkerCount:     cfg.WorkerCount,
		TaskTimeout:     RunTimeout(cfg),
		PollInterval:    cfg.WorkerPollInterval,
		Ladder:          ladder,
		RetryPolicy:     retry.JobPolicy(),
		LockTTL:         cfg.JobLockTTL,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, log)
}

func ProvideCrontab(jobs *queue.PostgresQueue, enc *encoder.Encoder, orchestrator *processing.Orchestrator, cfg *config.Config, log zerolog.Logger) *crontab.Crontab {
	return crontab.NewCrontab(jobs, enc, crontab.Options{
		JobRetention:  cfg.JobRetention,
		StagingMaxAge: cfg.StagingMaxAge,
		InFlight:      orchestrator.InFlight,
	}, log)
}

func ProvideManifestCache() (*cache.ManifestCache, error) {
	return cache.NewManifestCache(512)
}

// ProvideAuth returns nil when authentication is disabled.
func ProvideAuth(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, error) {
	if !cfg.AuthEnabled {
		return nil, nil
	}
	return auth.NewValidator(ctx, cfg, log)
}

func ProvideHTTPServer(
	cfg *config.Config,
	log zerolog.Logger,
	service *asset.Service,
	progress *cache.RedisProgressCache,
	orchestrator *processing.Orchestrator,
	manifestCache *cache.ManifestCache,
	st *Storage,
	validator *auth.Validator,
	db *gorm.DB,
	r *cache.Redis,
) *httpserver.HttpServer {
	var reader handlers.ProgressReader
	if progress != nil {
		reader = progress
	}
	provider := handlers.NewProvider(cfg, service, reader, orchestrator.Manifests(), manifestCache, st.Objects, log)

	checks := []httpserver.ReadinessCheck{
		{Name: "database", Check: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}},
		{Name: "storage", Check: st.Health},
	}
	if r != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "redis", Check: r.HealthCheck})
	}
	return httpserver.New(cfg, log, provider, validator, checks)
}
