package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StorageS3    = "s3"
	StorageGCS   = "gcs"
	StorageLocal = "local"
)

// Config holds the environment driven configuration for the video service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"video-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"VIDEO_API_PORT" envDefault:"8290"`
	LogLevel        string        `env:"VIDEO_LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTLPHeaders     string        `env:"OTEL_EXPORTER_OTLP_HEADERS" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Database
	DatabaseURL      string        `env:"VIDEO_DATABASE_URL,notEmpty"`
	// Read replicas for listing and playback lookups
	DatabaseReadURLs []string      `env:"VIDEO_DATABASE_READ_URLS" envSeparator:","`
	DBMaxIdleConns   int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime   time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Storage Backend Selection: "s3", "gcs" or "local"
	StorageBackend string `env:"VIDEO_STORAGE_BACKEND" envDefault:"s3"`

	// S3 Storage Configuration
	S3Endpoint       string `env:"VIDEO_S3_ENDPOINT"`
	S3PublicEndpoint string `env:"VIDEO_S3_PUBLIC_ENDPOINT"`
	S3Region         string `env:"VIDEO_S3_REGION" envDefault:"us-west-2"`
	S3Bucket         string `env:"VIDEO_S3_BUCKET"`
	S3AccessKeyID    string `env:"VIDEO_S3_ACCESS_KEY_ID"`
	S3SecretKey      string `env:"VIDEO_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle   bool   `env:"VIDEO_S3_USE_PATH_STYLE" envDefault:"true"`

	// GCS Storage (alternative to S3)
	GCSBucket          string `env:"VIDEO_GCS_BUCKET"`
	GCSEmulatorHost    string `env:"VIDEO_GCS_EMULATOR_HOST"`
	GCSCredentialsFile string `env:"VIDEO_GCS_CREDENTIALS_FILE"`

	// Local Storage Configuration
	LocalStoragePath    string `env:"VIDEO_LOCAL_STORAGE_PATH" envDefault:"./video-data"`
	LocalStorageBaseURL string `env:"VIDEO_LOCAL_STORAGE_BASE_URL"`

	// Publishing
	PublishPrefix   string `env:"VIDEO_PUBLISH_PREFIX" envDefault:"hls"`
	SourcePrefix    string `env:"VIDEO_SOURCE_PREFIX" envDefault:"sources"`
	PublicBaseURL   string `env:"VIDEO_PUBLIC_BASE_URL"`
	ManifestBaseURL string `env:"VIDEO_MANIFEST_BASE_URL"`
	PublicRead      bool   `env:"VIDEO_PUBLIC_READ" envDefault:"false"`
	PruneStale      bool   `env:"VIDEO_PRUNE_STALE" envDefault:"true"`
	PublishWorkers  int    `env:"VIDEO_PUBLISH_CONCURRENCY" envDefault:"8"`

	// Encoding
	FFmpegPath        string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath       string        `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	StagingDir        string        `env:"VIDEO_STAGING_DIR"`
	LadderFile        string        `env:"VIDEO_LADDER_FILE"`
	SegmentDuration   float64       `env:"VIDEO_SEGMENT_DURATION" envDefault:"0"`
	EncodeConcurrency int           `env:"VIDEO_ENCODE_CONCURRENCY" envDefault:"0"`
	EncodePreset      string        `env:"VIDEO_ENCODE_PRESET" envDefault:"veryfast"`
	EncodeTimeout     time.Duration `env:"VIDEO_ENCODE_TIMEOUT" envDefault:"2h"`
	PublishTimeout    time.Duration `env:"VIDEO_PUBLISH_TIMEOUT" envDefault:"30m"`
	ThumbnailAt       float64       `env:"VIDEO_THUMBNAIL_AT" envDefault:"1"`

	// Workers
	WorkerCount        int           `env:"VIDEO_WORKER_COUNT" envDefault:"2"`
	WorkerPollInterval time.Duration `env:"VIDEO_WORKER_POLL_INTERVAL" envDefault:"2s"`
	JobMaxAttempts     int           `env:"VIDEO_JOB_MAX_ATTEMPTS" envDefault:"5"`
	JobLockTTL         time.Duration `env:"VIDEO_JOB_LOCK_TTL" envDefault:"3h"`
	ProcessingLease    time.Duration `env:"VIDEO_PROCESSING_LEASE" envDefault:"2m"`
	JobRetention       time.Duration `env:"VIDEO_JOB_RETENTION" envDefault:"168h"`
	StagingMaxAge      time.Duration `env:"VIDEO_STAGING_MAX_AGE" envDefault:"6h"`

	// Upload limits
	MaxUploadBytes int64 `env:"VIDEO_MAX_UPLOAD_BYTES" envDefault:"2147483648"`

	// Redis (optional)
	RedisURL string `env:"REDIS_URL"`

	// Authentication
	AuthEnabled  bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuer   string `env:"AUTH_ISSUER"`
	AuthAudience string `env:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `env:"AUTH_JWKS_URL"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	if c.StorageBackend == "" {
		c.StorageBackend = StorageS3
	}
	c.S3Bucket = strings.TrimSpace(c.S3Bucket)
	c.S3AccessKeyID = strings.TrimSpace(c.S3AccessKeyID)
	c.S3SecretKey = strings.TrimSpace(c.S3SecretKey)
	c.S3Endpoint = strings.TrimSpace(c.S3Endpoint)
	c.S3PublicEndpoint = strings.TrimSpace(c.S3PublicEndpoint)
	c.GCSBucket = strings.TrimSpace(c.GCSBucket)
	c.PublishPrefix = strings.Trim(strings.TrimSpace(c.PublishPrefix), "/")
	c.ManifestBaseURL = strings.TrimRight(strings.TrimSpace(c.ManifestBaseURL), "/")
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")

	switch c.StorageBackend {
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("VIDEO_S3_BUCKET is required when VIDEO_STORAGE_BACKEND is s3")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("VIDEO_GCS_BUCKET is required when VIDEO_STORAGE_BACKEND is gcs")
		}
	case StorageLocal:
		if strings.TrimSpace(c.LocalStoragePath) == "" {
			return fmt.Errorf("VIDEO_LOCAL_STORAGE_PATH is required when VIDEO_STORAGE_BACKEND is local")
		}
	default:
		return fmt.Errorf("unsupported VIDEO_STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.WorkerCount < 0 {
		c.WorkerCount = 0
	}
	if c.JobMaxAttempts <= 0 {
		c.JobMaxAttempts = 1
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 2 << 30
	}
	if c.SegmentDuration < 0 {
		return fmt.Errorf("VIDEO_SEGMENT_DURATION must not be negative")
	}
	if c.AuthEnabled {
		if strings.TrimSpace(c.AuthIssuer) == "" {
			return fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(c.AuthJWKSURL) == "" {
			return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// DatabaseDriver picks the gorm dialect from the DSN scheme.
func (c *Config) DatabaseDriver() string {
	dsn := strings.TrimSpace(c.DatabaseURL)
	if strings.HasPrefix(dsn, "sqlite:") || strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db") {
		return "sqlite"
	}
	return "postgres"
}

// SQLiteDSN strips the sqlite: scheme the driver does not understand.
func (c *Config) SQLiteDSN() string {
	return strings.TrimPrefix(strings.TrimSpace(c.DatabaseURL), "sqlite:")
}

// RedisEnabled reports whether a Redis URL is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}
