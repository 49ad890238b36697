package app

import (
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/domain/encoder"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/domain/publish"
	"github.com/janhq/video-api/internal/infrastructure/auth"
	"github.com/janhq/video-api/internal/infrastructure/cache"
	"github.com/janhq/video-api/internal/infrastructure/crontab"
	"github.com/janhq/video-api/internal/infrastructure/database"
	"github.com/janhq/video-api/internal/infrastructure/queue"
	"github.com/janhq/video-api/internal/interfaces/httpserver"
	"github.com/janhq/video-api/internal/worker"
)

// Container holds the assembled service.
type Container struct {
	Config       *config.Config
	Log          zerolog.Logger
	DB           *gorm.DB
	Storage      *Storage
	Redis        *cache.Redis
	Ladder       encoder.Config
	Publisher    *publish.Publisher
	Orchestrator *processing.Orchestrator
	Queue        *queue.PostgresQueue
	Assets       *asset.Service
	Pool         *worker.Pool
	Crontab      *crontab.Crontab
	Auth         *auth.Validator
	HTTP         *httpserver.HttpServer
}

// Close releases connections held by the container.
func (c *Container) Close() error {
	var errs []error
	if c.Auth != nil {
		c.Auth.Close()
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	errs = append(errs, c.Storage.Close())
	if c.DB != nil {
		errs = append(errs, database.Close(c.DB))
	}
	return errors.Join(errs...)
}
