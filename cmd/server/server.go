package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/video-api/internal/app"
	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/infrastructure/logger"
	"github.com/janhq/video-api/internal/infrastructure/observability"
)

// Application runs the HTTP server and job worker on one container.
type Application struct {
	container *app.Container
	log       zerolog.Logger
}

func NewApplication(container *app.Container, log zerolog.Logger) *Application {
	return &Application{container: container, log: log}
}

// Start recovers interrupted runs, then serves HTTP and drains the job queue
// until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	c := a.container

	recovered, err := c.Orchestrator.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted assets: %w", err)
	}
	if recovered > 0 {
		a.log.Warn().Int("count", recovered).Msg("marked interrupted assets as error")
	}

	if c.Config.PublicRead {
		changed, err := c.Publisher.SetPublicReadPolicy(ctx, c.Config.PublishPrefix)
		if err != nil {
			a.log.Error().Err(err).Msg("apply public read policy")
		} else {
			a.log.Info().Bool("changed", changed).Str("prefix", c.Config.PublishPrefix).Msg("public read policy applied")
		}
	}

	if err := c.Pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer c.Pool.Stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.Crontab.Run(egCtx)
	})
	eg.Go(func() error {
		return c.HTTP.Run(egCtx)
	})
	return eg.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	container, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create application")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("close resources")
		}
	}()

	application := NewApplication(container, log)
	if err := application.Start(ctx); err != nil {
		log.Error().Err(err).Msg("application stopped with error")
		return
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
