//go:build !wireinject

package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/config"
)

// Build assembles the container in the order the provider graph requires.
// Keep in step with wire.go.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := ProvideDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	st, err := ProvideStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	redis, err := ProvideRedis(cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	ladder, err := ProvideLadder(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	manifestCache, err := ProvideManifestCache()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	validator, err := ProvideAuth(ctx, cfg, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	locker := ProvideLocker(redis)
	progress := ProvideProgressCache(redis)
	enc := ProvideEncoder(cfg, log)
	publisher := ProvidePublisher(st, locker, cfg, log)
	repo := ProvideRepository(db)
	orchestrator := ProvideOrchestrator(repo, st, enc, publisher, progress, cfg, log)
	jobs := ProvideQueue(db, cfg, log)
	service := ProvideAssetService(cfg, repo, st, jobs, log)
	instrumenter := ProvideWorkerInstrumenter(cfg, log)
	pool := ProvideWorkerPool(jobs, orchestrator, instrumenter, ladder, cfg, log)
	cron := ProvideCrontab(jobs, enc, orchestrator, cfg, log)
	server := ProvideHTTPServer(cfg, log, service, progress, orchestrator, manifestCache, st, validator, db, redis)

	return &Container{
		Config:       cfg,
		Log:          log,
		DB:           db,
		Storage:      st,
		Redis:        redis,
		Ladder:       ladder,
		Publisher:    publisher,
		Orchestrator: orchestrator,
		Queue:        jobs,
		Assets:       service,
		Pool:         pool,
		Crontab:      cron,
		Auth:         validator,
		HTTP:         server,
	}, nil
}
