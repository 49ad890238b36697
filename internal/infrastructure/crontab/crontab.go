package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/utils/platformerrors"
)

const (
	jobPurgeSchedule     = "*/30 * * * *"
	stagingSweepSchedule = "*/15 * * * *"
	CronJobTimeout       = 5 * time.Minute
)

// JobPurger deletes finished queue rows.
type JobPurger interface {
	PurgeFinished(ctx context.Context, retention time.Duration) (int64, error)
}

// StagingSweeper removes staging directories left by crashed runs.
type StagingSweeper interface {
	SweepStaging(maxAge time.Duration, keep func(assetID string) bool) (int, error)
}

// Options sets retention windows. A zero window disables that job.
type Options struct {
	JobRetention  time.Duration
	StagingMaxAge time.Duration
	// InFlight reports assets whose staging directory is in use.
	InFlight func(assetID string) bool
}

// Crontab runs periodic maintenance for the pipeline.
type Crontab struct {
	ctab    *crontab.Crontab
	jobs    JobPurger
	staging StagingSweeper
	opts    Options
	log     zerolog.Logger
}

func NewCrontab(jobs JobPurger, staging StagingSweeper, opts Options, log zerolog.Logger) *Crontab {
	return &Crontab{
		ctab:    crontab.New(),
		jobs:    jobs,
		staging: staging,
		opts:    opts,
		log:     log.With().Str("component", "crontab").Logger(),
	}
}

// Run sweeps once, schedules the maintenance jobs and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	c.SweepStaging()
	c.PurgeJobs(ctx)

	if c.opts.StagingMaxAge > 0 && c.staging != nil {
		if err := c.ctab.AddJob(stagingSweepSchedule, c.SweepStaging); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add staging sweep job")
		}
	}
	if c.opts.JobRetention > 0 && c.jobs != nil {
		if err := c.ctab.AddJob(jobPurgeSchedule, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
			defer cancel()
			c.PurgeJobs(jobCtx)
		}); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add job purge job")
		}
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

// SweepStaging removes stale staging directories of assets not in flight.
func (c *Crontab) SweepStaging() {
	if c.staging == nil || c.opts.StagingMaxAge <= 0 {
		return
	}
	removed, err := c.staging.SweepStaging(c.opts.StagingMaxAge, c.opts.InFlight)
	if err != nil {
		c.log.Error().Err(err).Msg("sweep staging")
		return
	}
	if removed > 0 {
		c.log.Info().Int("removed", removed).Msg("removed stale staging directories")
	}
}

// PurgeJobs deletes finished jobs older than the retention window.
func (c *Crontab) PurgeJobs(ctx context.Context) {
	if c.jobs == nil || c.opts.JobRetention <= 0 {
		return
	}
	purged, err := c.jobs.PurgeFinished(ctx, c.opts.JobRetention)
	if err != nil {
		c.log.Error().Err(err).Msg("purge finished jobs")
		return
	}
	if purged > 0 {
		c.log.Info().Int64("purged", purged).Msg("purged finished jobs")
	}
}
