package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/infrastructure/metrics"
	"github.com/janhq/video-api/internal/infrastructure/observability"
	"github.com/janhq/video-api/internal/infrastructure/queue"
)

const (
	jobType       = "process_asset"
	finishTimeout = 10 * time.Second
)

// Job dispositions.
const (
	DispositionCompleted = "completed"
	DispositionRetried   = "retried"
	DispositionFailed    = "failed"
	DispositionDropped   = "dropped"
)

// Worker processes background jobs from the queue.
type Worker struct {
	id           string
	queue        queue.JobQueue
	processor    Processor
	instrumenter *observability.WorkerInstrumenter
	cfg          Config
	log          zerolog.Logger
	stopChan     chan struct{}
}

// NewWorker creates a new background worker.
func NewWorker(
	id string,
	queue queue.JobQueue,
	processor Processor,
	instrumenter *observability.WorkerInstrumenter,
	cfg Config,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		processor:    processor,
		instrumenter: instrumenter,
		cfg:          cfg.withDefaults(),
		log:          log.With().Str("worker_id", id).Str("component", "worker").Logger(),
		stopChan:     make(chan struct{}),
	}
}

// Start begins processing jobs from the queue. A job that was found is
// followed immediately by another dequeue; an empty queue waits a poll interval.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped by context")
			return
		case <-w.stopChan:
			w.log.Info().Msg("worker stopped")
			return
		case <-timer.C:
			next := w.cfg.PollInterval
			if w.processNextJob(ctx) {
				next = 0
			}
			timer.Reset(next)
		}
	}
}

// Stop asks the worker to exit after its current job.
func (w *Worker) Stop() {
	select {
	case <-w.stopChan:
	default:
		close(w.stopChan)
	}
}

// processNextJob reports whether a job was handled.
func (w *Worker) processNextJob(ctx context.Context) bool {
	job, err := w.queue.Dequeue(ctx, w.id)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("failed to dequeue job")
		}
		return false
	}
	if job == nil {
		return false
	}

	run := func(ctx context.Context) error {
		return w.handle(ctx, job)
	}
	if w.instrumenter != nil {
		_ = w.instrumenter.InstrumentJob(ctx, jobType, observability.JobAttributes(job.ID, job.AssetID, job.Attempts), run)
	} else {
		_ = run(ctx)
	}
	return true
}

// handle runs the job and settles it in the queue. The returned error is the
// run's error, for instrumentation.
func (w *Worker) handle(ctx context.Context, job *queue.Job) error {
	log := w.log.With().Str("asset_id", job.AssetID).Uint("job_id", job.ID).Int("attempt", job.Attempts).Logger()
	log.Info().Msg("processing job")

	ladder := w.cfg.Ladder
	if job.Ladder != nil {
		ladder = *job.Ladder
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if w.cfg.TaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.TaskTimeout)
	}
	result, runErr := w.processor.ProcessAsset(runCtx, job.AssetID, ladder)
	cancel()

	settleCtx, settleCancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer settleCancel()

	disposition, err := w.settle(settleCtx, job, runErr)
	if err != nil {
		log.Error().Err(err).Str("disposition", disposition).Msg("failed to settle job")
	}
	metrics.RecordJob(disposition)

	switch disposition {
	case DispositionCompleted:
		log.Info().Str("master", result.MasterManifestURL).Msg("job completed")
	case DispositionDropped:
		log.Info().Msg("job dropped, asset is processing elsewhere")
	case DispositionRetried:
		log.Warn().Err(runErr).Msg("job failed with a transient error, re-queued")
	default:
		log.Error().Err(runErr).Msg("job failed")
	}
	return runErr
}

// settle decides what happens to the job after a run.
func (w *Worker) settle(ctx context.Context, job *queue.Job, runErr error) (string, error) {
	switch {
	case runErr == nil:
		return DispositionCompleted, w.queue.Complete(ctx, job.ID)
	case errors.Is(runErr, pipelineerrors.ErrConcurrentProcessingRejected),
		errors.Is(runErr, pipelineerrors.ErrClaimLost):
		return DispositionDropped, w.queue.Drop(ctx, job.ID, runErr.Error())
	case pipelineerrors.IsRetryable(runErr) && !job.Exhausted():
		delay := w.cfg.RetryPolicy.CalculateDelay(job.Attempts)
		return DispositionRetried, w.queue.Retry(ctx, job.ID, runErr, delay)
	default:
		return DispositionFailed, w.queue.Fail(ctx, job.ID, runErr)
	}
}
