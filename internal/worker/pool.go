package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/domain/encoder"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/domain/retry"
	"github.com/janhq/video-api/internal/infrastructure/metrics"
	"github.com/janhq/video-api/internal/infrastructure/observability"
	"github.com/janhq/video-api/internal/infrastructure/queue"
)

// Processor runs one asset through the pipeline.
type Processor interface {
	ProcessAsset(ctx context.Context, id string, cfg encoder.Config) (*processing.Result, error)
}

// staleReleaser is implemented by queues that can reclaim jobs of dead workers.
type staleReleaser interface {
	ReleaseStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// Pool manages multiple background workers.
type Pool struct {
	workers      []*Worker
	queue        queue.JobQueue
	processor    Processor
	instrumenter *observability.WorkerInstrumenter
	cfg          Config
	instanceID   string
	log          zerolog.Logger
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

// Config contains worker pool configuration.
type Config struct {
	WorkerCount  int
	TaskTimeout  time.Duration
	PollInterval time.Duration
	// Ladder is used for jobs that carry no ladder of their own.
	Ladder      encoder.Config
	RetryPolicy retry.Policy
	// LockTTL is how long a running job may go without finishing before it
	// is handed to another worker. Zero disables the janitor.
	LockTTL         time.Duration
	JanitorInterval time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerCount < 0 {
		c.WorkerCount = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RetryPolicy == (retry.Policy{}) {
		c.RetryPolicy = retry.JobPolicy()
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// NewPool creates a new worker pool. instrumenter may be nil.
func NewPool(
	queue queue.JobQueue,
	processor Processor,
	instrumenter *observability.WorkerInstrumenter,
	cfg Config,
	log zerolog.Logger,
) *Pool {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "video-api"
	}
	return &Pool{
		queue:        queue,
		processor:    processor,
		instrumenter: instrumenter,
		cfg:          cfg.withDefaults(),
		instanceID:   fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
		log:          log.With().Str("component", "worker-pool").Logger(),
	}
}

// Start initializes and starts all workers.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info().Int("worker_count", p.cfg.WorkerCount).Str("instance", p.instanceID).Msg("starting worker pool")

	ctx, p.cancel = context.WithCancel(ctx)
	p.workers = make([]*Worker, p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		worker := NewWorker(
			fmt.Sprintf("%s-%d", p.instanceID, i+1),
			p.queue,
			p.processor,
			p.instrumenter,
			p.cfg,
			p.log,
		)
		p.workers[i] = worker

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(ctx)
		}(worker)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.janitor(ctx)
	}()

	p.log.Info().Msg("worker pool started")
	return nil
}

// Stop cancels in-flight runs and waits for workers to exit. Cancelled runs
// leave their assets in error.
func (p *Pool) Stop() {
	p.log.Info().Msg("stopping worker pool")

	for _, worker := range p.workers {
		worker.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("all workers stopped gracefully")
	case <-time.After(p.cfg.ShutdownTimeout):
		p.log.Warn().Msg("worker pool shutdown timed out")
	}
}

// GetQueueDepth returns the current queue depth.
func (p *Pool) GetQueueDepth(ctx context.Context) (int64, error) {
	return p.queue.Depth(ctx)
}

// janitor reclaims jobs from dead workers and publishes queue depth.
func (p *Pool) janitor(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Pool) sweep(ctx context.Context) {
	if releaser, ok := p.queue.(staleReleaser); ok && p.cfg.LockTTL > 0 {
		released, err := releaser.ReleaseStale(ctx, p.cfg.LockTTL)
		if err != nil {
			p.log.Warn().Err(err).Msg("failed to release stale jobs")
		} else if released > 0 {
			p.log.Warn().Int64("released", released).Msg("released jobs held by unresponsive workers")
		}
	}
	depth, err := p.queue.Depth(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("failed to read queue depth")
		return
	}
	metrics.SetQueueDepth(depth)
}
