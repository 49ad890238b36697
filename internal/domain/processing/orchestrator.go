// Package processing drives an asset through encode and publish and owns its
// status transitions.
package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/domain/encoder"
	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/hls"
	"github.com/janhq/video-api/internal/domain/publish"
)

const (
	interruptedMessage = "processing interrupted"
	persistTimeout     = 10 * time.Second
	defaultLease       = 2 * time.Minute
)

var tracer = otel.Tracer("github.com/janhq/video-api/internal/domain/processing")

// SourceFetcher makes an asset's source available as a local file under dir.
type SourceFetcher interface {
	Fetch(ctx context.Context, sourceRef, dir string) (string, error)
}

// Thumbnailer grabs a still frame from a source.
type Thumbnailer interface {
	Capture(ctx context.Context, sourcePath, outPath string, at float64) error
}

// ProgressSink receives progress for fast reads by pollers.
type ProgressSink interface {
	Publish(ctx context.Context, assetID string, status asset.Status, progress int) error
}

// Recorder receives run and stage measurements.
type Recorder interface {
	RunStarted()
	RunFinished(outcome string, elapsed time.Duration)
	StageFinished(stage pipelineerrors.Stage, elapsed time.Duration)
	SegmentEncoded()
}

// Result is returned by a successful run.
type Result struct {
	MasterManifestURL string
	ThumbnailURL      string
}

// Options configures the orchestrator.
type Options struct {
	Layout   publish.Layout
	Resolver hls.Resolver
	// RunTimeout bounds a whole run; zero means no limit.
	RunTimeout time.Duration
	// ThumbnailAt is the capture offset in seconds, clamped to half the source duration.
	ThumbnailAt float64
	// Lease is how long a claim survives without a heartbeat. Runs renew it
	// every third of the lease; RecoverInterrupted only expires older claims.
	Lease time.Duration
}

// Orchestrator runs processAsset.
type Orchestrator struct {
	repo       asset.Repository
	sources    SourceFetcher
	encoder    *encoder.Encoder
	publisher  *publish.Publisher
	thumbnails Thumbnailer
	progress   ProgressSink
	recorder   Recorder
	opts       Options
	log        zerolog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// Dependencies groups the orchestrator collaborators. Thumbnails, Progress and
// Recorder are optional.
type Dependencies struct {
	Repository asset.Repository
	Sources    SourceFetcher
	Encoder    *encoder.Encoder
	Publisher  *publish.Publisher
	Thumbnails Thumbnailer
	Progress   ProgressSink
	Recorder   Recorder
}

func NewOrchestrator(deps Dependencies, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.ThumbnailAt <= 0 {
		opts.ThumbnailAt = 1
	}
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Orchestrator{
		repo:       deps.Repository,
		sources:    deps.Sources,
		encoder:    deps.Encoder,
		publisher:  deps.Publisher,
		thumbnails: deps.Thumbnails,
		progress:   deps.Progress,
		recorder:   recorder,
		opts:       opts,
		log:        log.With().Str("component", "processing-orchestrator").Logger(),
		inflight:   make(map[string]context.CancelFunc),
	}
}

// Manifests returns a renderer using the orchestrator's layout and resolver.
func (o *Orchestrator) Manifests() Manifests {
	return Manifests{Layout: o.opts.Layout, Resolver: o.opts.Resolver}
}

// ProcessAsset encodes and publishes asset id with cfg. A second call for an
// asset that is already processing fails with ConcurrentProcessingRejected and
// leaves the running attempt alone. A run whose claim expires and is taken
// over stops with ClaimLost without touching the asset. Every other failure
// ends with the asset in error carrying the failure message.
func (o *Orchestrator) ProcessAsset(ctx context.Context, id string, cfg encoder.Config) (*Result, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runCtx, release, err := o.register(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	runCtx, span := tracer.Start(runCtx, "processing.ProcessAsset", trace.WithAttributes(
		attribute.String("asset.id", id),
		attribute.Int("ladder.qualities", len(cfg.Qualities)),
		attribute.Float64("ladder.segment_duration", cfg.SegmentDuration),
	))
	defer span.End()

	log := o.log.With().Str("asset_id", id).Logger()
	claimStarted := time.Now()
	a, err := o.repo.Claim(runCtx, id)
	o.recorder.StageFinished(pipelineerrors.StageClaim, time.Since(claimStarted))
	if err != nil {
		pe := pipelineerrors.Classify(pipelineerrors.StageClaim, err)
		span.SetStatus(codes.Error, pe.Error())
		if pe.Kind == pipelineerrors.KindConcurrentProcessingRejected {
			log.Info().Msg("asset is already processing elsewhere")
		}
		return nil, pe
	}

	runID := a.RunID
	runCtx, abandon := context.WithCancelCause(runCtx)
	defer abandon(nil)
	stopHeartbeat := o.heartbeat(runCtx, id, runID, abandon)
	defer stopHeartbeat()

	o.recorder.RunStarted()
	started := time.Now()
	log.Info().Str("source", a.SourceRef).Str("run_id", runID).Msg("processing started")
	o.publishProgress(runCtx, id, asset.StatusProcessing, 0)

	tracker := newProgressTracker(0, func(p int) {
		err := o.repo.SaveStatus(runCtx, id, asset.StatusUpdate{Status: asset.StatusProcessing, Progress: p, RunID: runID})
		if errors.Is(err, pipelineerrors.ErrClaimLost) {
			abandon(err)
			return
		}
		if err != nil {
			log.Warn().Err(err).Int("progress", p).Msg("failed to persist progress")
		}
		o.publishProgress(runCtx, id, asset.StatusProcessing, p)
		span.AddEvent("progress", trace.WithAttributes(attribute.Int("progress", p)))
	})

	result, err := o.run(runCtx, a, cfg, tracker)
	if cause := context.Cause(runCtx); err != nil && errors.Is(cause, pipelineerrors.ErrClaimLost) {
		err = cause
	}
	if err != nil {
		if errors.Is(err, pipelineerrors.ErrClaimLost) {
			log.Warn().Err(err).Msg("processing claim lost, leaving the asset to its new owner")
		} else {
			o.fail(ctx, id, runID, tracker.value(), err)
			log.Error().Err(err).Int("progress", tracker.value()).Msg("processing failed")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.recorder.RunFinished(string(pipelineerrors.KindOf(err)), time.Since(started))
		return nil, err
	}

	o.recorder.RunFinished(string(asset.StatusReady), time.Since(started))
	log.Info().Str("master", result.MasterManifestURL).Dur("elapsed", time.Since(started)).Msg("processing finished")
	return result, nil
}

// heartbeat renews the claim until the returned stop is called. Losing the
// claim cancels the run through abandon.
func (o *Orchestrator) heartbeat(ctx context.Context, id, runID string, abandon context.CancelCauseFunc) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(o.opts.Lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := o.repo.Heartbeat(ctx, id, runID)
				if errors.Is(err, pipelineerrors.ErrClaimLost) {
					abandon(err)
					return
				}
				if err != nil {
					o.log.Warn().Err(err).Str("asset_id", id).Msg("failed to renew processing claim")
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (o *Orchestrator) run(ctx context.Context, a *asset.MediaAsset, cfg encoder.Config, tracker *progressTracker) (*Result, error) {
	log := o.log.With().Str("asset_id", a.ID).Logger()
	sourceDir := o.encoder.StagingDir(a.ID) + ".source"
	defer func() {
		if err := os.RemoveAll(sourceDir); err != nil {
			log.Warn().Err(err).Msg("failed to remove fetched source")
		}
	}()

	stageStarted := time.Now()
	sourcePath, err := o.sources.Fetch(ctx, a.SourceRef, sourceDir)
	if err != nil {
		return nil, pipelineerrors.Classify(pipelineerrors.StageProbe, err).WithAsset(a.ID)
	}
	src := encoder.Source{AssetID: a.ID, Path: sourcePath}

	info, err := o.encoder.Probe(ctx, src)
	o.recorder.StageFinished(pipelineerrors.StageProbe, time.Since(stageStarted))
	if err != nil {
		return nil, err
	}
	if err := o.repo.SaveSourceInfo(ctx, a.ID, info); err != nil {
		log.Warn().Err(err).Msg("failed to persist source info")
	}

	total := len(encoder.PlanSegments(info.DurationSeconds, cfg.SegmentDuration)) * len(cfg.Qualities)
	var doneMu sync.Mutex
	done := 0
	stageStarted = time.Now()
	encodeCtx, encodeSpan := tracer.Start(ctx, "processing.encode")
	staged, err := o.encoder.Encode(encodeCtx, src, info, cfg, func() {
		o.recorder.SegmentEncoded()
		doneMu.Lock()
		done++
		n := done
		doneMu.Unlock()
		tracker.advance(encodeProgress(n, total))
	})
	endSpan(encodeSpan, err)
	o.recorder.StageFinished(pipelineerrors.StageEncode, time.Since(stageStarted))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := staged.Cleanup(); err != nil {
			log.Warn().Err(err).Msg("failed to remove staging directory")
		}
	}()
	tracker.advance(encodeCeiling)

	thumbnailPath := o.captureThumbnail(ctx, a.ID, sourcePath, info, staged.StagingDir)

	tree, variants, err := buildTree(o.opts.Layout, o.opts.Resolver, a.ID, staged, thumbnailPath)
	if err != nil {
		return nil, pipelineerrors.Internal(pipelineerrors.StagePublish, "failed to render playlists", err).WithAsset(a.ID)
	}

	stageStarted = time.Now()
	publishCtx, publishSpan := tracer.Start(ctx, "processing.publish", trace.WithAttributes(attribute.Int("objects", tree.Len())))
	published, err := o.publisher.Publish(publishCtx, tree, func(n, total int) {
		tracker.advance(publishProgress(n, total))
	})
	endSpan(publishSpan, err)
	o.recorder.StageFinished(pipelineerrors.StagePublish, time.Since(stageStarted))
	if err != nil {
		return nil, err
	}

	stageStarted = time.Now()
	result := &Result{MasterManifestURL: o.url(published.MasterKey, published.MasterURL)}
	update := asset.StatusUpdate{
		Status:            asset.StatusReady,
		Progress:          100,
		MasterManifestURL: &result.MasterManifestURL,
		RunID:             a.RunID,
	}
	if thumbnailPath != "" {
		key := o.opts.Layout.ThumbnailKey(a.ID)
		result.ThumbnailURL = o.url(key, o.publisher.Store().PublicURL(key))
		update.ThumbnailURL = &result.ThumbnailURL
	}
	if err := o.repo.Complete(ctx, a.ID, variants, update); err != nil {
		if errors.Is(err, pipelineerrors.ErrClaimLost) {
			return nil, err
		}
		return nil, pipelineerrors.Internal(pipelineerrors.StagePersist, "failed to mark asset ready", err).WithAsset(a.ID)
	}
	o.recorder.StageFinished(pipelineerrors.StagePersist, time.Since(stageStarted))
	o.publishProgress(ctx, a.ID, asset.StatusReady, 100)
	return result, nil
}

// captureThumbnail returns the staged thumbnail path, or "" when capture is
// disabled or fails. A missing thumbnail never fails the asset.
func (o *Orchestrator) captureThumbnail(ctx context.Context, assetID, sourcePath string, info asset.SourceInfo, stagingDir string) string {
	if o.thumbnails == nil {
		return ""
	}
	at := o.opts.ThumbnailAt
	if half := info.DurationSeconds / 2; at > half {
		at = half
	}
	out := filepath.Join(stagingDir, "thumbnail.jpg")
	if err := o.thumbnails.Capture(ctx, sourcePath, out, at); err != nil {
		o.log.Warn().Err(err).Str("asset_id", assetID).Msg("thumbnail capture failed, continuing without one")
		return ""
	}
	return out
}

func (o *Orchestrator) url(key, storeURL string) string {
	if o.opts.Resolver.BaseURL != "" {
		return o.opts.Resolver.URL(key)
	}
	if storeURL != "" {
		return storeURL
	}
	return key
}

// fail records the error on the asset. It runs on a context detached from the
// caller so cancellation still leaves the asset in error.
func (o *Orchestrator) fail(ctx context.Context, id, runID string, progress int, cause error) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	message := cause.Error()
	err := o.repo.SaveStatus(persistCtx, id, asset.StatusUpdate{
		Status:       asset.StatusError,
		Progress:     progress,
		ErrorMessage: &message,
		RunID:        runID,
	})
	if errors.Is(err, pipelineerrors.ErrClaimLost) {
		o.log.Warn().Str("asset_id", id).Msg("processing claim lost before the error could be recorded")
		return
	}
	if err != nil {
		o.log.Error().Err(err).Str("asset_id", id).Msg("failed to record processing error")
	}
	o.publishProgress(persistCtx, id, asset.StatusError, progress)
}

func (o *Orchestrator) publishProgress(ctx context.Context, id string, status asset.Status, progress int) {
	if o.progress == nil {
		return
	}
	if err := o.progress.Publish(ctx, id, status, progress); err != nil {
		o.log.Debug().Err(err).Str("asset_id", id).Msg("failed to publish progress")
	}
}

// register coalesces runs for the same asset inside this process. The
// returned context is cancelled by Cancel or when release is called.
func (o *Orchestrator) register(ctx context.Context, id string) (context.Context, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return nil, nil, pipelineerrors.ConcurrentProcessingRejected(id)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.opts.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	o.inflight[id] = cancel

	release := func() {
		cancel()
		o.mu.Lock()
		delete(o.inflight, id)
		o.mu.Unlock()
	}
	return runCtx, release, nil
}

// Cancel stops a run in this process. It reports whether one was found.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.inflight[id]
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports whether this process is running id.
func (o *Orchestrator) InFlight(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[id]
	return ok
}

// RecoverInterrupted moves assets whose processing claim has gone without a
// heartbeat for longer than the lease to error. Claims renewed by live runs
// in this or any other process are left alone.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int, error) {
	stuck, err := o.repo.ListByStatus(ctx, asset.StatusProcessing)
	if err != nil {
		return 0, err
	}

	staleBefore := time.Now().Add(-o.opts.Lease)
	recovered := 0
	var errs []error
	for _, a := range stuck {
		if o.InFlight(a.ID) || a.LastHeartbeat().After(staleBefore) {
			continue
		}
		expired, err := o.repo.ExpireClaim(ctx, a.ID, a.RunID, staleBefore, interruptedMessage)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !expired {
			continue
		}
		recovered++
		o.publishProgress(ctx, a.ID, asset.StatusError, a.Progress)
		o.log.Warn().Str("asset_id", a.ID).Str("run_id", a.RunID).Int("progress", a.Progress).
			Time("last_heartbeat", a.LastHeartbeat()).Msg("recovered interrupted asset")
	}
	return recovered, errors.Join(errs...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type noopRecorder struct{}

func (noopRecorder) RunStarted()                                       {}
func (noopRecorder) RunFinished(string, time.Duration)                 {}
func (noopRecorder) StageFinished(pipelineerrors.Stage, time.Duration) {}
func (noopRecorder) SegmentEncoded()                                   {}
