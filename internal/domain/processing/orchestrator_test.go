package processing_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/domain/encoder"
	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/hls"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/domain/publish"
	"github.com/janhq/video-api/internal/domain/retry"
)

// memoryRepository is an in-memory asset.Repository that records every progress write.
type memoryRepository struct {
	mu       sync.Mutex
	assets   map[string]*asset.MediaAsset
	progress map[string][]int
	runs     int
}

func newMemoryRepository(assets ...*asset.MediaAsset) *memoryRepository {
	r := &memoryRepository{assets: map[string]*asset.MediaAsset{}, progress: map[string][]int{}}
	for _, a := range assets {
		r.assets[a.ID] = a
	}
	return r
}

func (r *memoryRepository) Create(ctx context.Context, a *asset.MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[a.ID] = a
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, id string) (*asset.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return nil, pipelineerrors.AssetNotFound(id, nil)
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepository) List(ctx context.Context, filter asset.Filter) ([]*asset.MediaAsset, int64, error) {
	return nil, 0, nil
}

func (r *memoryRepository) ListByStatus(ctx context.Context, status asset.Status) ([]*asset.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*asset.MediaAsset
	for _, a := range r.assets {
		if a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) Claim(ctx context.Context, id string) (*asset.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return nil, pipelineerrors.AssetNotFound(id, nil)
	}
	if a.Status == asset.StatusProcessing {
		return nil, pipelineerrors.ConcurrentProcessingRejected(id)
	}
	r.runs++
	now := time.Now()
	a.Status = asset.StatusProcessing
	a.Progress = 0
	a.ErrorMessage = nil
	a.RunID = fmt.Sprintf("run-%d", r.runs)
	a.HeartbeatAt = &now
	r.progress[id] = append(r.progress[id], 0)
	cp := *a
	return &cp, nil
}

// holds reports whether runID may write to a. Callers hold r.mu.
func (r *memoryRepository) holds(a *asset.MediaAsset, runID string) bool {
	return runID == "" || (a.Status == asset.StatusProcessing && a.RunID == runID)
}

func (r *memoryRepository) SaveStatus(ctx context.Context, id string, update asset.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.assets[id]
	if !r.holds(a, update.RunID) {
		return pipelineerrors.ClaimLost(id)
	}
	r.apply(a, update)
	return nil
}

func (r *memoryRepository) apply(a *asset.MediaAsset, update asset.StatusUpdate) {
	a.Status = update.Status
	a.Progress = update.Progress
	if update.ErrorMessage != nil {
		a.ErrorMessage = update.ErrorMessage
	}
	if update.Status == asset.StatusReady {
		a.ErrorMessage = nil
	}
	if update.MasterManifestURL != nil {
		a.MasterManifestURL = update.MasterManifestURL
	}
	if update.ThumbnailURL != nil {
		a.ThumbnailURL = update.ThumbnailURL
	}
	r.progress[a.ID] = append(r.progress[a.ID], update.Progress)
}

func (r *memoryRepository) Heartbeat(ctx context.Context, id, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.assets[id]
	if !r.holds(a, runID) {
		return pipelineerrors.ClaimLost(id)
	}
	now := time.Now()
	a.HeartbeatAt = &now
	return nil
}

func (r *memoryRepository) ExpireClaim(ctx context.Context, id, runID string, staleBefore time.Time, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.assets[id]
	if a.Status != asset.StatusProcessing || a.RunID != runID || a.LastHeartbeat().After(staleBefore) {
		return false, nil
	}
	a.Status = asset.StatusError
	a.ErrorMessage = &message
	return true, nil
}

func (r *memoryRepository) SaveSourceInfo(ctx context.Context, id string, info asset.SourceInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[id].SourceInfo = info
	return nil
}

func (r *memoryRepository) Complete(ctx context.Context, id string, variants []asset.Variant, update asset.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.assets[id]
	if !r.holds(a, update.RunID) {
		return pipelineerrors.ClaimLost(id)
	}
	a.Variants = variants
	r.apply(a, update)
	return nil
}

// setHeartbeat backdates the claim on id.
func (r *memoryRepository) setHeartbeat(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[id].HeartbeatAt = &at
}

func (r *memoryRepository) snapshot(id string) asset.MediaAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.assets[id]
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string]publish.Object

	PutObjectFunc func(ctx context.Context, obj publish.Object) error
}

func (m *memoryStore) PutObject(ctx context.Context, obj publish.Object) error {
	if m.PutObjectFunc != nil {
		if err := m.PutObjectFunc(ctx, obj); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.Key] = obj
	return nil
}

func (m *memoryStore) ListKeys(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (m *memoryStore) DeleteKeys(ctx context.Context, keys []string) error           { return nil }
func (m *memoryStore) Bucket() string                                                { return "media" }
func (m *memoryStore) PublicURL(key string) string                                   { return "http://localhost:9000/media/" + key }

func (m *memoryStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type localFetcher struct{}

func (localFetcher) Fetch(ctx context.Context, sourceRef, dir string) (string, error) {
	if _, err := os.Stat(sourceRef); err != nil {
		return "", err
	}
	return sourceRef, nil
}

type stubProber struct{ duration float64 }

func (p stubProber) Probe(ctx context.Context, path string) (asset.SourceInfo, error) {
	return asset.SourceInfo{DurationSeconds: p.duration, Width: 1920, Height: 1080, VideoCodec: "h264"}, nil
}

type stubTranscoder struct {
	EncodeSegmentFunc func(ctx context.Context, job encoder.SegmentJob) error
}

func (s *stubTranscoder) EncodeSegment(ctx context.Context, job encoder.SegmentJob) error {
	if s.EncodeSegmentFunc != nil {
		if err := s.EncodeSegmentFunc(ctx, job); err != nil {
			return err
		}
	}
	return os.WriteFile(job.OutputPath, []byte(fmt.Sprintf("%s-%d", job.Quality.Label, int(job.Start))), 0o644)
}

type stubThumbnailer struct{ err error }

func (s stubThumbnailer) Capture(ctx context.Context, sourcePath, outPath string, at float64) error {
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(outPath, []byte("jpeg"), 0o644)
}

type fixture struct {
	repo       *memoryRepository
	store      *memoryStore
	transcoder *stubTranscoder
	orch       *processing.Orchestrator
	staging    string
}

func newFixture(t *testing.T, opts processing.Options, thumbnails processing.Thumbnailer) *fixture {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.mp4")
	require.NoError(t, os.WriteFile(source, []byte("source"), 0o644))

	f := &fixture{
		repo: newMemoryRepository(&asset.MediaAsset{
			ID:        "vid_1",
			SourceRef: source,
			Status:    asset.StatusPending,
		}),
		store:      &memoryStore{objects: map[string]publish.Object{}},
		transcoder: &stubTranscoder{},
		staging:    filepath.Join(dir, "staging"),
	}
	f.orch = f.newOrchestrator(f.transcoder, f.staging, opts, thumbnails)
	return f
}

// newOrchestrator builds an orchestrator sharing the fixture's repository and store.
func (f *fixture) newOrchestrator(transcoder *stubTranscoder, staging string, opts processing.Options, thumbnails processing.Thumbnailer) *processing.Orchestrator {
	enc := encoder.New(stubProber{duration: 20}, transcoder, encoder.Options{StagingDir: staging}, zerolog.Nop())
	pub := publish.New(f.store, nil, publish.Options{Retry: retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, BackoffStrategy: retry.BackoffFixed}}, zerolog.Nop())
	if opts.Layout.Prefix == "" {
		opts.Layout = publish.Layout{Prefix: "videos"}
	}
	return processing.NewOrchestrator(processing.Dependencies{
		Repository: f.repo,
		Sources:    localFetcher{},
		Encoder:    enc,
		Publisher:  pub,
		Thumbnails: thumbnails,
	}, opts, zerolog.Nop())
}

// replica is a second server process working on the same database and bucket.
func (f *fixture) replica(t *testing.T, opts processing.Options) (*processing.Orchestrator, *stubTranscoder) {
	t.Helper()
	transcoder := &stubTranscoder{}
	return f.newOrchestrator(transcoder, filepath.Join(t.TempDir(), "staging"), opts, nil), transcoder
}

// blockEncodes makes every segment encode wait until the returned release is called.
func blockEncodes(tr *stubTranscoder) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	tr.EncodeSegmentFunc = func(ctx context.Context, job encoder.SegmentJob) error {
		once.Do(func() { close(in) })
		select {
		case <-unblock:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return in, func() { close(unblock) }
}

func TestProcessAsset_ReadyWithFullLadder(t *testing.T) {
	f := newFixture(t, processing.Options{}, stubThumbnailer{})

	result, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/media/videos/vid_1/master.m3u8", result.MasterManifestURL)
	assert.Equal(t, "http://localhost:9000/media/videos/vid_1/thumbnail.jpg", result.ThumbnailURL)

	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusReady, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Nil(t, got.ErrorMessage)
	require.Len(t, got.Variants, 3)
	for _, v := range got.Variants {
		require.Len(t, v.Segments, 4)
		assert.InDelta(t, 2.0, v.Segments[3].Duration, 1e-9)
		assert.NoError(t, asset.ValidateSegments(v.Segments))
	}
	assert.Equal(t, 20.0, got.SourceInfo.DurationSeconds)

	progress := f.repo.progress["vid_1"]
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, 100, progress[len(progress)-1])
	assert.True(t, sort.IntsAreSorted(progress), "progress must be monotonic: %v", progress)

	master := string(f.store.objects["videos/vid_1/master.m3u8"].Body)
	entries, err := hls.ParseMaster(master)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(800000), entries[0].Bandwidth)
	assert.Equal(t, "360p/index.m3u8", entries[0].URI)
	assert.NotContains(t, master, "localhost")

	for _, label := range []string{"360p", "480p", "720p"} {
		for i := 0; i < 4; i++ {
			assert.True(t, f.store.has(fmt.Sprintf("videos/vid_1/%s/segment_%05d.ts", label, i)))
		}
	}
	assert.NoDirExists(t, filepath.Join(f.staging, "vid_1"))
}

func TestProcessAsset_ReprocessedSegmentsRevalidate(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	key := "videos/vid_1/360p/segment_00001.ts"

	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "360p-6", string(f.store.objects[key].Body))

	cfg := encoder.DefaultConfig()
	cfg.SegmentDuration = 4
	_, err = f.orch.ProcessAsset(context.Background(), "vid_1", cfg)
	require.NoError(t, err)

	seg := f.store.objects[key]
	assert.Equal(t, "360p-4", string(seg.Body), "re-processing overwrites the same segment key")
	assert.Equal(t, publish.CacheControlSegment, seg.CacheControl)
	assert.NotContains(t, seg.CacheControl, "immutable")
	assert.NotContains(t, seg.CacheControl, "max-age")
	assert.Equal(t, publish.CacheControlManifest, f.store.objects["videos/vid_1/360p/index.m3u8"].CacheControl)
}

func TestProcessAsset_AbsoluteBaseURL(t *testing.T) {
	f := newFixture(t, processing.Options{Resolver: hls.Resolver{BaseURL: "https://cdn.example.com"}}, nil)

	result, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/videos/vid_1/master.m3u8", result.MasterManifestURL)
	assert.Empty(t, result.ThumbnailURL)

	media := string(f.store.objects["videos/vid_1/480p/index.m3u8"].Body)
	assert.Contains(t, media, "https://cdn.example.com/videos/vid_1/480p/segment_00000.ts\n")
}

func TestProcessAsset_MasterFailureThenRetry(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	f.store.PutObjectFunc = func(ctx context.Context, obj publish.Object) error {
		if strings.HasSuffix(obj.Key, "master.m3u8") {
			return pipelineerrors.PermissionDenied("access denied", nil)
		}
		return nil
	}

	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.Error(t, err)

	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, err.Error(), *got.ErrorMessage)
	assert.False(t, f.store.has("videos/vid_1/master.m3u8"))
	assert.Less(t, got.Progress, 100)

	f.store.PutObjectFunc = nil
	_, err = f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, f.store.has("videos/vid_1/master.m3u8"))
	assert.Equal(t, asset.StatusReady, f.repo.snapshot("vid_1").Status)
}

func TestProcessAsset_VariantFailureMarksError(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	f.transcoder.EncodeSegmentFunc = func(ctx context.Context, job encoder.SegmentJob) error {
		if job.Quality.Label == "720p" {
			return errors.New("encoder crashed")
		}
		return nil
	}

	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.ErrorIs(t, err, pipelineerrors.ErrVariantEncodeFailed)

	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusError, got.Status)
	assert.Contains(t, *got.ErrorMessage, "720p")
	assert.Empty(t, got.Variants)
	assert.Empty(t, f.store.objects)
}

func TestProcessAsset_ThumbnailFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, processing.Options{}, stubThumbnailer{err: errors.New("no keyframe")})

	result, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, result.ThumbnailURL)
	assert.False(t, f.store.has("videos/vid_1/thumbnail.jpg"))
}

func TestProcessAsset_ConcurrentCallIsRejected(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	f.transcoder.EncodeSegmentFunc = func(ctx context.Context, job encoder.SegmentJob) error {
		once.Do(func() { close(entered) })
		<-unblock
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
		done <- err
	}()
	<-entered

	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.ErrorIs(t, err, pipelineerrors.ErrConcurrentProcessingRejected)
	assert.Equal(t, asset.StatusProcessing, f.repo.snapshot("vid_1").Status)
	assert.Nil(t, f.repo.snapshot("vid_1").ErrorMessage)

	close(unblock)
	require.NoError(t, <-done)
	assert.Equal(t, asset.StatusReady, f.repo.snapshot("vid_1").Status)
}

func TestProcessAsset_ClaimedElsewhereIsRejected(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	f.repo.assets["vid_1"].Status = asset.StatusProcessing
	f.repo.assets["vid_1"].Progress = 40

	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.ErrorIs(t, err, pipelineerrors.ErrConcurrentProcessingRejected)

	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
}

func TestProcessAsset_CancellationEndsInError(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	f.transcoder.EncodeSegmentFunc = func(ctx context.Context, job encoder.SegmentJob) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.orch.ProcessAsset(ctx, "vid_1", encoder.DefaultConfig())
	require.Error(t, err)

	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.False(t, f.orch.InFlight("vid_1"))
}

func TestProcessAsset_RunTimeout(t *testing.T) {
	f := newFixture(t, processing.Options{RunTimeout: 20 * time.Millisecond}, nil)
	f.transcoder.EncodeSegmentFunc = func(ctx context.Context, job encoder.SegmentJob) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, asset.StatusError, f.repo.snapshot("vid_1").Status)
}

func TestProcessAsset_InvalidConfigLeavesAssetUntouched(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	cfg := encoder.DefaultConfig()
	cfg.SegmentDuration = 0

	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", cfg)
	require.ErrorIs(t, err, pipelineerrors.ErrInvalidConfig)
	assert.Equal(t, asset.StatusPending, f.repo.snapshot("vid_1").Status)
}

func TestProcessAsset_UnknownAsset(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	_, err := f.orch.ProcessAsset(context.Background(), "vid_missing", encoder.DefaultConfig())
	assert.ErrorIs(t, err, pipelineerrors.ErrAssetNotFound)
}

func TestRecoverInterrupted(t *testing.T) {
	f := newFixture(t, processing.Options{Lease: time.Minute}, nil)
	f.repo.assets["vid_1"].Status = asset.StatusProcessing
	f.repo.assets["vid_1"].Progress = 37
	f.repo.assets["vid_2"] = &asset.MediaAsset{ID: "vid_2", Status: asset.StatusReady, Progress: 100}
	fresh := time.Now()
	f.repo.assets["vid_3"] = &asset.MediaAsset{ID: "vid_3", Status: asset.StatusProcessing, Progress: 12, RunID: "run-live", HeartbeatAt: &fresh}

	n, err := f.orch.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusError, got.Status)
	assert.Equal(t, 37, got.Progress)
	assert.Equal(t, "processing interrupted", *got.ErrorMessage)
	assert.Equal(t, asset.StatusReady, f.repo.snapshot("vid_2").Status)
	assert.Equal(t, asset.StatusProcessing, f.repo.snapshot("vid_3").Status)
	assert.Nil(t, f.repo.snapshot("vid_3").ErrorMessage)
}

func TestRecoverInterrupted_LeavesOtherReplicasRunAlone(t *testing.T) {
	f := newFixture(t, processing.Options{Lease: time.Hour}, nil)
	entered, release := blockEncodes(f.transcoder)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
		done <- err
	}()
	<-entered

	other, otherTranscoder := f.replica(t, processing.Options{Lease: time.Minute})
	var otherEncodes atomic.Int32
	otherTranscoder.EncodeSegmentFunc = func(ctx context.Context, job encoder.SegmentJob) error {
		otherEncodes.Add(1)
		return nil
	}

	n, err := other.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, asset.StatusProcessing, f.repo.snapshot("vid_1").Status)

	_, err = other.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.ErrorIs(t, err, pipelineerrors.ErrConcurrentProcessingRejected)
	assert.Zero(t, otherEncodes.Load())

	release()
	require.NoError(t, <-done)
	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusReady, got.Status)
	assert.Equal(t, "run-1", got.RunID)
}

func TestProcessAsset_StaleClaimIsTakenOver(t *testing.T) {
	f := newFixture(t, processing.Options{Lease: time.Hour}, nil)
	entered, release := blockEncodes(f.transcoder)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
		done <- err
	}()
	<-entered
	f.repo.setHeartbeat("vid_1", time.Now().Add(-2*time.Hour))

	other, _ := f.replica(t, processing.Options{Lease: time.Minute})
	n, err := other.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, asset.StatusError, f.repo.snapshot("vid_1").Status)

	result, err := other.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.NoError(t, err)

	release()
	require.ErrorIs(t, <-done, pipelineerrors.ErrClaimLost)

	got := f.repo.snapshot("vid_1")
	assert.Equal(t, asset.StatusReady, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, "run-2", got.RunID)
	require.NotNil(t, got.MasterManifestURL)
	assert.Equal(t, result.MasterManifestURL, *got.MasterManifestURL)
}

func TestProcessAsset_HeartbeatRenewsClaim(t *testing.T) {
	f := newFixture(t, processing.Options{Lease: 30 * time.Millisecond}, nil)
	entered, release := blockEncodes(f.transcoder)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
		done <- err
	}()
	<-entered

	claimed := *f.repo.snapshot("vid_1").HeartbeatAt
	require.Eventually(t, func() bool {
		return f.repo.snapshot("vid_1").HeartbeatAt.After(claimed)
	}, time.Second, 5*time.Millisecond)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, asset.StatusReady, f.repo.snapshot("vid_1").Status)
}

func TestManifests_MatchPublishedMaster(t *testing.T) {
	f := newFixture(t, processing.Options{}, nil)
	_, err := f.orch.ProcessAsset(context.Background(), "vid_1", encoder.DefaultConfig())
	require.NoError(t, err)

	a := f.repo.snapshot("vid_1")
	master, err := f.orch.Manifests().Master(&a)
	require.NoError(t, err)
	assert.Equal(t, string(f.store.objects["videos/vid_1/master.m3u8"].Body), master)

	media, err := f.orch.Manifests().Media(&a, "360p")
	require.NoError(t, err)
	assert.Equal(t, string(f.store.objects["videos/vid_1/360p/index.m3u8"].Body), media)

	_, err = f.orch.Manifests().Media(&a, "4k")
	assert.ErrorIs(t, err, processing.ErrVariantNotFound)
}
