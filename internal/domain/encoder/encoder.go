// Package encoder turns one source video into a ladder of HLS renditions in a
// local staging directory.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/video-api/internal/domain/asset"
	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/hls"
)

const (
	PlaylistName = "index.m3u8"
	segmentName  = "segment_%05d.ts"
)

// SegmentFileName is the staged and published file name of segment index.
func SegmentFileName(index int) string {
	return fmt.Sprintf(segmentName, index)
}

// Prober inspects a source file.
type Prober interface {
	Probe(ctx context.Context, path string) (asset.SourceInfo, error)
}

// SegmentJob describes one chunk to encode.
type SegmentJob struct {
	SourcePath string
	OutputPath string
	Start      float64
	Duration   float64
	Quality    Quality
	HasAudio   bool
}

// Transcoder encodes a single segment of a single quality.
type Transcoder interface {
	EncodeSegment(ctx context.Context, job SegmentJob) error
}

// Source is a local source file belonging to an asset.
type Source struct {
	AssetID string
	Path    string
}

// StagedSegment is an encoded segment on local disk.
type StagedSegment struct {
	Index    int
	Duration float64
	Path     string
}

// StagedVariant is a complete rendition on local disk.
type StagedVariant struct {
	Quality      Quality
	Dir          string
	PlaylistPath string
	Segments     []StagedSegment
}

// Result is the full ladder for one asset, ordered by ascending bandwidth.
type Result struct {
	Source     asset.SourceInfo
	Variants   []StagedVariant
	StagingDir string
}

// Cleanup removes the staged files.
func (r *Result) Cleanup() error {
	if r == nil || r.StagingDir == "" {
		return nil
	}
	return os.RemoveAll(r.StagingDir)
}

// Options tunes the encoder.
type Options struct {
	StagingDir string
	// Concurrency caps how many variants encode at once; 0 runs them all in parallel.
	Concurrency int
}

// Encoder runs probes and per-variant encodes.
type Encoder struct {
	prober     Prober
	transcoder Transcoder
	opts       Options
	log        zerolog.Logger
}

func New(prober Prober, transcoder Transcoder, opts Options, log zerolog.Logger) *Encoder {
	if opts.StagingDir == "" {
		opts.StagingDir = filepath.Join(os.TempDir(), "video-api")
	}
	return &Encoder{
		prober:     prober,
		transcoder: transcoder,
		opts:       opts,
		log:        log.With().Str("component", "encoder").Logger(),
	}
}

// StagingDir returns the per-asset staging directory.
func (e *Encoder) StagingDir(assetID string) string {
	return filepath.Join(e.opts.StagingDir, assetID)
}

// SweepStaging removes per-asset staging directories last modified before
// now minus maxAge. Directories for which keep returns true are left alone.
func (e *Encoder) SweepStaging(maxAge time.Duration, keep func(assetID string) bool) (int, error) {
	entries, err := os.ReadDir(e.opts.StagingDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || (keep != nil && keep(entry.Name())) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(e.opts.StagingDir, entry.Name())); err != nil {
			e.log.Warn().Err(err).Str("dir", entry.Name()).Msg("remove stale staging directory")
			continue
		}
		removed++
	}
	return removed, nil
}

// Probe reads the source metadata. Any failure, or a source without video duration, is SourceUnreadable.
func (e *Encoder) Probe(ctx context.Context, src Source) (asset.SourceInfo, error) {
	if _, err := os.Stat(src.Path); err != nil {
		return asset.SourceInfo{}, pipelineerrors.SourceUnreadable("source file is not accessible", err).WithAsset(src.AssetID)
	}
	info, err := e.prober.Probe(ctx, src.Path)
	if err != nil {
		return asset.SourceInfo{}, pipelineerrors.Classify(pipelineerrors.StageProbe, err).WithAsset(src.AssetID)
	}
	if info.DurationSeconds <= tolerance {
		return asset.SourceInfo{}, pipelineerrors.SourceUnreadable("source has no playable duration", nil).WithAsset(src.AssetID)
	}
	if info.VideoCodec == "" {
		return asset.SourceInfo{}, pipelineerrors.SourceUnreadable("source has no video stream", nil).WithAsset(src.AssetID)
	}
	return info, nil
}

// Encode produces every quality of cfg in parallel. A single failing quality
// cancels the rest and fails the asset; no partial ladder is returned.
// onSegment is called once per finished segment and must be safe for concurrent use.
func (e *Encoder) Encode(ctx context.Context, src Source, info asset.SourceInfo, cfg Config, onSegment func()) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plans := PlanSegments(info.DurationSeconds, cfg.SegmentDuration)
	if len(plans) == 0 {
		return nil, pipelineerrors.SourceUnreadable("source has no playable duration", nil).WithAsset(src.AssetID)
	}

	stagingDir := e.StagingDir(src.AssetID)
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, pipelineerrors.Internal(pipelineerrors.StageEncode, "failed to reset staging directory", err)
	}

	log := e.log.With().Str("asset_id", src.AssetID).Logger()
	qualities := cfg.Sorted()
	variants := make([]StagedVariant, len(qualities))

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.Concurrency > 0 {
		g.SetLimit(e.opts.Concurrency)
	}
	for i, q := range qualities {
		g.Go(func() error {
			v, err := e.encodeVariant(gctx, src, info, q, plans, stagingDir, onSegment)
			if err != nil {
				return err
			}
			variants[i] = *v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if rmErr := os.RemoveAll(stagingDir); rmErr != nil {
			log.Warn().Err(rmErr).Msg("failed to remove staging directory after encode failure")
		}
		var pe *pipelineerrors.PipelineError
		if !errors.As(err, &pe) {
			pe = pipelineerrors.Classify(pipelineerrors.StageEncode, err)
		}
		return nil, pe.WithAsset(src.AssetID)
	}

	log.Info().Int("variants", len(variants)).Int("segments_per_variant", len(plans)).Msg("ladder encoded")
	return &Result{Source: info, Variants: variants, StagingDir: stagingDir}, nil
}

func (e *Encoder) encodeVariant(ctx context.Context, src Source, info asset.SourceInfo, q Quality, plans []SegmentPlan, stagingDir string, onSegment func()) (*StagedVariant, error) {
	dir := filepath.Join(stagingDir, q.Label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pipelineerrors.VariantEncodeFailed(q.Label, err)
	}

	log := e.log.With().Str("asset_id", src.AssetID).Str("variant", q.Label).Logger()
	started := time.Now()

	staged := &StagedVariant{
		Quality:      q,
		Dir:          dir,
		PlaylistPath: filepath.Join(dir, PlaylistName),
		Segments:     make([]StagedSegment, 0, len(plans)),
	}
	refs := make([]hls.SegmentRef, 0, len(plans))

	for _, plan := range plans {
		out := filepath.Join(dir, SegmentFileName(plan.Index))
		job := SegmentJob{
			SourcePath: src.Path,
			OutputPath: out,
			Start:      plan.Start,
			Duration:   plan.Duration,
			Quality:    q,
			HasAudio:   info.HasAudio(),
		}
		if err := e.transcoder.EncodeSegment(ctx, job); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = errors.Join(err, ctxErr)
			}
			return nil, pipelineerrors.VariantEncodeFailed(q.Label, fmt.Errorf("segment %d: %w", plan.Index, err))
		}
		if stat, err := os.Stat(out); err != nil || stat.Size() == 0 {
			if err == nil {
				err = errors.New("transcoder produced an empty segment")
			}
			return nil, pipelineerrors.VariantEncodeFailed(q.Label, fmt.Errorf("segment %d: %w", plan.Index, err))
		}

		staged.Segments = append(staged.Segments, StagedSegment{Index: plan.Index, Duration: plan.Duration, Path: out})
		refs = append(refs, hls.SegmentRef{Index: plan.Index, Duration: plan.Duration, Key: SegmentFileName(plan.Index)})
		if onSegment != nil {
			onSegment()
		}
	}

	playlist, err := hls.BuildMedia(PlaylistName, refs, hls.Resolver{})
	if err != nil {
		return nil, pipelineerrors.VariantEncodeFailed(q.Label, err)
	}
	if err := os.WriteFile(staged.PlaylistPath, []byte(playlist), 0o644); err != nil {
		return nil, pipelineerrors.VariantEncodeFailed(q.Label, err)
	}

	log.Debug().Dur("elapsed", time.Since(started)).Int("segments", len(plans)).Msg("variant encoded")
	return staged, nil
}
