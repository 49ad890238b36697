package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/domain/encoder"
)

const audioBitrate = 128000

// TranscoderOptions tunes the x264 encode.
type TranscoderOptions struct {
	Preset string
	// FrameRate forces a constant output rate; zero keeps the source rate.
	FrameRate int
}

type Transcoder struct {
	paths  Paths
	runner Runner
	opts   TranscoderOptions
	log    zerolog.Logger
}

func NewTranscoder(paths Paths, runner Runner, opts TranscoderOptions, log zerolog.Logger) *Transcoder {
	if opts.Preset == "" {
		opts.Preset = "veryfast"
	}
	return &Transcoder{
		paths:  paths.withDefaults(),
		runner: runner,
		opts:   opts,
		log:    log.With().Str("component", "ffmpeg-transcoder").Logger(),
	}
}

// EncodeSegment writes one MPEG-TS chunk of job.Quality covering [Start, Start+Duration).
func (t *Transcoder) EncodeSegment(ctx context.Context, job encoder.SegmentJob) error {
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}

	args := t.segmentArgs(job)
	t.log.Debug().
		Str("variant", job.Quality.Label).
		Float64("start", job.Start).
		Float64("duration", job.Duration).
		Msg("encoding segment")

	if _, err := t.runner.Run(ctx, t.paths.FFmpeg, args...); err != nil {
		return fmt.Errorf("encode %s segment at %.3fs: %w", job.Quality.Label, job.Start, err)
	}
	return nil
}

func (t *Transcoder) segmentArgs(job encoder.SegmentJob) []string {
	q := job.Quality
	videoBitrate := q.Bandwidth
	if job.HasAudio && videoBitrate > 2*audioBitrate {
		videoBitrate -= audioBitrate
	}
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		q.Width, q.Height, q.Width, q.Height,
	)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", seconds(job.Start),
		"-i", job.SourcePath,
		"-t", seconds(job.Duration),
		"-map", "0:v:0",
	}
	if job.HasAudio {
		args = append(args, "-map", "0:a:0")
	}
	args = append(args,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", t.opts.Preset,
		"-profile:v", "main",
		"-pix_fmt", "yuv420p",
		"-b:v", strconv.FormatInt(videoBitrate, 10),
		"-maxrate", strconv.FormatInt(videoBitrate, 10),
		"-bufsize", strconv.FormatInt(videoBitrate*2, 10),
		"-force_key_frames", "expr:gte(t,0)",
	)
	if t.opts.FrameRate > 0 {
		args = append(args, "-r", strconv.Itoa(t.opts.FrameRate))
	}
	if job.HasAudio {
		args = append(args,
			"-c:a", "aac",
			"-b:a", strconv.Itoa(audioBitrate),
			"-ac", "2",
		)
	}
	args = append(args,
		"-output_ts_offset", seconds(job.Start),
		"-muxdelay", "0",
		"-f", "mpegts",
		job.OutputPath,
	)
	return args
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
