package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const thumbnailWidth = 640

type Thumbnailer struct {
	paths  Paths
	runner Runner
}

func NewThumbnailer(paths Paths, runner Runner) *Thumbnailer {
	return &Thumbnailer{paths: paths.withDefaults(), runner: runner}
}

// Capture writes a JPEG of the frame at offset seconds.
func (g *Thumbnailer) Capture(ctx context.Context, sourcePath, outPath string, at float64) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create thumbnail dir: %w", err)
	}
	if at < 0 {
		at = 0
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", seconds(at),
		"-i", sourcePath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", thumbnailWidth),
		"-q:v", "2",
		outPath,
	}
	if _, err := g.runner.Run(ctx, g.paths.FFmpeg, args...); err != nil {
		return fmt.Errorf("generate thumbnail at %.2fs: %w", at, err)
	}
	return nil
}
