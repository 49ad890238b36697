// Package ffmpeg implements the encoder collaborators by shelling out to
// ffmpeg and ffprobe.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const maxErrorOutput = 512

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type CommandRunner struct{}

func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run executes name and returns stdout. On failure the tail of stderr is
// folded into the error.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return out, fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), maxErrorOutput))
	}
	return out, nil
}

// Paths locates the binaries.
type Paths struct {
	FFmpeg  string
	FFprobe string
}

func (p Paths) withDefaults() Paths {
	if p.FFmpeg == "" {
		p.FFmpeg = "ffmpeg"
	}
	if p.FFprobe == "" {
		p.FFprobe = "ffprobe"
	}
	return p
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
