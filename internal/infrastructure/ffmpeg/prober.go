package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/janhq/video-api/internal/domain/asset"
)

type Prober struct {
	paths  Paths
	runner Runner
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
		Duration  string `json:"duration,omitempty"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func NewProber(paths Paths, runner Runner) *Prober {
	return &Prober{paths: paths.withDefaults(), runner: runner}
}

// Probe reads duration, dimensions and codecs of the first video and audio streams.
func (p *Prober) Probe(ctx context.Context, path string) (asset.SourceInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	output, err := p.runner.Run(ctx, p.paths.FFprobe, args...)
	if err != nil {
		return asset.SourceInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (asset.SourceInfo, error) {
	var data ffprobeOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return asset.SourceInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := asset.SourceInfo{FormatName: data.Format.FormatName}
	if data.Format.Duration != "" {
		if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
			info.DurationSeconds = d
		}
	}

	for _, stream := range data.Streams {
		switch {
		case stream.CodecType == "video" && info.VideoCodec == "":
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName
			// some containers only report duration on the stream
			if info.DurationSeconds == 0 && stream.Duration != "" {
				if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.DurationSeconds = d
				}
			}
		case stream.CodecType == "audio" && info.AudioCodec == "":
			info.AudioCodec = stream.CodecName
		}
	}
	return info, nil
}
