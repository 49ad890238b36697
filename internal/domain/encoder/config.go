package encoder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
)

// Quality is one rung of the bitrate ladder.
type Quality struct {
	Label     string `yaml:"label" json:"label" validate:"required,max=32"`
	Bandwidth int64  `yaml:"bandwidth" json:"bandwidth" validate:"gt=0"`
	Width     int    `yaml:"width" json:"width" validate:"gt=0,max=7680"`
	Height    int    `yaml:"height" json:"height" validate:"gt=0,max=4320"`
}

// Config is the encoding request for one asset.
type Config struct {
	Qualities       []Quality `yaml:"qualities" json:"qualities" validate:"required,min=1,dive"`
	SegmentDuration float64   `yaml:"segment_duration" json:"segment_duration" validate:"gt=0,lte=60"`
}

// DefaultConfig is the 360p/480p/720p ladder with 6 second segments.
func DefaultConfig() Config {
	return Config{
		Qualities: []Quality{
			{Label: "360p", Bandwidth: 800000, Width: 640, Height: 360},
			{Label: "480p", Bandwidth: 1400000, Width: 854, Height: 480},
			{Label: "720p", Bandwidth: 2800000, Width: 1280, Height: 720},
		},
		SegmentDuration: 6,
	}
}

var (
	labelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	validate     = validator.New(validator.WithRequiredStructEnabled())
)

// Validate checks field ranges, label safety and ladder uniqueness.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return pipelineerrors.InvalidConfig("invalid encoding config", err)
	}
	labels := make(map[string]struct{}, len(c.Qualities))
	bandwidths := make(map[int64]string, len(c.Qualities))
	for _, q := range c.Qualities {
		if !labelPattern.MatchString(q.Label) {
			return pipelineerrors.InvalidConfig(fmt.Sprintf("quality label %q must match %s", q.Label, labelPattern), nil)
		}
		if _, dup := labels[q.Label]; dup {
			return pipelineerrors.InvalidConfig(fmt.Sprintf("duplicate quality label %q", q.Label), nil)
		}
		labels[q.Label] = struct{}{}
		if other, dup := bandwidths[q.Bandwidth]; dup {
			return pipelineerrors.InvalidConfig(fmt.Sprintf("qualities %q and %q share bandwidth %d", other, q.Label, q.Bandwidth), nil)
		}
		bandwidths[q.Bandwidth] = q.Label
	}
	return nil
}

// Sorted returns the qualities in ascending bandwidth.
func (c Config) Sorted() []Quality {
	out := make([]Quality, len(c.Qualities))
	copy(out, c.Qualities)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bandwidth < out[j].Bandwidth })
	return out
}

// Normalize lowercases labels so they are usable as key segments.
func (c Config) Normalize() Config {
	out := Config{SegmentDuration: c.SegmentDuration, Qualities: make([]Quality, len(c.Qualities))}
	for i, q := range c.Qualities {
		q.Label = strings.ToLower(strings.TrimSpace(q.Label))
		out.Qualities[i] = q
	}
	return out
}
