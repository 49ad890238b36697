package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/janhq/video-api/internal/domain/encoder"
)

// LoadLadder reads the quality ladder from path. An empty path, or a file that
// does not exist, yields the built-in ladder. segmentOverride replaces the
// file's segment duration when positive.
func LoadLadder(path string, segmentOverride float64) (encoder.Config, error) {
	cfg := encoder.DefaultConfig()

	path = strings.TrimSpace(path)
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return encoder.Config{}, fmt.Errorf("read ladder file: %w", err)
		default:
			parsed, err := ParseLadder(raw)
			if err != nil {
				return encoder.Config{}, fmt.Errorf("ladder file %s: %w", path, err)
			}
			cfg = parsed
		}
	}

	if segmentOverride > 0 {
		cfg.SegmentDuration = segmentOverride
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return encoder.Config{}, err
	}
	return cfg, nil
}

// ParseLadder decodes a YAML ladder document. A missing segment_duration falls
// back to the built-in one.
func ParseLadder(raw []byte) (encoder.Config, error) {
	var cfg encoder.Config
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return encoder.Config{}, fmt.Errorf("decode ladder: %w", err)
	}
	if cfg.SegmentDuration == 0 {
		cfg.SegmentDuration = encoder.DefaultConfig().SegmentDuration
	}
	return cfg, nil
}
