//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/config"
)

// Build assembles the container with Wire.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
