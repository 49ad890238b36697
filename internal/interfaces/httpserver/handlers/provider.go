package handlers

import (
	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/infrastructure/cache"
)

// Provider wires HTTP handlers.
type Provider struct {
	Assets    *AssetHandler
	Manifests *ManifestHandler
}

func NewProvider(
	cfg *config.Config,
	service AssetService,
	progress ProgressReader,
	manifests processing.Manifests,
	manifestCache *cache.ManifestCache,
	objects URLResolver,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Assets:    NewAssetHandler(service, progress, cfg.MaxUploadBytes, log),
		Manifests: NewManifestHandler(service, manifests, manifestCache, objects, log),
	}
}
