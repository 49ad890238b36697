package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/domain/publish"
	"github.com/janhq/video-api/internal/infrastructure/cache"
	"github.com/janhq/video-api/internal/interfaces/httpserver/responses"
	"github.com/janhq/video-api/internal/utils/platformerrors"
)

var segmentFile = regexp.MustCompile(`^segment_(\d{5})\.ts$`)

// URLResolver maps object keys to where players fetch them.
type URLResolver interface {
	PublicURL(key string) string
}

// ManifestHandler serves playlists regenerated from persisted variant records.
type ManifestHandler struct {
	service   AssetService
	manifests processing.Manifests
	cache     *cache.ManifestCache
	objects   URLResolver
	log       zerolog.Logger
}

// NewManifestHandler builds the handler. manifestCache and objects may be nil.
func NewManifestHandler(service AssetService, manifests processing.Manifests, manifestCache *cache.ManifestCache, objects URLResolver, log zerolog.Logger) *ManifestHandler {
	return &ManifestHandler{
		service:   service,
		manifests: manifests,
		cache:     manifestCache,
		objects:   objects,
		log:       log.With().Str("component", "manifest-handler").Logger(),
	}
}

// Master serves the master playlist rendered from the variant records.
func (h *ManifestHandler) Master(c *gin.Context) {
	a, ok := h.readyAsset(c)
	if !ok {
		return
	}
	h.serve(c, a, cache.MasterPlaylist, func() (string, error) { return h.manifests.Master(a) })
}

// VariantFile serves a media playlist, or redirects a segment request to
// the object store.
func (h *ManifestHandler) VariantFile(c *gin.Context) {
	a, ok := h.readyAsset(c)
	if !ok {
		return
	}
	label := c.Param("variant")
	file := c.Param("file")

	if file == "index.m3u8" {
		h.serve(c, a, cache.MediaPlaylist(label), func() (string, error) { return h.manifests.Media(a, label) })
		return
	}

	m := segmentFile.FindStringSubmatch(file)
	if m == nil || h.objects == nil {
		h.notFound(c, "no such playlist object")
		return
	}
	index, _ := strconv.Atoi(m[1])
	for _, v := range a.Variants {
		if v.Label != label {
			continue
		}
		if index >= len(v.Segments) {
			break
		}
		c.Redirect(http.StatusFound, h.objects.PublicURL(v.Segments[index].Key))
		return
	}
	h.notFound(c, "no such segment")
}

func (h *ManifestHandler) readyAsset(c *gin.Context) (*asset.MediaAsset, bool) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, h.log)
		return nil, false
	}
	if a.Status != asset.StatusReady || len(a.Variants) == 0 {
		responses.HandleNewError(c, platformerrors.ErrorTypeConflict, "asset is not ready for playback",
			"a1f7c3e9-5b2d-4086-9e4a-3d8b6c0f2e57", h.log)
		return nil, false
	}
	return a, true
}

func (h *ManifestHandler) serve(c *gin.Context, a *asset.MediaAsset, name string, render func() (string, error)) {
	if h.cache != nil {
		if body, ok := h.cache.Get(a.ID, name, a.UpdatedAt); ok {
			h.write(c, body)
			return
		}
	}
	body, err := render()
	if err != nil {
		if errors.Is(err, processing.ErrVariantNotFound) {
			h.notFound(c, err.Error())
			return
		}
		responses.HandleError(c, platformerrors.NewError(c.Request.Context(), platformerrors.LayerHandler,
			platformerrors.ErrorTypeInternal, "failed to render playlist", err, "6e0d4b8a-7c19-4f3e-b2a5-9d1c8e3f7a60"), h.log)
		return
	}
	if h.cache != nil {
		h.cache.Set(a.ID, name, a.UpdatedAt, body)
	}
	h.write(c, body)
}

func (h *ManifestHandler) write(c *gin.Context, body string) {
	c.Header("Cache-Control", publish.CacheControlManifest)
	c.Data(http.StatusOK, publish.ContentTypeManifest, []byte(body))
}

func (h *ManifestHandler) notFound(c *gin.Context, message string) {
	responses.HandleNewError(c, platformerrors.ErrorTypeNotFound, message, "3b9e2d7f-0a64-4c1b-8f5e-7d2a9c4b6e08", h.log)
}
