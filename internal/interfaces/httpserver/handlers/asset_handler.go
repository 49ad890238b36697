package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/infrastructure/cache"
	"github.com/janhq/video-api/internal/infrastructure/metrics"
	"github.com/janhq/video-api/internal/interfaces/httpserver/requests"
	"github.com/janhq/video-api/internal/interfaces/httpserver/responses"
	"github.com/janhq/video-api/internal/utils/platformerrors"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

// AssetService is the asset surface the handlers call.
type AssetService interface {
	Ingest(ctx context.Context, req asset.IngestRequest) (*asset.MediaAsset, error)
	Get(ctx context.Context, id string) (*asset.MediaAsset, error)
	List(ctx context.Context, filter asset.Filter) ([]*asset.MediaAsset, int64, error)
	RequestProcess(ctx context.Context, id string) (*asset.MediaAsset, error)
}

// ProgressReader returns live progress for running assets.
type ProgressReader interface {
	Get(ctx context.Context, assetID string) (*cache.ProgressSnapshot, bool, error)
}

// AssetHandler exposes asset endpoints.
type AssetHandler struct {
	service        AssetService
	progress       ProgressReader
	maxUploadBytes int64
	log            zerolog.Logger
}

func NewAssetHandler(service AssetService, progress ProgressReader, maxUploadBytes int64, log zerolog.Logger) *AssetHandler {
	return &AssetHandler{
		service:        service,
		progress:       progress,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("component", "asset-handler").Logger(),
	}
}

// Upload stores a multipart video and creates its pending asset.
func (h *AssetHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		metrics.RecordIngest("rejected")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			responses.HandleNewError(c, platformerrors.ErrorTypeTooLarge, "upload exceeds the size limit",
				"5f2d8c1a-93b4-4e07-a6d2-8c1e0b7f4a39", h.log)
			return
		}
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "multipart field \"file\" is required",
			"0b6e4a2f-1c8d-4f93-b7e5-2a9d3c6f8e14", h.log)
		return
	}

	file, err := header.Open()
	if err != nil {
		metrics.RecordIngest("rejected")
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "failed to read upload",
			"7c3a9e5d-2f1b-4d86-9a0c-e4b7f2d1c853", h.log)
		return
	}
	defer file.Close()

	a, err := h.service.Ingest(c.Request.Context(), asset.IngestRequest{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		metrics.RecordIngest("error")
		responses.HandleError(c, err, h.log)
		return
	}

	metrics.RecordIngest("success")
	c.JSON(http.StatusAccepted, responses.NewAssetResponse(a))
}

// List pages assets, optionally filtered by status.
func (h *AssetHandler) List(c *gin.Context) {
	var req requests.ListAssetsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, err.Error(),
			"d84b1f6e-3a27-4c50-8e9b-6f0a2d7c5b91", h.log)
		return
	}

	filter := req.Filter()
	assets, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		responses.HandleError(c, err, h.log)
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	c.JSON(http.StatusOK, responses.NewListAssetsResponse(assets, total, filter))
}

// Get returns one asset with live progress overlaid while it processes.
func (h *AssetHandler) Get(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, h.log)
		return
	}
	h.overlayProgress(c.Request.Context(), a)
	c.JSON(http.StatusOK, responses.NewAssetResponse(a))
}

// Process requests processing of the asset.
func (h *AssetHandler) Process(c *gin.Context) {
	a, err := h.service.RequestProcess(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, h.log)
		return
	}
	c.JSON(http.StatusAccepted, responses.NewAssetResponse(a))
}

// overlayProgress replaces the stored progress with a fresher cached value.
// The cache never moves progress backwards or changes the status.
func (h *AssetHandler) overlayProgress(ctx context.Context, a *asset.MediaAsset) {
	if h.progress == nil || a.Status != asset.StatusProcessing {
		return
	}
	snap, ok, err := h.progress.Get(ctx, a.ID)
	if err != nil {
		h.log.Debug().Err(err).Str("asset_id", a.ID).Msg("progress cache unavailable")
		return
	}
	if ok && snap.Status == asset.StatusProcessing && snap.Progress > a.Progress {
		a.Progress = snap.Progress
	}
}
