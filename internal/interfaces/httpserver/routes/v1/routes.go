package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/janhq/video-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under /v1 prefix. Playback routes are
// registered on playback so they can skip authentication.
func (r *Routes) Register(api gin.IRouter, playback gin.IRouter) {
	group := api.Group("/v1")
	group.POST("/assets", r.handlers.Assets.Upload)
	group.GET("/assets", r.handlers.Assets.List)
	group.GET("/assets/:id", r.handlers.Assets.Get)
	group.POST("/assets/:id/process", r.handlers.Assets.Process)

	play := playback.Group("/v1")
	play.GET("/assets/:id/master.m3u8", r.handlers.Manifests.Master)
	play.GET("/assets/:id/:variant/:file", r.handlers.Manifests.VariantFile)
}
