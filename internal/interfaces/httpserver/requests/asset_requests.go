package requests

import "github.com/janhq/video-api/internal/domain/asset"

// ListAssetsRequest is the query string of GET /v1/assets.
type ListAssetsRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=pending processing ready error"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// Filter converts the query into a repository filter.
func (r ListAssetsRequest) Filter() asset.Filter {
	f := asset.Filter{Limit: r.Limit, Offset: r.Offset}
	if r.Status != "" {
		s := asset.Status(r.Status)
		f.Status = &s
	}
	return f
}
