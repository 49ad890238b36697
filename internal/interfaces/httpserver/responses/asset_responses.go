package responses

import (
	"time"

	"github.com/janhq/video-api/internal/domain/asset"
)

// AssetResponse is the public view of a media asset.
type AssetResponse struct {
	ID                  string            `json:"id"`
	Object              string            `json:"object"`
	OriginalFilename    string            `json:"original_filename"`
	MimeType            string            `json:"mime_type"`
	SizeBytes           int64             `json:"size_bytes"`
	Status              asset.Status      `json:"status"`
	Progress            int               `json:"progress"`
	ErrorMessage        *string           `json:"error_message,omitempty"`
	MasterManifestURL   *string           `json:"master_manifest_url,omitempty"`
	ThumbnailURL        *string           `json:"thumbnail_url,omitempty"`
	DurationSeconds     float64           `json:"duration_seconds,omitempty"`
	Variants            []VariantResponse `json:"variants,omitempty"`
	ProcessingStartedAt *time.Time        `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// VariantResponse summarises one rendition.
type VariantResponse struct {
	Label     string `json:"label"`
	Bandwidth int64  `json:"bandwidth"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Segments  int    `json:"segments"`
}

// ListAssetsResponse is a page of assets.
type ListAssetsResponse struct {
	Object string          `json:"object"`
	Data   []AssetResponse `json:"data"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func NewAssetResponse(a *asset.MediaAsset) AssetResponse {
	resp := AssetResponse{
		ID:                  a.ID,
		Object:              "video.asset",
		OriginalFilename:    a.OriginalFilename,
		MimeType:            a.MimeType,
		SizeBytes:           a.SizeBytes,
		Status:              a.Status,
		Progress:            a.Progress,
		ErrorMessage:        a.ErrorMessage,
		MasterManifestURL:   a.MasterManifestURL,
		ThumbnailURL:        a.ThumbnailURL,
		DurationSeconds:     a.SourceInfo.DurationSeconds,
		ProcessingStartedAt: a.ProcessingStartedAt,
		CompletedAt:         a.CompletedAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	for _, v := range a.Variants {
		resp.Variants = append(resp.Variants, VariantResponse{
			Label:     v.Label,
			Bandwidth: v.Bandwidth,
			Width:     v.Width,
			Height:    v.Height,
			Segments:  len(v.Segments),
		})
	}
	return resp
}

func NewListAssetsResponse(assets []*asset.MediaAsset, total int64, filter asset.Filter) ListAssetsResponse {
	data := make([]AssetResponse, 0, len(assets))
	for _, a := range assets {
		data = append(data, NewAssetResponse(a))
	}
	return ListAssetsResponse{
		Object: "list",
		Data:   data,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
}
