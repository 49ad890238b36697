package asset

import (
	"encoding/json"

	"gorm.io/datatypes"

	domain "github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/infrastructure/database/entities"
)

func mapToEntity(a *domain.MediaAsset) (*entities.MediaAsset, error) {
	info, err := json.Marshal(a.SourceInfo)
	if err != nil {
		return nil, err
	}
	status := a.Status
	if status == "" {
		status = domain.StatusPending
	}
	return &entities.MediaAsset{
		ID:                  a.ID,
		OriginalFilename:    a.OriginalFilename,
		SourceRef:           a.SourceRef,
		MimeType:            a.MimeType,
		SizeBytes:           a.SizeBytes,
		Status:              string(status),
		Progress:            a.Progress,
		ErrorMessage:        a.ErrorMessage,
		ThumbnailURL:        a.ThumbnailURL,
		MasterManifestURL:   a.MasterManifestURL,
		SourceInfo:          datatypes.JSON(info),
		ProcessingStartedAt: a.ProcessingStartedAt,
		RunID:               a.RunID,
		HeartbeatAt:         a.HeartbeatAt,
		CompletedAt:         a.CompletedAt,
	}, nil
}

func mapFromEntity(e *entities.MediaAsset) *domain.MediaAsset {
	a := &domain.MediaAsset{
		ID:                  e.ID,
		OriginalFilename:    e.OriginalFilename,
		SourceRef:           e.SourceRef,
		MimeType:            e.MimeType,
		SizeBytes:           e.SizeBytes,
		Status:              domain.Status(e.Status),
		Progress:            e.Progress,
		ErrorMessage:        e.ErrorMessage,
		ThumbnailURL:        e.ThumbnailURL,
		MasterManifestURL:   e.MasterManifestURL,
		ProcessingStartedAt: e.ProcessingStartedAt,
		RunID:               e.RunID,
		HeartbeatAt:         e.HeartbeatAt,
		CompletedAt:         e.CompletedAt,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
	if len(e.SourceInfo) > 0 {
		_ = json.Unmarshal(e.SourceInfo, &a.SourceInfo)
	}
	for _, v := range e.Variants {
		variant := domain.Variant{
			Label:       v.Label,
			Bandwidth:   v.Bandwidth,
			Width:       v.Width,
			Height:      v.Height,
			PlaylistKey: v.PlaylistKey,
		}
		for _, s := range v.Segments {
			variant.Segments = append(variant.Segments, domain.Segment{
				Index:    s.SegmentIndex,
				Duration: s.Duration,
				Key:      s.ObjectKey,
			})
		}
		a.Variants = append(a.Variants, variant)
	}
	return a
}

func mapVariantToEntity(assetID string, v domain.Variant) entities.Variant {
	entity := entities.Variant{
		AssetID:     assetID,
		Label:       v.Label,
		Bandwidth:   v.Bandwidth,
		Width:       v.Width,
		Height:      v.Height,
		PlaylistKey: v.PlaylistKey,
		Segments:    make([]entities.Segment, 0, len(v.Segments)),
	}
	for _, s := range v.Segments {
		entity.Segments = append(entity.Segments, entities.Segment{
			SegmentIndex: s.Index,
			Duration:     s.Duration,
			ObjectKey:    s.Key,
		})
	}
	return entity
}
