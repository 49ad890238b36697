package asset

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/janhq/video-api/internal/domain/asset"
	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/infrastructure/database/entities"
	"github.com/janhq/video-api/internal/infrastructure/repository"
	"github.com/janhq/video-api/internal/utils/platformerrors"
)

// Repository persists media assets with their variants and segments.
type Repository struct {
	assets   *repository.Repository[entities.MediaAsset]
	variants *repository.Repository[entities.Variant]
	segments *repository.Repository[entities.Segment]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		assets:   repository.New[entities.MediaAsset](db),
		variants: repository.New[entities.Variant](db),
		segments: repository.New[entities.Segment](db),
	}
}

func (r *Repository) Create(ctx context.Context, a *domain.MediaAsset) error {
	entity, err := mapToEntity(a)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map media asset", err, "0f4b8a62-1d3e-4c79-a5b0-93e6d2c1f847")
	}
	if err := r.assets.Create(ctx, entity); err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create media asset", err, "5e2a9c71-3b4f-4d86-9e07-c1a8f5b3d924")
	}
	a.CreatedAt = entity.CreatedAt
	a.UpdatedAt = entity.UpdatedAt
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.MediaAsset, error) {
	entity, err := r.assets.FindOne(ctx,
		repository.Where("id = ?", id),
		repository.Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("bandwidth ASC") }),
		repository.Preload("Variants.Segments", func(db *gorm.DB) *gorm.DB { return db.Order("segment_index ASC") }),
	)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound(ctx, id, err)
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to get media asset", err, "a7d3e1f9-6c2b-4a58-8f14-2e9b0c7d5a36")
	}
	return mapFromEntity(entity), nil
}

func (r *Repository) List(ctx context.Context, filter domain.Filter) ([]*domain.MediaAsset, int64, error) {
	var conditions []repository.Query
	if filter.Status != nil {
		conditions = append(conditions, repository.Where("status = ?", string(*filter.Status)))
	}

	total, err := r.assets.Count(ctx, conditions...)
	if err != nil {
		return nil, 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to count media assets", err, "3c8f2b6e-9a1d-4e73-b5c0-7d4a2f8e1b95")
	}

	queries := append(conditions,
		repository.OrderBy("created_at DESC"),
		repository.OrderBy("id DESC"),
		repository.Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("bandwidth ASC") }),
	)
	if filter.Limit > 0 {
		queries = append(queries, repository.Limit(filter.Limit))
	}
	if filter.Offset > 0 {
		queries = append(queries, repository.Offset(filter.Offset))
	}
	rows, err := r.assets.FindAll(ctx, queries...)
	if err != nil {
		return nil, 0, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list media assets", err, "d15e7a3c-4f2b-4b90-8c6d-0e9f1a2b3c47")
	}

	out := make([]*domain.MediaAsset, 0, len(rows))
	for i := range rows {
		out = append(out, mapFromEntity(&rows[i]))
	}
	return out, total, nil
}

func (r *Repository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.MediaAsset, error) {
	rows, err := r.assets.FindAll(ctx, repository.Where("status = ?", string(status)), repository.OrderBy("updated_at ASC"))
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list media assets by status", err, "7b9c0d1e-2f3a-4b5c-9d6e-8f7a0b1c2d38")
	}
	out := make([]*domain.MediaAsset, 0, len(rows))
	for i := range rows {
		out = append(out, mapFromEntity(&rows[i]))
	}
	return out, nil
}

// Claim is a compare-and-set on status: only a row that is not already
// processing is moved, so two replicas can never both win the same asset.
// The claimed asset carries a fresh RunID that fences later writes.
func (r *Repository) Claim(ctx context.Context, id string) (*domain.MediaAsset, error) {
	now := time.Now().UTC()
	sources := make([]string, 0, 3)
	for _, s := range domain.SourcesFor(domain.StatusProcessing) {
		sources = append(sources, string(s))
	}

	affected, err := r.assets.UpdateFields(ctx, map[string]any{
		"status":                string(domain.StatusProcessing),
		"progress":              0,
		"error_message":         nil,
		"run_id":                uuid.NewString(),
		"processing_started_at": now,
		"heartbeat_at":          now,
		"completed_at":          nil,
		"updated_at":            now,
	}, repository.Where("id = ?", id), repository.Where("status IN ?", sources))
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to claim media asset", err, "e4f5a6b7-c8d9-4e0f-a1b2-c3d4e5f6a7b8")
	}
	if affected == 0 {
		exists, err := r.assets.Exists(ctx, repository.Where("id = ?", id))
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
				"failed to claim media asset", err, "f6a7b8c9-d0e1-4f2a-b3c4-d5e6f7a8b9c0")
		}
		if !exists {
			return nil, notFound(ctx, id, gorm.ErrRecordNotFound)
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"media asset is already processing", pipelineerrors.ConcurrentProcessingRejected(id), "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d")
	}
	return r.Get(ctx, id)
}

// SaveStatus writes the update. With update.RunID set the write only lands
// while that run still holds the claim; otherwise it fails with ClaimLost.
func (r *Repository) SaveStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	affected, err := r.assets.UpdateFields(ctx, statusFields(update, time.Now().UTC()), claimConditions(id, update.RunID)...)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to save media asset status", err, "2b3c4d5e-6f7a-4b8c-9d0e-1f2a3b4c5d6e")
	}
	if affected == 0 {
		return missingOrLost(ctx, r.assets, id, update.RunID)
	}
	return nil
}

// Heartbeat renews the claim of run runID on the asset.
func (r *Repository) Heartbeat(ctx context.Context, id, runID string) error {
	now := time.Now().UTC()
	affected, err := r.assets.UpdateFields(ctx, map[string]any{
		"heartbeat_at": now,
		"updated_at":   now,
	}, claimConditions(id, runID)...)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to renew processing claim", err, "8a1c4e7b-2d5f-4b93-a6e0-c3f8d1b7e254")
	}
	if affected == 0 {
		return missingOrLost(ctx, r.assets, id, runID)
	}
	return nil
}

// ExpireClaim moves the asset to error when run runID still holds it and its
// last heartbeat is older than staleBefore. It reports whether the row moved.
func (r *Repository) ExpireClaim(ctx context.Context, id, runID string, staleBefore time.Time, message string) (bool, error) {
	now := time.Now().UTC()
	affected, err := r.assets.UpdateFields(ctx, map[string]any{
		"status":        string(domain.StatusError),
		"error_message": message,
		"completed_at":  now,
		"updated_at":    now,
	},
		repository.Where("id = ?", id),
		repository.Where("status = ?", string(domain.StatusProcessing)),
		repository.Where("run_id = ?", runID),
		repository.Where("(heartbeat_at IS NULL OR heartbeat_at < ?)", staleBefore.UTC()),
	)
	if err != nil {
		return false, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to expire processing claim", err, "c5e29b0d-7f14-4a6e-8b3d-91f0a2c4e6d7")
	}
	return affected > 0, nil
}

func (r *Repository) SaveSourceInfo(ctx context.Context, id string, info domain.SourceInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to encode source info", err, "3c4d5e6f-7a8b-4c9d-0e1f-2a3b4c5d6e7f")
	}
	if _, err := r.assets.UpdateFields(ctx, map[string]any{
		"source_info": datatypes.JSON(raw),
		"updated_at":  time.Now().UTC(),
	}, repository.Where("id = ?", id)); err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to save source info", err, "4d5e6f7a-8b9c-4d0e-1f2a-3b4c5d6e7f8a")
	}
	return nil
}

// Complete swaps the asset's variant and segment records and applies the
// final status update in one transaction. The status write goes first so a
// run that lost its claim changes nothing.
func (r *Repository) Complete(ctx context.Context, id string, variants []domain.Variant, update domain.StatusUpdate) error {
	for _, v := range variants {
		if err := domain.ValidateSegments(v.Segments); err != nil {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeValidation,
				"variant "+v.Label+" has invalid segments", err, "5e6f7a8b-9c0d-4e1f-2a3b-4c5d6e7f8a9b")
		}
	}

	var lost error
	err := r.assets.Transaction(ctx, func(tx *gorm.DB) error {
		assetsTx := r.assets.WithTx(tx)
		affected, err := assetsTx.UpdateFields(ctx, statusFields(update, time.Now().UTC()), claimConditions(id, update.RunID)...)
		if err != nil {
			return err
		}
		if affected == 0 {
			lost = missingOrLost(ctx, assetsTx, id, update.RunID)
			return lost
		}

		variantsTx := r.variants.WithTx(tx)
		existing, err := variantsTx.FindAll(ctx, repository.Where("asset_id = ?", id))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			ids := make([]uint, len(existing))
			for i, v := range existing {
				ids[i] = v.ID
			}
			if _, err := r.segments.WithTx(tx).DeleteWhere(ctx, repository.Where("variant_id IN ?", ids)); err != nil {
				return err
			}
			if _, err := variantsTx.DeleteWhere(ctx, repository.Where("asset_id = ?", id)); err != nil {
				return err
			}
		}
		for _, v := range variants {
			entity := mapVariantToEntity(id, v)
			if err := variantsTx.Create(ctx, &entity); err != nil {
				return err
			}
		}
		return nil
	})
	if lost != nil {
		return lost
	}
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to complete media asset", err, "6f7a8b9c-0d1e-4f2a-3b4c-5d6e7f8a9b0c")
	}
	return nil
}

// missingOrLost explains why a conditional write on id matched no row.
func missingOrLost(ctx context.Context, assets *repository.Repository[entities.MediaAsset], id, runID string) error {
	exists, err := assets.Exists(ctx, repository.Where("id = ?", id))
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to look up media asset", err, "0b7d3f9a-4c2e-4e81-9a56-d2f7b1c8e043")
	}
	if !exists || runID == "" {
		return notFound(ctx, id, gorm.ErrRecordNotFound)
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
		"processing claim lost", pipelineerrors.ClaimLost(id), "7e4a1c9d-3b6f-4d25-8e0a-b9c2f5d8a163")
}

func claimConditions(id, runID string) []repository.Query {
	conditions := []repository.Query{repository.Where("id = ?", id)}
	if runID != "" {
		conditions = append(conditions,
			repository.Where("status = ?", string(domain.StatusProcessing)),
			repository.Where("run_id = ?", runID),
		)
	}
	return conditions
}

func statusFields(update domain.StatusUpdate, now time.Time) map[string]any {
	fields := map[string]any{
		"status":     string(update.Status),
		"progress":   update.Progress,
		"updated_at": now,
	}
	if update.ClearError {
		fields["error_message"] = nil
	}
	if update.ErrorMessage != nil {
		fields["error_message"] = *update.ErrorMessage
	}
	if update.MasterManifestURL != nil {
		fields["master_manifest_url"] = *update.MasterManifestURL
	}
	if update.ThumbnailURL != nil {
		fields["thumbnail_url"] = *update.ThumbnailURL
	}
	switch update.Status {
	case domain.StatusProcessing:
		if update.RunID != "" {
			fields["heartbeat_at"] = now
		}
	case domain.StatusReady:
		fields["error_message"] = nil
		fields["completed_at"] = now
	case domain.StatusError:
		fields["completed_at"] = now
	}
	return fields
}

func notFound(ctx context.Context, id string, cause error) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		"media asset not found", pipelineerrors.AssetNotFound(id, cause), "9c0d1e2f-3a4b-4c5d-6e7f-8a9b0c1d2e3f")
}
