package asset

import (
	"context"
	"io"
	"time"
)

// Repository persists media assets, their variants and segments.
type Repository interface {
	Create(ctx context.Context, a *MediaAsset) error
	Get(ctx context.Context, id string) (*MediaAsset, error)
	List(ctx context.Context, filter Filter) ([]*MediaAsset, int64, error)
	ListByStatus(ctx context.Context, status Status) ([]*MediaAsset, error)

	// Claim atomically moves the asset to processing with progress 0 under a
	// new RunID. It fails with ConcurrentProcessingRejected when the asset is
	// already processing.
	Claim(ctx context.Context, id string) (*MediaAsset, error)
	// SaveStatus fails with ClaimLost when update.RunID no longer holds the asset.
	SaveStatus(ctx context.Context, id string, update StatusUpdate) error
	// Heartbeat renews the claim held by runID.
	Heartbeat(ctx context.Context, id, runID string) error
	// ExpireClaim moves the asset to error if runID still holds it and has not
	// sent a heartbeat since staleBefore.
	ExpireClaim(ctx context.Context, id, runID string, staleBefore time.Time, message string) (bool, error)
	SaveSourceInfo(ctx context.Context, id string, info SourceInfo) error
	// Complete replaces the variants and applies update in one step.
	Complete(ctx context.Context, id string, variants []Variant, update StatusUpdate) error
}

// SourceStorage holds uploaded originals until they are packaged.
type SourceStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// JobEnqueuer schedules background processing for an asset.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, assetID string) error
}
