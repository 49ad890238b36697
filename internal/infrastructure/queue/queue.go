package queue

import (
	"context"
	"time"

	"github.com/janhq/video-api/internal/domain/encoder"
)

// Job statuses in processing_jobs.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

// Job is a claimed request to package an asset.
type Job struct {
	ID          uint
	AssetID     string
	Attempts    int
	MaxAttempts int
	// Ladder overrides the service default when set.
	Ladder   *encoder.Config
	QueuedAt time.Time
}

// Exhausted reports whether the job has used every attempt.
func (j *Job) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts
}

// JobQueue defines the operations the worker pool needs.
type JobQueue interface {
	// Enqueue schedules processing of assetID with the default ladder.
	Enqueue(ctx context.Context, assetID string) error

	// EnqueueWithLadder schedules processing with an explicit ladder.
	EnqueueWithLadder(ctx context.Context, assetID string, ladder *encoder.Config) error

	// Dequeue claims the next available job using SELECT FOR UPDATE SKIP LOCKED.
	// It returns nil when nothing is due.
	Dequeue(ctx context.Context, workerID string) (*Job, error)

	Complete(ctx context.Context, jobID uint) error

	// Retry puts the job back in the queue, available after delay.
	Retry(ctx context.Context, jobID uint, jobErr error, delay time.Duration) error

	Fail(ctx context.Context, jobID uint, jobErr error) error

	// Drop closes a job whose asset is being handled elsewhere.
	Drop(ctx context.Context, jobID uint, reason string) error

	// Depth returns the number of queued jobs.
	Depth(ctx context.Context) (int64, error)
}
