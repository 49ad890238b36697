package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/janhq/video-api/internal/domain/encoder"
	"github.com/janhq/video-api/internal/infrastructure/database/entities"
)

// PostgresQueue implements JobQueue over the processing_jobs table.
type PostgresQueue struct {
	db          *gorm.DB
	maxAttempts int
	log         zerolog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed job queue.
func NewPostgresQueue(db *gorm.DB, maxAttempts int, log zerolog.Logger) *PostgresQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &PostgresQueue{
		db:          db,
		maxAttempts: maxAttempts,
		log:         log.With().Str("component", "postgres-queue").Logger(),
	}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, assetID string) error {
	return q.EnqueueWithLadder(ctx, assetID, nil)
}

// EnqueueWithLadder inserts a queued job unless one is already waiting for the asset.
func (q *PostgresQueue) EnqueueWithLadder(ctx context.Context, assetID string, ladder *encoder.Config) error {
	var waiting int64
	if err := q.db.WithContext(ctx).
		Model(&entities.ProcessingJob{}).
		Where("asset_id = ? AND status = ?", assetID, StatusQueued).
		Count(&waiting).Error; err != nil {
		return fmt.Errorf("check queued jobs: %w", err)
	}
	if waiting > 0 {
		q.log.Debug().Str("asset_id", assetID).Msg("job already queued")
		return nil
	}

	job := entities.ProcessingJob{
		AssetID:     assetID,
		Status:      StatusQueued,
		AvailableAt: time.Now().UTC(),
		MaxAttempts: q.maxAttempts,
	}
	if ladder != nil {
		raw, err := json.Marshal(ladder)
		if err != nil {
			return fmt.Errorf("encode ladder: %w", err)
		}
		job.Ladder = datatypes.JSON(raw)
	}
	if err := q.db.WithContext(ctx).Create(&job).Error; err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	q.log.Info().Str("asset_id", assetID).Uint("job_id", job.ID).Msg("job enqueued")
	return nil
}

// Dequeue claims the oldest due job and marks it running in the same transaction.
func (q *PostgresQueue) Dequeue(ctx context.Context, workerID string) (*Job, error) {
	var claimed *entities.ProcessingJob

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []entities.ProcessingJob
		query := tx
		// sqlite serialises writers and has no row locks
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.
			Where("status = ? AND available_at <= ?", StatusQueued, time.Now().UTC()).
			Order("available_at ASC").
			Order("id ASC").
			Limit(1).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		row := rows[0]
		now := time.Now().UTC()
		if err := tx.Model(&entities.ProcessingJob{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"status":     StatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_by":  workerID,
				"locked_at":  now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		row.Attempts++
		claimed = &row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	if claimed == nil {
		return nil, nil
	}

	job := &Job{
		ID:          claimed.ID,
		AssetID:     claimed.AssetID,
		Attempts:    claimed.Attempts,
		MaxAttempts: claimed.MaxAttempts,
		QueuedAt:    claimed.CreatedAt,
	}
	if len(claimed.Ladder) > 0 {
		var ladder encoder.Config
		if err := json.Unmarshal(claimed.Ladder, &ladder); err != nil {
			q.log.Warn().Err(err).Uint("job_id", claimed.ID).Msg("ignoring unreadable job ladder")
		} else {
			job.Ladder = &ladder
		}
	}
	return job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID uint) error {
	now := time.Now().UTC()
	return q.finish(ctx, jobID, map[string]any{
		"status":      StatusCompleted,
		"last_error":  nil,
		"finished_at": now,
		"updated_at":  now,
	}, "complete")
}

func (q *PostgresQueue) Retry(ctx context.Context, jobID uint, jobErr error, delay time.Duration) error {
	now := time.Now().UTC()
	return q.finish(ctx, jobID, map[string]any{
		"status":       StatusQueued,
		"last_error":   errorText(jobErr),
		"available_at": now.Add(delay),
		"locked_by":    nil,
		"locked_at":    nil,
		"updated_at":   now,
	}, "retry")
}

func (q *PostgresQueue) Fail(ctx context.Context, jobID uint, jobErr error) error {
	now := time.Now().UTC()
	return q.finish(ctx, jobID, map[string]any{
		"status":      StatusFailed,
		"last_error":  errorText(jobErr),
		"finished_at": now,
		"updated_at":  now,
	}, "fail")
}

func (q *PostgresQueue) Drop(ctx context.Context, jobID uint, reason string) error {
	now := time.Now().UTC()
	return q.finish(ctx, jobID, map[string]any{
		"status":      StatusDropped,
		"last_error":  reason,
		"finished_at": now,
		"updated_at":  now,
	}, "drop")
}

// Depth returns the number of queued jobs.
func (q *PostgresQueue) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&entities.ProcessingJob{}).
		Where("status = ?", StatusQueued).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}
	return count, nil
}

// ReleaseStale requeues running jobs whose lock is older than ttl, such as
// jobs held by a worker that died mid-run.
func (q *PostgresQueue) ReleaseStale(ctx context.Context, ttl time.Duration) (int64, error) {
	now := time.Now().UTC()
	result := q.db.WithContext(ctx).
		Model(&entities.ProcessingJob{}).
		Where("status = ? AND locked_at < ?", StatusRunning, now.Add(-ttl)).
		Updates(map[string]any{
			"status":       StatusQueued,
			"available_at": now,
			"locked_by":    nil,
			"locked_at":    nil,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("release stale jobs: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		q.log.Warn().Int64("count", result.RowsAffected).Msg("released stale jobs")
	}
	return result.RowsAffected, nil
}

func (q *PostgresQueue) finish(ctx context.Context, jobID uint, fields map[string]any, op string) error {
	result := q.db.WithContext(ctx).
		Model(&entities.ProcessingJob{}).
		Where("id = ?", jobID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("%s job: %w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job not found: %d", jobID)
	}
	return nil
}

func errorText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

// PurgeFinished deletes completed, failed and dropped jobs that finished
// before now minus retention.
func (q *PostgresQueue) PurgeFinished(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result := q.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?", []string{StatusCompleted, StatusFailed, StatusDropped}, cutoff).
		Delete(&entities.ProcessingJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
