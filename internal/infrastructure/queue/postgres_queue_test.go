package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/video-api/internal/domain/encoder"
	"github.com/janhq/video-api/internal/infrastructure/database"
	"github.com/janhq/video-api/internal/infrastructure/database/entities"
	"github.com/janhq/video-api/internal/infrastructure/queue"
)

func newSQLiteQueue(t *testing.T) (*queue.PostgresQueue, *gorm.DB) {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver:       database.DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		LogLevel:     gormlogger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(context.Background(), db, zerolog.Nop()))
	t.Cleanup(func() { _ = database.Close(db) })
	return queue.NewPostgresQueue(db, 3, zerolog.Nop()), db
}

func TestPostgresQueue_Lifecycle(t *testing.T) {
	q, db := newSQLiteQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "vid_a"))
	// a second request while one is waiting is coalesced
	require.NoError(t, q.Enqueue(ctx, "vid_a"))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth)

	job, err := q.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "vid_a", job.AssetID)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Nil(t, job.Ladder)

	next, err := q.Dequeue(ctx, "worker-2")
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, q.Complete(ctx, job.ID))

	var row entities.ProcessingJob
	require.NoError(t, db.First(&row, job.ID).Error)
	assert.Equal(t, queue.StatusCompleted, row.Status)
	assert.NotNil(t, row.FinishedAt)
	require.NotNil(t, row.LockedBy)
	assert.Equal(t, "worker-1", *row.LockedBy)
}

func TestPostgresQueue_RetryDelaysJob(t *testing.T) {
	q, db := newSQLiteQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "vid_a"))
	job, err := q.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Retry(ctx, job.ID, errors.New("store unavailable"), time.Hour))

	again, err := q.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, again, "job must not be available before its delay")

	var row entities.ProcessingJob
	require.NoError(t, db.First(&row, job.ID).Error)
	assert.Equal(t, queue.StatusQueued, row.Status)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "store unavailable", *row.LastError)
	assert.Nil(t, row.LockedBy)

	require.NoError(t, q.Retry(ctx, job.ID, errors.New("store unavailable"), 0))
	again, err = q.Dequeue(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
}

func TestPostgresQueue_FailAndDrop(t *testing.T) {
	q, db := newSQLiteQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "vid_a"))
	require.NoError(t, q.Enqueue(ctx, "vid_b"))

	first, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	second, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)

	require.NoError(t, q.Fail(ctx, first.ID, errors.New("source could not be read")))
	require.NoError(t, q.Drop(ctx, second.ID, "asset is already processing"))

	var rows []entities.ProcessingJob
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, queue.StatusFailed, rows[0].Status)
	assert.Equal(t, queue.StatusDropped, rows[1].Status)

	assert.Error(t, q.Complete(ctx, 999))
}

func TestPostgresQueue_LadderOverride(t *testing.T) {
	q, _ := newSQLiteQueue(t)
	ctx := context.Background()

	ladder := &encoder.Config{
		SegmentDuration: 4,
		Qualities:       []encoder.Quality{{Label: "360p", Bandwidth: 800000, Width: 640, Height: 360}},
	}
	require.NoError(t, q.EnqueueWithLadder(ctx, "vid_a", ladder))

	job, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NotNil(t, job.Ladder)
	assert.Equal(t, *ladder, *job.Ladder)
}

func TestPostgresQueue_ReleaseStale(t *testing.T) {
	q, _ := newSQLiteQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "vid_a"))
	job, err := q.Dequeue(ctx, "w")
	require.NoError(t, err)
	require.NotNil(t, job)

	released, err := q.ReleaseStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, released)

	released, err = q.ReleaseStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, released)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth)
}

func TestJob_Exhausted(t *testing.T) {
	assert.False(t, (&queue.Job{Attempts: 2, MaxAttempts: 3}).Exhausted())
	assert.True(t, (&queue.Job{Attempts: 3, MaxAttempts: 3}).Exhausted())
	assert.False(t, (&queue.Job{Attempts: 9}).Exhausted())
}

func newMockQueue(t *testing.T) (*queue.PostgresQueue, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return queue.NewPostgresQueue(db, 5, zerolog.Nop()), mock
}

func TestPostgresQueue_DequeueLocksWithSkipLocked(t *testing.T) {
	q, mock := newMockQueue(t)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "processing_jobs" WHERE .*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "asset_id", "status", "attempts", "max_attempts", "created_at"}).
			AddRow(7, "vid_a", queue.StatusQueued, 0, 5, now))
	mock.ExpectExec(`UPDATE "processing_jobs" SET .*attempts.*WHERE id = `).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := q.Dequeue(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.EqualValues(t, 7, job.ID)
	assert.Equal(t, 1, job.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_DequeueEmpty(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	job, err := q.Dequeue(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_DequeueRollsBackOnError(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := q.Dequeue(context.Background(), "worker-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_PurgeFinished(t *testing.T) {
	q, db := newSQLiteQueue(t)
	ctx := context.Background()

	for _, id := range []string{"vid_old", "vid_recent", "vid_waiting"} {
		require.NoError(t, q.Enqueue(ctx, id))
	}
	for i := 0; i < 2; i++ {
		job, err := q.Dequeue(ctx, "worker-1")
		require.NoError(t, err)
		require.NotNil(t, job)
		require.NoError(t, q.Complete(ctx, job.ID))
	}
	longAgo := time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, db.Model(&entities.ProcessingJob{}).
		Where("asset_id = ?", "vid_old").
		Update("finished_at", longAgo).Error)

	purged, err := q.PurgeFinished(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	var remaining []entities.ProcessingJob
	require.NoError(t, db.Order("id").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, "vid_recent", remaining[0].AssetID)
	assert.Equal(t, "vid_waiting", remaining[1].AssetID)
}
