package entities

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessingJob is a queued request to package an asset.
type ProcessingJob struct {
	ID          uint           `gorm:"primaryKey"`
	AssetID     string         `gorm:"type:varchar(40);not null;index:idx_processing_jobs_asset"`
	Status      string         `gorm:"size:32;not null;index:idx_processing_jobs_status_available,priority:1"`
	AvailableAt time.Time      `gorm:"not null;index:idx_processing_jobs_status_available,priority:2"`
	Attempts    int            `gorm:"not null;default:0"`
	MaxAttempts int            `gorm:"not null;default:5"`
	Ladder      datatypes.JSON `gorm:"type:jsonb"`
	LastError   *string        `gorm:"type:text"`
	LockedBy    *string        `gorm:"size:128"`
	LockedAt    *time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}
