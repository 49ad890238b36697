package entities

import (
	"time"

	"gorm.io/datatypes"
)

// MediaAsset is the persisted asset row.
type MediaAsset struct {
	ID                  string         `gorm:"type:varchar(40);primaryKey"`
	OriginalFilename    string         `gorm:"size:255;not null"`
	SourceRef           string         `gorm:"size:1024;not null"`
	MimeType            string         `gorm:"size:128"`
	SizeBytes           int64          `gorm:"not null;default:0"`
	Status              string         `gorm:"size:32;not null;index:idx_media_assets_status"`
	Progress            int            `gorm:"not null;default:0"`
	ErrorMessage        *string        `gorm:"type:text"`
	ThumbnailURL        *string        `gorm:"size:2048"`
	MasterManifestURL   *string        `gorm:"size:2048"`
	SourceInfo          datatypes.JSON `gorm:"type:jsonb"`
	ProcessingStartedAt *time.Time
	RunID               string `gorm:"size:64;not null;default:''"`
	HeartbeatAt         *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`

	Variants []Variant `gorm:"foreignKey:AssetID;constraint:OnDelete:CASCADE"`
}

func (MediaAsset) TableName() string {
	return "media_assets"
}

// Variant is one published rendition of an asset.
type Variant struct {
	ID          uint      `gorm:"primaryKey"`
	AssetID     string    `gorm:"type:varchar(40);not null;uniqueIndex:idx_media_variants_asset_label"`
	Label       string    `gorm:"size:32;not null;uniqueIndex:idx_media_variants_asset_label"`
	Bandwidth   int64     `gorm:"not null"`
	Width       int       `gorm:"not null"`
	Height      int       `gorm:"not null"`
	PlaylistKey string    `gorm:"size:1024;not null"`
	Segments    []Segment `gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (Variant) TableName() string {
	return "media_variants"
}

// Segment is one media segment of a variant.
type Segment struct {
	ID           uint    `gorm:"primaryKey"`
	VariantID    uint    `gorm:"not null;uniqueIndex:idx_media_segments_variant_index"`
	SegmentIndex int     `gorm:"not null;uniqueIndex:idx_media_segments_variant_index"`
	Duration     float64 `gorm:"not null"`
	ObjectKey    string  `gorm:"size:1024;not null"`
}

func (Segment) TableName() string {
	return "media_segments"
}
