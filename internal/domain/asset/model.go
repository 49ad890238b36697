package asset

import (
	"fmt"
	"time"
)

// MediaAsset is an uploaded source video and the state of its HLS packaging.
type MediaAsset struct {
	ID                  string     `json:"id"`
	OriginalFilename    string     `json:"original_filename"`
	SourceRef           string     `json:"-"`
	MimeType            string     `json:"mime_type"`
	SizeBytes           int64      `json:"size_bytes"`
	Status              Status     `json:"status"`
	Progress            int        `json:"progress"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	ThumbnailURL        *string    `json:"thumbnail_url,omitempty"`
	MasterManifestURL   *string    `json:"master_manifest_url,omitempty"`
	SourceInfo          SourceInfo `json:"source_info"`
	Variants            []Variant  `json:"variants,omitempty"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	RunID               string     `json:"-"`
	HeartbeatAt         *time.Time `json:"heartbeat_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SourceInfo is what probing the source revealed.
type SourceInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	VideoCodec      string  `json:"video_codec,omitempty"`
	AudioCodec      string  `json:"audio_codec,omitempty"`
	FormatName      string  `json:"format_name,omitempty"`
}

// HasAudio reports whether the source carries an audio stream.
func (s SourceInfo) HasAudio() bool {
	return s.AudioCodec != ""
}

// Variant is one published quality rendition.
type Variant struct {
	Label       string    `json:"label"`
	Bandwidth   int64     `json:"bandwidth"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	PlaylistKey string    `json:"playlist_key"`
	Segments    []Segment `json:"segments,omitempty"`
}

// Segment is one fixed-duration chunk of a variant.
type Segment struct {
	Index    int     `json:"index"`
	Duration float64 `json:"duration"`
	Key      string  `json:"key"`
}

// ValidateSegments checks that indices run 0..k-1 without gaps and durations are non-negative.
func ValidateSegments(segments []Segment) error {
	for i, seg := range segments {
		if seg.Index != i {
			return fmt.Errorf("segment index %d at position %d: indices must be contiguous from 0", seg.Index, i)
		}
		if seg.Duration < 0 {
			return fmt.Errorf("segment %d has negative duration %f", seg.Index, seg.Duration)
		}
	}
	return nil
}

// StatusUpdate carries the fields written by saveAssetStatus. Nil pointers leave columns unchanged.
type StatusUpdate struct {
	Status            Status
	Progress          int
	ErrorMessage      *string
	MasterManifestURL *string
	ThumbnailURL      *string
	// ClearError resets a previous error message, used when a run starts.
	ClearError bool
	// RunID, when set, makes the write conditional on the asset still being
	// processing under that run.
	RunID string
}

// LastHeartbeat is the latest sign of life of the processing claim.
func (a *MediaAsset) LastHeartbeat() time.Time {
	switch {
	case a.HeartbeatAt != nil:
		return *a.HeartbeatAt
	case a.ProcessingStartedAt != nil:
		return *a.ProcessingStartedAt
	default:
		return time.Time{}
	}
}

// Filter narrows asset listings.
type Filter struct {
	Status *Status
	Limit  int
	Offset int
}
