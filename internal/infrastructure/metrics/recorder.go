package metrics

import (
	"time"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/publish"
)

// Recorder feeds orchestrator and publisher measurements into Prometheus.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) RunStarted() {
	RunsInFlight.Inc()
}

func (Recorder) RunFinished(outcome string, elapsed time.Duration) {
	RunsInFlight.Dec()
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (Recorder) StageFinished(stage pipelineerrors.Stage, elapsed time.Duration) {
	StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

func (Recorder) SegmentEncoded() {
	SegmentsEncoded.Inc()
}

func (Recorder) ObjectStored(contentType string, bytes int, elapsed time.Duration, err error) {
	kind := objectKind(contentType)
	ObjectUploadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		ObjectUploadsTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	ObjectUploadsTotal.WithLabelValues(kind, "success").Inc()
	ObjectUploadBytes.WithLabelValues(kind).Add(float64(bytes))
}

func (Recorder) ObjectRetried(contentType string) {
	StoreRetriesTotal.WithLabelValues(objectKind(contentType)).Inc()
}

func objectKind(contentType string) string {
	switch contentType {
	case publish.ContentTypeManifest:
		return "manifest"
	case publish.ContentTypeSegment:
		return "segment"
	case publish.ContentTypeThumbnail:
		return "thumbnail"
	default:
		return "other"
	}
}
