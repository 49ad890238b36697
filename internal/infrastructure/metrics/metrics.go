package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Video-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Source uploads
	IngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "ingests_total",
			Help:      "Total source uploads",
		},
		[]string{"status"},
	)

	// Processing runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "processing_runs_total",
			Help:      "Processing runs by outcome",
		},
		[]string{"outcome"},
	)

	RunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "processing_runs_in_flight",
			Help:      "Processing runs currently executing",
		},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "processing_run_duration_seconds",
			Help:      "Processing run duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each processing stage in seconds",
			Buckets:   []float64{0.05, 0.5, 1, 5, 15, 60, 300, 1200},
		},
		[]string{"stage"},
	)

	SegmentsEncoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "segments_encoded_total",
			Help:      "Total segments encoded across all variants",
		},
	)

	// Object store uploads
	ObjectUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "object_uploads_total",
			Help:      "Object store uploads by kind and status",
		},
		[]string{"kind", "status"},
	)

	ObjectUploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "object_upload_bytes_total",
			Help:      "Total bytes written to the object store",
		},
		[]string{"kind"},
	)

	ObjectUploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "object_upload_duration_seconds",
			Help:      "Object store upload duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)

	StoreRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "store_retries_total",
			Help:      "Object uploads retried after a transient store failure",
		},
		[]string{"kind"},
	)

	// Queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "queue_depth",
			Help:      "Processing jobs waiting to run",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "video_api",
			Name:      "jobs_total",
			Help:      "Processing jobs by final disposition",
		},
		[]string{"disposition"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordIngest records a source upload
func RecordIngest(status string) {
	IngestsTotal.WithLabelValues(status).Inc()
}

// RecordJob records what the worker did with a job
func RecordJob(disposition string) {
	JobsTotal.WithLabelValues(disposition).Inc()
}

// SetQueueDepth publishes the number of queued jobs
func SetQueueDepth(depth int64) {
	QueueDepth.Set(float64(depth))
}
