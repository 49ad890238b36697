package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WorkerInstrumenter instruments background workers
type WorkerInstrumenter struct {
	tracer        trace.Tracer
	workersActive metric.Int64UpDownCounter
	jobDuration   metric.Float64Histogram
	jobsTotal     metric.Int64Counter
}

// NewWorkerInstrumenter builds instruments on the global meter provider.
func NewWorkerInstrumenter(serviceName string) (*WorkerInstrumenter, error) {
	return NewWorkerInstrumenterWith(GetTracer(), otel.Meter(tracerName), serviceName)
}

// NewWorkerInstrumenterWith builds instruments on the given tracer and meter.
func NewWorkerInstrumenterWith(tracer trace.Tracer, meter metric.Meter, serviceName string) (*WorkerInstrumenter, error) {
	workersActive, err := meter.Int64UpDownCounter(
		fmt.Sprintf("jan_%s_workers_active", serviceName),
		metric.WithDescription("Number of workers running a job"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		fmt.Sprintf("jan_%s_job_duration_seconds", serviceName),
		metric.WithDescription("Background job duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	jobsTotal, err := meter.Int64Counter(
		fmt.Sprintf("jan_%s_jobs_total", serviceName),
		metric.WithDescription("Total background jobs processed"),
	)
	if err != nil {
		return nil, err
	}

	return &WorkerInstrumenter{
		tracer:        tracer,
		workersActive: workersActive,
		jobDuration:   jobDuration,
		jobsTotal:     jobsTotal,
	}, nil
}

// InstrumentJob wraps a job execution with a span and job metrics.
func (w *WorkerInstrumenter) InstrumentJob(ctx context.Context, jobType string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	w.workersActive.Add(ctx, 1)
	defer w.workersActive.Add(ctx, -1)

	ctx, span := w.tracer.Start(ctx, "worker."+jobType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String("job.type", jobType)}, attrs...)...),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		RecordError(span, err)
	}

	metricAttrs := metric.WithAttributes(
		attribute.String("job.type", jobType),
		attribute.String("status", status),
	)
	w.jobDuration.Record(ctx, duration, metricAttrs)
	w.jobsTotal.Add(ctx, 1, metricAttrs)
	return err
}
