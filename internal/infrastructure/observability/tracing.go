package observability

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/janhq/video-api"

// GetTracer returns the tracer for the video-api service.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// AssetAttributes returns common attributes for asset spans.
func AssetAttributes(assetID, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("asset.id", assetID),
		attribute.String("asset.status", status),
	}
}

// JobAttributes returns common attributes for queue job spans.
func JobAttributes(jobID uint, assetID string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("job.id", int64(jobID)),
		attribute.String("job.asset_id", assetID),
		attribute.Int("job.attempt", attempt),
	}
}

// RecordError marks span failed with err.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddStatusTransition records an asset status change on the span in ctx.
func AddStatusTransition(ctx context.Context, from, to string) {
	trace.SpanFromContext(ctx).AddEvent("status_transition", trace.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// GinMiddleware starts a server span per request, continuing any incoming trace.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	tracer := GetTracer()
	propagator := otel.GetTextMapPropagator()
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.HTTPRoute(route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
