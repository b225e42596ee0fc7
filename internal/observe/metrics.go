// Package observe provides application-wide observability primitives for
// nap: OpenTelemetry metrics, tracing, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all nap metrics.
const meterName = "github.com/MrWong99/nap"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Recording ---

	// Recordings counts recording lifecycle events. Use with attribute:
	//   attribute.String("status", ...): started, finalized, finalize_error,
	//   device_unavailable
	Recordings metric.Int64Counter

	// ActiveRecordings is 1 while a capture device is held.
	ActiveRecordings metric.Int64UpDownCounter

	// RecordingDuration tracks the wall-clock length of finalized recordings.
	RecordingDuration metric.Float64Histogram

	// ArtifactSize tracks the size of finalized artifacts in bytes.
	ArtifactSize metric.Int64Histogram

	// --- Upload ---

	// UploadDuration tracks endpoint round-trip latency.
	UploadDuration metric.Float64Histogram

	// UploadRequests counts uploads. Use with attribute:
	//   attribute.String("status", ...): ok, or the error kind
	UploadRequests metric.Int64Counter

	// UploadErrors counts failed uploads. Use with attribute:
	//   attribute.String("kind", ...)
	UploadErrors metric.Int64Counter

	// --- Surface ---

	// Notifications counts user-facing notifications by level.
	Notifications metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for upload
// round-trips, which include server-side inference.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// recordingBuckets defines histogram bucket boundaries (in seconds) for
// recording lengths.
var recordingBuckets = []float64{
	1, 2, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Recording.
	if met.Recordings, err = m.Int64Counter("nap.recordings",
		metric.WithDescription("Recording lifecycle events by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("nap.active_recordings",
		metric.WithDescription("Number of recordings currently holding a capture device."),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("nap.recording.duration",
		metric.WithDescription("Wall-clock length of finalized recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ArtifactSize, err = m.Int64Histogram("nap.artifact.size",
		metric.WithDescription("Size of finalized audio artifacts."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Upload.
	if met.UploadDuration, err = m.Float64Histogram("nap.upload.duration",
		metric.WithDescription("Latency of artifact uploads to the inference endpoint."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UploadRequests, err = m.Int64Counter("nap.upload.requests",
		metric.WithDescription("Total upload attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.UploadErrors, err = m.Int64Counter("nap.upload.errors",
		metric.WithDescription("Total failed uploads by error kind."),
	); err != nil {
		return nil, err
	}

	// Surface.
	if met.Notifications, err = m.Int64Counter("nap.notifications",
		metric.WithDescription("User-facing notifications by level."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("nap.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordRecording records a recording lifecycle event.
func (m *Metrics) RecordRecording(ctx context.Context, status string) {
	m.Recordings.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordUpload records an upload attempt and its latency. kind is "ok" for
// successful uploads and the error kind otherwise.
func (m *Metrics) RecordUpload(ctx context.Context, kind string, seconds float64) {
	m.UploadRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", kind)),
	)
	m.UploadDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", kind)),
	)
	if kind != "ok" {
		m.UploadErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", kind)),
		)
	}
}

// RecordNotification records a user-facing notification.
func (m *Metrics) RecordNotification(ctx context.Context, level string) {
	m.Notifications.Add(ctx, 1,
		metric.WithAttributes(attribute.String("level", level)),
	)
}
