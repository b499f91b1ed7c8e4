// Package observe provides application-wide observability primitives for
// Voxtrace: OpenTelemetry metrics, tracing helpers, and structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxtrace metrics.
const meterName = "github.com/MrWong99/voxtrace"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SegmentationDuration tracks the latency of one full VAD + segmentation
	// pass over an input stream.
	SegmentationDuration metric.Float64Histogram

	// EmbeddingDuration tracks speaker-embedding extraction latency per clip.
	EmbeddingDuration metric.Float64Histogram

	// ResolveDuration tracks speaker-resolution latency per clip (profile
	// scan plus possible enrollment).
	ResolveDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text latency per clip.
	TranscriptionDuration metric.Float64Histogram

	// --- Counters ---

	// ClipsProcessed counts per-clip pipeline outcomes. Use with attribute:
	//   attribute.String("status", "ok"|"failed")
	ClipsProcessed metric.Int64Counter

	// SpeakersEnrolled counts newly enrolled speaker profiles.
	SpeakersEnrolled metric.Int64Counter

	// ProviderErrors counts capability backend errors. Use with attribute:
	//   attribute.String("kind", "embedding"|"transcription"|...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of stream-processing calls in flight.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SegmentationDuration, err = m.Float64Histogram("voxtrace.segmentation.duration",
		metric.WithDescription("Latency of one VAD + segmentation pass over an input stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("voxtrace.embedding.duration",
		metric.WithDescription("Latency of speaker-embedding extraction per clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResolveDuration, err = m.Float64Histogram("voxtrace.resolve.duration",
		metric.WithDescription("Latency of speaker resolution per clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("voxtrace.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription per clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ClipsProcessed, err = m.Int64Counter("voxtrace.clips.processed",
		metric.WithDescription("Total clips processed by the pipeline, by status."),
	); err != nil {
		return nil, err
	}
	if met.SpeakersEnrolled, err = m.Int64Counter("voxtrace.speakers.enrolled",
		metric.WithDescription("Total newly enrolled speaker profiles."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxtrace.provider.errors",
		metric.WithDescription("Total capability backend errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("voxtrace.active_streams",
		metric.WithDescription("Number of stream-processing calls in flight."),
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

// RecordClip is a convenience method that records a per-clip pipeline
// outcome.
func (m *Metrics) RecordClip(ctx context.Context, status string) {
	m.ClipsProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderError is a convenience method that records a capability
// backend error by kind.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
