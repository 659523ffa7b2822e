// Package observe provides observability primitives for the trainer:
// OpenTelemetry metrics with a Prometheus exporter bridge so a local
// dashboard can scrape the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all trainer metrics.
const meterName = "github.com/lxm0851/shadowing"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecognitionDuration tracks speech recognition latency per provider.
	RecognitionDuration metric.Float64Histogram

	// CaptureDuration tracks how long each learner recording ran.
	CaptureDuration metric.Float64Histogram

	// AttemptScores tracks the distribution of attempt scores (0–100).
	AttemptScores metric.Float64Histogram

	// SegmentPlays counts segment playbacks, including repeats.
	SegmentPlays metric.Int64Counter

	// SwitchRequests counts navigation commands by kind.
	SwitchRequests metric.Int64Counter

	// ProviderErrors counts recognition backend failures by provider.
	ProviderErrors metric.Int64Counter

	// StaleResults counts recognition results discarded because the engine
	// had already moved on.
	StaleResults metric.Int64Counter

	// ActiveSessions tracks the number of live follow sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// recognition and capture latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// scoreBuckets matches the qualitative feedback band edges.
var scoreBuckets = []float64{
	50, 60, 70, 80, 90, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("shadowing.recognition.duration",
		metric.WithDescription("Latency of speech recognition per provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("shadowing.capture.duration",
		metric.WithDescription("Length of learner recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AttemptScores, err = m.Float64Histogram("shadowing.attempt.score",
		metric.WithDescription("Distribution of attempt scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SegmentPlays, err = m.Int64Counter("shadowing.segment.plays",
		metric.WithDescription("Segment playbacks, including repeats."),
	); err != nil {
		return nil, err
	}
	if met.SwitchRequests, err = m.Int64Counter("shadowing.switch.requests",
		metric.WithDescription("Navigation commands by kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("shadowing.provider.errors",
		metric.WithDescription("Recognition backend failures by provider."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("shadowing.recognition.stale_results",
		metric.WithDescription("Recognition results discarded as stale."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("shadowing.active_sessions",
		metric.WithDescription("Number of live follow sessions."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordRecognition records one recognition call's latency and status.
func (m *Metrics) RecordRecognition(ctx context.Context, provider string, seconds float64, status string) {
	m.RecognitionDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one recognition backend failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSwitchRequest records one navigation command.
func (m *Metrics) RecordSwitchRequest(ctx context.Context, kind string) {
	m.SwitchRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
