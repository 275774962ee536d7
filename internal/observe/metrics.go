// Package observe provides application-wide observability primitives for
// Voxlate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// All Record* methods are nil-safe: components accept a *Metrics and may be
// handed nil when telemetry is disabled.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxlate metrics.
const meterName = "github.com/voxlate/voxlate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks per-stage latency of the turn-based cascade.
	// Use with attribute: attribute.String("stage", ...) — one of
	// "transcribe", "correct", "translate", "synthesize", "total".
	StageDuration metric.Float64Histogram

	// CheckpointDelta tracks deltas between pipeline latency checkpoints.
	// Use with attributes: attribute.String("from", ...), attribute.String("to", ...).
	CheckpointDelta metric.Float64Histogram

	// --- Counters ---

	// Segments counts speech segments detected by the VAD.
	Segments metric.Int64Counter

	// Phrases counts phrases emitted by the aggregator to synthesis.
	Phrases metric.Int64Counter

	// ModeSwitches counts arbiter mode switches. Use with attribute:
	//   attribute.String("direction", ...) — "to_push_to_talk" or "to_streaming".
	ModeSwitches metric.Int64Counter

	// TransportFailures counts stream transport drops and failed delivery
	// attempts observed by the arbiter.
	TransportFailures metric.Int64Counter

	// Reconnects counts stream redial attempts. Use with attribute:
	//   attribute.String("status", ...) — "success" or "failure".
	Reconnects metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live translation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
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
	if met.StageDuration, err = m.Float64Histogram("voxlate.stage.duration",
		metric.WithDescription("Latency of one turn-cascade stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CheckpointDelta, err = m.Float64Histogram("voxlate.latency.checkpoint_delta",
		metric.WithDescription("Time between two pipeline latency checkpoints."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Segments, err = m.Int64Counter("voxlate.vad.segments",
		metric.WithDescription("Total speech segments detected."),
	); err != nil {
		return nil, err
	}
	if met.Phrases, err = m.Int64Counter("voxlate.phrase.emitted",
		metric.WithDescription("Total phrases handed to synthesis."),
	); err != nil {
		return nil, err
	}
	if met.ModeSwitches, err = m.Int64Counter("voxlate.mode.switches",
		metric.WithDescription("Total translation mode switches by direction."),
	); err != nil {
		return nil, err
	}
	if met.TransportFailures, err = m.Int64Counter("voxlate.transport.failures",
		metric.WithDescription("Total stream transport drops and failed deliveries."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voxlate.stream.reconnects",
		metric.WithDescription("Total stream redial attempts by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxlate.active_sessions",
		metric.WithDescription("Number of live translation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlate.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration of one turn-cascade stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil || m.StageDuration == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordCheckpointDelta records the time between two latency checkpoints.
func (m *Metrics) RecordCheckpointDelta(ctx context.Context, from, to string, d time.Duration) {
	if m == nil || m.CheckpointDelta == nil {
		return
	}
	m.CheckpointDelta.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordSegment increments the detected-segment counter.
func (m *Metrics) RecordSegment(ctx context.Context) {
	if m == nil || m.Segments == nil {
		return
	}
	m.Segments.Add(ctx, 1)
}

// RecordPhrase increments the emitted-phrase counter.
func (m *Metrics) RecordPhrase(ctx context.Context) {
	if m == nil || m.Phrases == nil {
		return
	}
	m.Phrases.Add(ctx, 1)
}

// RecordModeSwitch increments the mode-switch counter for one direction.
func (m *Metrics) RecordModeSwitch(ctx context.Context, direction string) {
	if m == nil || m.ModeSwitches == nil {
		return
	}
	m.ModeSwitches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}

// RecordTransportFailure increments the transport-failure counter.
func (m *Metrics) RecordTransportFailure(ctx context.Context) {
	if m == nil || m.TransportFailures == nil {
		return
	}
	m.TransportFailures.Add(ctx, 1)
}

// RecordReconnect increments the redial counter with the attempt status.
func (m *Metrics) RecordReconnect(ctx context.Context, status string) {
	if m == nil || m.Reconnects == nil {
		return
	}
	m.Reconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// AddActiveSessions adjusts the live-session gauge by delta.
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	if m == nil || m.ActiveSessions == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

// RecordHTTPRequest records one HTTP request's processing time. route should
// be the resolved route pattern, not the raw URL, to keep cardinality bounded.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, d time.Duration) {
	if m == nil || m.HTTPRequestDuration == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("route", route),
		),
	)
}
