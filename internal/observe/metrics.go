// Package observe provides application-wide observability primitives for
// voxgate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxgate metrics.
const meterName = "github.com/voxgate/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// DecisionDuration tracks end-to-end authentication decision latency.
	DecisionDuration metric.Float64Histogram

	// ClassifyDuration tracks speaker classifier call latency.
	ClassifyDuration metric.Float64Histogram

	// EmotionDuration tracks emotion classifier call latency.
	EmotionDuration metric.Float64Histogram

	// TTSDuration tracks greeting synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Signal quality ---

	// WindowSNR tracks the measured SNR of analysis windows in dB.
	WindowSNR metric.Float64Histogram

	// --- Counters ---

	// Decisions counts authentication decisions. Use with attributes:
	//   attribute.String("outcome", "success"|"fail"), attribute.String("code", ...)
	Decisions metric.Int64Counter

	// Binds counts voice-label bind attempts. Use with attribute:
	//   attribute.String("status", ...)
	Binds metric.Int64Counter

	// IngestedBytes counts appended audio bytes after format conversion.
	IngestedBytes metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live capture sessions.
	ActiveSessions metric.Int64Gauge

	// GatewayConnections tracks the number of open websocket connections.
	GatewayConnections metric.Int64UpDownCounter

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

// snrBuckets defines histogram bucket boundaries (in dB) around the usual
// quality gate thresholds.
var snrBuckets = []float64{
	0, 3, 6, 9, 12, 15, 20, 25, 30, 40, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecisionDuration, err = m.Float64Histogram("voxgate.decision.duration",
		metric.WithDescription("End-to-end latency of authentication decisions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("voxgate.classify.duration",
		metric.WithDescription("Latency of speaker classifier calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmotionDuration, err = m.Float64Histogram("voxgate.emotion.duration",
		metric.WithDescription("Latency of emotion classifier calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxgate.tts.duration",
		metric.WithDescription("Latency of greeting synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WindowSNR, err = m.Float64Histogram("voxgate.window.snr",
		metric.WithDescription("Measured SNR of analysis windows."),
		metric.WithUnit("dB"),
		metric.WithExplicitBucketBoundaries(snrBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Decisions, err = m.Int64Counter("voxgate.decisions",
		metric.WithDescription("Total authentication decisions by outcome and code."),
	); err != nil {
		return nil, err
	}
	if met.Binds, err = m.Int64Counter("voxgate.binds",
		metric.WithDescription("Total voice-label bind attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.IngestedBytes, err = m.Int64Counter("voxgate.audio.ingested_bytes",
		metric.WithDescription("Total audio bytes appended to session buffers."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxgate.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64Gauge("voxgate.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}
	if met.GatewayConnections, err = m.Int64UpDownCounter("voxgate.gateway.connections",
		metric.WithDescription("Number of open websocket connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
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

// RecordDecision records one authentication decision with its outcome and
// error code ("ok" for successes) plus the end-to-end latency.
func (m *Metrics) RecordDecision(ctx context.Context, success bool, code string, elapsed time.Duration) {
	outcome := "fail"
	if success {
		outcome = "success"
	}
	if code == "" {
		code = "ok"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("code", code),
	)
	m.Decisions.Add(ctx, 1, attrs)
	m.DecisionDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordClassify records one speaker classifier call.
func (m *Metrics) RecordClassify(ctx context.Context, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, "speaker", "classify")
	}
	m.ClassifyDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEmotion records one emotion classifier call.
func (m *Metrics) RecordEmotion(ctx context.Context, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, "emotion", "infer")
	}
	m.EmotionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordTTS records one greeting synthesis call.
func (m *Metrics) RecordTTS(ctx context.Context, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, "tts", "synthesize")
	}
	m.TTSDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordWindowSNR records the measured SNR of one analysis window.
func (m *Metrics) RecordWindowSNR(ctx context.Context, snrDB float64) {
	m.WindowSNR.Record(ctx, snrDB)
}

// RecordBind records one bind attempt with its status.
func (m *Metrics) RecordBind(ctx context.Context, status string) {
	m.Binds.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordActiveSessions records the current number of live capture sessions.
func (m *Metrics) RecordActiveSessions(ctx context.Context, n int) {
	m.ActiveSessions.Record(ctx, int64(n))
}

// RecordConnection adjusts the open websocket connection count by delta
// (+1 on accept, -1 on close).
func (m *Metrics) RecordConnection(ctx context.Context, delta int64) {
	m.GatewayConnections.Add(ctx, delta)
}

// RecordIngestedBytes counts audio bytes appended to a session buffer,
// measured after decode and resampling.
func (m *Metrics) RecordIngestedBytes(ctx context.Context, n int) {
	m.IngestedBytes.Add(ctx, int64(n))
}
