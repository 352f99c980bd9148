// Package observe provides observability primitives for Nova: OpenTelemetry
// metrics with a Prometheus exporter bridge, and HTTP middleware that records
// request latency.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
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

// meterName is the instrumentation scope name used for all Nova metrics.
const meterName = "github.com/novabot/nova"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// LLMDuration tracks LLM completion latency. Use with attribute:
	//   attribute.String("model", ...)
	LLMDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// ChatSends counts chat completion requests. Use with attributes:
	//   attribute.String("model", ...), attribute.String("transport", ...), attribute.String("status", ...)
	ChatSends metric.Int64Counter

	// ActiveStreams tracks the number of SSE streams currently open.
	ActiveStreams metric.Int64UpDownCounter

	// TTSDuration tracks speech synthesis latency per utterance.
	TTSDuration metric.Float64Histogram

	// STTSessionDuration tracks how long each streaming transcription
	// session lived before it ended or was lost.
	STTSessionDuration metric.Float64Histogram

	// STTReconnects counts transcription reconnect attempts.
	STTReconnects metric.Int64Counter

	// PipelineDropped counts frames and transcripts discarded because a
	// pipeline queue was full. Use with attribute:
	//   attribute.String("stage", "capture"|"transcript")
	PipelineDropped metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM and HTTP latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets covers streaming-session lifetimes, which range from an
// immediate drop to many minutes of continuous listening.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 300, 900, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("nova.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("nova.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatSends, err = m.Int64Counter("nova.chat.sends",
		metric.WithDescription("Total chat completion requests by model, transport, and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("nova.chat.active_streams",
		metric.WithDescription("Number of SSE chat streams currently open."),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("nova.tts.duration",
		metric.WithDescription("Latency of speech synthesis per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTSessionDuration, err = m.Float64Histogram("nova.stt.session.duration",
		metric.WithDescription("Lifetime of each streaming transcription session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTReconnects, err = m.Int64Counter("nova.stt.reconnects",
		metric.WithDescription("Transcription reconnect attempts after a session was lost."),
	); err != nil {
		return nil, err
	}
	if met.PipelineDropped, err = m.Int64Counter("nova.pipeline.dropped",
		metric.WithDescription("Frames and transcripts discarded because a pipeline queue was full."),
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

// RecordChatSend is a convenience method that records a chat send counter
// increment with the standard attribute set. transport is "buffered" or
// "stream"; status is "ok" or "error".
func (m *Metrics) RecordChatSend(ctx context.Context, model, transport, status string) {
	m.ChatSends.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("transport", transport),
			attribute.String("status", status),
		),
	)
}

// RecordLLMDuration is a convenience method that records completion latency
// for one model call.
func (m *Metrics) RecordLLMDuration(ctx context.Context, model string, seconds float64) {
	m.LLMDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("model", model)),
	)
}

// The pipeline helpers below accept a nil receiver so the voice components
// can record unconditionally and run unmetered when no Metrics is wired.

// RecordTTSDuration records synthesis latency for one utterance.
func (m *Metrics) RecordTTSDuration(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.TTSDuration.Record(ctx, seconds)
}

// RecordSTTSessionEnd records the lifetime of a transcription session and
// counts the reconnect attempt that follows it.
func (m *Metrics) RecordSTTSessionEnd(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.STTSessionDuration.Record(ctx, seconds)
	m.STTReconnects.Add(ctx, 1)
}

// RecordDroppedFrame counts one discarded frame or transcript for the given
// pipeline stage.
func (m *Metrics) RecordDroppedFrame(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.PipelineDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
