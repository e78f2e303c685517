// Package observability wires OpenTelemetry tracing and metrics for
// notifyrelay.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/kart-io/notifyrelay"

// Config controls telemetry export.
type Config struct {
	Enabled        bool              `env:"ENABLED"`
	ServiceName    string            `env:"SERVICE_NAME" envDefault:"notifyrelay"`
	ServiceVersion string            `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment    string            `env:"ENVIRONMENT" envDefault:"development"`
	OTLPEndpoint   string            `env:"OTLP_ENDPOINT" envDefault:"http://localhost:4318"`
	OTLPHeaders    map[string]string `env:"OTLP_HEADERS"`
	SampleRate     float64           `env:"SAMPLE_RATE" envDefault:"1.0"`
}

// TelemetryProvider provides observability features
type TelemetryProvider struct {
	config        Config
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	// Metrics
	dispatched       metric.Int64Counter
	stageFailures    metric.Int64Counter
	realtimeWrites   metric.Int64Counter
	dispatchDuration metric.Float64Histogram
}

// Option configures a TelemetryProvider.
type Option func(*TelemetryProvider)

// WithTracerProvider uses tp instead of the global or exporting provider.
// Tests pass an SDK provider with a span recorder.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *TelemetryProvider) {
		p.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMeterProvider uses mp instead of the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *TelemetryProvider) {
		p.meter = mp.Meter(instrumentationName)
	}
}

// NewTelemetryProvider creates a telemetry provider. When cfg.Enabled is
// false spans and metrics go to whatever global providers are installed,
// which are no-ops unless the host sets them.
func NewTelemetryProvider(cfg Config, opts ...Option) (*TelemetryProvider, error) {
	tp := &TelemetryProvider{config: cfg}

	if cfg.Enabled {
		if err := tp.initTracing(); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	for _, opt := range opts {
		opt(tp)
	}
	if tp.tracer == nil {
		tp.tracer = otel.Tracer(instrumentationName)
	}
	if tp.meter == nil {
		tp.meter = otel.Meter(instrumentationName, metric.WithSchemaURL(semconv.SchemaURL))
	}

	if err := tp.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return tp, nil
}

// NewNoop returns a provider that records nothing.
func NewNoop() *TelemetryProvider {
	tp, _ := NewTelemetryProvider(Config{})
	return tp
}

func (tp *TelemetryProvider) initTracing() error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(tp.config.ServiceName),
			semconv.ServiceVersion(tp.config.ServiceVersion),
			semconv.DeploymentEnvironment(tp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(tp.config.OTLPEndpoint)}
	if len(tp.config.OTLPHeaders) > 0 {
		clientOpts = append(clientOpts, otlptracehttp.WithHeaders(tp.config.OTLPHeaders))
	}
	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(clientOpts...))
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}

	tp.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tp.config.SampleRate))),
	)

	otel.SetTracerProvider(tp.traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tp.tracer = tp.traceProvider.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(tp.config.ServiceVersion),
		trace.WithSchemaURL(semconv.SchemaURL),
	)
	return nil
}

func (tp *TelemetryProvider) initMetrics() error {
	var err error

	tp.dispatched, err = tp.meter.Int64Counter(
		"notifyrelay_notifications_dispatched_total",
		metric.WithDescription("Dispatch calls by final state"),
	)
	if err != nil {
		return fmt.Errorf("create dispatched counter: %w", err)
	}

	tp.stageFailures, err = tp.meter.Int64Counter(
		"notifyrelay_stage_failures_total",
		metric.WithDescription("Failures by dispatch stage and error kind"),
	)
	if err != nil {
		return fmt.Errorf("create stage_failures counter: %w", err)
	}

	tp.realtimeWrites, err = tp.meter.Int64Counter(
		"notifyrelay_realtime_deliveries_total",
		metric.WithDescription("Connections written by realtime broadcasts"),
	)
	if err != nil {
		return fmt.Errorf("create realtime_deliveries counter: %w", err)
	}

	tp.dispatchDuration, err = tp.meter.Float64Histogram(
		"notifyrelay_dispatch_duration_seconds",
		metric.WithDescription("Duration of dispatch calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create dispatch_duration histogram: %w", err)
	}
	return nil
}

// TraceOperation creates a new span for an operation
func (tp *TelemetryProvider) TraceOperation(ctx context.Context, operationName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, operationName,
		trace.WithAttributes(attributes...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// TraceDispatch creates the span covering one dispatch call
func (tp *TelemetryProvider) TraceDispatch(ctx context.Context, notificationID, recipientID string) (context.Context, trace.Span) {
	return tp.TraceOperation(ctx, "notifyrelay.dispatch",
		attribute.String("notifyrelay.notification.id", notificationID),
		attribute.String("notifyrelay.recipient.id", recipientID),
	)
}

// RecordDispatch records the final state and duration of a dispatch call
func (tp *TelemetryProvider) RecordDispatch(ctx context.Context, state string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("state", state))
	tp.dispatched.Add(ctx, 1, attrs)
	tp.dispatchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStageFailure records a failure in one dispatch stage
func (tp *TelemetryProvider) RecordStageFailure(ctx context.Context, stage, kind string) {
	tp.stageFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("error_kind", kind),
	))
}

// RecordRealtimeDeliveries records how many connections a broadcast reached
func (tp *TelemetryProvider) RecordRealtimeDeliveries(ctx context.Context, n int) {
	tp.realtimeWrites.Add(ctx, int64(n))
}

// SetSpanError sets an error on the span
func (tp *TelemetryProvider) SetSpanError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span as successful
func (tp *TelemetryProvider) SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// Shutdown flushes and stops the exporting trace provider, if any
func (tp *TelemetryProvider) Shutdown(ctx context.Context) error {
	if tp.traceProvider != nil {
		return tp.traceProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the tracer instance
func (tp *TelemetryProvider) Tracer() trace.Tracer {
	return tp.tracer
}
