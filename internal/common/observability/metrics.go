package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "artifact-compiler/pipeline"

// Observability owns the otel meter and tracer providers of the process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	compileCounter otelmetric.Int64Counter
	compileLatency otelmetric.Float64Histogram
}

// Option configures New.
type Option func(*options)

type options struct {
	spanProcessors []sdktrace.SpanProcessor
	prometheus     bool
}

// WithSpanProcessor registers an additional span processor.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessors = append(o.spanProcessors, p) }
}

// WithoutPrometheus skips the prometheus reader, e.g. in tests that build
// more than one instance.
func WithoutPrometheus() Option {
	return func(o *options) { o.prometheus = false }
}

func New(serviceName string, opts ...Option) (*Observability, error) {
	o := options{prometheus: true}
	for _, opt := range opts {
		opt(&o)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	meterOpts := []metric.Option{metric.WithResource(res)}
	if o.prometheus {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, err
		}
		meterOpts = append(meterOpts, metric.WithReader(exporter))
	}
	mp := metric.NewMeterProvider(meterOpts...)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, p := range o.spanProcessors {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	meter := mp.Meter(instrumentationName)

	counter, err := meter.Int64Counter(
		"compiler.outcomes",
		otelmetric.WithDescription("Pipeline outcomes by artifact kind and status"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"compiler.duration",
		otelmetric.WithDescription("End-to-end compile duration including retries"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider:  mp,
		tracerProvider: tp,
		tracer:         tp.Tracer(instrumentationName),
		compileCounter: counter,
		compileLatency: latency,
	}, nil
}

// Install makes the providers the process-wide otel defaults.
func (o *Observability) Install() {
	otel.SetMeterProvider(o.meterProvider)
	otel.SetTracerProvider(o.tracerProvider)
}

// Tracer returns the pipeline tracer.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

// StartSpan starts a child span named after a pipeline stage.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordCompile(ctx context.Context, artifactKind, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("artifact_kind", artifactKind),
		attribute.String("status", status),
	)
	o.compileCounter.Add(ctx, 1, attrs)
	o.compileLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := o.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return o.meterProvider.Shutdown(ctx)
}
