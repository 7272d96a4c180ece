package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/recordbatch"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// serviceResource describes the process to the collector.
func serviceResource(serviceName string) *resource.Resource {
	if serviceName == "" {
		serviceName = "recordbatch"
	}
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

// NewOpenTelemetryTracer creates a tracer exporting spans over OTLP (grpc or http).
func NewOpenTelemetryTracer(ctx context.Context, cfg config.TracingConfig) (*OpenTelemetryTracer, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.OTLP.Protocol {
	case "http":
		opts := []otlptracehttp.Option{}
		if cfg.OTLP.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLP.Endpoint))
		}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case "grpc", "":
		opts := []otlptracegrpc.Option{}
		if cfg.OTLP.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint))
		}
		if cfg.OTLP.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol '%s'", cfg.OTLP.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(cfg.ServiceName)),
	)
	logger.Infof("Tracing enabled (OTLP %s, endpoint '%s').", cfg.OTLP.Protocol, cfg.OTLP.Endpoint)
	return NewOpenTelemetryTracerWithProvider(provider), nil
}

// NewOpenTelemetryTracerWithProvider creates a tracer on an existing provider.
func NewOpenTelemetryTracerWithProvider(provider *sdktrace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{provider: provider, tracer: provider.Tracer(instrumentationName)}
}

// StartRunSpan starts the root span of a run.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, runID, partition string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "recordbatch.run", trace.WithAttributes(
		attribute.String("recordbatch.run_id", runID),
		attribute.String("recordbatch.partition", partition),
	))
	return ctx, func() { span.End() }
}

// StartBatchSpan starts a span for one flush.
func (t *OpenTelemetryTracer) StartBatchSpan(ctx context.Context, sequence int64, rows int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "recordbatch.flush", trace.WithAttributes(
		attribute.Int64("recordbatch.sequence", sequence),
		attribute.Int("recordbatch.rows", rows),
	))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span and marks it failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("recordbatch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

// Shutdown flushes pending spans.
func (t *OpenTelemetryTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
