package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// OpenTelemetryRecorder is an OpenTelemetry Metrics implementation of metrics.MetricRecorder.
type OpenTelemetryRecorder struct {
	provider *sdkmetric.MeterProvider

	runs           metric.Int64Counter
	runDuration    metric.Float64Histogram
	recordsRead    metric.Int64Counter
	rowsDecoded    metric.Int64Counter
	recordsSkipped metric.Int64Counter
	retries        metric.Int64Counter
	artifacts      metric.Int64Counter
	artifactRows   metric.Int64Counter
	operation      metric.Float64Histogram
}

// NewOpenTelemetryRecorder creates a recorder pushing to an OTLP collector.
func NewOpenTelemetryRecorder(ctx context.Context, cfg config.OTLPConfig, serviceName string) (*OpenTelemetryRecorder, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch cfg.Protocol {
	case "http":
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol '%s'", cfg.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	logger.Infof("OpenTelemetry metrics enabled (OTLP %s, endpoint '%s').", cfg.Protocol, cfg.Endpoint)
	return NewOpenTelemetryRecorderWithReader(sdkmetric.NewPeriodicReader(exporter), serviceName)
}

// NewOpenTelemetryRecorderWithReader creates a recorder whose measurements are collected by reader.
func NewOpenTelemetryRecorderWithReader(reader sdkmetric.Reader, serviceName string) (*OpenTelemetryRecorder, error) {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(serviceResource(serviceName)),
	)
	meter := provider.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{provider: provider}

	var err error
	if r.runs, err = meter.Int64Counter("recordbatch.runs", metric.WithDescription("Runs by final state.")); err != nil {
		return nil, err
	}
	if r.runDuration, err = meter.Float64Histogram("recordbatch.run.duration", metric.WithUnit("s"), metric.WithDescription("Duration of runs.")); err != nil {
		return nil, err
	}
	if r.recordsRead, err = meter.Int64Counter("recordbatch.records.read", metric.WithDescription("Record refs taken from the source.")); err != nil {
		return nil, err
	}
	if r.rowsDecoded, err = meter.Int64Counter("recordbatch.rows.decoded", metric.WithDescription("Decoded records by outcome.")); err != nil {
		return nil, err
	}
	if r.recordsSkipped, err = meter.Int64Counter("recordbatch.records.skipped", metric.WithDescription("Skipped records by stage and reason.")); err != nil {
		return nil, err
	}
	if r.retries, err = meter.Int64Counter("recordbatch.retries", metric.WithDescription("Retries by operation and reason.")); err != nil {
		return nil, err
	}
	if r.artifacts, err = meter.Int64Counter("recordbatch.artifacts", metric.WithDescription("Flushed artifacts by status.")); err != nil {
		return nil, err
	}
	if r.artifactRows, err = meter.Int64Counter("recordbatch.artifact.rows", metric.WithDescription("Rows in published artifacts.")); err != nil {
		return nil, err
	}
	if r.operation, err = meter.Float64Histogram("recordbatch.operation.duration", metric.WithUnit("s"), metric.WithDescription("Duration of pipeline operations.")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OpenTelemetryRecorder) RecordRunStart(ctx context.Context, runID, partition string) {}

func (r *OpenTelemetryRecorder) RecordRunEnd(ctx context.Context, summary *model.RunSummary) {
	attrs := metric.WithAttributes(
		attribute.String("partition", summary.Partition),
		attribute.String("state", string(summary.FinalState)),
	)
	r.runs.Add(ctx, 1, attrs)
	r.runDuration.Record(ctx, summary.Duration().Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordRead(ctx context.Context) {
	r.recordsRead.Add(ctx, 1)
}

func (r *OpenTelemetryRecorder) RecordDecode(ctx context.Context, status string) {
	r.rowsDecoded.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (r *OpenTelemetryRecorder) RecordSkip(ctx context.Context, stage string, reason string) {
	r.recordsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage), attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	r.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation), attribute.String("reason", reason)))
}

func (r *OpenTelemetryRecorder) RecordFlush(ctx context.Context, artifact model.Artifact) {
	r.artifacts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", artifact.Format),
		attribute.String("status", string(artifact.Status)),
	))
	if artifact.Status == model.ArtifactPublished {
		r.artifactRows.Add(ctx, int64(artifact.RowCount))
	}
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("operation", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operation.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// Flush forces the reader to export.
func (r *OpenTelemetryRecorder) Flush(ctx context.Context) error {
	return r.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the meter provider.
func (r *OpenTelemetryRecorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
