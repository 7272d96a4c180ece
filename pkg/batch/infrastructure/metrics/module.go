// Package metrics provides the Prometheus and OpenTelemetry implementations of the
// metrics.MetricRecorder and metrics.Tracer interfaces.
package metrics

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
)

// Metric backends accepted by metrics.backend.
const (
	BackendPrometheus = "prometheus"
	BackendOTel       = "otel"
	BackendNone       = "none"
)

// NewMetricRecorder builds the recorder selected by cfg.Backend.
func NewMetricRecorder(ctx context.Context, cfg config.MetricsConfig, serviceName string) (metrics.MetricRecorder, error) {
	switch cfg.Backend {
	case BackendPrometheus:
		return NewPrometheusRecorder(cfg.TextfilePath), nil
	case BackendOTel:
		return NewOpenTelemetryRecorder(ctx, cfg.OTLP, serviceName)
	case BackendNone, "":
		return metrics.NewNoOpMetricRecorder(), nil
	default:
		return nil, fmt.Errorf("unknown metrics backend '%s'", cfg.Backend)
	}
}

// NewTracer builds an OpenTelemetry tracer when tracing is enabled, a no-op tracer otherwise.
func NewTracer(ctx context.Context, cfg config.TracingConfig) (metrics.Tracer, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	return NewOpenTelemetryTracer(ctx, cfg)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func newMetricRecorderFx(lc fx.Lifecycle, cfg *config.Config) (metrics.MetricRecorder, error) {
	rb := cfg.RecordBatch
	recorder, err := NewMetricRecorder(context.Background(), rb.Metrics, rb.Tracing.ServiceName)
	if err != nil {
		return nil, err
	}
	if s, ok := recorder.(shutdowner); ok {
		lc.Append(fx.Hook{OnStop: s.Shutdown})
	}
	return recorder, nil
}

func newTracerFx(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tracer, err := NewTracer(context.Background(), cfg.RecordBatch.Tracing)
	if err != nil {
		return nil, err
	}
	if s, ok := tracer.(shutdowner); ok {
		lc.Append(fx.Hook{OnStop: s.Shutdown})
	}
	return tracer, nil
}

// Module provides the configured metrics.MetricRecorder and metrics.Tracer.
var Module = fx.Options(
	fx.Provide(newMetricRecorderFx),
	fx.Provide(newTracerFx),
)
