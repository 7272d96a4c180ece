package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, runID, partition string)      {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, summary *model.RunSummary)      {}
func (r *NoOpMetricRecorder) RecordRead(ctx context.Context)                                   {}
func (r *NoOpMetricRecorder) RecordDecode(ctx context.Context, status string)                  {}
func (r *NoOpMetricRecorder) RecordSkip(ctx context.Context, stage string, reason string)      {}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, operation string, reason string) {}
func (r *NoOpMetricRecorder) RecordFlush(ctx context.Context, artifact model.Artifact)         {}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

// Flush does nothing.
func (r *NoOpMetricRecorder) Flush(ctx context.Context) error { return nil }

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// --- NoOpTracer ---

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

// StartRunSpan returns ctx unchanged.
func (t *NoOpTracer) StartRunSpan(ctx context.Context, runID, partition string) (context.Context, func()) {
	return ctx, func() {}
}

// StartBatchSpan returns ctx unchanged.
func (t *NoOpTracer) StartBatchSpan(ctx context.Context, sequence int64, rows int) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
