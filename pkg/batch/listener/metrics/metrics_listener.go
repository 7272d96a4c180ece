// Package metrics adapts pipeline listener events to a metrics.MetricRecorder.
package metrics

import (
	"context"
	"strings"
	"time"

	port "github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// MetricsListener forwards driver events to the recorder and flushes it when the run ends.
type MetricsListener struct {
	port.BasePipelineListener
	recorder   metrics.MetricRecorder
	flushStart time.Time
}

func NewMetricsListener(recorder metrics.MetricRecorder) port.PipelineListener {
	return &MetricsListener{recorder: recorder}
}

func reason(err error) string {
	if name := exception.KindName(err); name != "" {
		return name
	}
	return "unknown"
}

// operationName reduces a retried operation such as "fetch bucket/key" to "fetch".
func operationName(operation string) string {
	if i := strings.IndexByte(operation, ' '); i > 0 {
		return operation[:i]
	}
	return operation
}

func (l *MetricsListener) BeforeRun(ctx context.Context, runID, partition string) {
	l.recorder.RecordRunStart(ctx, runID, partition)
}

func (l *MetricsListener) AfterRun(ctx context.Context, summary *model.RunSummary) {
	l.recorder.RecordRunEnd(ctx, summary)
	if err := l.recorder.Flush(ctx); err != nil {
		logger.Warnf("MetricsListener: failed to flush metrics: %v", err)
	}
}

func (l *MetricsListener) OnRecordRead(ctx context.Context, ref model.RecordRef) {
	l.recorder.RecordRead(ctx)
}

func (l *MetricsListener) OnRecordDecoded(ctx context.Context, row model.Row) {
	if row.Empty {
		l.recorder.RecordDecode(ctx, metrics.DecodeStatusEmpty)
		return
	}
	l.recorder.RecordDecode(ctx, metrics.DecodeStatusOK)
}

func (l *MetricsListener) OnSkipRecord(ctx context.Context, ref model.RecordRef, stage string, err error) {
	if stage == "decode" {
		l.recorder.RecordDecode(ctx, metrics.DecodeStatusSkipped)
	}
	l.recorder.RecordSkip(ctx, stage, reason(err))
}

func (l *MetricsListener) OnRetry(ctx context.Context, operation string, attempt int, err error) {
	l.recorder.RecordRetry(ctx, operationName(operation), reason(err))
}

// BeforeFlush is only called from the driver's owner goroutine.
func (l *MetricsListener) BeforeFlush(ctx context.Context, batch *model.Batch) {
	l.flushStart = time.Now()
}

func (l *MetricsListener) AfterFlush(ctx context.Context, batch *model.Batch, artifact model.Artifact, err error) {
	l.recorder.RecordFlush(ctx, artifact)
	status := "success"
	if err != nil {
		status = "failure"
	}
	if !l.flushStart.IsZero() {
		l.recorder.RecordDuration(ctx, "flush", time.Since(l.flushStart), map[string]string{"status": status})
	}
}

var _ port.PipelineListener = (*MetricsListener)(nil)
