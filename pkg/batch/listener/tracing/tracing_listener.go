// Package tracing opens tracer spans around runs and flushes.
package tracing

import (
	"context"
	"sync"

	"go.uber.org/fx"

	port "github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
)

// TracingListener manages one span per run and one child span per flush.
type TracingListener struct {
	port.BasePipelineListener
	tracer metrics.Tracer

	mu       sync.Mutex
	runCtx   context.Context
	endRun   func()
	batchCtx context.Context
	endBatch func()
}

func NewTracingListener(tracer metrics.Tracer) port.PipelineListener {
	return &TracingListener{tracer: tracer}
}

func (l *TracingListener) BeforeRun(ctx context.Context, runID, partition string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runCtx, l.endRun = l.tracer.StartRunSpan(ctx, runID, partition)
}

func (l *TracingListener) AfterRun(ctx context.Context, summary *model.RunSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.endRun == nil {
		return
	}
	if summary.Err != nil {
		l.tracer.RecordError(l.runCtx, "pipeline", summary.Err)
	}
	l.tracer.RecordEvent(l.runCtx, "run_summary", map[string]interface{}{
		"state":               string(summary.FinalState),
		"records_seen":        summary.RecordsSeen,
		"rows_decoded":        summary.RowsDecoded,
		"records_skipped":     summary.RecordsSkipped,
		"artifacts_published": summary.ArtifactsPublished,
		"artifacts_failed":    summary.ArtifactsFailed,
	})
	l.endRun()
	l.runCtx, l.endRun = nil, nil
}

func (l *TracingListener) parent(ctx context.Context) context.Context {
	if l.runCtx != nil {
		return l.runCtx
	}
	return ctx
}

func (l *TracingListener) OnSkipRecord(ctx context.Context, ref model.RecordRef, stage string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracer.RecordEvent(l.parent(ctx), "record_skipped", map[string]interface{}{
		"record": ref.String(),
		"stage":  stage,
		"error":  err.Error(),
	})
}

func (l *TracingListener) BeforeFlush(ctx context.Context, batch *model.Batch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batchCtx, l.endBatch = l.tracer.StartBatchSpan(l.parent(ctx), batch.Sequence, batch.Len())
}

func (l *TracingListener) AfterFlush(ctx context.Context, batch *model.Batch, artifact model.Artifact, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.endBatch == nil {
		return
	}
	if err != nil {
		l.tracer.RecordError(l.batchCtx, "sink", err)
	} else {
		l.tracer.RecordEvent(l.batchCtx, "artifact_published", map[string]interface{}{
			"location": artifact.Location(),
			"rows":     artifact.RowCount,
		})
	}
	l.endBatch()
	l.batchCtx, l.endBatch = nil, nil
}

var _ port.PipelineListener = (*TracingListener)(nil)

// Module contributes the tracing listener to the pipeline listener group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewTracingListener,
		fx.ResultTags(`group:"pipeline_listeners"`),
	)),
)
