// Package logging provides a pipeline listener that reports driver events through the logger.
package logging

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// LoggingListener logs run and flush events at INFO, record failures at WARN
// and per-record progress at DEBUG.
type LoggingListener struct{}

func NewLoggingListener() port.PipelineListener {
	return &LoggingListener{}
}

func (l *LoggingListener) BeforeRun(ctx context.Context, runID, partition string) {
	logger.Infof("RunListener: BeforeRun - RunID: %s, Partition: '%s'", runID, partition)
}

func (l *LoggingListener) AfterRun(ctx context.Context, summary *model.RunSummary) {
	if summary.Err != nil {
		logger.Errorf("RunListener: AfterRun - RunID: %s, %s, Duration: %s, Error: %v", summary.RunID, summary, summary.Duration(), summary.Err)
		return
	}
	logger.Infof("RunListener: AfterRun - RunID: %s, %s, Duration: %s", summary.RunID, summary, summary.Duration())
}

func (l *LoggingListener) OnStateChange(ctx context.Context, from, to model.RunState) {
	logger.Debugf("StateListener: %s -> %s", from, to)
}

func (l *LoggingListener) OnRecordRead(ctx context.Context, ref model.RecordRef) {
	logger.Debugf("RecordListener: OnRecordRead - #%d %s", ref.Position, ref)
}

func (l *LoggingListener) OnRecordDecoded(ctx context.Context, row model.Row) {
	if row.Empty {
		logger.Debugf("RecordListener: OnRecordDecoded - #%d %s (empty: %s)", row.Position, row.Source, row.FailureReason)
		return
	}
	logger.Debugf("RecordListener: OnRecordDecoded - #%d %s", row.Position, row.Source)
}

func (l *LoggingListener) OnDecodeFailure(ctx context.Context, ref model.RecordRef, reason string, err error) {
	logger.Warnf("RecordListener: OnDecodeFailure - %s: %s: %v", ref, reason, err)
}

func (l *LoggingListener) OnSkipRecord(ctx context.Context, ref model.RecordRef, stage string, err error) {
	logger.Warnf("SkipListener: OnSkipRecord - Skipping %s after %s failure (%s): %v", ref, stage, exception.KindName(err), err)
}

func (l *LoggingListener) OnRetry(ctx context.Context, operation string, attempt int, err error) {
	logger.Debugf("RetryListener: OnRetry - %s (attempt %d): %v", operation, attempt, err)
}

func (l *LoggingListener) BeforeFlush(ctx context.Context, batch *model.Batch) {
	logger.Debugf("BatchListener: BeforeFlush - %d rows, positions %d..%d", batch.Len(), batch.FirstPosition, batch.LastPosition)
}

func (l *LoggingListener) AfterFlush(ctx context.Context, batch *model.Batch, artifact model.Artifact, err error) {
	if err != nil {
		logger.Errorf("BatchListener: AfterFlush - artifact %s %s (spool: %s): %v", artifact.Name, artifact.Status, artifact.LocalPath, err)
		return
	}
	logger.Infof("BatchListener: AfterFlush - published %s (%d rows, %d empty)", artifact.Location(), artifact.RowCount, batch.EmptyRows())
}

var _ port.PipelineListener = (*LoggingListener)(nil)

// Module contributes the logging listener to the pipeline listener group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLoggingListener,
		fx.ResultTags(`group:"pipeline_listeners"`),
	)),
)
