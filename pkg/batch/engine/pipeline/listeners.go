package pipeline

import (
	"context"

	port "github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// listenerSet fans every event out to its members in registration order.
// OnRetry may be called from worker goroutines; every other event comes from the owner goroutine.
type listenerSet []port.PipelineListener

var _ port.PipelineListener = listenerSet(nil)

func (s listenerSet) BeforeRun(ctx context.Context, runID, partition string) {
	for _, l := range s {
		l.BeforeRun(ctx, runID, partition)
	}
}

func (s listenerSet) AfterRun(ctx context.Context, summary *model.RunSummary) {
	for _, l := range s {
		l.AfterRun(ctx, summary)
	}
}

func (s listenerSet) OnStateChange(ctx context.Context, from, to model.RunState) {
	for _, l := range s {
		l.OnStateChange(ctx, from, to)
	}
}

func (s listenerSet) OnRecordRead(ctx context.Context, ref model.RecordRef) {
	for _, l := range s {
		l.OnRecordRead(ctx, ref)
	}
}

func (s listenerSet) OnRecordDecoded(ctx context.Context, row model.Row) {
	for _, l := range s {
		l.OnRecordDecoded(ctx, row)
	}
}

func (s listenerSet) OnDecodeFailure(ctx context.Context, ref model.RecordRef, reason string, err error) {
	for _, l := range s {
		l.OnDecodeFailure(ctx, ref, reason, err)
	}
}

func (s listenerSet) OnSkipRecord(ctx context.Context, ref model.RecordRef, stage string, err error) {
	for _, l := range s {
		l.OnSkipRecord(ctx, ref, stage, err)
	}
}

func (s listenerSet) OnRetry(ctx context.Context, operation string, attempt int, err error) {
	for _, l := range s {
		l.OnRetry(ctx, operation, attempt, err)
	}
}

func (s listenerSet) BeforeFlush(ctx context.Context, batch *model.Batch) {
	for _, l := range s {
		l.BeforeFlush(ctx, batch)
	}
}

func (s listenerSet) AfterFlush(ctx context.Context, batch *model.Batch, artifact model.Artifact, err error) {
	for _, l := range s {
		l.AfterFlush(ctx, batch, artifact, err)
	}
}
