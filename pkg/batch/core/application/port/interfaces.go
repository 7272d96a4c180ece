// Package port defines the listener interfaces through which the pipeline driver reports
// its progress. Implementations adapt these events to logging, metrics and tracing.
package port

import (
	"context"

	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// RunListener is an interface for handling run lifecycle events.
type RunListener interface {
	// BeforeRun is called after the configuration is validated, before the cursor is loaded.
	BeforeRun(ctx context.Context, runID, partition string)
	// AfterRun is called once the run reached DONE or FAILED.
	AfterRun(ctx context.Context, summary *model.RunSummary)
}

// StateListener observes driver state transitions.
type StateListener interface {
	OnStateChange(ctx context.Context, from, to model.RunState)
}

// RecordListener is an interface for handling per-record events.
type RecordListener interface {
	// OnRecordRead is called for every ref taken from the source.
	OnRecordRead(ctx context.Context, ref model.RecordRef)
	// OnRecordDecoded is called for every row appended to a batch, including failure markers.
	OnRecordDecoded(ctx context.Context, row model.Row)
	// OnDecodeFailure is called when a record could not be decoded.
	OnDecodeFailure(ctx context.Context, ref model.RecordRef, reason string, err error)
}

// SkipListener is an interface for handling record skip events.
type SkipListener interface {
	// OnSkipRecord is called after a record was skipped.
	// stage is the pipeline stage that failed ("fetch" or "decode").
	OnSkipRecord(ctx context.Context, ref model.RecordRef, stage string, err error)
}

// RetryListener is an interface for handling retry events.
type RetryListener interface {
	// OnRetry is called before operation is attempted again.
	OnRetry(ctx context.Context, operation string, attempt int, err error)
}

// BatchListener is an interface for handling flush events.
type BatchListener interface {
	// BeforeFlush is called just before a batch is handed to the sink.
	BeforeFlush(ctx context.Context, batch *model.Batch)
	// AfterFlush is called after the sink returned, successfully or not.
	AfterFlush(ctx context.Context, batch *model.Batch, artifact model.Artifact, err error)
}

// PipelineListener groups every listener interface.
type PipelineListener interface {
	RunListener
	StateListener
	RecordListener
	SkipListener
	RetryListener
	BatchListener
}

// BasePipelineListener implements PipelineListener with no-ops.
// Embed it to handle only the events of interest.
type BasePipelineListener struct{}

func (BasePipelineListener) BeforeRun(ctx context.Context, runID, partition string)     {}
func (BasePipelineListener) AfterRun(ctx context.Context, summary *model.RunSummary)    {}
func (BasePipelineListener) OnStateChange(ctx context.Context, from, to model.RunState) {}
func (BasePipelineListener) OnRecordRead(ctx context.Context, ref model.RecordRef)      {}
func (BasePipelineListener) OnRecordDecoded(ctx context.Context, row model.Row)         {}
func (BasePipelineListener) OnDecodeFailure(ctx context.Context, ref model.RecordRef, reason string, err error) {
}
func (BasePipelineListener) OnSkipRecord(ctx context.Context, ref model.RecordRef, stage string, err error) {
}
func (BasePipelineListener) OnRetry(ctx context.Context, operation string, attempt int, err error) {}
func (BasePipelineListener) BeforeFlush(ctx context.Context, batch *model.Batch)                   {}
func (BasePipelineListener) AfterFlush(ctx context.Context, batch *model.Batch, artifact model.Artifact, err error) {
}

var _ PipelineListener = BasePipelineListener{}

// Define context key for RetryListener propagation into retried operations.
type contextKey string

const RetryListenerKey contextKey = "retryListener"

// GetContextWithRetryListener stores a RetryListener in the Context.
func GetContextWithRetryListener(ctx context.Context, l RetryListener) context.Context {
	return context.WithValue(ctx, RetryListenerKey, l)
}

// GetRetryListenerFromContext retrieves a RetryListener from the Context. Returns nil if not found.
func GetRetryListenerFromContext(ctx context.Context) RetryListener {
	if l, ok := ctx.Value(RetryListenerKey).(RetryListener); ok {
		return l
	}
	return nil
}
