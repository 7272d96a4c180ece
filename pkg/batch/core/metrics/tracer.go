package metrics

import (
	"context"
)

// Tracer is an abstract interface for distributed tracing.
// This interface provides functionality to integrate with tracing systems like OpenTelemetry,
// so runs and the batches they flush show up as spans.
type Tracer interface {
	// StartRunSpan starts a Span covering one run.
	//
	// Returns: A context with the new Span set, and a function to end the Span.
	StartRunSpan(ctx context.Context, runID, partition string) (context.Context, func())

	// StartBatchSpan starts a Span for encoding and publishing one batch.
	//
	// ctx: The parent context (typically a context with a run span).
	StartBatchSpan(ctx context.Context, sequence int64, rows int) (context.Context, func())

	// RecordError records an error in the current Span.
	//
	// module: The pipeline module where the error occurred (e.g., "fetch", "sink").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current Span.
	//
	// attributes: Additional attributes, e.g. `map[string]interface{}{"record": "A/a.h5"}`
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
