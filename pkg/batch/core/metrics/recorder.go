package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// Decode outcome labels passed to RecordDecode.
const (
	DecodeStatusOK      = "ok"
	DecodeStatusEmpty   = "empty"
	DecodeStatusSkipped = "skipped"
)

// MetricRecorder is an abstract interface for recording metrics of an extraction run.
//
// This interface lets the pipeline report to different metrics backends
// (e.g., Prometheus, OpenTelemetry Metrics) without depending on them.
type MetricRecorder interface {
	// RecordRunStart records the start of a run over one partition.
	RecordRunStart(ctx context.Context, runID, partition string)

	// RecordRunEnd records the end of a run. summary carries the final state and counts.
	RecordRunEnd(ctx context.Context, summary *model.RunSummary)

	// RecordRead records one record ref taken from the source.
	RecordRead(ctx context.Context)

	// RecordDecode records the outcome of decoding one record.
	//
	// status: one of DecodeStatusOK, DecodeStatusEmpty, DecodeStatusSkipped.
	RecordDecode(ctx context.Context, status string)

	// RecordSkip records a record that was skipped.
	//
	// stage: the pipeline stage that failed (e.g., "fetch", "decode").
	// reason: the failure kind (e.g., "FetchFailure").
	RecordSkip(ctx context.Context, stage string, reason string)

	// RecordRetry records one retry of an operation.
	//
	// operation: the retried operation (e.g., "list", "fetch", "upload").
	// reason: the failure kind of the error that caused the retry.
	RecordRetry(ctx context.Context, operation string, reason string)

	// RecordFlush records one flushed batch, published or failed.
	RecordFlush(ctx context.Context, artifact model.Artifact)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "fetch", "publish").
	// tags: Additional tags. Example: `{"status": "success"}`
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)

	// Flush exports what has been recorded so far. It is called once when a run ends.
	Flush(ctx context.Context) error
}
