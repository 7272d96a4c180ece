package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/recordbatch/pkg/batch/listener/tracing"
)

func TestTracingListener_NestsFlushSpansUnderRun(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tracer := metrics.NewOpenTelemetryTracerWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	l := tracing.NewTracingListener(tracer)
	ctx := context.Background()

	l.BeforeRun(ctx, "run-1", "A")
	b1 := &model.Batch{Sequence: 0}
	l.BeforeFlush(ctx, b1)
	l.AfterFlush(ctx, b1, model.Artifact{StorageRef: "output", Key: "rows/part-000000.csv"}, nil)
	b2 := &model.Batch{Sequence: 1}
	l.BeforeFlush(ctx, b2)
	l.AfterFlush(ctx, b2, model.Artifact{Status: model.ArtifactFailed}, errors.New("upload failed"))
	l.AfterRun(ctx, &model.RunSummary{FinalState: model.StateFailed, Err: errors.New("upload failed")})

	spans := sr.Ended()
	require.Len(t, spans, 3)
	run := spans[2]
	assert.Equal(t, "recordbatch.run", run.Name())
	for _, s := range spans[:2] {
		assert.Equal(t, "recordbatch.flush", s.Name())
		assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID())
	}
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}
