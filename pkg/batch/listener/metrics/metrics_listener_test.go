package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	coremetrics "github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/recordbatch/pkg/batch/listener/metrics"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordRunStart(ctx context.Context, runID, partition string) {
	m.Called(runID, partition)
}
func (m *mockRecorder) RecordRunEnd(ctx context.Context, summary *model.RunSummary) {
	m.Called(summary.FinalState)
}
func (m *mockRecorder) RecordRead(ctx context.Context)                  { m.Called() }
func (m *mockRecorder) RecordDecode(ctx context.Context, status string) { m.Called(status) }
func (m *mockRecorder) RecordSkip(ctx context.Context, stage string, reason string) {
	m.Called(stage, reason)
}
func (m *mockRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	m.Called(operation, reason)
}
func (m *mockRecorder) RecordFlush(ctx context.Context, artifact model.Artifact) {
	m.Called(artifact.Status)
}
func (m *mockRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	m.Called(name, tags["status"])
}
func (m *mockRecorder) Flush(ctx context.Context) error { return m.Called().Error(0) }

var _ coremetrics.MetricRecorder = (*mockRecorder)(nil)

func TestMetricsListener(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	rec.On("RecordRunStart", "run-1", "A").Once()
	rec.On("RecordRead").Twice()
	rec.On("RecordDecode", coremetrics.DecodeStatusOK).Once()
	rec.On("RecordDecode", coremetrics.DecodeStatusEmpty).Once()
	rec.On("RecordDecode", coremetrics.DecodeStatusSkipped).Once()
	rec.On("RecordSkip", "decode", exception.DecodeFailure).Once()
	rec.On("RecordSkip", "fetch", "unknown").Once()
	rec.On("RecordRetry", "fetch", exception.FetchFailure).Once()
	rec.On("RecordFlush", model.ArtifactPublished).Once()
	rec.On("RecordDuration", "flush", "success").Once()
	rec.On("RecordRunEnd", model.StateDone).Once()
	rec.On("Flush").Return(nil).Once()

	l := metrics.NewMetricsListener(rec)
	ref := model.RecordRef{ID: "a.h5"}
	l.BeforeRun(ctx, "run-1", "A")
	l.OnRecordRead(ctx, ref)
	l.OnRecordRead(ctx, ref)
	l.OnRecordDecoded(ctx, model.Row{})
	l.OnRecordDecoded(ctx, model.Row{Empty: true})
	l.OnSkipRecord(ctx, ref, "decode", exception.NewDecodeFailure("a.h5", "bad", nil))
	l.OnSkipRecord(ctx, ref, "fetch", errors.New("plain"))
	l.OnRetry(ctx, "fetch bucket/a.h5", 1, exception.NewFetchFailure("a.h5", errors.New("timeout")))
	batch := &model.Batch{}
	l.BeforeFlush(ctx, batch)
	l.AfterFlush(ctx, batch, model.Artifact{Status: model.ArtifactPublished}, nil)
	l.AfterRun(ctx, &model.RunSummary{FinalState: model.StateDone})

	rec.AssertExpectations(t)
}

func TestAsyncMetricRecorder_FlushDrainsQueue(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("RecordRead").Times(5)
	rec.On("Flush").Return(nil).Twice()

	async := metrics.NewAsyncMetricRecorder(10, rec)
	for i := 0; i < 5; i++ {
		async.RecordRead(context.Background())
	}
	require.NoError(t, async.Flush(context.Background()))
	rec.AssertNumberOfCalls(t, "RecordRead", 5)

	async.Close()
	async.Close()
	require.NoError(t, async.Flush(context.Background()))
	rec.AssertExpectations(t)
}

func TestAsyncMetricRecorderWrapper_Disabled(t *testing.T) {
	rec := &mockRecorder{}
	cfg := config.NewConfig()
	got := metrics.NewAsyncMetricRecorderWrapper(nil, cfg, rec)
	assert.Same(t, rec, got)
}
