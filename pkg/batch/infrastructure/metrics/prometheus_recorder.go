package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// A batch run is too short-lived to be scraped, so Flush writes the registry in the
// node-exporter textfile format instead.
type PrometheusRecorder struct {
	registry     *prometheus.Registry
	textfilePath string

	// Run Metrics
	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec

	// Record Metrics
	recordsRead    prometheus.Counter
	rowsDecoded    *prometheus.CounterVec
	recordsSkipped *prometheus.CounterVec
	retries        *prometheus.CounterVec

	// Artifact Metrics
	artifacts        *prometheus.CounterVec
	artifactRows     prometheus.Counter
	operationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
// textfilePath may be empty, in which case Flush does nothing.
func NewPrometheusRecorder(textfilePath string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry:     registry,
		textfilePath: textfilePath,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recordbatch_run_duration_seconds",
			Help:    "Duration of extraction runs.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"partition", "state"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recordbatch_runs_total",
			Help: "Total number of runs by final state.",
		}, []string{"partition", "state"}),
		recordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recordbatch_records_read_total",
			Help: "Total record refs taken from the source.",
		}),
		rowsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recordbatch_rows_decoded_total",
			Help: "Total decoded records by outcome.",
		}, []string{"status"}), // status: ok, empty, skipped
		recordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recordbatch_records_skipped_total",
			Help: "Total skipped records by stage and reason.",
		}, []string{"stage", "reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recordbatch_retries_total",
			Help: "Total retries by operation and reason.",
		}, []string{"operation", "reason"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recordbatch_artifacts_total",
			Help: "Total flushed artifacts by status.",
		}, []string{"format", "status"}),
		artifactRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recordbatch_artifact_rows_total",
			Help: "Total rows written to published artifacts.",
		}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recordbatch_operation_duration_seconds",
			Help:    "Duration of pipeline operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}

	// Register all metrics with the registry.
	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.recordsRead)
	registry.MustRegister(r.rowsDecoded)
	registry.MustRegister(r.recordsSkipped)
	registry.MustRegister(r.retries)
	registry.MustRegister(r.artifacts)
	registry.MustRegister(r.artifactRows)
	registry.MustRegister(r.operationSeconds)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, runID, partition string) {
	logger.Debugf("Metrics: run '%s' (partition '%s') started.", runID, partition)
}

// RecordRunEnd records the final state and duration of a run.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, summary *model.RunSummary) {
	state := string(summary.FinalState)
	r.runStatusCounter.WithLabelValues(summary.Partition, state).Inc()
	if d := summary.Duration(); d > 0 {
		r.runDurationSeconds.WithLabelValues(summary.Partition, state).Observe(d.Seconds())
	}
	logger.Debugf("Metrics: run '%s' ended in %s. Duration: %s", summary.RunID, state, summary.Duration())
}

func (r *PrometheusRecorder) RecordRead(ctx context.Context) {
	r.recordsRead.Inc()
}

func (r *PrometheusRecorder) RecordDecode(ctx context.Context, status string) {
	r.rowsDecoded.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) RecordSkip(ctx context.Context, stage string, reason string) {
	r.recordsSkipped.WithLabelValues(stage, reason).Inc()
}

func (r *PrometheusRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	r.retries.WithLabelValues(operation, reason).Inc()
}

func (r *PrometheusRecorder) RecordFlush(ctx context.Context, artifact model.Artifact) {
	r.artifacts.WithLabelValues(artifact.Format, string(artifact.Status)).Inc()
	if artifact.Status == model.ArtifactPublished {
		r.artifactRows.Add(float64(artifact.RowCount))
	}
}

// RecordDuration observes duration under the "status" tag, "unknown" when absent.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	status := tags["status"]
	if status == "" {
		status = "unknown"
	}
	r.operationSeconds.WithLabelValues(name, status).Observe(duration.Seconds())
}

// Flush writes the registry to the textfile path.
func (r *PrometheusRecorder) Flush(ctx context.Context) error {
	if r.textfilePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.textfilePath), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.textfilePath, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile '%s': %w", r.textfilePath, err)
	}
	logger.Infof("Metrics written to '%s'.", r.textfilePath)
	return nil
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
