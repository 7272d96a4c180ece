package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// MetricEvent represents a metric event to be recorded asynchronously.
type MetricEvent struct {
	Type      string
	RunID     string
	Partition string
	Summary   *model.RunSummary
	Artifact  model.Artifact
	Name      string            // Stage, operation or duration name
	Status    string            // For decode outcomes
	Reason    string            // For skip and retry reasons
	Duration  time.Duration     // For duration metrics
	Tags      map[string]string // For duration metric tags
	done      chan struct{}     // Closed once a barrier event is reached
}

// Metric event type constants
const (
	MetricEventTypeRunStart = "run_start"
	MetricEventTypeRunEnd   = "run_end"
	MetricEventTypeRead     = "read"
	MetricEventTypeDecode   = "decode"
	MetricEventTypeSkip     = "skip"
	MetricEventTypeRetry    = "retry"
	MetricEventTypeFlush    = "flush"
	MetricEventTypeDuration = "duration"
	metricEventTypeBarrier  = "barrier"
)

// AsyncMetricRecorder asynchronously records metrics by pushing events to a channel
// and processing them in a separate goroutine.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder // The concrete instance that performs actual metric recording
}

// NewAsyncMetricRecorder creates a new asynchronous metric recorder.
// bufferSize: The buffer size for the event queue. If 0 or less, a default value is used.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100 // Default buffer size
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run() // Start the worker goroutine
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

// run is the worker goroutine that reads events from the event queue and processes them with the synchronous recorder.
func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Upon receiving a stop signal, process all remaining events in the queue before exiting.
			remainingEvents := len(r.eventQueue)
			for i := 0; i < remainingEvents; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remainingEvents)
			return
		}
	}
}

// processEvent processes the received metric event.
func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	// The event payload does not carry the caller's context.
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeRunStart:
		r.syncRecorder.RecordRunStart(ctx, event.RunID, event.Partition)
	case MetricEventTypeRunEnd:
		r.syncRecorder.RecordRunEnd(ctx, event.Summary)
	case MetricEventTypeRead:
		r.syncRecorder.RecordRead(ctx)
	case MetricEventTypeDecode:
		r.syncRecorder.RecordDecode(ctx, event.Status)
	case MetricEventTypeSkip:
		r.syncRecorder.RecordSkip(ctx, event.Name, event.Reason)
	case MetricEventTypeRetry:
		r.syncRecorder.RecordRetry(ctx, event.Name, event.Reason)
	case MetricEventTypeFlush:
		r.syncRecorder.RecordFlush(ctx, event.Artifact)
	case MetricEventTypeDuration:
		r.syncRecorder.RecordDuration(ctx, event.Name, event.Duration, event.Tags)
	case metricEventTypeBarrier:
		close(event.done)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close gracefully stops the recorder and processes all remaining events in the queue.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		logger.Debugf("AsyncMetricRecorder: Sending shutdown signal...")
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

// sendEvent sends an event to the queue, logging a warning if the queue is full.
func (r *AsyncMetricRecorder) sendEvent(event MetricEvent) {
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s). Event discarded.", event.Type)
	}
}

func (r *AsyncMetricRecorder) RecordRunStart(ctx context.Context, runID, partition string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunStart, RunID: runID, Partition: partition})
}

func (r *AsyncMetricRecorder) RecordRunEnd(ctx context.Context, summary *model.RunSummary) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRunEnd, Summary: summary})
}

func (r *AsyncMetricRecorder) RecordRead(ctx context.Context) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRead})
}

func (r *AsyncMetricRecorder) RecordDecode(ctx context.Context, status string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeDecode, Status: status})
}

func (r *AsyncMetricRecorder) RecordSkip(ctx context.Context, stage string, reason string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeSkip, Name: stage, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeRetry, Name: operation, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordFlush(ctx context.Context, artifact model.Artifact) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeFlush, Artifact: artifact})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeDuration, Name: name, Duration: duration, Tags: tags})
}

// Flush waits until every queued event is recorded, then flushes the wrapped recorder.
// Unlike the Record methods it blocks while the queue is full.
func (r *AsyncMetricRecorder) Flush(ctx context.Context) error {
	select {
	case <-r.stopCh:
		r.wg.Wait()
		return r.syncRecorder.Flush(ctx)
	default:
	}

	done := make(chan struct{})
	select {
	case r.eventQueue <- MetricEvent{Type: metricEventTypeBarrier, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
	case <-r.stopCh:
		r.wg.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.syncRecorder.Flush(ctx)
}

// Ensures AsyncMetricRecorder implements the metrics.MetricRecorder interface at compile time.
var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

// NewAsyncMetricRecorderWrapper is a helper function for use with fx.Decorate.
// It wraps the recorder when metrics.async_buffer_size is positive and closes the wrapper on shutdown.
func NewAsyncMetricRecorderWrapper(lc fx.Lifecycle, cfg *config.Config, syncRecorder metrics.MetricRecorder) metrics.MetricRecorder {
	bufferSize := cfg.RecordBatch.Metrics.AsyncBufferSize
	if bufferSize <= 0 {
		return syncRecorder
	}
	asyncRecorder := NewAsyncMetricRecorder(bufferSize, syncRecorder)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			asyncRecorder.Close()
			return nil
		},
	})
	logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
	return asyncRecorder
}
