// Package pipeline drives a run: it pulls refs from the source, stages and decodes each
// record, accumulates rows into batches, publishes full batches and advances the progress
// cursor after every published artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tigerroll/recordbatch/pkg/batch/component/step/writer"
	port "github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/recordbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/decode"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/fetch"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/source"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/chunk"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const (
	moduleName = "pipeline"

	stageFetch  = "fetch"
	stageDecode = "decode"
)

// Components are the collaborators a Driver orchestrates.
type Components struct {
	Source   source.RecordSource
	Fetcher  fetch.Fetcher
	Decoder  *decode.Decoder
	Sink     writer.Sink
	Progress repository.ProgressRepository
	// Skip decides whether a record that failed to fetch may be skipped. Nil forbids skipping.
	Skip      skip.SkipPolicy
	Listeners []port.PipelineListener
}

// Options holds the per-run settings of a Driver.
type Options struct {
	RunID string
	// Partition keys the progress cursor and is part of every artifact name.
	Partition string
	BatchSize int
	// Workers > 1 runs fetch and decode on a worker pool.
	Workers int
	// ResumeFrom forces the start position. -1 uses the stored cursor.
	ResumeFrom int64
	// ResetCursor discards the stored cursor before the run starts.
	ResetCursor bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Driver runs the state machine of one run. A Driver is used once.
type Driver struct {
	opts      Options
	c         Components
	listeners listenerSet

	state   model.RunState
	acc     *chunk.Accumulator
	cursor  model.ProgressCursor
	summary *model.RunSummary
	started bool
}

// NewDriver validates opts and c. Every problem is a ConfigurationError.
func NewDriver(opts Options, c Components) (*Driver, error) {
	switch {
	case c.Source == nil:
		return nil, exception.NewConfigurationError("pipeline requires a record source")
	case c.Fetcher == nil:
		return nil, exception.NewConfigurationError("pipeline requires a fetcher")
	case c.Decoder == nil:
		return nil, exception.NewConfigurationError("pipeline requires a decoder")
	case c.Sink == nil:
		return nil, exception.NewConfigurationError("pipeline requires a sink")
	case c.Progress == nil:
		return nil, exception.NewConfigurationError("pipeline requires a progress repository")
	case opts.RunID == "":
		return nil, exception.NewConfigurationError("pipeline requires a run id")
	case opts.BatchSize <= 0:
		return nil, exception.NewConfigurationError("pipeline batch size must be positive, got %d", opts.BatchSize)
	case opts.ResumeFrom < -1:
		return nil, exception.NewConfigurationError("pipeline resume position must be -1 or a position, got %d", opts.ResumeFrom)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if c.Skip == nil {
		c.Skip = skip.NewDefaultSkipPolicyFactory().Create(0, nil)
	}
	listeners := make(listenerSet, 0, len(c.Listeners))
	for _, l := range c.Listeners {
		if l != nil {
			listeners = append(listeners, l)
		}
	}
	return &Driver{
		opts:      opts,
		c:         c,
		listeners: listeners,
		state:     model.StateInit,
		acc:       chunk.NewAccumulator(opts.BatchSize),
	}, nil
}

// State returns the current state.
func (d *Driver) State() model.RunState {
	return d.state
}

// Run executes the run to DONE or FAILED. The summary is returned in both cases; err is the
// fatal condition that ended a FAILED run.
func (d *Driver) Run(ctx context.Context) (*model.RunSummary, error) {
	if d.started {
		return nil, fmt.Errorf("pipeline: driver for run '%s' has already run", d.opts.RunID)
	}
	d.started = true
	d.summary = &model.RunSummary{
		RunID:      d.opts.RunID,
		Partition:  d.opts.Partition,
		StartTime:  d.opts.Now(),
		FinalState: model.StateInit,
	}

	ctx = port.GetContextWithRetryListener(ctx, d.listeners)
	logger.Infof("Pipeline run '%s' starting (partition '%s', batch size %d, workers %d).",
		d.opts.RunID, d.opts.Partition, d.opts.BatchSize, d.opts.Workers)
	d.listeners.BeforeRun(ctx, d.opts.RunID, d.opts.Partition)

	err := d.run(ctx)
	if closeErr := d.c.Source.Close(); closeErr != nil {
		logger.Warnf("Pipeline run '%s': failed to close record source: %v", d.opts.RunID, closeErr)
	}
	d.finish(ctx, err)
	return d.summary, err
}

func (d *Driver) run(ctx context.Context) error {
	if err := d.initialize(ctx); err != nil {
		return err
	}
	if err := d.transition(ctx, model.StateEnumerating); err != nil {
		return err
	}

	var err error
	if d.opts.Workers > 1 {
		err = d.runPool(ctx)
	} else {
		err = d.runSequential(ctx)
	}
	if err != nil {
		return err
	}
	return d.drain(ctx)
}

// initialize loads the cursor and positions the source and the sink after it.
func (d *Driver) initialize(ctx context.Context) error {
	if d.opts.ResetCursor {
		if err := d.c.Progress.ResetCursor(ctx, d.opts.Partition); err != nil {
			return exception.NewBatchError(moduleName, "failed to reset progress cursor", err, false, false)
		}
		logger.Infof("Pipeline run '%s': progress cursor of partition '%s' reset.", d.opts.RunID, d.opts.Partition)
	}

	cursor, found, err := d.c.Progress.LoadCursor(ctx, d.opts.Partition)
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to load progress cursor", err, false, false)
	}
	if !found {
		cursor = model.ProgressCursor{Partition: d.opts.Partition}
	} else {
		logger.Infof("Pipeline run '%s': resuming partition '%s' at position %d (last ref '%s', next sequence %d).",
			d.opts.RunID, d.opts.Partition, cursor.RecordsConsumed, cursor.LastRef, cursor.NextSequence)
	}
	if d.opts.ResumeFrom >= 0 {
		logger.Infof("Pipeline run '%s': starting at forced position %d.", d.opts.RunID, d.opts.ResumeFrom)
		cursor.RecordsConsumed = d.opts.ResumeFrom
		cursor.LastRef = ""
	}
	d.cursor = cursor

	d.c.Sink.SetNextSequence(cursor.NextSequence)
	if err := d.c.Source.Resume(cursor); err != nil {
		return exception.NewEnumerationFailure("failed to position record source", err)
	}
	return nil
}

func (d *Driver) runSequential(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref, err := d.c.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if err := d.transition(ctx, model.StateFetching); err != nil {
			return err
		}
		if err := d.consume(ctx, d.process(ctx, ref)); err != nil {
			return err
		}
	}
}

// outcome is the result of one fetch-decode span. interrupted is set when the span's
// context ended before the record was fully processed; such a record is not counted and
// the cursor must not pass it.
type outcome struct {
	ref         model.RecordRef
	fetchErr    error
	result      decode.Result
	interrupted error
}

// process stages ref, decodes it and releases the staged copy before returning.
// It is safe to call from several goroutines.
func (d *Driver) process(ctx context.Context, ref model.RecordRef) outcome {
	o := outcome{ref: ref}
	decoded := false
	err := fetch.With(ctx, d.c.Fetcher, ref, func(staged *model.StagedRecord) error {
		o.result = d.c.Decoder.Decode(ctx, staged)
		decoded = true
		return nil
	})
	// A release error after a successful decode is logged by fetch.With and does not
	// invalidate the row.
	switch {
	case decoded && o.result.Interrupted != nil:
		o.interrupted = o.result.Interrupted
	case !decoded && ctx.Err() != nil:
		// Transfer errors caused by cancellation are not fetch failures.
		o.interrupted = ctx.Err()
	case !decoded:
		o.fetchErr = err
		if o.fetchErr == nil {
			o.fetchErr = exception.NewFetchFailure(ref.String(), errors.New("record was not staged"))
		}
	}
	return o
}

// consume applies the skip and failure policies to o and appends its row. It runs on the
// owner goroutine only.
func (d *Driver) consume(ctx context.Context, o outcome) error {
	if o.interrupted != nil {
		logger.Debugf("Pipeline run '%s': record '%s' was interrupted and is left for the next run.", d.opts.RunID, o.ref)
		return o.interrupted
	}
	if d.state != model.StateFetching {
		if err := d.transition(ctx, model.StateFetching); err != nil {
			return err
		}
	}
	d.summary.RecordsSeen++
	d.listeners.OnRecordRead(ctx, o.ref)

	if o.fetchErr != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return d.skipFetch(ctx, o)
	}

	if err := d.transition(ctx, model.StateDecoding); err != nil {
		return err
	}
	if !o.result.OK() {
		d.summary.DecodeFailures++
		f := o.result.Failure
		d.listeners.OnDecodeFailure(ctx, f.Ref, f.Reason, f.Err)
	}
	row, ok := d.c.Decoder.RowFor(o.result)

	if err := d.transition(ctx, model.StateAccumulating); err != nil {
		return err
	}
	if !ok {
		d.summary.RecordsSkipped++
		d.acc.Skip(o.ref)
		d.listeners.OnSkipRecord(ctx, o.ref, stageDecode, o.result.Failure.Err)
		return d.transition(ctx, model.StateEnumerating)
	}

	if row.Empty {
		d.summary.RowsEmpty++
	} else {
		d.summary.RowsDecoded++
	}
	d.listeners.OnRecordDecoded(ctx, row)

	if batch, full := d.acc.Append(row); full {
		if err := d.transition(ctx, model.StateFlushing); err != nil {
			return err
		}
		if err := d.flush(ctx, batch); err != nil {
			return err
		}
	}
	return d.transition(ctx, model.StateEnumerating)
}

func (d *Driver) skipFetch(ctx context.Context, o outcome) error {
	d.summary.FetchFailures++
	if !d.c.Skip.ShouldSkip(o.fetchErr) {
		if !d.c.Skip.CanSkip() {
			return exception.NewBatchError(moduleName,
				fmt.Sprintf("skip limit %d reached; record '%s' could not be fetched", d.c.Skip.GetSkipLimit(), o.ref), o.fetchErr, false, false)
		}
		return o.fetchErr
	}
	d.c.Skip.IncrementSkipCount()
	d.summary.RecordsSkipped++
	d.acc.Skip(o.ref)
	d.listeners.OnSkipRecord(ctx, o.ref, stageFetch, o.fetchErr)
	return d.transition(ctx, model.StateEnumerating)
}

// drain flushes the final partial batch.
func (d *Driver) drain(ctx context.Context) error {
	if err := d.transition(ctx, model.StateDraining); err != nil {
		return err
	}
	if batch, ok := d.acc.FlushRemaining(); ok {
		if err := d.transition(ctx, model.StateFlushing); err != nil {
			return err
		}
		if err := d.flush(ctx, batch); err != nil {
			return err
		}
	}
	return d.transition(ctx, model.StateDone)
}

// flush publishes batch, then records the artifact and advances the cursor. A failed publish
// leaves the cursor where it was.
func (d *Driver) flush(ctx context.Context, batch *model.Batch) error {
	batch.Sequence = d.c.Sink.NextSequence()
	d.listeners.BeforeFlush(ctx, batch)
	artifact, err := d.c.Sink.Publish(ctx, batch)
	d.listeners.AfterFlush(ctx, batch, artifact, err)
	d.summary.Artifacts = append(d.summary.Artifacts, artifact)

	// Bookkeeping for an artifact that already exists must not be lost to a cancelled run.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		d.summary.ArtifactsFailed++
		if artifact.LocalPath != "" {
			d.recordArtifact(persistCtx, artifact)
		}
		return err
	}
	d.summary.ArtifactsPublished++
	d.recordArtifact(persistCtx, artifact)

	next := d.cursor.Advance(batch, artifact, d.opts.Now())
	next.RunID = d.opts.RunID
	next.Partition = d.opts.Partition
	if err := d.c.Progress.SaveCursor(persistCtx, next); err != nil {
		return exception.NewBatchError(moduleName,
			fmt.Sprintf("artifact '%s' was published but the progress cursor could not be saved", artifact.Location()), err, false, false)
	}
	d.cursor = next
	return nil
}

func (d *Driver) recordArtifact(ctx context.Context, artifact model.Artifact) {
	if err := d.c.Progress.RecordArtifact(ctx, d.opts.RunID, d.opts.Partition, artifact); err != nil {
		logger.Warnf("Pipeline run '%s': failed to record artifact '%s' in the ledger: %v", d.opts.RunID, artifact.Name, err)
	}
}

// transition moves the state machine. An illegal transition is a programming error.
func (d *Driver) transition(ctx context.Context, to model.RunState) error {
	from := d.state
	if !model.CanTransition(from, to) {
		return fmt.Errorf("pipeline: illegal state transition %s -> %s", from, to)
	}
	d.state = to
	d.listeners.OnStateChange(ctx, from, to)
	return nil
}

// finish moves a failed run to FAILED, discards unflushed rows and reports the summary.
func (d *Driver) finish(ctx context.Context, err error) {
	if err != nil {
		if n := d.acc.Discard(); n > 0 {
			logger.Warnf("Pipeline run '%s': discarded %d unflushed rows; they will be processed again on resume.", d.opts.RunID, n)
		}
		if !d.state.IsTerminal() {
			from := d.state
			d.state = model.StateFailed
			d.listeners.OnStateChange(ctx, from, model.StateFailed)
		}
		d.summary.Err = err
	}
	d.summary.FinalState = d.state
	d.summary.EndTime = d.opts.Now()

	if err != nil {
		logger.Errorf("Pipeline run '%s' failed: %s: %v", d.opts.RunID, d.summary, err)
	} else {
		logger.Infof("Pipeline run '%s' finished: %s", d.opts.RunID, d.summary)
	}
	d.listeners.AfterRun(context.WithoutCancel(ctx), d.summary)
}
