package pipeline

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/format"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/recordbatch/pkg/batch/component/step/writer"
	port "github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/recordbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/recordbatch/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/decode"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/fetch"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/source"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// NewDriverFromConfig validates cfg and assembles a Driver from it. Validation happens before
// any storage connection is opened.
func NewDriverFromConfig(ctx context.Context, cfg *config.Config, storages storage.StorageConnectionResolver, progress repository.ProgressRepository, listeners []port.PipelineListener) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rb := cfg.RecordBatch

	retryFactory := retry.NewDefaultRetryPolicyFactory()
	enumerationPolicy := retryFactory.Create(rb.Retry.Enumeration, rb.Retry.RetryableErrors)
	fetchPolicy := retryFactory.Create(rb.Retry.Fetch, rb.Retry.RetryableErrors)
	sinkPolicy := retryFactory.Create(rb.Retry.Sink, rb.Retry.RetryableErrors)

	catalog, err := decode.CatalogFromConfig(rb.Decode.Fields)
	if err != nil {
		return nil, err
	}
	reader, err := format.Lookup(rb.Decode.Format)
	if err != nil {
		return nil, exception.NewConfigurationError("decode.format: %v", err)
	}
	decoder, err := decode.NewDecoder(reader, catalog, rb.Decode.RecordIndex, rb.Decode.OnFailure)
	if err != nil {
		return nil, err
	}
	encoder, err := writer.NewEncoder(rb.Output)
	if err != nil {
		return nil, exception.NewConfigurationError("output: %v", err)
	}
	if storages == nil {
		return nil, exception.NewConfigurationError("pipeline requires a storage connection resolver")
	}

	runID := incrementer.NewRunIDIncrementer(rb.Pipeline.RunID).GetNext()
	partition := rb.Source.PartitionPrefix

	output, err := storages.ResolveStorageConnection(ctx, rb.Output.StorageRef)
	if err != nil {
		return nil, exception.NewSinkFailure("failed to resolve output storage '"+rb.Output.StorageRef+"'", err, false)
	}
	sink := writer.NewPublisher(output, writer.PublisherOptions{
		StorageRef: rb.Output.StorageRef,
		Bucket:     rb.Output.Bucket,
		Namer: writer.ArtifactNamer{
			Prefix:    rb.Output.Prefix,
			Partition: partition,
			RunID:     runID,
		},
		Encoder:  encoder,
		Columns:  decoder.Columns(),
		SpoolDir: rb.Output.SpoolDir,
		Policy:   sinkPolicy,
	})

	src, err := source.NewRecordSource(ctx, rb.Source, storages, enumerationPolicy)
	if err != nil {
		return nil, err
	}
	fetcher := &fetch.Dispatcher{Local: fetch.LocalFetcher{}}
	if rb.Source.Kind == config.SourceKindRemote {
		conn, err := storages.ResolveStorageConnection(ctx, rb.Source.Remote.StorageRef)
		if err != nil {
			src.Close()
			return nil, exception.NewEnumerationFailure("failed to resolve source storage '"+rb.Source.Remote.StorageRef+"'", err)
		}
		timeout := time.Duration(rb.Pipeline.FetchTimeoutSeconds) * time.Second
		fetcher.Remote = fetch.NewRemoteFetcher(conn, rb.Pipeline.StagingDir, timeout, fetchPolicy)
	}

	d, err := NewDriver(Options{
		RunID:       runID,
		Partition:   partition,
		BatchSize:   rb.Pipeline.BatchSize,
		Workers:     rb.Pipeline.Workers,
		ResumeFrom:  rb.Pipeline.ResumeFrom,
		ResetCursor: rb.Cursor.Reset,
	}, Components{
		Source:    src,
		Fetcher:   fetcher,
		Decoder:   decoder,
		Sink:      sink,
		Progress:  progress,
		Skip:      skip.NewDefaultSkipPolicyFactory().Create(rb.Skip.Limit, rb.Skip.SkippableErrors),
		Listeners: listeners,
	})
	if err != nil {
		src.Close()
		return nil, err
	}
	logger.Debugf("Pipeline driver assembled: source=%s format=%s output=%s://%s (%s).",
		rb.Source.Kind, reader.Name(), rb.Output.StorageRef, rb.Output.Prefix, encoder.Extension())
	return d, nil
}

// DriverParams holds the dependencies of the Fx-provided Driver.
type DriverParams struct {
	fx.In
	Cfg       *config.Config
	Storages  storage.StorageConnectionResolver
	Progress  repository.ProgressRepository
	Listeners []port.PipelineListener `group:"pipeline_listeners"`
}

func newDriverFx(p DriverParams) (*Driver, error) {
	return NewDriverFromConfig(context.Background(), p.Cfg, p.Storages, p.Progress, p.Listeners)
}

// Module provides the *Driver.
var Module = fx.Options(
	fx.Provide(newDriverFx),
)
