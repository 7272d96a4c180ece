// Package fetch materializes records into local staging storage and guarantees its release.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// Fetcher stages one record locally. Errors are FetchFailures.
type Fetcher interface {
	Fetch(ctx context.Context, ref model.RecordRef) (*model.StagedRecord, error)
}

// With fetches ref, runs fn on the staged record and releases it on every exit path,
// including a panic in fn. A release error is joined to fn's error.
func With(ctx context.Context, f Fetcher, ref model.RecordRef, fn func(*model.StagedRecord) error) (err error) {
	staged, err := f.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := staged.Release(); releaseErr != nil {
			logger.Warnf("Failed to release staged record '%s': %v", ref, releaseErr)
			err = multierror.Append(err, releaseErr).ErrorOrNil()
		}
	}()
	return fn(staged)
}

// LocalFetcher stages local records in place. Release never deletes the source file.
type LocalFetcher struct{}

// Fetch checks that the file is still there.
func (LocalFetcher) Fetch(ctx context.Context, ref model.RecordRef) (*model.StagedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(ref.ID); err != nil {
		return nil, exception.NewFetchFailure(ref.String(), err)
	}
	return model.NewStagedRecord(ref, ref.ID, nil), nil
}

// RemoteFetcher downloads objects into temp files under a staging directory.
type RemoteFetcher struct {
	store      storage.StorageExecutor
	stagingDir string
	timeout    time.Duration
	policy     retry.RetryPolicy
}

// NewRemoteFetcher creates a RemoteFetcher. An empty stagingDir uses the OS temp directory;
// a zero timeout disables the per-transfer deadline.
func NewRemoteFetcher(store storage.StorageExecutor, stagingDir string, timeout time.Duration, policy retry.RetryPolicy) *RemoteFetcher {
	return &RemoteFetcher{store: store, stagingDir: stagingDir, timeout: timeout, policy: policy}
}

// Fetch downloads ref with the fetch retry policy. Every failed attempt removes its temp file.
func (f *RemoteFetcher) Fetch(ctx context.Context, ref model.RecordRef) (*model.StagedRecord, error) {
	var path string
	err := retry.Do(ctx, f.policy, "fetch "+ref.String(), func(ctx context.Context, attempt int) error {
		p, err := f.download(ctx, ref)
		if errors.Is(err, storage.ErrObjectNotFound) {
			be := exception.NewBatchError("fetch", fmt.Sprintf("record '%s' does not exist", ref), err, true, false)
			be.Kind = exception.ErrFetch
			return be
		}
		if err != nil {
			return exception.NewFetchFailure(ref.String(), err)
		}
		path = p
		return nil
	})
	if err != nil {
		if _, ok := exception.AsBatchError(err); !ok {
			err = exception.NewFetchFailure(ref.String(), err)
		}
		return nil, err
	}
	return model.NewStagedRecord(ref, path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}), nil
}

func (f *RemoteFetcher) download(ctx context.Context, ref model.RecordRef) (path string, err error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	tmp, err := os.CreateTemp(f.stagingDir, "record-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	body, err := f.store.Download(ctx, ref.Bucket, ref.ID)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: body})
	closeErr := body.Close()
	if err != nil {
		return "", err
	}
	if closeErr != nil {
		return "", closeErr
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	logger.Debugf("Staged '%s' (%d bytes) at '%s'.", ref, n, tmp.Name())
	return tmp.Name(), nil
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Dispatcher routes refs to the fetcher for their kind.
type Dispatcher struct {
	Local  Fetcher
	Remote Fetcher
}

// Fetch delegates by ref.Kind.
func (d *Dispatcher) Fetch(ctx context.Context, ref model.RecordRef) (*model.StagedRecord, error) {
	switch ref.Kind {
	case model.RecordKindLocal:
		if d.Local != nil {
			return d.Local.Fetch(ctx, ref)
		}
	case model.RecordKindRemote:
		if d.Remote != nil {
			return d.Remote.Fetch(ctx, ref)
		}
	}
	return nil, exception.NewFetchFailure(ref.String(), fmt.Errorf("no fetcher for record kind '%s'", ref.Kind))
}
