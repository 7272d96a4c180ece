// Package writer serializes batches into artifacts and publishes them to storage.
package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// Sink publishes a batch and returns the resulting artifact.
type Sink interface {
	// Publish writes batch under the next sequence number. On failure the returned artifact
	// has Status failed and, when the batch was encoded, LocalPath set to the kept spool file.
	Publish(ctx context.Context, batch *model.Batch) (model.Artifact, error)
	// SetNextSequence sets the sequence number of the next artifact.
	SetNextSequence(seq int64)
	// NextSequence returns the sequence number the next Publish will use.
	NextSequence() int64
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	StorageRef string
	Bucket     string
	Namer      ArtifactNamer
	Encoder    Encoder
	Columns    []model.Column
	SpoolDir   string
	Policy     retry.RetryPolicy
	// Now is used for PublishedAt. Defaults to time.Now.
	Now func() time.Time
}

// Publisher names, encodes, spools and uploads batches. It never overwrites an existing object.
type Publisher struct {
	store storage.StorageExecutor
	opts  PublisherOptions
	next  int64
}

// Verify interfaces
var _ Sink = (*Publisher)(nil)

// NewPublisher creates a Publisher writing to store.
func NewPublisher(store storage.StorageExecutor, opts PublisherOptions) *Publisher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Namer.Extension == "" && opts.Encoder != nil {
		opts.Namer.Extension = opts.Encoder.Extension()
	}
	return &Publisher{store: store, opts: opts}
}

// SetNextSequence sets the sequence number of the next artifact.
func (p *Publisher) SetNextSequence(seq int64) {
	p.next = seq
}

// NextSequence returns the sequence number of the next artifact.
func (p *Publisher) NextSequence() int64 {
	return p.next
}

// Publish checks the destination for a collision, encodes batch into the spool directory
// and uploads the spool file with the sink retry policy.
func (p *Publisher) Publish(ctx context.Context, batch *model.Batch) (model.Artifact, error) {
	seq := p.next
	batch.Sequence = seq
	key := p.opts.Namer.Key(seq)
	artifact := model.Artifact{
		Name:       p.opts.Namer.Name(seq),
		StorageRef: p.opts.StorageRef,
		Bucket:     p.opts.Bucket,
		Key:        key,
		Format:     p.opts.Encoder.Extension(),
		RowCount:   batch.Len(),
		Sequence:   seq,
		Status:     model.ArtifactFailed,
	}

	if err := p.checkCollision(ctx, key); err != nil {
		return artifact, err
	}

	spool, err := p.spool(batch, key)
	if err != nil {
		return artifact, err
	}
	artifact.LocalPath = spool

	if err := p.upload(ctx, spool, key); err != nil {
		logger.Errorf("Artifact '%s' could not be published; encoded batch kept at '%s': %v", artifact.Location(), spool, err)
		return artifact, err
	}

	if err := os.Remove(spool); err != nil {
		logger.Warnf("Failed to remove spool file '%s': %v", spool, err)
	}
	artifact.LocalPath = ""
	artifact.Status = model.ArtifactPublished
	artifact.PublishedAt = p.opts.Now()
	p.next = seq + 1
	logger.Infof("Published artifact '%s' (%d rows, sequence %d).", artifact.Location(), artifact.RowCount, seq)
	return artifact, nil
}

func (p *Publisher) checkCollision(ctx context.Context, key string) error {
	var exists bool
	err := retry.Do(ctx, p.opts.Policy, "check "+key, func(ctx context.Context, attempt int) error {
		ok, err := p.store.Exists(ctx, p.opts.Bucket, key)
		if err != nil {
			return exception.NewSinkFailure(fmt.Sprintf("failed to check artifact '%s'", key), err, true)
		}
		exists = ok
		return nil
	})
	if err != nil {
		return err
	}
	if exists {
		return collision(key, nil)
	}
	return nil
}

// spool encodes batch into a file under the spool directory and returns its path.
func (p *Publisher) spool(batch *model.Batch, key string) (path string, err error) {
	if err := os.MkdirAll(p.opts.SpoolDir, 0o755); err != nil {
		return "", exception.NewSinkFailure("failed to create spool directory", err, false)
	}
	// A spool file kept by an earlier failed run is never reused.
	f, err := os.CreateTemp(p.opts.SpoolDir, strings.ReplaceAll(key, "/", "_")+".*")
	if err != nil {
		return "", exception.NewSinkFailure(fmt.Sprintf("failed to create spool file for '%s'", key), err, false)
	}
	path = f.Name()
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	if err := p.opts.Encoder.Encode(batch.Rows, p.opts.Columns, f); err != nil {
		f.Close()
		return "", exception.NewSinkFailure(fmt.Sprintf("failed to encode artifact '%s'", key), err, false)
	}
	if err := f.Close(); err != nil {
		return "", exception.NewSinkFailure(fmt.Sprintf("failed to write spool file for '%s'", key), err, false)
	}
	return path, nil
}

func (p *Publisher) upload(ctx context.Context, spool, key string) error {
	return retry.Do(ctx, p.opts.Policy, "upload "+key, func(ctx context.Context, attempt int) error {
		f, err := os.Open(spool)
		if err != nil {
			return exception.NewSinkFailure(fmt.Sprintf("failed to open spool file '%s'", spool), err, false)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return exception.NewSinkFailure(fmt.Sprintf("failed to stat spool file '%s'", spool), err, false)
		}

		err = p.store.Upload(ctx, p.opts.Bucket, key, f, info.Size(), p.opts.Encoder.ContentType())
		if errors.Is(err, storage.ErrObjectExists) {
			return collision(key, err)
		}
		if err != nil {
			return exception.NewSinkFailure(fmt.Sprintf("failed to upload artifact '%s' (attempt %d)", key, attempt), err, true)
		}
		return nil
	})
}

func collision(key string, cause error) error {
	if cause == nil {
		cause = exception.ErrArtifactExists
	} else {
		cause = fmt.Errorf("%w: %w", exception.ErrArtifactExists, cause)
	}
	return exception.NewSinkFailure(fmt.Sprintf("artifact name collision: '%s' already exists", key), cause, false)
}
