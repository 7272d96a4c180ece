package source

import (
	"context"
	"fmt"
	"io"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const defaultPageSize = 1000

// RemoteSource enumerates object keys page by page. Pages are requested only when the
// previous one has been consumed.
type RemoteSource struct {
	lister     storage.ObjectLister
	bucket     string
	prefix     string
	pageSize   int
	maxRecords int64
	policy     retry.RetryPolicy

	startAfter string
	position   int64
	skip       int64
	produced   int64

	keys      []string
	token     string
	started   bool
	exhausted bool
	pages     int
}

// Verify interfaces
var _ RecordSource = (*RemoteSource)(nil)

// NewRemoteSource creates a RemoteSource listing cfg.Prefix+partition in cfg.Bucket.
func NewRemoteSource(lister storage.ObjectLister, cfg config.RemoteSourceConfig, partition string, maxRecords int64, policy retry.RetryPolicy) *RemoteSource {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &RemoteSource{
		lister:     lister,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix + partition,
		pageSize:   pageSize,
		maxRecords: maxRecords,
		policy:     policy,
	}
}

// Resume starts the listing after cursor.LastRef. Listings are lexicographic, so every key
// covered by the cursor sorts at or before it. A cursor without LastRef, as produced by
// pipeline.resume_from, lists from the start and drops the first RecordsConsumed keys.
func (s *RemoteSource) Resume(cursor model.ProgressCursor) error {
	if s.started {
		return fmt.Errorf("remote source: Resume called after enumeration started")
	}
	if cursor.RecordsConsumed < 0 {
		return fmt.Errorf("remote source: negative resume position %d", cursor.RecordsConsumed)
	}
	if cursor.LastRef == "" {
		s.skip = cursor.RecordsConsumed
		return nil
	}
	s.startAfter = cursor.LastRef
	s.position = cursor.RecordsConsumed
	return nil
}

// Next returns the next key, requesting another page when the current one is consumed.
func (s *RemoteSource) Next(ctx context.Context) (model.RecordRef, error) {
	if s.maxRecords > 0 && s.produced >= s.maxRecords {
		return model.RecordRef{}, io.EOF
	}
	for {
		for len(s.keys) == 0 {
			if s.exhausted {
				return model.RecordRef{}, io.EOF
			}
			if err := ctx.Err(); err != nil {
				return model.RecordRef{}, err
			}
			if err := s.fetchPage(ctx); err != nil {
				return model.RecordRef{}, err
			}
		}

		key := s.keys[0]
		s.keys = s.keys[1:]
		pos := s.position
		s.position++
		if pos < s.skip {
			continue
		}
		s.produced++
		return model.RecordRef{Kind: model.RecordKindRemote, ID: key, Bucket: s.bucket, Position: pos}, nil
	}
}

func (s *RemoteSource) fetchPage(ctx context.Context) error {
	s.started = true
	var page storage.Page
	err := retry.Do(ctx, s.policy, "list page", func(ctx context.Context, attempt int) error {
		p, err := s.lister.ListPage(ctx, s.bucket, s.prefix, s.startAfter, s.token, s.pageSize)
		if err != nil {
			return exception.NewEnumerationFailure(fmt.Sprintf("failed to list '%s/%s' (page %d)", s.bucket, s.prefix, s.pages+1), err)
		}
		page = p
		return nil
	})
	if err != nil {
		return err
	}

	s.pages++
	s.keys = page.Keys
	s.token = page.NextToken
	if !page.Truncated {
		s.exhausted = true
	} else if page.NextToken == "" {
		// Backends without continuation tokens page by the last key seen.
		if len(page.Keys) == 0 {
			s.exhausted = true
		} else {
			s.startAfter = page.Keys[len(page.Keys)-1]
		}
	}
	logger.Debugf("Remote source: page %d of '%s/%s' returned %d keys (truncated=%t).", s.pages, s.bucket, s.prefix, len(page.Keys), page.Truncated)
	return nil
}

// Close releases nothing; the lister's connection is owned by its provider.
func (s *RemoteSource) Close() error {
	s.exhausted = true
	s.keys = nil
	return nil
}
