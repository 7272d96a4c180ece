package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const defaultBufferSize = 64

var errWalkStopped = errors.New("walk stopped")

type walkItem struct {
	path string
	err  error
}

// LocalSource walks a directory tree in a producer goroutine. filepath.WalkDir visits
// entries in lexical order per directory, so an unchanged tree always yields the same order.
type LocalSource struct {
	cfg        config.LocalSourceConfig
	partition  string
	maxRecords int64
	bufferSize int

	// skip is the number of leading refs already covered by the cursor; lastRef must be the last of them.
	skip    int64
	lastRef string

	once     sync.Once
	items    chan walkItem
	cancel   context.CancelFunc
	done     chan struct{}
	position int64
	produced int64
	closed   bool
}

// Verify interfaces
var _ RecordSource = (*LocalSource)(nil)

// NewLocalSource creates a LocalSource. partition is joined to cfg.Root; a partition that is not
// a directory name matches every path starting with it. maxRecords <= 0 disables the cap.
func NewLocalSource(cfg config.LocalSourceConfig, partition string, maxRecords int64, bufferSize int) *LocalSource {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &LocalSource{
		cfg:        cfg,
		partition:  partition,
		maxRecords: maxRecords,
		bufferSize: bufferSize,
		done:       make(chan struct{}),
	}
}

// Resume skips the first cursor.RecordsConsumed refs. Next verifies that the last skipped
// ref is cursor.LastRef.
func (s *LocalSource) Resume(cursor model.ProgressCursor) error {
	if s.items != nil {
		return fmt.Errorf("local source: Resume called after enumeration started")
	}
	if cursor.RecordsConsumed < 0 {
		return fmt.Errorf("local source: negative resume position %d", cursor.RecordsConsumed)
	}
	s.skip = cursor.RecordsConsumed
	s.lastRef = cursor.LastRef
	return nil
}

// Next returns the next regular file accepted by the extension filter.
func (s *LocalSource) Next(ctx context.Context) (model.RecordRef, error) {
	if s.closed {
		return model.RecordRef{}, io.EOF
	}
	s.once.Do(func() { s.start(ctx) })

	for {
		if s.maxRecords > 0 && s.produced >= s.maxRecords {
			return model.RecordRef{}, io.EOF
		}

		if err := ctx.Err(); err != nil {
			return model.RecordRef{}, err
		}

		var item walkItem
		var ok bool
		select {
		case <-ctx.Done():
			return model.RecordRef{}, ctx.Err()
		case item, ok = <-s.items:
		}
		if !ok {
			if s.position < s.skip {
				return model.RecordRef{}, exception.NewEnumerationFailure(
					fmt.Sprintf("source changed since cursor was written: %d records found, cursor covers %d", s.position, s.skip), nil)
			}
			return model.RecordRef{}, io.EOF
		}
		if item.err != nil {
			return model.RecordRef{}, exception.NewEnumerationFailure("failed to walk local source", item.err)
		}

		pos := s.position
		s.position++
		if pos < s.skip {
			if pos == s.skip-1 && s.lastRef != "" && item.path != s.lastRef {
				return model.RecordRef{}, exception.NewEnumerationFailure(
					fmt.Sprintf("source changed since cursor was written: expected '%s' at position %d, found '%s'", s.lastRef, pos, item.path), nil)
			}
			continue
		}

		s.produced++
		return model.RecordRef{Kind: model.RecordKindLocal, ID: item.path, Position: pos}, nil
	}
}

// Close stops the walker and waits for it to exit.
func (s *LocalSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

func (s *LocalSource) start(ctx context.Context) {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.items = make(chan walkItem, s.bufferSize)
	go func() {
		defer close(s.done)
		defer close(s.items)
		s.walk(wctx)
	}()
}

func (s *LocalSource) walk(ctx context.Context) {
	emit := func(item walkItem) bool {
		select {
		case s.items <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if _, err := os.Stat(s.cfg.Root); err != nil {
		emit(walkItem{err: err})
		return
	}
	walkRoot, match := s.walkRoot()
	if _, err := os.Stat(walkRoot); errors.Is(err, fs.ErrNotExist) {
		logger.Infof("Local source: partition '%s' matches nothing under '%s'.", s.partition, s.cfg.Root)
		return
	}

	var buffered []string
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return errWalkStopped
		}
		if !d.Type().IsRegular() || !s.accepts(path) {
			return nil
		}
		if match != "" && !strings.HasPrefix(path, match) {
			return nil
		}
		if s.cfg.Sort {
			buffered = append(buffered, path)
			return nil
		}
		if !emit(walkItem{path: path}) {
			return errWalkStopped
		}
		return nil
	})
	if errors.Is(err, errWalkStopped) {
		return
	}
	if err != nil {
		emit(walkItem{err: err})
		return
	}

	if s.cfg.Sort {
		sort.Strings(buffered)
		for _, path := range buffered {
			if !emit(walkItem{path: path}) {
				return
			}
		}
	}
}

// walkRoot returns the directory to walk and, when the partition names a path prefix rather
// than a directory, the prefix every accepted path must start with.
func (s *LocalSource) walkRoot() (string, string) {
	if s.partition == "" {
		return s.cfg.Root, ""
	}
	target := filepath.Join(s.cfg.Root, s.partition)
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target, ""
	}
	return filepath.Dir(target), target
}

func (s *LocalSource) accepts(path string) bool {
	if len(s.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range s.cfg.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
