package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// runPool reads refs on a dispatcher goroutine and runs fetch-decode spans on opts.Workers
// workers. The calling goroutine owns the accumulator, the sink and the cursor: it takes
// results in completion order and re-sequences them by position, so batches hold rows in
// enumeration order and the cursor always covers a contiguous prefix of the enumeration.
func (d *Driver) runPool(ctx context.Context) error {
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(poolCtx)

	refs := make(chan model.RecordRef, d.opts.Workers)
	results := make(chan outcome, d.opts.Workers)

	g.Go(func() error {
		defer close(refs)
		for {
			ref, err := d.c.Source.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case refs <- ref:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var workers sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for ref := range refs {
				o := d.process(gctx, ref)
				select {
				case results <- o:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	pending := make(map[int64]outcome)
	next := d.cursor.RecordsConsumed
	var ownerErr error
	stopped := false
	for o := range results {
		if stopped {
			continue
		}
		// Once the group is cancelled only the group's error counts; results still in
		// flight are left for the next run.
		if gctx.Err() != nil {
			stopped = true
			continue
		}
		pending[o.ref.Position] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := d.consume(ctx, ready); err != nil {
				ownerErr = err
				stopped = true
				cancel()
				break
			}
		}
	}
	groupErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if ownerErr != nil && !errors.Is(ownerErr, context.Canceled) {
		return ownerErr
	}
	if groupErr != nil {
		return groupErr
	}
	if ownerErr != nil {
		return ownerErr
	}
	if stopped {
		return fmt.Errorf("pipeline: worker pool of run '%s' stopped before the source was drained", d.opts.RunID)
	}
	if len(pending) > 0 {
		return fmt.Errorf("pipeline: %d results are out of sequence; expected position %d next", len(pending), next)
	}
	logger.Debugf("Pipeline run '%s': worker pool drained.", d.opts.RunID)
	return nil
}
