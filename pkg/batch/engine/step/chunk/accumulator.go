// Package chunk buffers decoded rows into fixed-capacity batches.
package chunk

import (
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// DefaultCapacity is the batch size used when none is configured.
const DefaultCapacity = 10000

// Accumulator collects rows until a batch is full. It also tracks the enumeration range the
// pending rows cover, including records consumed without a row, so a flushed batch tells the
// cursor exactly how far it may advance. It is not safe for concurrent use.
type Accumulator struct {
	capacity int
	rows     []model.Row
	first    int64
	last     int64
	lastRef  string
	consumed int64
}

// NewAccumulator creates an Accumulator. capacity <= 0 uses DefaultCapacity.
func NewAccumulator(capacity int) *Accumulator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	a := &Accumulator{capacity: capacity}
	a.reset()
	return a
}

// Capacity returns the number of rows per batch.
func (a *Accumulator) Capacity() int {
	return a.capacity
}

// Pending returns the number of rows not yet handed out.
func (a *Accumulator) Pending() int {
	return len(a.rows)
}

// Append adds row. When the batch reaches capacity it is returned and the accumulator starts over.
func (a *Accumulator) Append(row model.Row) (*model.Batch, bool) {
	a.cover(row.Position, row.Source)
	a.rows = append(a.rows, row)
	if len(a.rows) < a.capacity {
		return nil, false
	}
	return a.take(), true
}

// Skip records that ref was consumed without producing a row.
func (a *Accumulator) Skip(ref model.RecordRef) {
	a.cover(ref.Position, ref.ID)
}

// FlushRemaining returns the final partial batch, if it holds any rows.
func (a *Accumulator) FlushRemaining() (*model.Batch, bool) {
	if len(a.rows) == 0 {
		return nil, false
	}
	return a.take(), true
}

// Discard drops pending rows and coverage. It returns the number of rows dropped.
func (a *Accumulator) Discard() int {
	n := len(a.rows)
	a.reset()
	return n
}

func (a *Accumulator) cover(pos int64, id string) {
	if a.first < 0 || pos < a.first {
		a.first = pos
	}
	if pos >= a.last {
		a.last = pos
		a.lastRef = id
	}
	a.consumed++
}

func (a *Accumulator) take() *model.Batch {
	b := &model.Batch{
		Rows:          a.rows,
		Capacity:      a.capacity,
		FirstPosition: a.first,
		LastPosition:  a.last,
		LastRef:       a.lastRef,
		Consumed:      a.consumed,
	}
	a.reset()
	return b
}

func (a *Accumulator) reset() {
	a.rows = make([]model.Row, 0, a.capacity)
	a.first = -1
	a.last = -1
	a.lastRef = ""
	a.consumed = 0
}
