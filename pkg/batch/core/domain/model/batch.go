package model

// Batch is an ordered group of rows awaiting a single flush.
type Batch struct {
	Rows     []Row
	Capacity int
	// Sequence is assigned by the publisher when the batch is named.
	Sequence int64
	// FirstPosition is the lowest enumeration position covered by the batch. -1 if none.
	FirstPosition int64
	// LastPosition is the highest enumeration position covered by the batch,
	// including records that were consumed without producing a row. -1 if none.
	LastPosition int64
	// LastRef is the identifier of the record at LastPosition.
	LastRef string
	// Consumed is the number of records covered, rows plus skipped records.
	Consumed int64
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// EmptyRows returns the number of failure marker rows in the batch.
func (b *Batch) EmptyRows() int {
	n := 0
	for _, r := range b.Rows {
		if r.Empty {
			n++
		}
	}
	return n
}
