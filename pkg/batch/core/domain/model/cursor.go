package model

import "time"

// ProgressCursor records how far a run has advanced. It only ever covers fully flushed batches.
type ProgressCursor struct {
	RunID string `json:"run_id"`
	// Partition is the partition prefix the cursor belongs to ("" for the whole source).
	Partition string `json:"partition"`
	// RecordsConsumed is the enumeration position of the next unprocessed record.
	RecordsConsumed int64 `json:"records_consumed"`
	// LastRef is the identifier of the last record covered by a flushed batch.
	LastRef string `json:"last_ref"`
	// NextSequence is the sequence number the next artifact will use.
	NextSequence       int64     `json:"next_sequence"`
	ArtifactsPublished int64     `json:"artifacts_published"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsZero reports whether the cursor carries no progress.
func (c ProgressCursor) IsZero() bool {
	return c.RecordsConsumed == 0 && c.LastRef == "" && c.NextSequence == 0
}

// Advance returns a copy of the cursor moved past a published batch.
func (c ProgressCursor) Advance(b *Batch, a Artifact, now time.Time) ProgressCursor {
	next := c
	if b.LastPosition >= 0 {
		next.RecordsConsumed = b.LastPosition + 1
		next.LastRef = b.LastRef
	}
	next.NextSequence = a.Sequence + 1
	next.ArtifactsPublished++
	next.UpdatedAt = now
	return next
}
