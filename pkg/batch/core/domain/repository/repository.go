// Package repository defines persistence of run progress: the progress cursor of each
// partition and the ledger of published artifacts.
package repository

import (
	"context"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// CursorRepository stores one ProgressCursor per partition.
type CursorRepository interface {
	// LoadCursor returns the stored cursor of partition. ok is false when none is stored.
	LoadCursor(ctx context.Context, partition string) (cursor model.ProgressCursor, ok bool, err error)
	// SaveCursor replaces the stored cursor of cursor.Partition. The write is atomic.
	SaveCursor(ctx context.Context, cursor model.ProgressCursor) error
	// ResetCursor deletes the stored cursor of partition.
	ResetCursor(ctx context.Context, partition string) error
}

// ArtifactLedger records every artifact a run produced, published or failed.
type ArtifactLedger interface {
	RecordArtifact(ctx context.Context, runID, partition string, artifact model.Artifact) error
	// ListArtifacts returns the artifacts of partition ordered by sequence.
	ListArtifacts(ctx context.Context, partition string) ([]model.Artifact, error)
}

// ProgressRepository combines cursor and ledger storage.
type ProgressRepository interface {
	CursorRepository
	ArtifactLedger
	Close() error
}
