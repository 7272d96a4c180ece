package sql

import (
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func fromDomainCursor(c model.ProgressCursor) *CursorEntity {
	return &CursorEntity{
		PartitionKey:       c.Partition,
		RunID:              c.RunID,
		RecordsConsumed:    c.RecordsConsumed,
		LastRef:            c.LastRef,
		NextSequence:       c.NextSequence,
		ArtifactsPublished: c.ArtifactsPublished,
		UpdatedAt:          timePtr(c.UpdatedAt),
	}
}

func toDomainCursor(e *CursorEntity) model.ProgressCursor {
	return model.ProgressCursor{
		RunID:              e.RunID,
		Partition:          e.PartitionKey,
		RecordsConsumed:    e.RecordsConsumed,
		LastRef:            e.LastRef,
		NextSequence:       e.NextSequence,
		ArtifactsPublished: e.ArtifactsPublished,
		UpdatedAt:          timeVal(e.UpdatedAt),
	}
}

func fromDomainArtifact(runID, partition string, a model.Artifact, now time.Time) *ArtifactEntity {
	return &ArtifactEntity{
		ID:           uuid.NewString(),
		RunID:        runID,
		PartitionKey: partition,
		Name:         a.Name,
		StorageRef:   a.StorageRef,
		Bucket:       a.Bucket,
		ObjectKey:    a.Key,
		Format:       a.Format,
		RowCount:     a.RowCount,
		SequenceNo:   a.Sequence,
		Status:       string(a.Status),
		LocalPath:    a.LocalPath,
		PublishedAt:  timePtr(a.PublishedAt),
		CreatedAt:    timePtr(now),
	}
}

func toDomainArtifact(e *ArtifactEntity) model.Artifact {
	return model.Artifact{
		Name:        e.Name,
		StorageRef:  e.StorageRef,
		Bucket:      e.Bucket,
		Key:         e.ObjectKey,
		Format:      e.Format,
		RowCount:    e.RowCount,
		Sequence:    e.SequenceNo,
		Status:      model.ArtifactStatus(e.Status),
		LocalPath:   e.LocalPath,
		PublishedAt: timeVal(e.PublishedAt),
	}
}
