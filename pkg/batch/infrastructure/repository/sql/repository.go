// Package sql stores progress cursors and the artifact ledger in a relational database via GORM.
package sql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

const module = "cursor"

// GormProgressRepository implements repository.ProgressRepository on a named database connection.
type GormProgressRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the name of the connection under recordbatch.database.
	dbName string
	now    func() time.Time
}

// Verify interfaces
var _ repository.ProgressRepository = (*GormProgressRepository)(nil)

// NewGormProgressRepository creates a new instance of GormProgressRepository.
func NewGormProgressRepository(dbResolver database.DBConnectionResolver, dbName string) *GormProgressRepository {
	return &GormProgressRepository{dbResolver: dbResolver, dbName: dbName, now: time.Now}
}

func (r *GormProgressRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

// wrap converts a query error, pointing at missing migrations when the table is absent.
func wrap(conn database.DBConnection, msg string, err error) error {
	if conn.IsTableNotExistError(err) {
		msg += " (schema missing; migrations have not been applied)"
	}
	return exception.NewBatchError(module, msg, err, false, false)
}

func (r *GormProgressRepository) LoadCursor(ctx context.Context, partition string) (model.ProgressCursor, bool, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return model.ProgressCursor{}, false, err
	}

	var entities []CursorEntity
	err = conn.GormDB().WithContext(ctx).
		Where("partition_key = ?", partition).
		Limit(1).
		Find(&entities).Error
	if err != nil {
		return model.ProgressCursor{}, false, wrap(conn, fmt.Sprintf("failed to load cursor of partition '%s'", partition), err)
	}
	if len(entities) == 0 {
		return model.ProgressCursor{}, false, nil
	}
	return toDomainCursor(&entities[0]), true, nil
}

// SaveCursor upserts the cursor row in a single statement.
func (r *GormProgressRepository) SaveCursor(ctx context.Context, cursor model.ProgressCursor) error {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}

	entity := fromDomainCursor(cursor)
	err = conn.GormDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partition_key"}},
			UpdateAll: true,
		}).
		Create(entity).Error
	if err != nil {
		return wrap(conn, fmt.Sprintf("failed to save cursor of partition '%s'", cursor.Partition), err)
	}
	return nil
}

func (r *GormProgressRepository) ResetCursor(ctx context.Context, partition string) error {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	err = conn.GormDB().WithContext(ctx).
		Where("partition_key = ?", partition).
		Delete(&CursorEntity{}).Error
	if err != nil {
		return wrap(conn, fmt.Sprintf("failed to reset cursor of partition '%s'", partition), err)
	}
	return nil
}

func (r *GormProgressRepository) RecordArtifact(ctx context.Context, runID, partition string, artifact model.Artifact) error {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainArtifact(runID, partition, artifact, r.now())
	if err := conn.GormDB().WithContext(ctx).Create(entity).Error; err != nil {
		return wrap(conn, fmt.Sprintf("failed to record artifact '%s'", artifact.Name), err)
	}
	return nil
}

func (r *GormProgressRepository) ListArtifacts(ctx context.Context, partition string) ([]model.Artifact, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []ArtifactEntity
	err = conn.GormDB().WithContext(ctx).
		Where("partition_key = ?", partition).
		Order("sequence_no").
		Find(&entities).Error
	if err != nil {
		return nil, wrap(conn, fmt.Sprintf("failed to list artifacts of partition '%s'", partition), err)
	}
	out := make([]model.Artifact, len(entities))
	for i := range entities {
		out[i] = toDomainArtifact(&entities[i])
	}
	return out, nil
}

// Close is a no-op; connections are owned by the resolver.
func (r *GormProgressRepository) Close() error {
	return nil
}
