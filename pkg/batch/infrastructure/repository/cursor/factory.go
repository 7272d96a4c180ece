package cursor

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/recordbatch/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/recordbatch/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const module = "cursor"

// NewProgressRepository builds the repository selected by cfg.Store.
// The database store applies its schema migrations before returning.
func NewProgressRepository(ctx context.Context, cfg config.CursorConfig, dbResolver database.DBConnectionResolver) (repository.ProgressRepository, error) {
	switch cfg.Store {
	case config.CursorStoreFile, "":
		if cfg.Path == "" {
			return nil, exception.NewConfigurationError("cursor.path is required for the file cursor store")
		}
		logger.Infof("Using file cursor store '%s'.", cfg.Path)
		return NewFileProgressRepository(cfg.Path), nil
	case config.CursorStoreDatabase:
		if cfg.DatabaseRef == "" {
			return nil, exception.NewConfigurationError("cursor.database_ref is required for the database cursor store")
		}
		if dbResolver == nil {
			return nil, exception.NewConfigurationError("no database resolver available for cursor.database_ref '%s'", cfg.DatabaseRef)
		}
		conn, err := dbResolver.ResolveDBConnection(ctx, cfg.DatabaseRef)
		if err != nil {
			return nil, exception.NewBatchError(module, "failed to resolve cursor database", err, false, false)
		}
		if err := sqlrepo.NewMigrator(conn).Up(ctx); err != nil {
			return nil, exception.NewBatchError(module, "failed to migrate cursor database", err, false, false)
		}
		logger.Infof("Using database cursor store '%s' (%s).", cfg.DatabaseRef, conn.Type())
		return sqlrepo.NewGormProgressRepository(dbResolver, cfg.DatabaseRef), nil
	case config.CursorStoreNone:
		logger.Warnf("Cursor store is 'none'; progress will not survive this process.")
		return inmemory.NewInMemoryProgressRepository(), nil
	default:
		return nil, exception.NewConfigurationError("unknown cursor.store '%s' (expected file, database or none)", cfg.Store)
	}
}

// ProgressRepositoryParams holds the dependencies of the Fx constructor.
type ProgressRepositoryParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Cfg        *config.Config
	DBResolver database.DBConnectionResolver `optional:"true"`
}

func newProgressRepositoryFx(p ProgressRepositoryParams) (repository.ProgressRepository, error) {
	repo, err := NewProgressRepository(context.Background(), p.Cfg.RecordBatch.Cursor, p.DBResolver)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return repo.Close()
		},
	})
	return repo, nil
}

// Module provides the configured repository.ProgressRepository.
var Module = fx.Options(
	fx.Provide(newProgressRepositoryFx),
)
