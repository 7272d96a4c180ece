package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/pipeline"
	inframetrics "github.com/tigerroll/recordbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/recordbatch/pkg/batch/infrastructure/repository/cursor"
	batchlistener "github.com/tigerroll/recordbatch/pkg/batch/listener"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"

	// Registers the "hdf5" format reader.
	_ "github.com/tigerroll/recordbatch/pkg/batch/adapter/format/hdf5"
)

// Options are the inputs of RunApplication that main.go collects from the process environment.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	// Adapters are the provider modules chosen with AdapterOptions.
	Adapters []fx.Option
	// Extra is appended to the graph, e.g. fx.Decorate or fx.Replace in tests.
	Extra []fx.Option
}

// NewApplication builds the Fx graph for one run and extracts its driver.
func NewApplication(opts Options) (*fx.App, *pipeline.Driver) {
	var driver *pipeline.Driver
	app := fx.New(
		fx.Supply(
			opts.EmbeddedConfig,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		logger.Module,
		config.Module,

		fx.Options(opts.Adapters...),
		storage.Module,
		gormadapter.Module,

		cursor.Module,
		inframetrics.Module,
		batchlistener.Module,
		pipeline.Module,

		fx.Invoke(registerConnectionCleanup),
		fx.Options(opts.Extra...),
		fx.Populate(&driver),
	)
	return app, driver
}

// RunApplication starts the Fx application, runs the pipeline under appCtx and stops the
// application. The summary is nil only when the application could not be started.
func RunApplication(appCtx context.Context, opts Options) (*model.RunSummary, error) {
	app, driver := NewApplication(opts)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(appCtx, app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return nil, fmt.Errorf("failed to start application: %w", err)
	}

	summary, runErr := driver.Run(appCtx)

	// Shutdown hooks flush metrics and close connections even when the run was cancelled.
	stopCtx, cancelStop := context.WithTimeout(context.WithoutCancel(appCtx), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Application shutdown reported errors: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return summary, runErr
}

// ConnectionCleanupParams holds the resolvers closed at shutdown.
type ConnectionCleanupParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Storages   storage.StorageConnectionResolver
	DBResolver database.DBConnectionResolver `optional:"true"`
}

func registerConnectionCleanup(p ConnectionCleanupParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application is shutting down.")
			var result *multierror.Error
			if err := p.Storages.CloseAll(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close storage connections: %w", err))
			}
			if p.DBResolver != nil {
				if err := p.DBResolver.CloseAll(); err != nil {
					result = multierror.Append(result, fmt.Errorf("close database connections: %w", err))
				}
			}
			return result.ErrorOrNil()
		},
	})
}
