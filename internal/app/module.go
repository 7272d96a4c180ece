// Package app wires the extraction pipeline with Fx and runs it once.
package app

import (
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/s3"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// DBAdapterModules maps a database adapter name to the module contributing its provider.
var DBAdapterModules = map[string]fx.Option{
	"sqlite":   sqlite.Module,
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
}

// StorageAdapterModules maps a storage adapter name to the module contributing its provider.
var StorageAdapterModules = map[string]fx.Option{
	"local": local.Module,
	"s3":    s3.Module,
	"gcs":   gcs.Module,
}

// Adapters selected when no list is given.
const (
	DefaultDBAdapters      = "sqlite,postgres,mysql"
	DefaultStorageAdapters = "local,s3,gcs"
)

// AdapterOptions turns comma-separated adapter lists (e.g., "local,s3") into the Fx modules
// of the named providers. Unknown names are skipped with a warning.
func AdapterOptions(dbAdapters, storageAdapters string) []fx.Option {
	if dbAdapters == "" {
		dbAdapters = DefaultDBAdapters
	}
	if storageAdapters == "" {
		storageAdapters = DefaultStorageAdapters
	}
	options := selectModules("DB", DBAdapterModules, dbAdapters)
	return append(options, selectModules("Storage", StorageAdapterModules, storageAdapters)...)
}

func selectModules(kind string, modules map[string]fx.Option, list string) []fx.Option {
	options := make([]fx.Option, 0)
	seen := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		module, ok := modules[name]
		if !ok {
			logger.Warnf("%s adapter '%s' is configured but not recognized/supported. Skipping.", kind, name)
			continue
		}
		options = append(options, module)
		logger.Debugf("%s adapter '%s' selected and registered.", kind, name)
	}
	return options
}
