package storage

import (
	"go.uber.org/fx"

	coreConfig "github.com/tigerroll/recordbatch/pkg/batch/core/config"
)

// ResolverParams holds the dependencies of the storage connection resolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *coreConfig.Config
}

func newConnectionResolverFx(p ResolverParams) StorageConnectionResolver {
	return NewConnectionResolver(p.Providers, p.Cfg)
}

// Module provides the StorageConnectionResolver. Concrete providers are added by the
// local, s3 and gcs modules.
var Module = fx.Options(
	fx.Provide(newConnectionResolverFx),
)
