// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// ProviderType is the database type handled by this package.
const ProviderType = "mysql"

// init registers the MySQL dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString generates the go-sql-driver DSN. parseTime is required for DATETIME columns.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// NewProvider creates a new database.DBProvider for MySQL.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, ProviderType)
}

// Module exports the MySQL DBProvider for dependency injection.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
