// Package database defines the connection abstractions for the relational stores used by
// the pipeline (the database-backed progress cursor and artifact ledger).
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/recordbatch/pkg/batch/core/adapter"

	"gorm.io/gorm"
)

// DBConnection represents an abstraction of a database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection // Embeds Type(), Name(), Close()

	// GormDB returns the session used for queries.
	GormDB() *gorm.DB
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the connection pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a database connection by its configured name.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	// ResolveDBConnection returns a live connection, reconnecting if a ping fails.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
	// CloseAll closes the connections of every registered provider.
	CloseAll() error
}

// DBProvider provides database connections of one type based on configuration.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "sqlite").
	Type() string
	// ForceReconnect forces the closure and re-establishment of an existing connection with the specified name.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the Fx group name collecting all DBProvider implementations.
const DBProviderGroup = "db_providers"
