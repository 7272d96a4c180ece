package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// MigrationsTable tracks the applied schema version.
const MigrationsTable = "recordbatch_schema_migrations"

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator applies the cursor and ledger schema.
type Migrator struct {
	conn   database.DBConnection
	dbType string
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{conn: conn, dbType: conn.Type()}
}

// getDatabaseDriver retrieves a migrate/v4 Driver based on the database type.
func (m *Migrator) getDatabaseDriver(sqlDB *sql.DB) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *Migrator) instance() (*migrate.Migrate, source.Driver, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if sqlDB == nil {
		return nil, nil, errors.New("connection has no underlying sql.DB")
	}

	dbDriver, err := m.getDatabaseDriver(sqlDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create iofs source driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mInstance, sourceDriver, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Infof("Applying cursor schema migrations (DB: %s, Table: %s).", m.dbType, MigrationsTable)

	mInstance, sourceDriver, err := m.instance()
	if err != nil {
		return err
	}
	// mInstance.Close would also close the shared *sql.DB, so only the source is released.
	defer sourceDriver.Close()

	if err := mInstance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, verr := mInstance.Version(); verr == nil {
			logger.Errorf("Migration stopped at version %d (dirty=%t).", version, dirty)
		}
		return fmt.Errorf("migration failed (DB: %s): %w", m.dbType, err)
	}

	logger.Infof("Cursor schema is up to date.")
	return nil
}
