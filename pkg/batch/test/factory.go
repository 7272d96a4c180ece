package test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	dbadapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/database/config"
)

// MockDBConnection is a DBConnection around an arbitrary *gorm.DB, typically one backed by sqlmock.
type MockDBConnection struct {
	DB *gorm.DB
	// TableMissing makes IsTableNotExistError report true for every error.
	TableMissing bool
}

// Verify interfaces
var _ dbadapter.DBConnection = (*MockDBConnection)(nil)

// NewMockDBConnection creates a new instance of MockDBConnection.
func NewMockDBConnection(db *gorm.DB) *MockDBConnection {
	return &MockDBConnection{DB: db}
}

// Close always succeeds.
func (m *MockDBConnection) Close() error {
	return nil
}

// Type returns "mock_db".
func (m *MockDBConnection) Type() string {
	return "mock_db"
}

// Name returns "mock_name".
func (m *MockDBConnection) Name() string {
	return "mock_name"
}

// GormDB returns the wrapped session.
func (m *MockDBConnection) GormDB() *gorm.DB {
	return m.DB
}

// RefreshConnection always succeeds.
func (m *MockDBConnection) RefreshConnection(ctx context.Context) error {
	return nil
}

// Config returns an empty configuration.
func (m *MockDBConnection) Config() dbconfig.DatabaseConfig {
	return dbconfig.DatabaseConfig{Type: "mock_db"}
}

// GetSQLDB returns the *sql.DB under the wrapped session.
func (m *MockDBConnection) GetSQLDB() (*sql.DB, error) {
	if m.DB == nil {
		return nil, nil
	}
	return m.DB.DB()
}

// IsTableNotExistError reports TableMissing.
func (m *MockDBConnection) IsTableNotExistError(err error) bool {
	return m.TableMissing && err != nil
}

// NewSQLMockConnection opens a mysql-dialect gorm session on top of sqlmock.
// The mock is closed when the test ends.
func NewSQLMockConnection(t *testing.T) (*MockDBConnection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewMockDBConnection(db), mock
}
