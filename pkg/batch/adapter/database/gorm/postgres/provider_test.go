package postgres_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/database/config"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/database/gorm/postgres"
)

func TestConnectionString(t *testing.T) {
	dsn := postgres.ConnectionString(dbconfig.DatabaseConfig{
		Host: "db", Port: 5432, User: "rb", Password: "secret", Database: "recordbatch",
	})
	assert.Equal(t, "host=db port=5432 user=rb password=secret dbname=recordbatch sslmode=disable", dsn)

	dsn = postgres.ConnectionString(dbconfig.DatabaseConfig{
		Host: "db", Port: 5432, User: "rb", Password: "secret", Database: "recordbatch", Sslmode: "require", Schema: "batch",
	})
	assert.Equal(t, "host=db port=5432 user=rb password=secret dbname=recordbatch sslmode=require search_path=batch", dsn)
}
