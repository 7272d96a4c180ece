package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	dbadapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/database"
	coreadapter "github.com/tigerroll/recordbatch/pkg/batch/core/adapter"
)

// MockDBConnectionResolver is a testify mock of dbadapter.DBConnectionResolver.
type MockDBConnectionResolver struct {
	mock.Mock
}

// Verify interfaces
var _ dbadapter.DBConnectionResolver = (*MockDBConnectionResolver)(nil)

// ResolveDBConnection mocks the ResolveDBConnection method.
func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	args := m.Called(ctx, name)
	conn, _ := args.Get(0).(dbadapter.DBConnection)
	return conn, args.Error(1)
}

// ResolveConnection mocks the ResolveConnection method.
func (m *MockDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	args := m.Called(ctx, name)
	conn, _ := args.Get(0).(coreadapter.ResourceConnection)
	return conn, args.Error(1)
}

// CloseAll mocks the CloseAll method.
func (m *MockDBConnectionResolver) CloseAll() error {
	args := m.Called()
	return args.Error(0)
}

// testSingleConnectionResolver always returns one predefined DBConnection.
type testSingleConnectionResolver struct {
	conn dbadapter.DBConnection
}

func (r *testSingleConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (dbadapter.DBConnection, error) {
	return r.conn, nil
}

func (r *testSingleConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	return r.conn, nil
}

func (r *testSingleConnectionResolver) CloseAll() error {
	return nil
}

// NewTestSingleConnectionResolver creates a resolver that returns conn for every name.
func NewTestSingleConnectionResolver(conn dbadapter.DBConnection) dbadapter.DBConnectionResolver {
	return &testSingleConnectionResolver{conn: conn}
}
