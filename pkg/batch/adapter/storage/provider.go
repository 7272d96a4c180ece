package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/recordbatch/pkg/batch/core/adapter"
	coreConfig "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// ConnectionFactory opens a connection of one storage type.
type ConnectionFactory func(ctx context.Context, cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

// Provider is a StorageProvider that caches connections created by a ConnectionFactory.
type Provider struct {
	providerType string
	cfg          *coreConfig.Config
	factory      ConnectionFactory
	connections  map[string]StorageConnection
	mu           sync.RWMutex
}

// Verify that Provider implements the StorageProvider interface.
var _ StorageProvider = (*Provider)(nil)

// NewProvider creates a Provider for providerType.
func NewProvider(providerType string, cfg *coreConfig.Config, factory ConnectionFactory) *Provider {
	return &Provider{
		providerType: providerType,
		cfg:          cfg,
		factory:      factory,
		connections:  make(map[string]StorageConnection),
	}
}

// GetConnection retrieves a StorageConnection by the given name.
// It creates a new connection if one does not already exist for the given name.
func (p *Provider) GetConnection(name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(name)
}

func (p *Provider) connectLocked(name string) (StorageConnection, error) {
	// Double-check after acquiring lock
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}

	storageCfg, err := storageConfig.Decode(p.cfg.RecordBatch.Storage, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != p.providerType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.providerType, storageCfg.Type)
	}

	newConn, err := p.factory(context.Background(), storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter for '%s': %w", p.providerType, name, err)
	}

	p.connections[name] = newConn
	logger.Debugf("Created new %s storage connection '%s'.", p.providerType, name)
	return newConn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.providerType, name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Type returns the storage type handled by this provider.
func (p *Provider) Type() string {
	return p.providerType
}

// ForceReconnect forces the closure and re-establishment of an existing connection with the specified name.
func (p *Provider) ForceReconnect(name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to gracefully close %s storage connection '%s' during force reconnect: %v", p.providerType, name, err)
		}
		delete(p.connections, name)
	}

	logger.Debugf("Forcing reconnect for %s storage connection '%s'.", p.providerType, name)
	return p.connectLocked(name)
}

// ConnectionResolver dispatches connection names to the provider registered for their type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *coreConfig.Config
}

// NewConnectionResolver creates a resolver over the given providers, keyed by their Type().
func NewConnectionResolver(providers []StorageProvider, cfg *coreConfig.Config) StorageConnectionResolver {
	byType := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &ConnectionResolver{providers: byType, cfg: cfg}
}

// ResolveConnection resolves a generic resource connection by name.
func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// ResolveStorageConnection looks up the configured type of name and asks that type's provider for the connection.
func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := storageConfig.Decode(r.cfg.RecordBatch.Storage, name)
	if err != nil {
		return nil, err
	}

	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", storageCfg.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, storageCfg.Type, err)
	}
	return conn, nil
}

// CloseAll closes the connections of every registered provider.
func (r *ConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
