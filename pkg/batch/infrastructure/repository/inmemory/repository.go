// Package inmemory provides an in-memory ProgressRepository. Nothing survives the process,
// which suits cursor.store "none" and tests.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/repository"
)

// InMemoryProgressRepository holds cursors and artifacts in maps.
type InMemoryProgressRepository struct {
	cursors   map[string]model.ProgressCursor
	artifacts map[string][]model.Artifact
	mu        sync.RWMutex // Mutex to protect concurrent access to maps.
}

// Verify interfaces
var _ repository.ProgressRepository = (*InMemoryProgressRepository)(nil)

// NewInMemoryProgressRepository creates and initializes a new instance of InMemoryProgressRepository.
func NewInMemoryProgressRepository() *InMemoryProgressRepository {
	return &InMemoryProgressRepository{
		cursors:   make(map[string]model.ProgressCursor),
		artifacts: make(map[string][]model.Artifact),
	}
}

func (r *InMemoryProgressRepository) LoadCursor(ctx context.Context, partition string) (model.ProgressCursor, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cursors[partition]
	return c, ok, nil
}

func (r *InMemoryProgressRepository) SaveCursor(ctx context.Context, cursor model.ProgressCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[cursor.Partition] = cursor
	return nil
}

func (r *InMemoryProgressRepository) ResetCursor(ctx context.Context, partition string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cursors, partition)
	return nil
}

func (r *InMemoryProgressRepository) RecordArtifact(ctx context.Context, runID, partition string, artifact model.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[partition] = append(r.artifacts[partition], artifact)
	return nil
}

func (r *InMemoryProgressRepository) ListArtifacts(ctx context.Context, partition string) ([]model.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]model.Artifact(nil), r.artifacts[partition]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryProgressRepository) Close() error {
	return nil
}
