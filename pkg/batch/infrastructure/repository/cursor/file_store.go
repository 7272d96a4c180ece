// Package cursor selects and builds the progress repository configured under recordbatch.cursor.
package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// fileDocument is the JSON layout of the cursor file.
type fileDocument struct {
	Cursors   map[string]model.ProgressCursor `json:"cursors"`
	Artifacts map[string][]fileArtifact       `json:"artifacts,omitempty"`
}

type fileArtifact struct {
	RunID    string         `json:"run_id"`
	Artifact model.Artifact `json:"artifact"`
}

// FileProgressRepository keeps every cursor and the artifact ledger in one JSON file.
// Each write goes to a temporary file in the same directory that is renamed over the original,
// so a crash leaves either the previous or the new document.
type FileProgressRepository struct {
	path string
	mu   sync.Mutex
	doc  *fileDocument
}

// Verify interfaces
var _ repository.ProgressRepository = (*FileProgressRepository)(nil)

// NewFileProgressRepository creates a repository backed by path. The file is read lazily.
func NewFileProgressRepository(path string) *FileProgressRepository {
	return &FileProgressRepository{path: path}
}

func (r *FileProgressRepository) load() (*fileDocument, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc := &fileDocument{
		Cursors:   make(map[string]model.ProgressCursor),
		Artifacts: make(map[string][]fileArtifact),
	}
	data, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debugf("Cursor file '%s' does not exist yet.", r.path)
	case err != nil:
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to read cursor file '%s'", r.path), err, false, false)
	default:
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, exception.NewBatchError(module, fmt.Sprintf("cursor file '%s' is corrupt", r.path), err, false, false)
		}
		if doc.Cursors == nil {
			doc.Cursors = make(map[string]model.ProgressCursor)
		}
		if doc.Artifacts == nil {
			doc.Artifacts = make(map[string][]fileArtifact)
		}
	}
	r.doc = doc
	return doc, nil
}

// flush writes the document atomically.
func (r *FileProgressRepository) flush(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return exception.NewBatchError(module, "failed to encode cursor document", err, false, false)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("failed to create cursor directory '%s'", dir), err, false, false)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return exception.NewBatchError(module, "failed to create temporary cursor file", err, false, false)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return exception.NewBatchError(module, "failed to write temporary cursor file", err, false, false)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return exception.NewBatchError(module, "failed to sync temporary cursor file", err, false, false)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return exception.NewBatchError(module, "failed to close temporary cursor file", err, false, false)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return exception.NewBatchError(module, fmt.Sprintf("failed to replace cursor file '%s'", r.path), err, false, false)
	}
	return nil
}

func (r *FileProgressRepository) LoadCursor(ctx context.Context, partition string) (model.ProgressCursor, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return model.ProgressCursor{}, false, err
	}
	c, ok := doc.Cursors[partition]
	return c, ok, nil
}

func (r *FileProgressRepository) SaveCursor(ctx context.Context, cursor model.ProgressCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return err
	}
	prev, had := doc.Cursors[cursor.Partition]
	doc.Cursors[cursor.Partition] = cursor
	if err := r.flush(doc); err != nil {
		if had {
			doc.Cursors[cursor.Partition] = prev
		} else {
			delete(doc.Cursors, cursor.Partition)
		}
		return err
	}
	return nil
}

func (r *FileProgressRepository) ResetCursor(ctx context.Context, partition string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Cursors[partition]; !ok {
		return nil
	}
	delete(doc.Cursors, partition)
	return r.flush(doc)
}

func (r *FileProgressRepository) RecordArtifact(ctx context.Context, runID, partition string, artifact model.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return err
	}
	doc.Artifacts[partition] = append(doc.Artifacts[partition], fileArtifact{RunID: runID, Artifact: artifact})
	if err := r.flush(doc); err != nil {
		doc.Artifacts[partition] = doc.Artifacts[partition][:len(doc.Artifacts[partition])-1]
		return err
	}
	return nil
}

func (r *FileProgressRepository) ListArtifacts(ctx context.Context, partition string) ([]model.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.Artifact, 0, len(doc.Artifacts[partition]))
	for _, a := range doc.Artifacts[partition] {
		out = append(out, a.Artifact)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Close drops the cached document.
func (r *FileProgressRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = nil
	return nil
}
