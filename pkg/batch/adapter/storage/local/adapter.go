// Package local provides a local file system implementation of the storage adapter interfaces.
// Buckets map to directories under BaseDir and keys to slash-separated relative paths.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	storageAdapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this local storage provider.
	ProviderType = "local"
)

// localAdapter implements the storage.StorageConnection interface for local file system operations.
type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

// Verify that localAdapter implements the storage.StorageConnection interface.
var _ storageAdapter.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates a new localAdapter instance.
// It validates the BaseDir configuration and attempts to create it if it doesn't exist.
func NewLocalAdapter(_ context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir must be specified in configuration", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
				return nil, fmt.Errorf("local storage adapter '%s': failed to create BaseDir '%s': %w", name, cfg.BaseDir, err)
			}
		} else {
			return nil, fmt.Errorf("local storage adapter '%s': failed to stat BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir '%s' is not a directory", name, cfg.BaseDir)
	}

	return &localAdapter{
		cfg:  cfg,
		name: name,
	}, nil
}

// NewLocalProvider creates the provider for "local" storage connections.
func NewLocalProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewProvider(ProviderType, cfg, NewLocalAdapter)
}

// Close does nothing for the local file system adapter as it holds no special resources.
func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}

// Type returns the type of the adapter, which is "local".
func (a *localAdapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *localAdapter) Name() string {
	return a.name
}

// Upload writes data to a temporary file next to the destination and links it into place,
// so a partially written object is never visible under its final name. An existing file is
// never replaced; Upload returns ErrObjectExists instead.
func (a *localAdapter) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	fullPath, err := a.resolvePath(bucket, key)
	if err != nil {
		return fmt.Errorf("failed to resolve path for upload: %w", err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: data})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write data to file '%s': %w", fullPath, err)
	}
	// Link fails instead of replacing an existing file.
	err = os.Link(tmpName, fullPath)
	os.Remove(tmpName)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to move upload into place at '%s': %w", fullPath, storageAdapter.ErrObjectExists)
	}
	if err != nil {
		return fmt.Errorf("failed to move upload into place at '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded %d bytes to '%s' (local adapter '%s').", written, fullPath, a.name)
	return nil
}

// Download opens the file at bucket/key. The returned io.ReadCloser must be closed by the caller.
func (a *localAdapter) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, storageAdapter.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

// Exists reports whether a regular file exists at bucket/key.
func (a *localAdapter) Exists(ctx context.Context, bucket, key string) (bool, error) {
	fullPath, err := a.resolvePath(bucket, key)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat '%s': %w", fullPath, err)
	}
	return info.Mode().IsRegular(), nil
}

// ListPage emulates a paginated object listing over a directory walk.
// The token is the last key of the previous page.
func (a *localAdapter) ListPage(ctx context.Context, bucket, prefix, startAfter, token string, maxKeys int) (storageAdapter.Page, error) {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return storageAdapter.Page{}, fmt.Errorf("failed to resolve base path for listing: %w", err)
	}
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	// Only the directory part of the prefix needs walking.
	walkRoot := basePath
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		walkRoot = filepath.Join(basePath, filepath.FromSlash(prefix[:i]))
	}

	var keys []string
	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == walkRoot && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s' from '%s': %w", path, basePath, err)
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return storageAdapter.Page{}, fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}

	// WalkDir order differs from byte order when names contain characters below '/'.
	sort.Strings(keys)

	after := startAfter
	if token > after {
		after = token
	}
	start := sort.SearchStrings(keys, after)
	if start < len(keys) && keys[start] == after && after != "" {
		start++
	}
	keys = keys[start:]

	page := storageAdapter.Page{}
	if len(keys) > maxKeys {
		page.Keys = keys[:maxKeys]
		page.Truncated = true
		page.NextToken = page.Keys[maxKeys-1]
	} else {
		page.Keys = keys
	}
	logger.Debugf("Listed %d objects in '%s' with prefix '%s' (local adapter '%s').", len(page.Keys), basePath, prefix, a.name)
	return page, nil
}

// DeleteObject deletes the specified object from the bucket (treated as a directory).
// If the object does not exist, it logs a warning and returns nil.
func (a *localAdapter) DeleteObject(ctx context.Context, bucket, key string) error {
	fullPath, err := a.resolvePath(bucket, key)
	if err != nil {
		return fmt.Errorf("failed to resolve path for delete: %w", err)
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object '%s' (local adapter '%s').", fullPath, a.name)
			return nil
		}
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	logger.Debugf("Deleted object '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// resolvePath resolves the full path of a file relative to the BaseDir.
// It also ensures the resolved path does not escape the BaseDir.
func (a *localAdapter) resolvePath(bucket, key string) (string, error) {
	baseDir := a.cfg.BaseDir
	if bucket == "" {
		bucket = a.cfg.BucketName
	}

	fullPath := filepath.Join(baseDir, bucket, filepath.FromSlash(key))

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for BaseDir '%s': %w", baseDir, err)
	}
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}

	if absFullPath != absBaseDir && !strings.HasPrefix(absFullPath, absBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of BaseDir '%s'", fullPath, baseDir)
	}

	return fullPath, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
