// Package storage defines the common interfaces for the storage adapters.
// These interfaces let the pipeline list, fetch and publish objects on different
// backends (local file system, S3-compatible stores, GCS) through one API.
package storage

import (
	"context"
	"errors"
	"io"

	coreAdapter "github.com/tigerroll/recordbatch/pkg/batch/core/adapter"
)

var (
	// ErrObjectNotFound is returned (wrapped) by Download when the object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrObjectExists is returned (wrapped) by backends with conditional writes when Upload
	// would replace an existing object.
	ErrObjectExists = errors.New("storage: object already exists")
)

// Page is one page of a lexicographically ordered key listing.
type Page struct {
	Keys []string
	// NextToken continues the listing when Truncated is true.
	NextToken string
	Truncated bool
}

// ObjectLister lists object keys one page at a time.
type ObjectLister interface {
	// ListPage returns up to maxKeys keys below prefix, in lexicographic order.
	// Keys less than or equal to startAfter are omitted. token is the NextToken of the
	// previous page, or "" for the first page.
	ListPage(ctx context.Context, bucket, prefix, startAfter, token string, maxKeys int) (Page, error)
}

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	ObjectLister
	// Upload writes data to bucket/key. size is the number of bytes, or -1 when unknown.
	Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error
	// Download returns the object's content. The caller must close the returned ReadCloser.
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Exists reports whether the object exists.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// DeleteObject deletes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, key string) error
}

// StorageConnection represents a named storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection // Inherits Close(), Type(), Name()
	StorageExecutor
}

// StorageProvider manages the connections of one storage type.
type StorageProvider interface {
	// GetConnection retrieves a StorageConnection with the specified name, creating it on first use.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g., "s3").
	Type() string
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves a StorageConnection by its configured name.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
	// CloseAll closes the connections of every registered provider.
	CloseAll() error
}
