// Package gcs provides a Google Cloud Storage implementation of the storage adapter interfaces.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"go.uber.org/fx"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this storage provider.
	ProviderType = "gcs"
)

// gcsAdapter implements storage.StorageConnection for Google Cloud Storage.
type gcsAdapter struct {
	cfg    storageConfig.StorageConfig
	name   string
	client *storage.Client
}

// Verify that gcsAdapter implements the storage.StorageConnection interface.
var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter creates a GCS client. Endpoint points the client at an emulator;
// in that case no credentials are sent.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		if cfg.CredentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}
	return &gcsAdapter{cfg: cfg, name: name, client: client}, nil
}

// NewGCSProvider creates the provider for "gcs" storage connections.
func NewGCSProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewProvider(ProviderType, cfg, NewGCSAdapter)
}

// Module is the Fx module for the GCS storage adapter.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.ResultTags(`group:"storage_providers"`),
	)),
)

// Close closes the underlying client.
func (a *gcsAdapter) Close() error {
	if err := a.client.Close(); err != nil {
		return fmt.Errorf("failed to close gcs client '%s': %w", a.name, err)
	}
	logger.Debugf("GCS storage adapter '%s' closed.", a.name)
	return nil
}

// Type returns "gcs".
func (a *gcsAdapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *gcsAdapter) Name() string {
	return a.name
}

func (a *gcsAdapter) object(bucket, key string) *storage.ObjectHandle {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	return a.client.Bucket(bucket).Object(key)
}

// ListPage fetches one page of object names. GCS treats StartOffset as inclusive,
// so a key equal to startAfter is dropped.
func (a *gcsAdapter) ListPage(ctx context.Context, bucket, prefix, startAfter, token string, maxKeys int) (storageAdapter.Page, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	query := &storage.Query{Prefix: prefix, StartOffset: startAfter}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return storageAdapter.Page{}, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
	}
	it := a.client.Bucket(bucket).Objects(ctx, query)

	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, maxKeys, token).NextPage(&attrs)
	if err != nil && !errors.Is(err, iterator.Done) {
		return storageAdapter.Page{}, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
	}

	page := storageAdapter.Page{
		Keys:      make([]string, 0, len(attrs)),
		NextToken: next,
		Truncated: next != "",
	}
	for _, attr := range attrs {
		if attr.Name == startAfter {
			continue
		}
		page.Keys = append(page.Keys, attr.Name)
	}
	logger.Debugf("Listed %d objects in gs://%s/%s (truncated=%t).", len(page.Keys), bucket, prefix, page.Truncated)
	return page, nil
}

// Upload writes the object only if it does not exist yet.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	w := a.object(bucket, key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("upload gs://%s/%s: %w", bucket, key, storageAdapter.ErrObjectExists)
		}
		return fmt.Errorf("upload gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Download returns the object's content. The caller must close it.
func (a *gcsAdapter) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := a.object(bucket, key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("download gs://%s/%s: %w", bucket, key, storageAdapter.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("download gs://%s/%s: %w", bucket, key, err)
	}
	return r, nil
}

// Exists reads the object's attributes.
func (a *gcsAdapter) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := a.object(bucket, key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat gs://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// DeleteObject deletes the object. A missing object is not an error.
func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := a.object(bucket, key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			logger.Warnf("Attempted to delete non-existent object gs://%s/%s.", bucket, key)
			return nil
		}
		return fmt.Errorf("delete gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}
