// Package s3 provides an S3-compatible implementation of the storage adapter interfaces
// on top of the MinIO client.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this storage provider.
	ProviderType = "s3"

	codeNoSuchKey          = "NoSuchKey"
	codePreconditionFailed = "PreconditionFailed"
)

// s3Adapter implements storage.StorageConnection for S3-compatible object stores.
type s3Adapter struct {
	cfg  storageConfig.StorageConfig
	name string
	mc   *minio.Client
	core *minio.Core
}

// Verify that s3Adapter implements the storage.StorageConnection interface.
var _ storageAdapter.StorageConnection = (*s3Adapter)(nil)

// NewS3Adapter creates a MinIO client for the configured endpoint.
func NewS3Adapter(_ context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 storage adapter '%s': endpoint is required", name)
	}

	opts := &minio.Options{
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}

	mc, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("s3 storage adapter '%s': failed to create minio client: %w", name, err)
	}

	return &s3Adapter{
		cfg:  cfg,
		name: name,
		mc:   mc,
		core: &minio.Core{Client: mc},
	}, nil
}

// NewS3Provider creates the provider for "s3" storage connections.
func NewS3Provider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewProvider(ProviderType, cfg, NewS3Adapter)
}

// Module is the Fx module for the S3 storage adapter.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewS3Provider,
		fx.ResultTags(`group:"storage_providers"`),
	)),
)

// Close is a no-op; the MinIO client holds no per-connection resources.
func (a *s3Adapter) Close() error {
	logger.Debugf("S3 storage adapter '%s' closed.", a.name)
	return nil
}

// Type returns "s3".
func (a *s3Adapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *s3Adapter) Name() string {
	return a.name
}

func (a *s3Adapter) bucket(bucket string) string {
	if bucket == "" {
		return a.cfg.BucketName
	}
	return bucket
}

// ListPage issues one ListObjectsV2 request.
func (a *s3Adapter) ListPage(ctx context.Context, bucket, prefix, startAfter, token string, maxKeys int) (storageAdapter.Page, error) {
	if err := ctx.Err(); err != nil {
		return storageAdapter.Page{}, err
	}
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	bucket = a.bucket(bucket)

	result, err := a.core.ListObjectsV2(bucket, prefix, startAfter, token, "", maxKeys)
	if err != nil {
		return storageAdapter.Page{}, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}

	page := storageAdapter.Page{
		Keys:      make([]string, 0, len(result.Contents)),
		NextToken: result.NextContinuationToken,
		Truncated: result.IsTruncated,
	}
	for _, obj := range result.Contents {
		if obj.Err != nil {
			return storageAdapter.Page{}, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, obj.Err)
		}
		page.Keys = append(page.Keys, obj.Key)
	}
	logger.Debugf("Listed %d objects in s3://%s/%s (truncated=%t).", len(page.Keys), bucket, prefix, page.Truncated)
	return page, nil
}

// Upload puts the object only if the key is free (If-None-Match: *). An existing object
// yields ErrObjectExists.
func (a *s3Adapter) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	bucket = a.bucket(bucket)
	opts := minio.PutObjectOptions{ContentType: contentType}
	opts.SetMatchETagExcept("*")
	_, err := a.mc.PutObject(ctx, bucket, key, data, size, opts)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == codePreconditionFailed || resp.StatusCode == http.StatusPreconditionFailed {
			return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, storageAdapter.ErrObjectExists)
		}
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Download returns the object's content. The caller must close it.
func (a *s3Adapter) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	bucket = a.bucket(bucket)
	obj, err := a.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces a missing object before the first Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == codeNoSuchKey {
			return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, storageAdapter.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// Exists stats the object.
func (a *s3Adapter) Exists(ctx context.Context, bucket, key string) (bool, error) {
	bucket = a.bucket(bucket)
	_, err := a.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == codeNoSuchKey {
			return false, nil
		}
		return false, fmt.Errorf("stat s3://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// DeleteObject removes the object. S3 treats removing a missing key as success.
func (a *s3Adapter) DeleteObject(ctx context.Context, bucket, key string) error {
	bucket = a.bucket(bucket)
	if err := a.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
