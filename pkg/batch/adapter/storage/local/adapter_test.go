package local_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage/local"
	coreConfig "github.com/tigerroll/recordbatch/pkg/batch/core/config"
)

func newAdapter(t *testing.T) (storageAdapter.StorageConnection, string) {
	t.Helper()
	dir := t.TempDir()
	conn, err := local.NewLocalAdapter(context.Background(), storageConfig.StorageConfig{Type: "local", BaseDir: dir}, "test")
	require.NoError(t, err)
	return conn, dir
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0644))
}

func TestNewLocalAdapter_RequiresBaseDir(t *testing.T) {
	_, err := local.NewLocalAdapter(context.Background(), storageConfig.StorageConfig{Type: "local"}, "x")
	assert.Error(t, err)
}

func TestUploadDownloadExistsDelete(t *testing.T) {
	conn, dir := newAdapter(t)
	ctx := context.Background()

	exists, err := conn.Exists(ctx, "out", "rows/part-000000.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	payload := []byte("a,b\n1,2\n")
	require.NoError(t, conn.Upload(ctx, "out", "rows/part-000000.csv", bytes.NewReader(payload), int64(len(payload)), "text/csv"))
	assert.FileExists(t, filepath.Join(dir, "out", "rows", "part-000000.csv"))

	exists, err = conn.Exists(ctx, "out", "rows/part-000000.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := conn.Download(ctx, "out", "rows/part-000000.csv")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, payload, got)

	require.NoError(t, conn.DeleteObject(ctx, "out", "rows/part-000000.csv"))
	require.NoError(t, conn.DeleteObject(ctx, "out", "rows/part-000000.csv"))

	_, err = conn.Download(ctx, "out", "rows/part-000000.csv")
	assert.True(t, errors.Is(err, storageAdapter.ErrObjectNotFound))
}

func TestUpload_ShortWriteLeavesNoObject(t *testing.T) {
	conn, _ := newAdapter(t)
	ctx := context.Background()

	err := conn.Upload(ctx, "out", "a.bin", bytes.NewReader([]byte("abc")), 10, "")
	require.Error(t, err)

	exists, err := conn.Exists(ctx, "out", "a.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpload_RefusesToReplace(t *testing.T) {
	conn, dir := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "out", "rows/a.csv", bytes.NewReader([]byte("first")), 5, "text/csv"))
	err := conn.Upload(ctx, "out", "rows/a.csv", bytes.NewReader([]byte("second")), 6, "text/csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storageAdapter.ErrObjectExists))

	got, err := os.ReadFile(filepath.Join(dir, "out", "rows", "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	entries, err := os.ReadDir(filepath.Join(dir, "out", "rows"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResolvePath_RejectsEscape(t *testing.T) {
	conn, _ := newAdapter(t)
	_, err := conn.Download(context.Background(), "", "../../etc/passwd")
	assert.Error(t, err)
}

func TestListPage(t *testing.T) {
	conn, dir := newAdapter(t)
	ctx := context.Background()

	for _, name := range []string{"data/A/A/TRAAA.h5", "data/A/B/TRABB.h5", "data/B/TRBAA.h5", "data/A.h5", "other/x.h5"} {
		writeFile(t, filepath.Join(dir, "msd", filepath.FromSlash(name)))
	}

	page, err := conn.ListPage(ctx, "msd", "data/", "", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/A.h5", "data/A/A/TRAAA.h5"}, page.Keys)
	assert.True(t, page.Truncated)

	page, err = conn.ListPage(ctx, "msd", "data/", "", page.NextToken, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/A/B/TRABB.h5", "data/B/TRBAA.h5"}, page.Keys)
	assert.False(t, page.Truncated)

	page, err = conn.ListPage(ctx, "msd", "data/", "data/B/TRBAA.h5", "", 2)
	require.NoError(t, err)
	assert.Empty(t, page.Keys)
	assert.False(t, page.Truncated)
}

func TestListPage_PrefixAndStartAfter(t *testing.T) {
	conn, dir := newAdapter(t)
	ctx := context.Background()

	for _, name := range []string{"data/A/1.h5", "data/A/2.h5", "data/AB/3.h5", "data/B/4.h5"} {
		writeFile(t, filepath.Join(dir, "msd", filepath.FromSlash(name)))
	}

	page, err := conn.ListPage(ctx, "msd", "data/A/", "data/A/1.h5", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/A/2.h5"}, page.Keys)
	assert.False(t, page.Truncated)

	page, err = conn.ListPage(ctx, "msd", "data/A", "", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/A/1.h5", "data/A/2.h5", "data/AB/3.h5"}, page.Keys)

	page, err = conn.ListPage(ctx, "msd", "missing/", "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Keys)
}

func TestProviderAndResolver(t *testing.T) {
	dir := t.TempDir()
	cfg := coreConfig.NewConfig()
	cfg.RecordBatch.Storage["output"] = map[string]interface{}{"type": "local", "base_dir": dir}
	cfg.RecordBatch.Storage["remote"] = map[string]interface{}{"type": "s3"}

	provider := local.NewLocalProvider(cfg)
	resolver := storageAdapter.NewConnectionResolver([]storageAdapter.StorageProvider{provider}, cfg)

	conn, err := resolver.ResolveStorageConnection(context.Background(), "output")
	require.NoError(t, err)
	assert.Equal(t, "output", conn.Name())
	assert.Equal(t, "local", conn.Type())

	again, err := provider.GetConnection("output")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = resolver.ResolveStorageConnection(context.Background(), "remote")
	assert.Error(t, err)
	_, err = resolver.ResolveStorageConnection(context.Background(), "undefined")
	assert.Error(t, err)

	reconnected, err := provider.ForceReconnect("output")
	require.NoError(t, err)
	assert.NotSame(t, conn, reconnected)

	assert.NoError(t, resolver.CloseAll())
}
