package source_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/source"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
	return root
}

func drain(t *testing.T, src source.RecordSource) []model.RecordRef {
	t.Helper()
	var refs []model.RecordRef
	for {
		ref, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return refs
		}
		require.NoError(t, err)
		refs = append(refs, ref)
	}
}

func ids(root string, refs []model.RecordRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		rel, _ := filepath.Rel(root, r.ID)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

var h5 = config.LocalSourceConfig{Extensions: []string{".h5"}}

func localSource(root, partition string, maxRecords int64) *source.LocalSource {
	cfg := h5
	cfg.Root = root
	return source.NewLocalSource(cfg, partition, maxRecords, 1)
}

func TestLocalSource_WalkOrder(t *testing.T) {
	root := writeTree(t, "B/sub/b2.h5", "A/a2.h5", "A/note.txt", "B/b1.h5", "A/a1.H5")
	src := localSource(root, "", 0)
	defer src.Close()

	refs := drain(t, src)
	assert.Equal(t, []string{"A/a1.H5", "A/a2.h5", "B/b1.h5", "B/sub/b2.h5"}, ids(root, refs))
	for i, r := range refs {
		assert.Equal(t, int64(i), r.Position)
		assert.Equal(t, model.RecordKindLocal, r.Kind)
	}

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLocalSource_Partition(t *testing.T) {
	root := writeTree(t, "A/a1.h5", "B/b1.h5", "B/sub/b2.h5", "Bx/c.h5")

	src := localSource(root, "A", 0)
	assert.Equal(t, []string{"A/a1.h5"}, ids(root, drain(t, src)))
	src.Close()

	src = localSource(root, "B/b", 0)
	assert.Equal(t, []string{"B/b1.h5"}, ids(root, drain(t, src)))
	src.Close()

	src = localSource(root, "Z", 0)
	assert.Empty(t, drain(t, src))
	src.Close()
}

func TestLocalSource_Resume(t *testing.T) {
	root := writeTree(t, "A/a1.h5", "A/a2.h5", "B/b1.h5")

	t.Run("continues after the cursor", func(t *testing.T) {
		src := localSource(root, "", 0)
		defer src.Close()
		require.NoError(t, src.Resume(model.ProgressCursor{RecordsConsumed: 2, LastRef: filepath.Join(root, "A", "a2.h5")}))

		refs := drain(t, src)
		require.Len(t, refs, 1)
		assert.Equal(t, filepath.Join(root, "B", "b1.h5"), refs[0].ID)
		assert.Equal(t, int64(2), refs[0].Position)
	})

	t.Run("detects a changed tree", func(t *testing.T) {
		src := localSource(root, "", 0)
		defer src.Close()
		require.NoError(t, src.Resume(model.ProgressCursor{RecordsConsumed: 2, LastRef: filepath.Join(root, "A", "gone.h5")}))

		_, err := src.Next(context.Background())
		assert.ErrorIs(t, err, exception.ErrEnumeration)
	})

	t.Run("cursor beyond the tree", func(t *testing.T) {
		src := localSource(root, "", 0)
		defer src.Close()
		require.NoError(t, src.Resume(model.ProgressCursor{RecordsConsumed: 10}))

		_, err := src.Next(context.Background())
		assert.ErrorIs(t, err, exception.ErrEnumeration)
	})
}

func TestLocalSource_MaxRecords(t *testing.T) {
	root := writeTree(t, "a.h5", "b.h5", "c.h5")
	src := localSource(root, "", 2)
	defer src.Close()
	assert.Equal(t, []string{"a.h5", "b.h5"}, ids(root, drain(t, src)))
}

func TestLocalSource_Sorted(t *testing.T) {
	root := writeTree(t, "a/z.h5", "a.h5", "a-b.h5")
	cfg := h5
	cfg.Root = root
	cfg.Sort = true
	src := source.NewLocalSource(cfg, "", 0, 0)
	defer src.Close()

	// Full-path order puts "a-b.h5" before "a.h5" before "a/z.h5".
	assert.Equal(t, []string{"a-b.h5", "a.h5", "a/z.h5"}, ids(root, drain(t, src)))
}

func TestLocalSource_EmptyAndMissing(t *testing.T) {
	src := localSource(t.TempDir(), "", 0)
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	src.Close()

	src = localSource(filepath.Join(t.TempDir(), "missing"), "", 0)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, exception.ErrEnumeration)
	src.Close()
}

func TestLocalSource_CloseStopsWalker(t *testing.T) {
	files := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		files = append(files, filepath.Join("d", string(rune('a'+i%26))+string(rune('a'+i/26))+".h5"))
	}
	root := writeTree(t, files...)
	src := localSource(root, "", 0)

	_, err := src.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLocalSource_Cancelled(t *testing.T) {
	root := writeTree(t, "a.h5")
	src := localSource(root, "", 0)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
