package app_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/internal/app"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/format"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/test"
)

const appConfig = `
recordbatch:
  source:
    kind: local
    local:
      root: %[1]s/data
      extensions: [".h5"]
  pipeline:
    batch_size: 2
    run_id: 0123abcd-0000-0000-0000-000000000000
  decode:
    format: fake
    fields:
      - { group: analysis/songs, name: tempo, kind: float }
      - { group: musicbrainz/songs, name: year, kind: int }
  output:
    storage_ref: output
    prefix: rows
    format: csv
    spool_dir: %[1]s/spool
  cursor:
    store: file
    path: %[1]s/cursor.json
  retry:
    sink: { max_attempts: 1 }
  storage:
    output:
      type: local
      base_dir: %[1]s/out
  system:
    logging:
      level: ERROR
`

func TestRunApplication(t *testing.T) {
	format.Register(test.FakeReader{})
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		test.WriteFakeRecord(t, filepath.Join(dir, "data"), fmt.Sprintf("r%d.h5", i), test.NewFakeTrack(120, 2000+i))
	}

	summary, err := app.RunApplication(context.Background(), app.Options{
		EnvFilePath:    filepath.Join(dir, "missing.env"),
		EmbeddedConfig: []byte(fmt.Sprintf(appConfig, dir)),
		Adapters:       app.AdapterOptions("sqlite", "local"),
	})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, model.StateDone, summary.FinalState)
	assert.Equal(t, int64(3), summary.RecordsSeen)
	assert.Equal(t, int64(2), summary.ArtifactsPublished)

	for _, name := range []string{"part-000000-0123abcd.csv", "part-000001-0123abcd.csv"} {
		_, err := os.Stat(filepath.Join(dir, "out", "rows", name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(dir, "cursor.json"))
	assert.NoError(t, err)
}

func TestRunApplication_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	raw := fmt.Sprintf(appConfig, dir) + "\n  skip:\n    limit: -5\n"

	summary, err := app.RunApplication(context.Background(), app.Options{
		EnvFilePath:    filepath.Join(dir, "missing.env"),
		EmbeddedConfig: []byte(raw),
		Adapters:       app.AdapterOptions("", "local"),
	})
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "skip.limit")
}

func TestAdapterOptions(t *testing.T) {
	assert.Len(t, app.AdapterOptions("", ""), 6)
	assert.Len(t, app.AdapterOptions("sqlite, sqlite", "local,ftp"), 2)
}
