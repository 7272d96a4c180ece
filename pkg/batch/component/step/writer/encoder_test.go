package writer_test

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/recordbatch/pkg/batch/component/step/writer"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/test"
)

func mixedRows() []model.Row {
	return []model.Row{
		test.NewTestRow(0),
		model.NewEmptyRow(test.NewTestRef(1), test.NewTestColumns(), "missing field analysis/songs/tempo"),
	}
}

func TestCSVEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := &writer.CSVEncoder{}
	require.NoError(t, enc.Encode(mixedRows(), test.NewTestColumns(), &buf))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"record_id", "record_status", "failure_reason", "tempo", "year"},
		{"record-000.h5", "ok", "", "100", "1990"},
		{"record-001.h5", "failed", "missing field analysis/songs/tempo", "", ""},
	}, lines)
	assert.Equal(t, "csv", enc.Extension())
}

func TestParquetEncoder(t *testing.T) {
	for _, compression := range []string{"SNAPPY", "gzip", "NONE"} {
		t.Run(compression, func(t *testing.T) {
			enc, err := writer.NewParquetEncoder(compression, 2)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, enc.Encode(mixedRows(), test.NewTestColumns(), &buf))
			data := buf.Bytes()
			require.Greater(t, len(data), 8)
			assert.Equal(t, "PAR1", string(data[:4]))
			assert.Equal(t, "PAR1", string(data[len(data)-4:]))

			pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), nil, 1)
			require.NoError(t, err)
			defer pr.ReadStop()
			assert.Equal(t, int64(2), pr.GetNumRows())
			assert.Len(t, pr.SchemaHandler.ValueColumns, 5)
		})
	}
}

func TestNewEncoder(t *testing.T) {
	enc, err := writer.NewEncoder(config.OutputConfig{Format: "parquet", Compression: "SNAPPY"})
	require.NoError(t, err)
	assert.Equal(t, "parquet", enc.Extension())

	enc, err = writer.NewEncoder(config.OutputConfig{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", enc.ContentType())

	_, err = writer.NewEncoder(config.OutputConfig{Format: "parquet", Compression: "LZMA"})
	assert.Error(t, err)
	_, err = writer.NewEncoder(config.OutputConfig{Format: "avro"})
	assert.Error(t, err)
}

func TestArtifactNamer(t *testing.T) {
	n := writer.ArtifactNamer{Prefix: "/rows/", Partition: "data/A", RunID: "3f2a9c1e-77b0-4d1e-9a51-0c4f5e6d7a8b", Extension: "parquet"}
	assert.Equal(t, "part-000042-3f2a9c1e.parquet", n.Name(42))
	assert.Equal(t, "rows/data/A/part-000042-3f2a9c1e.parquet", n.Key(42))

	n.Partition = ""
	assert.Equal(t, "rows/part-000000-3f2a9c1e.parquet", n.Key(0))
	assert.NotEqual(t, n.Key(1), n.Key(2))
}
