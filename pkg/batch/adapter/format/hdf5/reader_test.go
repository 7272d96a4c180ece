package hdf5_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gohdf5 "gonum.org/v1/hdf5"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/format"
	"github.com/tigerroll/recordbatch/pkg/batch/adapter/format/hdf5"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

type analysisSongs struct {
	Duration      float64 `hdf5:"duration"`
	Tempo         float64 `hdf5:"tempo"`
	Key           int32   `hdf5:"key"`
	TimeSignature int32   `hdf5:"time_signature"`
}

// writeTrack creates a file with a one-row /analysis/songs compound table.
func writeTrack(t *testing.T, rows []analysisSongs) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TRAAAAW128F429D538.h5")

	f, err := gohdf5.CreateFile(path, gohdf5.F_ACC_TRUNC)
	require.NoError(t, err)
	defer f.Close()

	g, err := f.CreateGroup("analysis")
	require.NoError(t, err)
	defer g.Close()

	dtype, err := gohdf5.NewDatatypeFromValue(analysisSongs{})
	require.NoError(t, err)
	space, err := gohdf5.CreateSimpleDataspace([]uint{uint(len(rows))}, nil)
	require.NoError(t, err)
	defer space.Close()

	ds, err := g.CreateDataset("songs", dtype, space)
	require.NoError(t, err)
	defer ds.Close()
	require.NoError(t, ds.Write(&rows))
	return path
}

func TestReader_ReadField(t *testing.T) {
	path := writeTrack(t, []analysisSongs{{Duration: 218.93, Tempo: 92.198, Key: 1, TimeSignature: 4}})

	r, err := format.Lookup(hdf5.FormatName)
	require.NoError(t, err)
	h, err := r.Open(path)
	require.NoError(t, err)
	defer h.Close()

	v, err := h.ReadField("analysis/songs", "tempo", 0)
	require.NoError(t, err)
	assert.Equal(t, model.FloatValue(92.198), v)

	v, err = h.ReadField("/analysis/songs", "time_signature", 0)
	require.NoError(t, err)
	assert.Equal(t, model.IntValue(4), v)

	_, err = h.ReadField("analysis/songs", "loudness", 0)
	assert.ErrorIs(t, err, format.ErrFieldNotFound)

	_, err = h.ReadField("musicbrainz/songs", "year", 0)
	assert.ErrorIs(t, err, format.ErrFieldNotFound)

	_, err = h.ReadField("analysis/songs", "tempo", 1)
	assert.ErrorIs(t, err, format.ErrIndexOutOfRange)
}

func TestReader_OpenInvalidFile(t *testing.T) {
	_, err := hdf5.Reader{}.Open(filepath.Join(t.TempDir(), "missing.h5"))
	assert.Error(t, err)
}
