package decode_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/decode"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/test"
)

func newDecoder(t *testing.T, onFailure string) *decode.Decoder {
	t.Helper()
	catalog, err := decode.CatalogFromConfig(test.FakeTrackFields())
	require.NoError(t, err)
	d, err := decode.NewDecoder(test.FakeReader{}, catalog, 0, onFailure)
	require.NoError(t, err)
	return d
}

func staged(path string) *model.StagedRecord {
	return model.NewStagedRecord(model.RecordRef{Kind: model.RecordKindLocal, ID: path, Position: 7}, path, nil)
}

func TestDecode_Row(t *testing.T) {
	path := test.WriteFakeRecord(t, t.TempDir(), "a.h5", test.NewFakeTrack(92.5, 1998))
	d := newDecoder(t, config.OnFailureEmpty)

	res := d.Decode(context.Background(), staged(path))
	require.True(t, res.OK())
	assert.Equal(t, path, res.Row.Source)
	assert.Equal(t, int64(7), res.Row.Position)
	require.Len(t, res.Row.Fields, 2)
	assert.Equal(t, "tempo", res.Row.Fields[0].Name)
	assert.Equal(t, model.FloatValue(92.5), res.Row.Fields[0].Value)
	assert.Equal(t, model.IntValue(1998), res.Row.Fields[1].Value)
}

func TestDecode_WidensIntegers(t *testing.T) {
	path := test.WriteFakeRecord(t, t.TempDir(), "a.h5", test.NewFakeTrack(120, 2001))
	res := newDecoder(t, "").Decode(context.Background(), staged(path))
	require.True(t, res.OK())
	v, ok := res.Row.Get("tempo")
	require.True(t, ok)
	assert.Equal(t, model.FloatValue(120), v)
}

func TestDecode_Failures(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.h5")
	require.NoError(t, os.WriteFile(corrupt, []byte(":\n- [unbalanced"), 0o644))
	panics := filepath.Join(dir, "panics.h5")
	require.NoError(t, os.WriteFile(panics, []byte(test.PanicMarker), 0o644))
	missing := test.WriteFakeRecord(t, dir, "missing.h5", test.FakeRecord{"analysis/songs": {"tempo": 1.5}})
	mismatch := test.WriteFakeRecord(t, dir, "mismatch.h5", test.FakeRecord{
		"analysis/songs":    {"tempo": "fast"},
		"musicbrainz/songs": {"year": 1999},
	})

	tests := []struct {
		name   string
		path   string
		reason string
	}{
		{"unreadable", corrupt, "cannot open record"},
		{"absent file", filepath.Join(dir, "absent.h5"), "cannot open record"},
		{"library panic", panics, "panic in format reader: segmentation violation"},
		{"missing field", missing, "missing field musicbrainz/songs/year"},
		{"type mismatch", mismatch, "type mismatch in field analysis/songs/tempo"},
	}
	d := newDecoder(t, config.OnFailureEmpty)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Decode(context.Background(), staged(tt.path))
			require.False(t, res.OK())
			assert.Equal(t, tt.reason, res.Failure.Reason)
			assert.ErrorIs(t, res.Failure, exception.ErrDecode)
			assert.Equal(t, tt.path, res.Failure.Ref.ID)
		})
	}
}

func TestDecode_Interrupted(t *testing.T) {
	path := test.WriteFakeRecord(t, t.TempDir(), "a.h5", test.NewFakeTrack(92.5, 1998))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newDecoder(t, config.OnFailureEmpty).Decode(ctx, staged(path))
	assert.False(t, res.OK())
	assert.Nil(t, res.Failure)
	assert.ErrorIs(t, res.Interrupted, context.Canceled)
	_, ok := newDecoder(t, config.OnFailureEmpty).RowFor(res)
	assert.False(t, ok)
}

func TestRowFor_Policy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.h5")

	empty := newDecoder(t, config.OnFailureEmpty)
	row, ok := empty.RowFor(empty.Decode(context.Background(), staged(path)))
	require.True(t, ok)
	assert.True(t, row.Empty)
	assert.Equal(t, "cannot open record", row.FailureReason)
	require.Len(t, row.Fields, 2)
	assert.True(t, row.Fields[0].Value.Null)
	assert.Equal(t, model.KindInt, row.Fields[1].Value.Kind)

	skip := newDecoder(t, config.OnFailureSkip)
	assert.True(t, skip.SkipsFailures())
	_, ok = skip.RowFor(skip.Decode(context.Background(), staged(path)))
	assert.False(t, ok)
}

func TestCatalog(t *testing.T) {
	def := decode.DefaultCatalog()
	require.Len(t, def, 10)
	assert.Equal(t, "artist_familiarity", def[0].Name)
	assert.Equal(t, model.Column{Name: "year", Kind: model.KindInt}, def.Columns()[9])

	c, err := decode.CatalogFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, def, c)

	_, err = decode.CatalogFromConfig([]config.FieldConfig{{Group: "a", Name: "x", Kind: "float"}, {Group: "b", Name: "x", Kind: "int"}})
	assert.ErrorIs(t, err, exception.ErrConfiguration)
	_, err = decode.CatalogFromConfig([]config.FieldConfig{{Group: "a", Name: "x", Kind: "complex"}})
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestNewDecoder_RejectsUnknownPolicy(t *testing.T) {
	_, err := decode.NewDecoder(test.FakeReader{}, decode.DefaultCatalog(), 0, "retry")
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}
