package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/format"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// FakeFormatName is the name of the YAML-backed fake format.
const FakeFormatName = "fake"

// PanicMarker makes the fake reader panic on ReadField, like a faulting C library.
const PanicMarker = "#panic"

// FakeRecord maps group → field → scalar.
type FakeRecord map[string]map[string]interface{}

// FakeReader reads records stored as YAML documents of FakeRecord. Each table has one row.
type FakeReader struct{}

// Verify interfaces
var _ format.Reader = FakeReader{}

func (FakeReader) Name() string { return FakeFormatName }

func (FakeReader) Open(path string) (format.Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(string(data), PanicMarker) {
		return &fakeHandle{panics: true}, nil
	}
	var rec FakeRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("not a fake record: %w", err)
	}
	return &fakeHandle{rec: rec}, nil
}

type fakeHandle struct {
	rec    FakeRecord
	panics bool
}

func (h *fakeHandle) ReadField(group, field string, index int) (model.Value, error) {
	if h.panics {
		panic("segmentation violation")
	}
	table, ok := h.rec[group]
	if !ok {
		return model.Value{}, fmt.Errorf("table %s: %w", group, format.ErrFieldNotFound)
	}
	raw, ok := table[field]
	if !ok {
		return model.Value{}, fmt.Errorf("%s/%s: %w", group, field, format.ErrFieldNotFound)
	}
	if index != 0 {
		return model.Value{}, fmt.Errorf("%s/%s[%d]: %w", group, field, index, format.ErrIndexOutOfRange)
	}
	switch v := raw.(type) {
	case int:
		return model.IntValue(int64(v)), nil
	case float64:
		return model.FloatValue(v), nil
	case string:
		return model.StringValue(v), nil
	default:
		return model.Value{}, fmt.Errorf("%s/%s is %T: %w", group, field, raw, format.ErrUnsupportedType)
	}
}

func (h *fakeHandle) Close() error { return nil }

// EncodeFakeRecord renders rec in the fake format.
func EncodeFakeRecord(t testing.TB, rec FakeRecord) []byte {
	t.Helper()
	data, err := yaml.Marshal(rec)
	require.NoError(t, err)
	return data
}

// WriteFakeRecord writes rec to dir/name and returns the path.
func WriteFakeRecord(t testing.TB, dir, name string, rec FakeRecord) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, EncodeFakeRecord(t, rec), 0o644))
	return path
}

// NewFakeTrack returns a record matching NewTestColumns (tempo float, year int)
// stored under "analysis/songs" and "musicbrainz/songs".
func NewFakeTrack(tempo float64, year int) FakeRecord {
	return FakeRecord{
		"analysis/songs":    {"tempo": tempo},
		"musicbrainz/songs": {"year": year},
	}
}

// FakeTrackFields is the decode.fields configuration matching NewFakeTrack.
func FakeTrackFields() []config.FieldConfig {
	return []config.FieldConfig{
		{Group: "analysis/songs", Name: "tempo", Kind: "float"},
		{Group: "musicbrainz/songs", Name: "year", Kind: "int"},
	}
}
