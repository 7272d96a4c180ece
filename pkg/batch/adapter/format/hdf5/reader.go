// Package hdf5 reads scalar fields from HDF5 files whose groups hold one-dimensional
// compound tables, as in the Million Song Dataset layout (/analysis/songs, /metadata/songs, ...).
package hdf5

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/hdf5"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/format"
	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

// FormatName is the name the reader is registered under.
const FormatName = "hdf5"

func init() {
	format.Register(Reader{})
}

// libMu serializes calls into the HDF5 C library, which is not built thread-safe by default.
// Pool workers still overlap their fetches; only the decode itself is serialized.
var libMu sync.Mutex

// Reader opens HDF5 files read-only.
type Reader struct{}

// Verify interfaces
var _ format.Reader = Reader{}

// Name returns "hdf5".
func (Reader) Name() string {
	return FormatName
}

// Open opens path read-only.
func (Reader) Open(path string) (format.Handle, error) {
	libMu.Lock()
	defer libMu.Unlock()
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("open hdf5 file '%s': %w", path, err)
	}
	return &handle{file: f, tables: make(map[string]*table)}, nil
}

type table struct {
	ds   *hdf5.Dataset
	dt   *hdf5.Datatype
	ct   *hdf5.CompoundType
	rows int
}

type handle struct {
	file   *hdf5.File
	tables map[string]*table
}

// table opens the compound dataset at group once per handle.
func (h *handle) table(group string) (*table, error) {
	if t, ok := h.tables[group]; ok {
		return t, nil
	}
	ds, err := h.file.OpenDataset("/" + strings.Trim(group, "/"))
	if err != nil {
		return nil, fmt.Errorf("table '%s': %w: %v", group, format.ErrFieldNotFound, err)
	}
	dt, err := ds.Datatype()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("table '%s': datatype: %w", group, err)
	}
	if dt.Class() != hdf5.T_COMPOUND {
		dt.Close()
		ds.Close()
		return nil, fmt.Errorf("table '%s' is not a compound dataset: %w", group, format.ErrUnsupportedType)
	}
	space := ds.Space()
	rows := space.SimpleExtentNPoints()
	space.Close()

	t := &table{ds: ds, dt: dt, ct: &hdf5.CompoundType{Datatype: *dt}, rows: rows}
	h.tables[group] = t
	return t, nil
}

// ReadField reads one compound member. The member is read through a single-field Go struct,
// so HDF5 converts only that member and widens integers and floats to 64 bits.
func (h *handle) ReadField(group, field string, index int) (model.Value, error) {
	libMu.Lock()
	defer libMu.Unlock()
	t, err := h.table(group)
	if err != nil {
		return model.Value{}, err
	}
	member := t.ct.MemberIndex(field)
	if member < 0 {
		return model.Value{}, fmt.Errorf("%s/%s: %w", group, field, format.ErrFieldNotFound)
	}
	if index < 0 || index >= t.rows {
		return model.Value{}, fmt.Errorf("%s/%s[%d] of %d rows: %w", group, field, index, t.rows, format.ErrIndexOutOfRange)
	}

	var goType reflect.Type
	switch class := t.ct.MemberClass(member); class {
	case hdf5.T_FLOAT:
		goType = reflect.TypeOf(float64(0))
	case hdf5.T_INTEGER:
		goType = reflect.TypeOf(int64(0))
	case hdf5.T_STRING:
		goType = reflect.TypeOf("")
	default:
		return model.Value{}, fmt.Errorf("%s/%s has class %v: %w", group, field, class, format.ErrUnsupportedType)
	}

	rowType := reflect.StructOf([]reflect.StructField{{
		Name: "V",
		Type: goType,
		Tag:  reflect.StructTag(fmt.Sprintf(`hdf5:"%s"`, field)),
	}})
	rows := reflect.New(reflect.SliceOf(rowType))
	rows.Elem().Set(reflect.MakeSlice(reflect.SliceOf(rowType), t.rows, t.rows))
	if err := t.ds.Read(rows.Interface()); err != nil {
		return model.Value{}, fmt.Errorf("read %s/%s: %w", group, field, err)
	}

	v := rows.Elem().Index(index).Field(0)
	switch v.Kind() {
	case reflect.Float64:
		return model.FloatValue(v.Float()), nil
	case reflect.Int64:
		return model.IntValue(v.Int()), nil
	default:
		return model.StringValue(strings.TrimRight(v.String(), "\x00")), nil
	}
}

// Close closes every opened table and the file.
func (h *handle) Close() error {
	libMu.Lock()
	defer libMu.Unlock()
	var result *multierror.Error
	for group, t := range h.tables {
		if err := t.dt.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close datatype of '%s': %w", group, err))
		}
		if err := t.ds.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close table '%s': %w", group, err))
		}
	}
	h.tables = nil
	if err := h.file.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
