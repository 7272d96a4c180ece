// Package format defines the reader abstraction for structured scientific record files
// and a registry of the available implementations.
package format

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
)

var (
	// ErrFieldNotFound is returned (wrapped) when a group or field is absent from a record.
	ErrFieldNotFound = errors.New("field not found")
	// ErrIndexOutOfRange is returned (wrapped) when a table has fewer rows than the requested index.
	ErrIndexOutOfRange = errors.New("record index out of range")
	// ErrUnsupportedType is returned (wrapped) when a field cannot be represented as a scalar Value.
	ErrUnsupportedType = errors.New("unsupported field type")
)

// Reader opens record files of one format.
type Reader interface {
	// Name returns the format name used in configuration (e.g., "hdf5").
	Name() string
	Open(path string) (Handle, error)
}

// Handle reads scalar fields from an open record file.
type Handle interface {
	// ReadField returns the value of field in row index of the table at group.
	ReadField(group, field string, index int) (model.Value, error)
	Close() error
}

var (
	readers   = make(map[string]Reader)
	readersMu sync.RWMutex
)

// Register makes a Reader available under its Name.
func Register(r Reader) {
	readersMu.Lock()
	defer readersMu.Unlock()
	readers[r.Name()] = r
}

// Lookup returns the Reader registered under name.
func Lookup(name string) (Reader, error) {
	readersMu.RLock()
	defer readersMu.RUnlock()
	r, ok := readers[name]
	if !ok {
		return nil, fmt.Errorf("no format reader registered for '%s' (available: %v)", name, namesLocked())
	}
	return r, nil
}

func namesLocked() []string {
	names := make([]string, 0, len(readers))
	for n := range readers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
