package test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/tigerroll/recordbatch/pkg/batch/adapter/storage"
	coreadapter "github.com/tigerroll/recordbatch/pkg/batch/core/adapter"
)

// ListCall records the arguments of one ListPage call.
type ListCall struct {
	Bucket, Prefix, StartAfter, Token string
	MaxKeys                           int
}

// MemoryStore is an in-memory StorageConnection. Listings are lexicographic and paged by the
// last key returned. Errors queued in ListErrs and UploadErrs are returned by the next calls
// of the respective operation, one per call.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	ListCalls    []ListCall
	ListErrs     []error
	UploadErrs   []error
	UploadCalls  int
	DownloadErrs map[string]error
	ExistsErr    error
	// Pages overrides the listing with fixed pages, served in order regardless of arguments.
	Pages []storage.Page
}

// Verify interfaces
var _ storage.StorageConnection = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), DownloadErrs: make(map[string]error)}
}

func objectKey(bucket, key string) string {
	return bucket + "\x00" + key
}

// Put stores an object directly.
func (s *MemoryStore) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey(bucket, key)] = append([]byte(nil), data...)
}

// Get returns a stored object.
func (s *MemoryStore) Get(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectKey(bucket, key)]
	return data, ok
}

// Keys returns the sorted keys of bucket.
func (s *MemoryStore) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(bucket, "")
}

func (s *MemoryStore) keysLocked(bucket, prefix string) []string {
	var keys []string
	for k := range s.objects {
		b, key, _ := strings.Cut(k, "\x00")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryStore) Close() error { return nil }
func (s *MemoryStore) Type() string { return "memory" }
func (s *MemoryStore) Name() string { return "memory" }

// ListPage pages over the stored keys.
func (s *MemoryStore) ListPage(ctx context.Context, bucket, prefix, startAfter, token string, maxKeys int) (storage.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls = append(s.ListCalls, ListCall{bucket, prefix, startAfter, token, maxKeys})
	if err := ctx.Err(); err != nil {
		return storage.Page{}, err
	}
	if len(s.ListErrs) > 0 {
		err := s.ListErrs[0]
		s.ListErrs = s.ListErrs[1:]
		if err != nil {
			return storage.Page{}, err
		}
	}
	if len(s.Pages) > 0 {
		page := s.Pages[0]
		s.Pages = s.Pages[1:]
		return page, nil
	}

	after := startAfter
	if token > after {
		after = token
	}
	var page storage.Page
	for _, key := range s.keysLocked(bucket, prefix) {
		if key <= after {
			continue
		}
		if maxKeys > 0 && len(page.Keys) == maxKeys {
			page.Truncated = true
			page.NextToken = page.Keys[len(page.Keys)-1]
			break
		}
		page.Keys = append(page.Keys, key)
	}
	return page, nil
}

// Upload stores data. It never overwrites.
func (s *MemoryStore) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	s.UploadCalls++
	if len(s.UploadErrs) > 0 {
		err := s.UploadErrs[0]
		s.UploadErrs = s.UploadErrs[1:]
		if err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(buf)) != size {
		return fmt.Errorf("memory store: short upload of '%s': %d of %d bytes", key, len(buf), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[objectKey(bucket, key)]; ok {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, storage.ErrObjectExists)
	}
	s.objects[objectKey(bucket, key)] = buf
	return nil
}

// Download returns a copy of the object.
func (s *MemoryStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.DownloadErrs[key]; err != nil {
		return nil, err
	}
	data, ok := s.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, key, storage.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reports whether the object is stored.
func (s *MemoryStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	_, ok := s.objects[objectKey(bucket, key)]
	return ok, nil
}

// DeleteObject removes the object.
func (s *MemoryStore) DeleteObject(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey(bucket, key))
	return nil
}

// StaticStorageResolver resolves every name to the same connection.
type StaticStorageResolver struct {
	Conn storage.StorageConnection
}

// Verify interfaces
var _ storage.StorageConnectionResolver = (*StaticStorageResolver)(nil)

func (r *StaticStorageResolver) ResolveConnection(ctx context.Context, name string) (coreadapter.ResourceConnection, error) {
	return r.Conn, nil
}

func (r *StaticStorageResolver) ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error) {
	return r.Conn, nil
}

func (r *StaticStorageResolver) CloseAll() error {
	return r.Conn.Close()
}
