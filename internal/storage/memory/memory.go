// Package memory provides an in-process object store for tests and
// ephemeral deployments.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

const backendType = "memory"

type object struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// Store is a map-backed storage.ObjectStore.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

var _ storage.ObjectStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

// Put stores a copy of body.
func (s *Store) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	start := time.Now()
	data, err := io.ReadAll(body)
	metrics.RecordStoreOperation(backendType, "put_object", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("read body for %s: %w", key, err)
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, contentType: contentType, modTime: s.now()}
	s.mu.Unlock()
	return nil
}

// Get returns a reader over the stored bytes.
func (s *Store) Get(_ context.Context, key string) (*storage.Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	metrics.RecordStoreOperation(backendType, "get_object", 0, ok)
	if !ok {
		return nil, fmt.Errorf("get object %s: %w", key, storage.ErrNotFound)
	}
	return &storage.Object{
		Body: io.NopCloser(bytes.NewReader(obj.data)),
		Info: info(key, obj),
	}, nil
}

// Delete removes key if present.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	metrics.RecordStoreOperation(backendType, "delete_object", 0, true)
	return nil
}

// Copy duplicates srcKey under dstKey.
func (s *Store) Copy(_ context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[srcKey]
	metrics.RecordStoreOperation(backendType, "copy_object", 0, ok)
	if !ok {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, storage.ErrNotFound)
	}
	s.objects[dstKey] = object{
		data:        append([]byte(nil), obj.data...),
		contentType: obj.contentType,
		modTime:     s.now(),
	}
	return nil
}

// List returns a sorted listing under prefix.
func (s *Store) List(_ context.Context, prefix, delimiter string) (*storage.Listing, error) {
	s.mu.RLock()
	records := make([]storage.ObjectRecord, 0, len(s.objects))
	for key, obj := range s.objects {
		records = append(records, storage.ObjectRecord{
			Key:            key,
			Size:           int64(len(obj.data)),
			LastModified:   obj.modTime,
			IsFolderMarker: storage.IsFolderMarkerKey(key),
		})
	}
	s.mu.RUnlock()

	metrics.RecordStoreOperation(backendType, "list_objects", 0, true)
	return storage.GroupListing(prefix, delimiter, records), nil
}

// Head returns metadata for key.
func (s *Store) Head(_ context.Context, key string) (*storage.ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	metrics.RecordStoreOperation(backendType, "head_object", 0, ok)
	if !ok {
		return nil, fmt.Errorf("head object %s: %w", key, storage.ErrNotFound)
	}
	oi := info(key, obj)
	return &oi, nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Has reports whether key is stored.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Type returns "memory".
func (s *Store) Type() string { return backendType }

// Close drops all objects.
func (s *Store) Close() error {
	s.mu.Lock()
	s.objects = make(map[string]object)
	s.mu.Unlock()
	return nil
}

func info(key string, obj object) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modTime,
		ContentType:  obj.contentType,
	}
}
