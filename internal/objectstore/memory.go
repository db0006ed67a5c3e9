package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"photoshare/internal/apperr"
)

// MemoryBackend is an in-memory implementation of Backend.
type MemoryBackend struct {
	containers map[string]map[string]Object
	seq        uint64
	mu         sync.RWMutex
}

// NewMemoryBackend creates a new, empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		containers: make(map[string]map[string]Object),
	}
}

// EnsureContainer creates the container map on first use.
func (m *MemoryBackend) EnsureContainer(_ context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string]Object)
	}
	return nil
}

// Get returns a copy of the stored object.
func (m *MemoryBackend) Get(_ context.Context, container, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.containers[container][key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

// Put stores data, checking the precondition under the write lock.
func (m *MemoryBackend) Put(_ context.Context, container, key string, data []byte, opts PutOptions) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	objects, ok := m.containers[container]
	if !ok {
		objects = make(map[string]Object)
		m.containers[container] = objects
	}

	if opts.Conditional {
		current, exists := objects[key]
		switch {
		case opts.Expected == Absent && exists:
			return "", ErrVersionConflict
		case opts.Expected != Absent && (!exists || current.Version != opts.Expected):
			return "", ErrVersionConflict
		}
	}

	m.seq++
	ver := Version(strconv.FormatUint(m.seq, 10))
	objects[key] = Object{
		Key:         key,
		Data:        append([]byte(nil), data...),
		ContentType: opts.ContentType,
		Version:     ver,
	}
	return ver, nil
}

// Delete removes an object by key.
func (m *MemoryBackend) Delete(_ context.Context, container, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[container][key]; !ok {
		return fmt.Errorf("object %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	delete(m.containers[container], key)
	return nil
}

// List snapshots the container's keys and reads each object on demand.
func (m *MemoryBackend) List(_ context.Context, container string) ObjectIterator {
	m.mu.RLock()
	keys := make([]string, 0, len(m.containers[container]))
	for k := range m.containers[container] {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return newKeySnapshotIterator(m, container, keys, nil)
}

func (m *MemoryBackend) Close() error { return nil }
