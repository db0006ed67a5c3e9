package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"photoshare/internal/apperr"
)

const (
	lockStripes = 256
	tmpSuffix   = ".tmp"
)

// LocalBackend stores each container as a directory and each document as a
// file under root.
//
// The filesystem has no compare-and-swap, so conditional writes are
// synthesized: the version token is the sha256 of the file content, and the
// compare and the rename happen under a per-key lock. The lock is striped, so
// unrelated keys may occasionally share a stripe but never interleave a
// compare-and-write on the same key. This only serializes writers inside one
// process; several processes must not share a root.
type LocalBackend struct {
	root  string
	locks [lockStripes]sync.Mutex
}

// NewLocalBackend creates a LocalBackend rooted at root, creating the directory if needed.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &LocalBackend{root: absRoot}, nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.HasSuffix(name, tmpSuffix)
}

func (l *LocalBackend) path(container, key string) (string, error) {
	if !validName(container) || !validName(key) {
		return "", fmt.Errorf("invalid object name %q/%q", container, key)
	}
	return filepath.Join(l.root, container, key), nil
}

func (l *LocalBackend) lock(container, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(container))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return &l.locks[h.Sum32()%lockStripes]
}

func contentVersion(data []byte) Version {
	sum := sha256.Sum256(data)
	return Version(hex.EncodeToString(sum[:]))
}

func contentTypeFor(key string) string {
	if ext := filepath.Ext(key); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return "application/json"
}

// EnsureContainer creates the container directory.
func (l *LocalBackend) EnsureContainer(_ context.Context, container string) error {
	if !validName(container) {
		return fmt.Errorf("invalid container name %q", container)
	}
	if err := os.MkdirAll(filepath.Join(l.root, container), 0o750); err != nil {
		return fmt.Errorf("mkdir %q: %w", container, err)
	}
	return nil
}

func (l *LocalBackend) Get(_ context.Context, container, key string) (*Object, error) {
	p, err := l.path(container, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", container, key, err)
	}
	return &Object{
		Key:         key,
		Data:        data,
		ContentType: contentTypeFor(key),
		Version:     contentVersion(data),
	}, nil
}

// Put writes via a temp file and atomic rename, checking the precondition
// against the current file content while holding the key's lock.
//
// A content-hash version matches a stale read only when the current bytes are
// identical to what the caller read, in which case its update was computed
// from the current state and nothing is lost.
func (l *LocalBackend) Put(_ context.Context, container, key string, data []byte, opts PutOptions) (Version, error) {
	dest, err := l.path(container, key)
	if err != nil {
		return "", err
	}

	mu := l.lock(container, key)
	mu.Lock()
	defer mu.Unlock()

	if opts.Conditional {
		current, err := os.ReadFile(dest)
		exists := err == nil
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s/%s: %w", container, key, err)
		}
		switch {
		case opts.Expected == Absent && exists:
			return "", ErrVersionConflict
		case opts.Expected != Absent && (!exists || contentVersion(current) != opts.Expected):
			return "", ErrVersionConflict
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", filepath.Dir(dest), err)
	}
	tmp := dest + tmpSuffix
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", fmt.Errorf("write tmp %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", fmt.Errorf("rename to %q: %w", dest, err)
	}
	return contentVersion(data), nil
}

func (l *LocalBackend) Delete(_ context.Context, container, key string) error {
	p, err := l.path(container, key)
	if err != nil {
		return err
	}

	mu := l.lock(container, key)
	mu.Lock()
	defer mu.Unlock()

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file %s/%s: %w", container, key, apperr.ErrNotFound)
		}
		return fmt.Errorf("remove %s/%s: %w", container, key, err)
	}
	return nil
}

// List reads the container directory once and loads files lazily.
func (l *LocalBackend) List(_ context.Context, container string) ObjectIterator {
	entries, err := os.ReadDir(filepath.Join(l.root, container))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newKeySnapshotIterator(l, container, nil, nil)
		}
		return newKeySnapshotIterator(l, container, nil, fmt.Errorf("read dir %q: %w", container, err))
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !validName(e.Name()) {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return newKeySnapshotIterator(l, container, keys, nil)
}

func (l *LocalBackend) Close() error { return nil }
