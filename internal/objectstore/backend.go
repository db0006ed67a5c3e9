// Package objectstore persists JSON documents as one blob per entity.
//
// A Backend moves raw bytes in and out of a blob medium (memory, SQL table,
// badger, local disk, GCS, Firestore). Store layers JSON encoding, container
// auto-creation, tracing and error classification on top of it.
package objectstore

import (
	"context"
	"errors"
)

// Version is the opaque token a backend assigns to every successful write.
type Version string

// Absent is the expected version meaning "no document may exist at this key".
const Absent Version = ""

// ErrVersionConflict is returned by a conditional write whose expected version
// no longer matches the stored one.
var ErrVersionConflict = errors.New("version conflict")

// Object is a single stored blob.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Version     Version
}

// PutOptions controls a backend write.
type PutOptions struct {
	ContentType string

	// Conditional makes the write succeed only if the stored version equals
	// Expected, or, when Expected is Absent, only if nothing is stored.
	Conditional bool
	Expected    Version
}

// Backend abstracts the blob medium.
//
// Get and Delete return apperr.ErrNotFound for a missing key. A conditional
// Put returns ErrVersionConflict when its precondition fails. Implementations
// must be safe for concurrent use.
type Backend interface {
	// EnsureContainer creates the container if the medium needs it.
	EnsureContainer(ctx context.Context, container string) error

	Get(ctx context.Context, container, key string) (*Object, error)

	// Put writes data and returns the new version.
	Put(ctx context.Context, container, key string, data []byte, opts PutOptions) (Version, error)

	Delete(ctx context.Context, container, key string) error

	// List iterates over the container lazily. Objects deleted while the
	// iteration is running are skipped.
	List(ctx context.Context, container string) ObjectIterator

	Close() error
}

// ObjectIterator yields objects until it returns iterator.Done.
type ObjectIterator interface {
	Next(ctx context.Context) (*Object, error)
}
