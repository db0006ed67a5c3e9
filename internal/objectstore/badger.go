package objectstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"photoshare/internal/apperr"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

// commitRetries bounds how often an unconditional write is replayed after a
// badger transaction conflict.
const commitRetries = 5

// BadgerBackend stores blobs in an embedded badger key-value store. Keys are
// "<container>/<key>"; values carry a small header with the version token and
// content type in front of the payload.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (creating if needed) a badger database in dir.
func OpenBadger(dir string) (*BadgerBackend, error) {
	db, err := badger.Open(badger.DefaultOptions(dir))
	if err != nil {
		return nil, fmt.Errorf("while opening badger kv dir: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(container, key string) []byte {
	return []byte(container + "/" + key)
}

func badgerPrefix(container string) []byte {
	return []byte(container + "/")
}

// encodeEnvelope lays out: u16 len(version) | version | u16 len(ctype) | ctype | payload.
func encodeEnvelope(ver Version, contentType string, data []byte) []byte {
	buf := make([]byte, 0, 4+len(ver)+len(contentType)+len(data))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ver)))
	buf = append(buf, ver...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(contentType)))
	buf = append(buf, contentType...)
	return append(buf, data...)
}

func decodeEnvelope(key string, raw []byte) (*Object, error) {
	readField := func() (string, error) {
		if len(raw) < 2 {
			return "", fmt.Errorf("value for %q is truncated", key)
		}
		n := int(binary.BigEndian.Uint16(raw[:2]))
		if len(raw) < 2+n {
			return "", fmt.Errorf("value for %q is truncated", key)
		}
		field := string(raw[2 : 2+n])
		raw = raw[2+n:]
		return field, nil
	}

	ver, err := readField()
	if err != nil {
		return nil, err
	}
	contentType, err := readField()
	if err != nil {
		return nil, err
	}
	return &Object{
		Key:         key,
		Data:        raw,
		ContentType: contentType,
		Version:     Version(ver),
	}, nil
}

func (b *BadgerBackend) getTxn(txn *badger.Txn, container, key string) (*Object, error) {
	item, err := txn.Get(badgerKey(container, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("key %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("while reading key %s/%s: %w", container, key, err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("while copying value for %s/%s: %w", container, key, err)
	}
	return decodeEnvelope(key, raw)
}

// EnsureContainer is a no-op; containers are key prefixes.
func (b *BadgerBackend) EnsureContainer(context.Context, string) error {
	return nil
}

func (b *BadgerBackend) Get(_ context.Context, container, key string) (*Object, error) {
	var obj *Object
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		obj, err = b.getTxn(txn, container, key)
		return err
	})
	return obj, err
}

// Put writes the envelope inside a read-write transaction. For conditional
// writes the transaction reads the key first, so a concurrent commit to it
// fails ours with badger.ErrConflict, which is reported as a version conflict.
func (b *BadgerBackend) Put(_ context.Context, container, key string, data []byte, opts PutOptions) (Version, error) {
	ver := Version(uuid.New().String())
	value := encodeEnvelope(ver, opts.ContentType, data)

	write := func(txn *badger.Txn) error {
		if opts.Conditional {
			current, err := b.getTxn(txn, container, key)
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				if opts.Expected != Absent {
					return ErrVersionConflict
				}
			case err != nil:
				return err
			case opts.Expected == Absent || current.Version != opts.Expected:
				return ErrVersionConflict
			}
		}
		return txn.Set(badgerKey(container, key), value)
	}

	if opts.Conditional {
		err := b.db.Update(write)
		if errors.Is(err, badger.ErrConflict) {
			return "", ErrVersionConflict
		}
		if err != nil {
			return "", err
		}
		return ver, nil
	}

	if err := b.updateWithCommitRetry(write); err != nil {
		return "", fmt.Errorf("while writing %s/%s: %w", container, key, err)
	}
	return ver, nil
}

func (b *BadgerBackend) Delete(_ context.Context, container, key string) error {
	return b.updateWithCommitRetry(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(container, key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("key %s/%s: %w", container, key, apperr.ErrNotFound)
			}
			return err
		}
		return txn.Delete(badgerKey(container, key))
	})
}

func (b *BadgerBackend) updateWithCommitRetry(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < commitRetries; i++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// List collects the keys under the container prefix in one read transaction
// and fetches values lazily.
func (b *BadgerBackend) List(_ context.Context, container string) ObjectIterator {
	prefix := badgerPrefix(container)
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(bytes.TrimPrefix(k, prefix)))
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("while listing %s: %w", container, err)
	}
	return newKeySnapshotIterator(b, container, keys, err)
}

func (b *BadgerBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("while closing database: %w", err)
	}
	return nil
}
