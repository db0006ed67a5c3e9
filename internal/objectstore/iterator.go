package objectstore

import (
	"context"
	"errors"
	"fmt"

	"photoshare/internal/apperr"

	"google.golang.org/api/iterator"
)

// keySnapshotIterator walks a key listing taken up front and fetches each
// object only when Next reaches it, so documents created after the listing are
// missed and documents deleted since are skipped.
type keySnapshotIterator struct {
	backend   Backend
	container string
	keys      []string
	err       error
}

func newKeySnapshotIterator(b Backend, container string, keys []string, err error) *keySnapshotIterator {
	return &keySnapshotIterator{
		backend:   b,
		container: container,
		keys:      keys,
		err:       err,
	}
}

func (it *keySnapshotIterator) Next(ctx context.Context) (*Object, error) {
	if it.err != nil {
		return nil, it.err
	}
	for len(it.keys) > 0 {
		key := it.keys[0]
		it.keys = it.keys[1:]

		obj, err := it.backend.Get(ctx, it.container, key)
		if errors.Is(err, apperr.ErrNotFound) {
			// Object was deleted during list.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("while reading %s/%s: %w", it.container, key, err)
		}
		return obj, nil
	}
	return nil, iterator.Done
}
