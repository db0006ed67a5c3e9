// Package guard turns the object store's conditional writes into safe
// read-modify-write and create-once primitives.
//
// It is the only place allowed to run a fetch, transform, conditional-store
// loop. No lock is held across storage calls; a lost race shows up as a
// version conflict and the loop starts over from a fresh read.
package guard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"photoshare/internal/apperr"
	"photoshare/internal/objectstore"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is how many read-modify-write rounds an update gets.
	DefaultMaxAttempts = 3
	// DefaultBackoff is the delay before the first retry.
	DefaultBackoff = 10 * time.Millisecond
)

// ErrNoChange may be returned by a transform to report that the document
// already has the desired state; UpdateWithRetry then skips the write.
var ErrNoChange = errors.New("no change")

// Guard holds the retry policy shared by all guarded operations.
type Guard struct {
	store       *objectstore.Store
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxAttempts sets the default attempt budget for UpdateWithRetry.
func WithMaxAttempts(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts. It doubles on every retry
// and gets up to 50% random jitter.
func WithBackoff(d time.Duration) Option {
	return func(g *Guard) {
		if d >= 0 {
			g.backoff = d
		}
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Guard) {
		g.log = log.With().Str("component", "guard").Logger()
	}
}

// New creates a Guard over store.
func New(store *objectstore.Store, opts ...Option) *Guard {
	g := &Guard{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the underlying object store for plain reads and deletes.
func (g *Guard) Store() *objectstore.Store {
	return g.store
}

func (g *Guard) sleep(ctx context.Context, attempt int) error {
	if g.backoff == 0 {
		return ctx.Err()
	}
	d := g.backoff << (attempt - 1)
	d += time.Duration(rand.Int63n(int64(d)/2 + 1))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// UpdateWithRetry reads the document at (container, key), applies transform to
// it and writes the result back only if the document has not changed since the
// read. On a version conflict it backs off and starts again from a fresh read,
// at most maxAttempts times (the guard's default when maxAttempts <= 0).
//
// transform receives a freshly decoded value on every attempt and must not
// keep references to it between calls. Errors from transform abort the update
// and are returned unchanged, except ErrNoChange which yields the current value.
//
// A missing document yields apperr.ErrNotFound; exhausting the attempts yields
// apperr.ErrConflict.
func UpdateWithRetry[T any](ctx context.Context, g *Guard, container, key string, transform func(T) (T, error), maxAttempts int) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = g.maxAttempts
	}

	var zero T
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var current T
		ver, err := g.store.Get(ctx, container, key, &current)
		if err != nil {
			return zero, err
		}

		next, err := transform(current)
		if errors.Is(err, ErrNoChange) {
			return current, nil
		}
		if err != nil {
			return zero, err
		}

		_, err = g.store.PutIfVersion(ctx, container, key, next, ver)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, objectstore.ErrVersionConflict) {
			return zero, err
		}

		g.log.Debug().
			Str("container", container).
			Str("key", key).
			Int("attempt", attempt).
			Msg("version conflict, retrying")

		if attempt < maxAttempts {
			if err := g.sleep(ctx, attempt); err != nil {
				return zero, err
			}
		}
	}

	g.log.Warn().
		Str("container", container).
		Str("key", key).
		Int("attempts", maxAttempts).
		Msg("update gave up after repeated version conflicts")
	return zero, fmt.Errorf("%w: %s/%s after %d attempts", apperr.ErrConflict, container, key, maxAttempts)
}

// CreateIfAbsent stores value at (container, key) only if nothing is there
// yet. A losing race reports apperr.ErrAlreadyExists; there is no retry because
// the caller asked for creation, not a merge.
func CreateIfAbsent[T any](ctx context.Context, g *Guard, container, key string, value T) (objectstore.Version, error) {
	ver, err := g.store.PutIfVersion(ctx, container, key, value, objectstore.Absent)
	if errors.Is(err, objectstore.ErrVersionConflict) {
		return "", fmt.Errorf("%w: %s/%s", apperr.ErrAlreadyExists, container, key)
	}
	return ver, err
}
