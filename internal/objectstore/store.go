package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"photoshare/internal/apperr"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/iterator"
)

const (
	tracerName      = "photoshare/internal/objectstore"
	jsonContentType = "application/json"
)

// Store is the JSON document layer over a Backend.
type Store struct {
	backend Backend
	log     zerolog.Logger

	// containers records which containers have been ensured by this process.
	containers sync.Map
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log.With().Str("component", "objectstore").Logger(),
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) startSpan(ctx context.Context, op, container, key string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Store."+op)
	span.SetAttributes(attribute.String("container", container))
	if key != "" {
		span.SetAttributes(attribute.String("key", key))
	}
	return ctx, span
}

// endSpan records err on span. NotFound and version conflicts are expected
// outcomes, not span errors.
func endSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil || errors.Is(err, apperr.ErrNotFound) || errors.Is(err, ErrVersionConflict) {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// classify passes through the kinds the layers above act on and turns
// everything else into an apperr.ErrStorage.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, ErrVersionConflict) || errors.Is(err, apperr.ErrStorage) {
		return err
	}
	return apperr.Storage(op, err)
}

func (s *Store) ensure(ctx context.Context, container string) error {
	if _, ok := s.containers.Load(container); ok {
		return nil
	}
	if err := s.backend.EnsureContainer(ctx, container); err != nil {
		return apperr.Storage("ensure container "+container, err)
	}
	if _, loaded := s.containers.LoadOrStore(container, struct{}{}); !loaded {
		s.log.Debug().Str("container", container).Msg("container ready")
	}
	return nil
}

// Put serializes v and overwrites whatever is stored at key.
func (s *Store) Put(ctx context.Context, container, key string, v any) (Version, error) {
	ctx, span := s.startSpan(ctx, "Put", container, key)
	ver, err := s.put(ctx, container, key, v, PutOptions{ContentType: jsonContentType})
	endSpan(span, err)
	return ver, err
}

// PutIfVersion serializes v and writes it only if the stored version equals
// expected. With expected == Absent the write succeeds only if key is unused.
// A failed precondition is reported as ErrVersionConflict.
func (s *Store) PutIfVersion(ctx context.Context, container, key string, v any, expected Version) (Version, error) {
	ctx, span := s.startSpan(ctx, "PutIfVersion", container, key)
	ver, err := s.put(ctx, container, key, v, PutOptions{
		ContentType: jsonContentType,
		Conditional: true,
		Expected:    expected,
	})
	endSpan(span, err)
	return ver, err
}

func (s *Store) put(ctx context.Context, container, key string, v any, opts PutOptions) (Version, error) {
	if err := s.ensure(ctx, container); err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperr.Storage("marshal "+container+"/"+key, err)
	}
	ver, err := s.backend.Put(ctx, container, key, data, opts)
	if err != nil {
		return "", classify("put "+container+"/"+key, err)
	}
	return ver, nil
}

// Get decodes the document at key into out and returns its version.
func (s *Store) Get(ctx context.Context, container, key string, out any) (Version, error) {
	ctx, span := s.startSpan(ctx, "Get", container, key)
	ver, err := s.get(ctx, container, key, out)
	endSpan(span, err)
	return ver, err
}

func (s *Store) get(ctx context.Context, container, key string, out any) (Version, error) {
	if err := s.ensure(ctx, container); err != nil {
		return "", err
	}
	obj, err := s.backend.Get(ctx, container, key)
	if err != nil {
		return "", classify("get "+container+"/"+key, err)
	}
	if err := json.Unmarshal(obj.Data, out); err != nil {
		return "", apperr.Storage("unmarshal "+container+"/"+key, err)
	}
	return obj.Version, nil
}

// Delete removes the document at key.
func (s *Store) Delete(ctx context.Context, container, key string) error {
	ctx, span := s.startSpan(ctx, "Delete", container, key)
	err := s.ensure(ctx, container)
	if err == nil {
		err = classify("delete "+container+"/"+key, s.backend.Delete(ctx, container, key))
	}
	endSpan(span, err)
	return err
}

// PutBlob stores raw bytes without JSON encoding.
func (s *Store) PutBlob(ctx context.Context, container, key string, data []byte, contentType string) (Version, error) {
	ctx, span := s.startSpan(ctx, "PutBlob", container, key)
	var ver Version
	err := s.ensure(ctx, container)
	if err == nil {
		ver, err = s.backend.Put(ctx, container, key, data, PutOptions{ContentType: contentType})
		err = classify("put blob "+container+"/"+key, err)
	}
	endSpan(span, err)
	return ver, err
}

// GetBlob returns the raw object at key.
func (s *Store) GetBlob(ctx context.Context, container, key string) (*Object, error) {
	ctx, span := s.startSpan(ctx, "GetBlob", container, key)
	var obj *Object
	err := s.ensure(ctx, container)
	if err == nil {
		obj, err = s.backend.Get(ctx, container, key)
		err = classify("get blob "+container+"/"+key, err)
	}
	endSpan(span, err)
	return obj, err
}

// Entry is one document produced by Iterator.
type Entry struct {
	Key     string
	Version Version
	data    []byte
}

// Decode unmarshals the entry's payload into out.
func (e *Entry) Decode(out any) error {
	if err := json.Unmarshal(e.data, out); err != nil {
		return apperr.Storage("unmarshal "+e.Key, err)
	}
	return nil
}

// Iterator lazily walks a container. Next returns iterator.Done at the end.
type Iterator struct {
	container string
	inner     ObjectIterator
	err       error
}

// List returns an iterator over every document in container. Order is
// unspecified and there is no snapshot isolation.
func (s *Store) List(ctx context.Context, container string) *Iterator {
	if err := s.ensure(ctx, container); err != nil {
		return &Iterator{container: container, err: err}
	}
	return &Iterator{
		container: container,
		inner:     s.backend.List(ctx, container),
	}
}

// Next returns the next document, or iterator.Done once the container is exhausted.
func (it *Iterator) Next(ctx context.Context) (*Entry, error) {
	if it.err != nil {
		return nil, it.err
	}
	obj, err := it.inner.Next(ctx)
	if err == iterator.Done {
		return nil, iterator.Done
	}
	if err != nil {
		return nil, classify(fmt.Sprintf("list %s", it.container), err)
	}
	return &Entry{Key: obj.Key, Version: obj.Version, data: obj.Data}, nil
}
