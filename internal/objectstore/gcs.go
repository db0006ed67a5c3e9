package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"photoshare/internal/apperr"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSBackend keeps every document as one object in a single bucket. A
// container is an object-name prefix and the version token is the object's
// generation, so conditional writes map directly onto GCS preconditions.
type GCSBackend struct {
	gcs       *storage.Client
	bucket    string
	projectID string
}

// NewGCSBackend fronts bucket. When projectID is set, EnsureContainer creates
// the bucket if it does not exist yet.
func NewGCSBackend(gcs *storage.Client, bucket, projectID string) *GCSBackend {
	return &GCSBackend{
		gcs:       gcs,
		bucket:    bucket,
		projectID: projectID,
	}
}

// gcsObjectName keeps key opaque, like every other backend: no path cleaning.
func gcsObjectName(container, key string) string {
	return container + "/" + key
}

func keyFromGCSName(container, name string) string {
	return strings.TrimPrefix(name, container+"/")
}

func generationVersion(gen int64) Version {
	return Version(strconv.FormatInt(gen, 10))
}

func parseGeneration(v Version) (int64, error) {
	gen, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed GCS version token %q: %w", v, err)
	}
	return gen, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// EnsureContainer checks that the bucket exists, creating it when a project is
// configured. Container prefixes themselves need no creation.
func (g *GCSBackend) EnsureContainer(ctx context.Context, _ string) error {
	bkt := g.gcs.Bucket(g.bucket)
	_, err := bkt.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) || g.projectID == "" {
		return fmt.Errorf("while checking bucket %q: %w", g.bucket, err)
	}
	if err := bkt.Create(ctx, g.projectID, nil); err != nil {
		return fmt.Errorf("while creating bucket %q: %w", g.bucket, err)
	}
	return nil
}

func (g *GCSBackend) Get(ctx context.Context, container, key string) (*Object, error) {
	obj := g.gcs.Bucket(g.bucket).Object(gcsObjectName(container, key))

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s/%s: %w", container, key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("while opening reader for object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("while reading from object: %w", err)
	}

	return &Object{
		Key:         key,
		Data:        data,
		ContentType: r.Attrs.ContentType,
		Version:     generationVersion(r.Attrs.Generation),
	}, nil
}

func (g *GCSBackend) Put(ctx context.Context, container, key string, data []byte, opts PutOptions) (Version, error) {
	obj := g.gcs.Bucket(g.bucket).Object(gcsObjectName(container, key))

	if opts.Conditional {
		if opts.Expected == Absent {
			// Create condition: object does not currently exist.
			obj = obj.If(storage.Conditions{DoesNotExist: true})
		} else {
			gen, err := parseGeneration(opts.Expected)
			if err != nil {
				return "", err
			}
			// Update condition: object exists at the generation we're working from.
			obj = obj.If(storage.Conditions{GenerationMatch: gen})
		}
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType

	// Disable chunking.  This will expose more transient server errors to
	// calling code, but significantly reduces memory usage.
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("while writing to object writer: %w", err)
	}
	if err := w.Close(); err != nil {
		if opts.Conditional && isPreconditionFailed(err) {
			return "", ErrVersionConflict
		}
		return "", fmt.Errorf("while closing object writer: %w", err)
	}

	return generationVersion(w.Attrs().Generation), nil
}

func (g *GCSBackend) Delete(ctx context.Context, container, key string) error {
	err := g.gcs.Bucket(g.bucket).Object(gcsObjectName(container, key)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("object %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("while deleting object: %w", err)
	}
	return nil
}

type gcsIterator struct {
	backend   *GCSBackend
	container string
	inner     *storage.ObjectIterator
}

func (it *gcsIterator) Next(ctx context.Context) (*Object, error) {
	for {
		attrs, err := it.inner.Next()
		if err != nil {
			return nil, err
		}

		obj, err := it.backend.Get(ctx, it.container, keyFromGCSName(it.container, attrs.Name))
		if errors.Is(err, apperr.ErrNotFound) {
			// Object was deleted during list.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("while reading %s: %w", attrs.Name, err)
		}
		return obj, nil
	}
}

func (g *GCSBackend) List(ctx context.Context, container string) ObjectIterator {
	return &gcsIterator{
		backend:   g,
		container: container,
		inner:     g.gcs.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: container + "/"}),
	}
}

func (g *GCSBackend) Close() error {
	return g.gcs.Close()
}
