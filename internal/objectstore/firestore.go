package objectstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"photoshare/internal/apperr"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreBlob is the shape of every stored Firestore document.
type firestoreBlob struct {
	Payload     []byte `firestore:"payload"`
	ContentType string `firestore:"contentType"`
}

// FirestoreBackend maps a container to a collection and a key to a document
// ID. The version token is the document's update time, checked on write with
// a LastUpdateTime precondition.
type FirestoreBackend struct {
	client *firestore.Client
}

func NewFirestoreBackend(client *firestore.Client) *FirestoreBackend {
	return &FirestoreBackend{client: client}
}

func updateTimeVersion(t time.Time) Version {
	return Version(strconv.FormatInt(t.UnixNano(), 10))
}

func parseUpdateTime(v Version) (time.Time, error) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed firestore version token %q: %w", v, err)
	}
	return time.Unix(0, n), nil
}

// EnsureContainer is a no-op; collections spring into existence on first write.
func (f *FirestoreBackend) EnsureContainer(context.Context, string) error {
	return nil
}

func (f *FirestoreBackend) snapshotToObject(snap *firestore.DocumentSnapshot) (*Object, error) {
	var blob firestoreBlob
	if err := snap.DataTo(&blob); err != nil {
		return nil, fmt.Errorf("while unmarshaling document %q: %w", snap.Ref.ID, err)
	}
	return &Object{
		Key:         snap.Ref.ID,
		Data:        blob.Payload,
		ContentType: blob.ContentType,
		Version:     updateTimeVersion(snap.UpdateTime),
	}, nil
}

func (f *FirestoreBackend) Get(ctx context.Context, container, key string) (*Object, error) {
	snap, err := f.client.Collection(container).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("document %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("while looking up document %s/%s: %w", container, key, err)
	}
	return f.snapshotToObject(snap)
}

func (f *FirestoreBackend) Put(ctx context.Context, container, key string, data []byte, opts PutOptions) (Version, error) {
	ref := f.client.Collection(container).Doc(key)
	blob := firestoreBlob{Payload: data, ContentType: opts.ContentType}

	var (
		wr  *firestore.WriteResult
		err error
	)
	switch {
	case !opts.Conditional:
		wr, err = ref.Set(ctx, blob)
	case opts.Expected == Absent:
		wr, err = ref.Create(ctx, blob)
		if status.Code(err) == codes.AlreadyExists {
			return "", ErrVersionConflict
		}
	default:
		var last time.Time
		last, err = parseUpdateTime(opts.Expected)
		if err != nil {
			return "", err
		}
		wr, err = ref.Update(ctx, []firestore.Update{
			{Path: "payload", Value: blob.Payload},
			{Path: "contentType", Value: blob.ContentType},
		}, firestore.LastUpdateTime(last))
		if c := status.Code(err); c == codes.FailedPrecondition || c == codes.NotFound {
			return "", ErrVersionConflict
		}
	}
	if err != nil {
		return "", fmt.Errorf("while storing document %s/%s: %w", container, key, err)
	}
	return updateTimeVersion(wr.UpdateTime), nil
}

func (f *FirestoreBackend) Delete(ctx context.Context, container, key string) error {
	_, err := f.client.Collection(container).Doc(key).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("document %s/%s: %w", container, key, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("while deleting document %s/%s: %w", container, key, err)
	}
	return nil
}

type firestoreIterator struct {
	backend *FirestoreBackend
	inner   *firestore.DocumentIterator
}

func (it *firestoreIterator) Next(context.Context) (*Object, error) {
	snap, err := it.inner.Next()
	if err == iterator.Done {
		it.inner.Stop()
		return nil, iterator.Done
	}
	if err != nil {
		it.inner.Stop()
		return nil, fmt.Errorf("while listing documents: %w", err)
	}
	return it.backend.snapshotToObject(snap)
}

func (f *FirestoreBackend) List(ctx context.Context, container string) ObjectIterator {
	return &firestoreIterator{
		backend: f,
		inner:   f.client.Collection(container).Documents(ctx),
	}
}

func (f *FirestoreBackend) Close() error {
	return f.client.Close()
}
