package imagestore_test

import (
	"context"
	"strings"
	"testing"

	"photoshare/internal/apperr"
	"photoshare/internal/imagestore"
	"photoshare/internal/objectstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newSink(t *testing.T) *imagestore.Sink {
	t.Helper()
	store := objectstore.NewStore(objectstore.NewMemoryBackend(), zerolog.Nop())
	t.Cleanup(func() { store.Close() })
	return imagestore.NewSink(store, "http://localhost:8080/")
}

func TestSink_UploadAndOpen(t *testing.T) {
	sink := newSink(t)
	ctx := context.Background()

	url, err := sink.Upload(ctx, "../../etc/cat.png", pngHeader)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/images/"), url)
	assert.True(t, strings.HasSuffix(url, "-cat.png"), url)

	name := strings.TrimPrefix(url, "http://localhost:8080/images/")
	obj, err := sink.Open(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, obj.Data)
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestSink_UploadSameNameTwice(t *testing.T) {
	sink := newSink(t)
	ctx := context.Background()

	a, err := sink.Upload(ctx, "cat.png", pngHeader)
	require.NoError(t, err)
	b, err := sink.Upload(ctx, "cat.png", pngHeader)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSink_DetectsContentType(t *testing.T) {
	sink := newSink(t)
	ctx := context.Background()

	url, err := sink.Upload(ctx, "cat", pngHeader)
	require.NoError(t, err)
	obj, err := sink.Open(ctx, strings.TrimPrefix(url, "http://localhost:8080/images/"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestSink_RejectsBadUploads(t *testing.T) {
	sink := newSink(t)
	ctx := context.Background()

	_, err := sink.Upload(ctx, "empty.png", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = sink.Upload(ctx, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSink_IgnoresDeclaredContentType(t *testing.T) {
	sink := newSink(t)
	ctx := context.Background()

	// HTML named like a png is still HTML.
	_, err := sink.Upload(ctx, "cat.png", []byte("<html><script>alert(1)</script></html>"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
	_, err = sink.Upload(ctx, "logo.svg", svg)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSink_OpenMissing(t *testing.T) {
	sink := newSink(t)
	ctx := context.Background()

	_, err := sink.Open(ctx, "nope.png")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = sink.Open(ctx, "../users/ann")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
