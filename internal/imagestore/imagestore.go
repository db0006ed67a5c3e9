// Package imagestore keeps uploaded image bytes in the object store and
// hands out the public URLs photos point at.
package imagestore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"photoshare/internal/apperr"
	"photoshare/internal/objectstore"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Container holds raw image bytes keyed by "{uuid}-{original filename}".
const Container = "images"

// Sink uploads images and serves them back.
type Sink struct {
	store   *objectstore.Store
	baseURL string
}

// NewSink creates a Sink whose URLs are rooted at baseURL, for example
// "http://localhost:8080".
func NewSink(store *objectstore.Store, baseURL string) *Sink {
	return &Sink{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// objectName keeps only the base of the client-supplied filename and prefixes
// it with a fresh uuid so uploads never collide.
func objectName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "image"
	}
	return uuid.New().String() + "-" + base
}

// Upload stores data and returns the URL it can be fetched from. The stored
// content type is sniffed from data; whatever the client declared is not
// trusted.
func (s *Sink) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validationf("image is empty")
	}
	// SVG is refused because it can carry script and is served from our origin.
	detected := mimetype.Detect(data)
	contentType := detected.String()
	if !strings.HasPrefix(contentType, "image/") || detected.Is("image/svg+xml") {
		return "", apperr.Validationf("unsupported image content %q", contentType)
	}

	name := objectName(filename)
	if _, err := s.store.PutBlob(ctx, Container, name, data, contentType); err != nil {
		return "", fmt.Errorf("failed to store image %s: %w", name, err)
	}
	return s.URL(name), nil
}

// URL returns the public URL of the stored image name.
func (s *Sink) URL(name string) string {
	return s.baseURL + "/images/" + name
}

// Open returns the stored image called name.
func (s *Sink) Open(ctx context.Context, name string) (*objectstore.Object, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("image %q: %w", name, apperr.ErrNotFound)
	}
	obj, err := s.store.GetBlob(ctx, Container, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", name, err)
	}
	return obj, nil
}
