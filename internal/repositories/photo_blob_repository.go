package repositories

import (
	"context"
	"fmt"

	"photoshare/internal/guard"
	"photoshare/internal/models"

	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// BlobPhotoRepository is an object store implementation of PhotoRepository.
type BlobPhotoRepository struct {
	guard *guard.Guard
}

// NewBlobPhotoRepository creates a new instance of BlobPhotoRepository.
func NewBlobPhotoRepository(g *guard.Guard) *BlobPhotoRepository {
	return &BlobPhotoRepository{
		guard: g,
	}
}

// GetAll returns every stored photo in no particular order.
func (r *BlobPhotoRepository) GetAll(ctx context.Context) ([]models.Photo, error) {
	it := r.guard.Store().List(ctx, PhotosContainer)
	photos := []models.Photo{}
	for {
		entry, err := it.Next(ctx)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list photos: %w", err)
		}
		var p models.Photo
		if err := entry.Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to decode photo %s: %w", entry.Key, err)
		}
		photos = append(photos, p)
	}
	return photos, nil
}

// GetByID retrieves a photo by its ID.
func (r *BlobPhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	var p models.Photo
	if _, err := r.guard.Store().Get(ctx, PhotosContainer, id, &p); err != nil {
		return nil, fmt.Errorf("failed to get photo %s: %w", id, err)
	}
	return &p, nil
}

// Create stores a new photo, assigning an ID if it has none.
func (r *BlobPhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	if photo.ID == "" {
		photo.ID = uuid.New().String()
	}
	if _, err := guard.CreateIfAbsent(ctx, r.guard, PhotosContainer, photo.ID, photo); err != nil {
		return fmt.Errorf("failed to create photo %s: %w", photo.ID, err)
	}
	return nil
}

// Update runs transform under the guard's optimistic retry loop.
func (r *BlobPhotoRepository) Update(ctx context.Context, id string, transform PhotoTransform) (*models.Photo, error) {
	p, err := guard.UpdateWithRetry[models.Photo](ctx, r.guard, PhotosContainer, id, transform, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to update photo %s: %w", id, err)
	}
	return &p, nil
}

// Delete removes a photo by its ID.
func (r *BlobPhotoRepository) Delete(ctx context.Context, id string) error {
	if err := r.guard.Store().Delete(ctx, PhotosContainer, id); err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", id, err)
	}
	return nil
}
