package repositories

import (
	"context"

	"photoshare/internal/models"
)

// PhotosContainer holds one document per photo, keyed by photo ID. Comments
// are embedded in the photo document.
const PhotosContainer = "photos"

// PhotoTransform computes the next state of a photo from the current one.
// It may run several times for one update and must not have side effects.
type PhotoTransform func(models.Photo) (models.Photo, error)

// PhotoRepository defines the interface for photo data access.
type PhotoRepository interface {
	GetAll(ctx context.Context) ([]models.Photo, error)
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	Create(ctx context.Context, photo *models.Photo) error
	// Update applies transform to the stored photo and writes the result
	// without losing concurrent updates.
	Update(ctx context.Context, id string, transform PhotoTransform) (*models.Photo, error)
	Delete(ctx context.Context, id string) error
}
