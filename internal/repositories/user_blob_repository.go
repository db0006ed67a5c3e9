package repositories

import (
	"context"
	"fmt"

	"photoshare/internal/apperr"
	"photoshare/internal/guard"
	"photoshare/internal/models"

	"github.com/google/uuid"
)

// BlobUserRepository is an object store implementation of UserRepository.
type BlobUserRepository struct {
	guard *guard.Guard
}

// NewBlobUserRepository creates a new instance of BlobUserRepository.
func NewBlobUserRepository(g *guard.Guard) *BlobUserRepository {
	return &BlobUserRepository{
		guard: g,
	}
}

// Create writes the user document only if no document exists for the username.
func (r *BlobUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.Username == "" {
		return apperr.Validationf("username is required")
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, err := guard.CreateIfAbsent(ctx, r.guard, UsersContainer, user.Username, user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}
	return nil
}

// GetByUsername retrieves a user by their username.
func (r *BlobUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if _, err := r.guard.Store().Get(ctx, UsersContainer, username, &user); err != nil {
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}
