package repositories

import (
	"context"

	"photoshare/internal/models"
)

// UsersContainer holds one document per user, keyed by username.
const UsersContainer = "users"

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create stores user under its username. It fails with
	// apperr.ErrAlreadyExists if the username is taken.
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
