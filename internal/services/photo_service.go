package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"photoshare/internal/apperr"
	"photoshare/internal/guard"
	"photoshare/internal/models"
	"photoshare/internal/repositories"
	"photoshare/pkg/rabbitmq"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Routing keys of the events published after each successful mutation.
const (
	EventPhotoCreated   = "photo.created"
	EventPhotoLiked     = "photo.liked"
	EventPhotoCommented = "photo.commented"
	EventPhotoRated     = "photo.rated"
	EventPhotoUpdated   = "photo.updated"
	EventPhotoDeleted   = "photo.deleted"
)

// EventPublisher is satisfied by *rabbitmq.Client.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// PhotoEvent is the JSON body of every published photo event.
type PhotoEvent struct {
	Type       string    `json:"type"`
	PhotoID    string    `json:"photoId"`
	UserID     string    `json:"userId,omitempty"`
	CommentID  string    `json:"commentId,omitempty"`
	Rating     float64   `json:"rating,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// CreatePhotoInput carries the fields of a new photo.
type CreatePhotoInput struct {
	URL         string `json:"url" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Caption     string `json:"caption"`
	Location    string `json:"location"`
	Tags        string `json:"tags"`
	CreatorID   string `json:"creatorId" validate:"required"`
	CreatorName string `json:"creatorName" validate:"required"`
}

// PhotoService handles business logic related to photos. Every mutation of an
// existing photo is a pure transform run through the repository's guarded
// update, so concurrent likes, comments and ratings are never lost.
type PhotoService struct {
	photoRepo repositories.PhotoRepository
	publisher EventPublisher
	validate  *validator.Validate
	log       zerolog.Logger
	now       func() time.Time
}

// NewPhotoService creates a new PhotoService. publisher may be nil, in which
// case no events are sent.
func NewPhotoService(photoRepo repositories.PhotoRepository, publisher EventPublisher, log zerolog.Logger) *PhotoService {
	return &PhotoService{
		photoRepo: photoRepo,
		publisher: publisher,
		validate:  validator.New(),
		log:       log.With().Str("component", "photos").Logger(),
		now:       time.Now,
	}
}

// CreatePhoto stores a new photo with no likes, comments or ratings.
func (s *PhotoService) CreatePhoto(ctx context.Context, in CreatePhotoInput) (*models.Photo, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	photo := &models.Photo{
		ID:          uuid.New().String(),
		URL:         in.URL,
		Title:       in.Title,
		Caption:     in.Caption,
		Location:    in.Location,
		Tags:        in.Tags,
		CreatorID:   in.CreatorID,
		CreatorName: in.CreatorName,
		LikedBy:     []string{},
		Comments:    []models.Comment{},
		UploadedAt:  s.now().UTC(),
	}
	if err := s.photoRepo.Create(ctx, photo); err != nil {
		return nil, err
	}

	s.publish(PhotoEvent{Type: EventPhotoCreated, PhotoID: photo.ID, UserID: photo.CreatorID})
	return photo, nil
}

// GetPhoto retrieves a single photo by its ID.
func (s *PhotoService) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	return s.photoRepo.GetByID(ctx, id)
}

// ListPhotos returns all photos, newest first.
func (s *PhotoService) ListPhotos(ctx context.Context) ([]models.Photo, error) {
	photos, err := s.photoRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(photos, func(a, b models.Photo) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	return photos, nil
}

// LikeOnce records that userID likes the photo. Liking twice is a no-op that
// performs no write.
func (s *PhotoService) LikeOnce(ctx context.Context, photoID, userID string) (*models.Photo, error) {
	if userID == "" {
		return nil, apperr.Validationf("user id is required")
	}

	var liked bool
	photo, err := s.photoRepo.Update(ctx, photoID, func(p models.Photo) (models.Photo, error) {
		next, changed := p.WithLike(userID)
		liked = changed
		if !changed {
			return p, guard.ErrNoChange
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	if liked {
		s.publish(PhotoEvent{Type: EventPhotoLiked, PhotoID: photoID, UserID: userID})
	}
	return photo, nil
}

// AddComment appends a comment by the given author and returns it.
func (s *PhotoService) AddComment(ctx context.Context, photoID, authorID, authorName, text string) (*models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validationf("comment text is required")
	}

	// Built once so every retry appends the same comment.
	comment := models.Comment{
		ID:        uuid.New().String(),
		UserID:    authorID,
		Username:  authorName,
		Text:      text,
		Timestamp: s.now().UTC(),
	}
	_, err := s.photoRepo.Update(ctx, photoID, func(p models.Photo) (models.Photo, error) {
		return p.WithComment(comment), nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(PhotoEvent{Type: EventPhotoCommented, PhotoID: photoID, UserID: authorID, CommentID: comment.ID})
	return &comment, nil
}

// Rate folds a 1 to 5 star rating into the photo's running average.
func (s *PhotoService) Rate(ctx context.Context, photoID string, value int) (*models.Photo, error) {
	if value < 1 || value > 5 {
		return nil, apperr.Validationf("rating must be between 1 and 5, got %d", value)
	}

	photo, err := s.photoRepo.Update(ctx, photoID, func(p models.Photo) (models.Photo, error) {
		return p.WithRating(value), nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(PhotoEvent{Type: EventPhotoRated, PhotoID: photoID, Rating: float64(value)})
	return photo, nil
}

// UpdateMetadata replaces the photo's title, caption, location and tags.
func (s *PhotoService) UpdateMetadata(ctx context.Context, photoID string, meta models.PhotoMetadata) (*models.Photo, error) {
	if err := s.validate.Struct(meta); err != nil {
		return nil, validationError(err)
	}

	photo, err := s.photoRepo.Update(ctx, photoID, func(p models.Photo) (models.Photo, error) {
		return p.WithMetadata(meta), nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(PhotoEvent{Type: EventPhotoUpdated, PhotoID: photoID})
	return photo, nil
}

// DeletePhoto removes a photo. Only its creator may delete it.
func (s *PhotoService) DeletePhoto(ctx context.Context, photoID, requesterID string) error {
	photo, err := s.photoRepo.GetByID(ctx, photoID)
	if err != nil {
		return err
	}
	if photo.CreatorID != requesterID {
		return fmt.Errorf("%w: user %s did not create photo %s", apperr.ErrForbidden, requesterID, photoID)
	}
	if err := s.photoRepo.Delete(ctx, photoID); err != nil {
		return err
	}

	s.publish(PhotoEvent{Type: EventPhotoDeleted, PhotoID: photoID, UserID: requesterID})
	return nil
}

// publish sends ev without failing the caller; the mutation has already been
// stored.
func (s *PhotoService) publish(ev PhotoEvent) {
	if s.publisher == nil {
		s.log.Debug().Str("event", ev.Type).Msg("RabbitMQ client is not initialized. Skipping message publication.")
		return
	}
	ev.OccurredAt = s.now().UTC()

	body, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Str("event", ev.Type).Msg("failed to marshal photo event")
		return
	}
	if err := s.publisher.Publish(rabbitmq.PhotoExchange, ev.Type, body); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Str("photo_id", ev.PhotoID).Msg("failed to publish photo event")
		return
	}
	s.log.Debug().Str("event", ev.Type).Str("photo_id", ev.PhotoID).Msg("published photo event")
}
