package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"photoshare/internal/apperr"
	"photoshare/internal/guard"
	"photoshare/internal/models"
	"photoshare/internal/objectstore"
	"photoshare/internal/repositories"
	"photoshare/internal/services"
	"photoshare/pkg/rabbitmq"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// MockPhotoRepository is a mock implementation of repositories.PhotoRepository
type MockPhotoRepository struct {
	mock.Mock
}

func (m *MockPhotoRepository) GetAll(ctx context.Context) ([]models.Photo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Photo), args.Error(1)
}

func (m *MockPhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Photo), args.Error(1)
}

func (m *MockPhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	args := m.Called(ctx, photo)
	return args.Error(0)
}

func (m *MockPhotoRepository) Update(ctx context.Context, id string, transform repositories.PhotoTransform) (*models.Photo, error) {
	args := m.Called(ctx, id, transform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Photo), args.Error(1)
}

func (m *MockPhotoRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(exchange, routingKey string, body []byte) error {
	args := m.Called(exchange, routingKey, body)
	return args.Error(0)
}

// newPhotoService wires a PhotoService to an in-memory store.
func newPhotoService(t *testing.T, publisher services.EventPublisher, opts ...guard.Option) (*services.PhotoService, *repositories.BlobPhotoRepository) {
	t.Helper()
	store := objectstore.NewStore(objectstore.NewMemoryBackend(), zerolog.Nop())
	t.Cleanup(func() { store.Close() })
	opts = append([]guard.Option{guard.WithBackoff(time.Millisecond)}, opts...)
	repo := repositories.NewBlobPhotoRepository(guard.New(store, opts...))
	return services.NewPhotoService(repo, publisher, zerolog.Nop()), repo
}

func createPhoto(t *testing.T, svc *services.PhotoService, creatorID string) *models.Photo {
	t.Helper()
	p, err := svc.CreatePhoto(context.Background(), services.CreatePhotoInput{
		URL:         "http://localhost:8080/images/x-cat.png",
		Title:       "Cat",
		CreatorID:   creatorID,
		CreatorName: "creator-" + creatorID,
	})
	require.NoError(t, err)
	return p
}

func TestPhotoService_CreatePhoto(t *testing.T) {
	svc, _ := newPhotoService(t, nil)
	ctx := context.Background()

	p := createPhoto(t, svc, "u1")
	assert.NotEmpty(t, p.ID)
	assert.Zero(t, p.Likes)
	assert.Zero(t, p.RatingCount)
	assert.Empty(t, p.Comments)
	assert.WithinDuration(t, time.Now(), p.UploadedAt, time.Minute)

	got, err := svc.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cat", got.Title)

	_, err = svc.CreatePhoto(ctx, services.CreatePhotoInput{URL: "u", CreatorID: "u1", CreatorName: "ann"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.CreatePhoto(ctx, services.CreatePhotoInput{Title: "t", CreatorID: "u1", CreatorName: "ann"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPhotoService_GetPhotoNotFound(t *testing.T) {
	svc, _ := newPhotoService(t, nil)
	_, err := svc.GetPhoto(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPhotoService_ListPhotosNewestFirst(t *testing.T) {
	mockRepo := new(MockPhotoRepository)
	svc := services.NewPhotoService(mockRepo, nil, zerolog.Nop())
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mockRepo.On("GetAll", ctx).Return([]models.Photo{
		{ID: "old", UploadedAt: base},
		{ID: "new", UploadedAt: base.Add(2 * time.Hour)},
		{ID: "mid", UploadedAt: base.Add(time.Hour)},
	}, nil).Once()

	photos, err := svc.ListPhotos(ctx)
	require.NoError(t, err)
	ids := []string{photos[0].ID, photos[1].ID, photos[2].ID}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
	mockRepo.AssertExpectations(t)
}

func TestPhotoService_LikeOnceDistinctUsers(t *testing.T) {
	svc, _ := newPhotoService(t, nil)
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")

	users := []string{"u1", "u2", "u1", "u3", "u2", "u1"}
	var last *models.Photo
	for _, u := range users {
		var err error
		last, err = svc.LikeOnce(ctx, p.ID, u)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, last.Likes)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, last.LikedBy)

	stored, err := svc.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, len(stored.LikedBy), stored.Likes)
}

func TestPhotoService_LikeOnceIsIdempotentAndPublishesOnce(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", rabbitmq.PhotoExchange, services.EventPhotoCreated, mock.Anything).Return(nil).Once()
	pub.On("Publish", rabbitmq.PhotoExchange, services.EventPhotoLiked, mock.Anything).Return(nil).Once()

	svc, _ := newPhotoService(t, pub)
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")

	first, err := svc.LikeOnce(ctx, p.ID, "u1")
	require.NoError(t, err)
	second, err := svc.LikeOnce(ctx, p.ID, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Likes)
	assert.Equal(t, first, second)
	pub.AssertExpectations(t)
}

func TestPhotoService_ConcurrentLikes(t *testing.T) {
	const n = 10
	svc, _ := newPhotoService(t, nil, guard.WithMaxAttempts(n))
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")

	var eg errgroup.Group
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("u%d", i)
		eg.Go(func() error {
			_, err := svc.LikeOnce(ctx, p.ID, user)
			return err
		})
	}
	require.NoError(t, eg.Wait())

	stored, err := svc.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored.Likes)
	assert.Len(t, stored.LikedBy, n)
}

func TestPhotoService_AddComment(t *testing.T) {
	svc, _ := newPhotoService(t, nil)
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")

	c1, err := svc.AddComment(ctx, p.ID, "u1", "ann", "first")
	require.NoError(t, err)
	assert.NotEmpty(t, c1.ID)
	c2, err := svc.AddComment(ctx, p.ID, "u2", "bob", "second")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)

	stored, err := svc.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Comments, 2)
	assert.Equal(t, "first", stored.Comments[0].Text)
	assert.Equal(t, "second", stored.Comments[1].Text)
	assert.Equal(t, "bob", stored.Comments[1].Username)

	_, err = svc.AddComment(ctx, "missing", "u1", "ann", "hi")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPhotoService_EmptyCommentDoesNotTouchStorage(t *testing.T) {
	mockRepo := new(MockPhotoRepository)
	svc := services.NewPhotoService(mockRepo, nil, zerolog.Nop())

	for _, text := range []string{"", "   "} {
		_, err := svc.AddComment(context.Background(), "p1", "u1", "ann", text)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestPhotoService_RateSequence(t *testing.T) {
	svc, _ := newPhotoService(t, nil)
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")

	var last *models.Photo
	for _, v := range []int{5, 3, 4} {
		var err error
		last, err = svc.Rate(ctx, p.ID, v)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, last.RatingCount)
	assert.InDelta(t, 4.0, last.Rating, 1e-9)
}

func TestPhotoService_RateOutOfRange(t *testing.T) {
	mockRepo := new(MockPhotoRepository)
	svc := services.NewPhotoService(mockRepo, nil, zerolog.Nop())

	for _, v := range []int{0, 6, -1} {
		_, err := svc.Rate(context.Background(), "p1", v)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestPhotoService_ConcurrentRatings(t *testing.T) {
	values := []int{1, 2, 3, 4, 5, 5, 4, 3, 2, 1, 5, 5}
	svc, _ := newPhotoService(t, nil, guard.WithMaxAttempts(len(values)))
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")

	var eg errgroup.Group
	for _, v := range values {
		v := v
		eg.Go(func() error {
			_, err := svc.Rate(ctx, p.ID, v)
			return err
		})
	}
	require.NoError(t, eg.Wait())

	sum := 0
	for _, v := range values {
		sum += v
	}
	stored, err := svc.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, len(values), stored.RatingCount)
	assert.InDelta(t, float64(sum)/float64(len(values)), stored.Rating, 1e-9)
}

func TestPhotoService_UpdateMetadata(t *testing.T) {
	svc, _ := newPhotoService(t, nil)
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")
	_, err := svc.LikeOnce(ctx, p.ID, "u1")
	require.NoError(t, err)

	updated, err := svc.UpdateMetadata(ctx, p.ID, models.PhotoMetadata{Title: "Dog", Caption: "woof", Location: "Porto", Tags: "dog"})
	require.NoError(t, err)
	assert.Equal(t, "Dog", updated.Title)
	assert.Equal(t, "Porto", updated.Location)
	assert.Equal(t, 1, updated.Likes, "likes survive a metadata edit")
	assert.Equal(t, p.URL, updated.URL)

	_, err = svc.UpdateMetadata(ctx, p.ID, models.PhotoMetadata{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.UpdateMetadata(ctx, "missing", models.PhotoMetadata{Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPhotoService_DeletePhoto(t *testing.T) {
	svc, _ := newPhotoService(t, nil)
	ctx := context.Background()
	p := createPhoto(t, svc, "owner")

	err := svc.DeletePhoto(ctx, p.ID, "intruder")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	still, err := svc.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, still.ID)

	require.NoError(t, svc.DeletePhoto(ctx, p.ID, "owner"))
	_, err = svc.GetPhoto(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, svc.DeletePhoto(ctx, p.ID, "owner"), apperr.ErrNotFound)
}

func TestPhotoService_PublishFailureDoesNotFailMutation(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	svc, _ := newPhotoService(t, pub)
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")

	rated, err := svc.Rate(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, rated.RatingCount)
}

func TestPhotoService_EventPayload(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc, _ := newPhotoService(t, pub)
	ctx := context.Background()
	p := createPhoto(t, svc, "creator")
	c, err := svc.AddComment(ctx, p.ID, "u1", "ann", "hello")
	require.NoError(t, err)

	var found bool
	for _, call := range pub.Calls {
		if call.Arguments.String(1) != services.EventPhotoCommented {
			continue
		}
		found = true
		var ev services.PhotoEvent
		require.NoError(t, json.Unmarshal(call.Arguments.Get(2).([]byte), &ev))
		assert.Equal(t, services.EventPhotoCommented, ev.Type)
		assert.Equal(t, p.ID, ev.PhotoID)
		assert.Equal(t, c.ID, ev.CommentID)
		assert.Equal(t, "u1", ev.UserID)
	}
	assert.True(t, found, "expected a photo.commented event")
}
