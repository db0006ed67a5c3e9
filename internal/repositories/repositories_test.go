package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"photoshare/internal/apperr"
	"photoshare/internal/guard"
	"photoshare/internal/models"
	"photoshare/internal/objectstore"
	"photoshare/internal/repositories"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newGuard(t *testing.T) *guard.Guard {
	t.Helper()
	b, err := objectstore.OpenSQL("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	store := objectstore.NewStore(b, zerolog.Nop())
	t.Cleanup(func() { store.Close() })
	return guard.New(store, guard.WithBackoff(time.Millisecond))
}

func TestBlobPhotoRepository_RoundTrip(t *testing.T) {
	repo := repositories.NewBlobPhotoRepository(newGuard(t))
	ctx := context.Background()

	in := models.Photo{
		URL:         "http://localhost:8080/images/abc-cat.png",
		Title:       "Cat",
		Caption:     "on a mat",
		Location:    "Lisbon",
		Tags:        "cat,mat",
		CreatorID:   "u1",
		CreatorName: "ann",
		Likes:       1,
		LikedBy:     []string{"u2"},
		Comments: []models.Comment{
			{ID: "c1", UserID: "u2", Username: "bob", Text: "nice", Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 42, time.UTC)},
		},
		Rating:      11.0 / 3.0,
		RatingCount: 3,
		UploadedAt:  time.Date(2024, 5, 1, 9, 0, 0, 123456789, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, &in))
	require.NotEmpty(t, in.ID)

	out, err := repo.GetByID(ctx, in.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(in, *out); diff != "" {
		t.Errorf("photo round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBlobPhotoRepository_UpdateAndDelete(t *testing.T) {
	repo := repositories.NewBlobPhotoRepository(newGuard(t))
	ctx := context.Background()

	p := models.Photo{Title: "t", CreatorID: "u1"}
	require.NoError(t, repo.Create(ctx, &p))

	updated, err := repo.Update(ctx, p.ID, func(cur models.Photo) (models.Photo, error) {
		next, _ := cur.WithLike("u9")
		return next, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Likes)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.Update(ctx, p.ID, func(cur models.Photo) (models.Photo, error) { return cur, nil })
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), apperr.ErrNotFound)
}

func TestBlobPhotoRepository_UpdatePassesTransformErrors(t *testing.T) {
	repo := repositories.NewBlobPhotoRepository(newGuard(t))
	ctx := context.Background()

	p := models.Photo{Title: "t"}
	require.NoError(t, repo.Create(ctx, &p))

	_, err := repo.Update(ctx, p.ID, func(models.Photo) (models.Photo, error) {
		return models.Photo{}, apperr.ErrForbidden
	})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestBlobPhotoRepository_GetAll(t *testing.T) {
	repo := repositories.NewBlobPhotoRepository(newGuard(t))
	ctx := context.Background()

	photos, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, photos)

	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, &models.Photo{Title: title}))
	}
	photos, err = repo.GetAll(ctx)
	require.NoError(t, err)

	var titles []string
	for _, p := range photos {
		titles = append(titles, p.Title)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, titles)
}

func TestBlobUserRepository_CreateAndGet(t *testing.T) {
	repo := repositories.NewBlobUserRepository(newGuard(t))
	ctx := context.Background()

	u := models.User{Username: "ann", Password: "hash", Role: models.RoleUser}
	require.NoError(t, repo.Create(ctx, &u))
	assert.NotEmpty(t, u.ID)

	got, err := repo.GetByUsername(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.Password)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBlobUserRepository_ConcurrentDuplicateSignup(t *testing.T) {
	repo := repositories.NewBlobUserRepository(newGuard(t))
	ctx := context.Background()

	errs := make([]error, 2)
	var eg errgroup.Group
	for i := range errs {
		i := i
		eg.Go(func() error {
			errs[i] = repo.Create(ctx, &models.User{Username: "dup", Password: "x", Role: models.RoleUser})
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	var ok, exists int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrAlreadyExists):
			exists++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exists)
}
