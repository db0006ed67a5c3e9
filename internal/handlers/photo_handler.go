package handlers

import (
	"fmt"
	"io"

	"photoshare/internal/apperr"
	"photoshare/internal/imagestore"
	"photoshare/internal/middleware"
	"photoshare/internal/models"
	"photoshare/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// PhotoHandler handles HTTP requests for photos and their images.
type PhotoHandler struct {
	service *services.PhotoService
	images  *imagestore.Sink
	log     zerolog.Logger
}

// NewPhotoHandler creates a new PhotoHandler.
func NewPhotoHandler(service *services.PhotoService, images *imagestore.Sink, log zerolog.Logger) *PhotoHandler {
	return &PhotoHandler{
		service: service,
		images:  images,
		log:     log.With().Str("handler", "photos").Logger(),
	}
}

// RegisterRoutes registers the photo routes. Reads are public; every mutation
// goes through auth.
func (h *PhotoHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	photoRoutes := router.Group("/photos")
	photoRoutes.Get("/", h.HandleGetPhotos)
	photoRoutes.Get("/:id", h.HandleGetPhoto)
	photoRoutes.Post("/", auth, h.HandleCreatePhoto)
	photoRoutes.Put("/:id", auth, h.HandleUpdatePhoto)
	photoRoutes.Delete("/:id", auth, h.HandleDeletePhoto)
	photoRoutes.Post("/:id/like", auth, h.HandleLikePhoto)
	photoRoutes.Post("/:id/comment", auth, h.HandleAddComment)
	photoRoutes.Post("/:id/rate", auth, h.HandleRatePhoto)
}

// RegisterImageRoutes serves stored image bytes under /images.
func (h *PhotoHandler) RegisterImageRoutes(router fiber.Router) {
	router.Get("/images/:name", h.HandleGetImage)
}

// HandleGetPhotos lists every photo, newest first.
func (h *PhotoHandler) HandleGetPhotos(c *fiber.Ctx) error {
	photos, err := h.service.ListPhotos(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err, "Failed to fetch photos")
	}
	return c.JSON(photos)
}

// HandleGetPhoto retrieves a single photo by its ID.
func (h *PhotoHandler) HandleGetPhoto(c *fiber.Ctx) error {
	photo, err := h.service.GetPhoto(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err, "Failed to fetch photo")
	}
	return c.JSON(photo)
}

// readUpload returns the bytes of the multipart "image" part, or nil if the
// request carries none.
func readUpload(c *fiber.Ctx) (name string, data []byte, err error) {
	fh, ferr := c.FormFile("image")
	if ferr != nil {
		return "", nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return fh.Filename, data, nil
}

// HandleCreatePhoto accepts either a multipart "image" file or an "imageUrl"
// form field, plus the descriptive fields. The creator is the caller.
func (h *PhotoHandler) HandleCreatePhoto(c *fiber.Ctx) error {
	ctx := c.UserContext()

	name, data, err := readUpload(c)
	if err != nil {
		return respondError(c, h.log, err, "Upload failed")
	}

	var url string
	switch {
	case len(data) > 0:
		url, err = h.images.Upload(ctx, name, data)
		if err != nil {
			return respondError(c, h.log, err, "Upload failed")
		}
	case c.FormValue("imageUrl") != "":
		url = c.FormValue("imageUrl")
	default:
		return respondError(c, h.log, apperr.Validationf("image is required"), "Upload failed")
	}

	photo, err := h.service.CreatePhoto(ctx, services.CreatePhotoInput{
		URL:         url,
		Title:       c.FormValue("title"),
		Caption:     c.FormValue("caption"),
		Location:    c.FormValue("location"),
		Tags:        c.FormValue("tags"),
		CreatorID:   middleware.UserID(c),
		CreatorName: middleware.Username(c),
	})
	if err != nil {
		return respondError(c, h.log, err, "Upload failed")
	}
	return c.Status(fiber.StatusCreated).JSON(photo)
}

// HandleUpdatePhoto replaces a photo's descriptive fields.
func (h *PhotoHandler) HandleUpdatePhoto(c *fiber.Ctx) error {
	var meta models.PhotoMetadata
	if err := c.BodyParser(&meta); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	photo, err := h.service.UpdateMetadata(c.UserContext(), c.Params("id"), meta)
	if err != nil {
		return respondError(c, h.log, err, "Update failed")
	}
	return c.JSON(photo)
}

// HandleDeletePhoto deletes a photo on behalf of its creator.
func (h *PhotoHandler) HandleDeletePhoto(c *fiber.Ctx) error {
	if err := h.service.DeletePhoto(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
		return respondError(c, h.log, err, "Delete failed")
	}
	return c.JSON(fiber.Map{
		"message": "Deleted successfully",
	})
}

// HandleLikePhoto likes a photo as the caller.
func (h *PhotoHandler) HandleLikePhoto(c *fiber.Ctx) error {
	photo, err := h.service.LikeOnce(c.UserContext(), c.Params("id"), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err, "Like failed")
	}
	return c.JSON(photo)
}

type commentRequest struct {
	Text string `json:"text" form:"text"`
}

// HandleAddComment appends the caller's comment and returns it.
func (h *PhotoHandler) HandleAddComment(c *fiber.Ctx) error {
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	comment, err := h.service.AddComment(c.UserContext(), c.Params("id"), middleware.UserID(c), middleware.Username(c), req.Text)
	if err != nil {
		return respondError(c, h.log, err, "Comment failed")
	}
	return c.JSON(comment)
}

type rateRequest struct {
	Rating int `json:"rating" form:"rating"`
}

// HandleRatePhoto folds the caller's rating into the photo's average.
func (h *PhotoHandler) HandleRatePhoto(c *fiber.Ctx) error {
	var req rateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	photo, err := h.service.Rate(c.UserContext(), c.Params("id"), req.Rating)
	if err != nil {
		return respondError(c, h.log, err, "Rating failed")
	}
	return c.JSON(photo)
}

// HandleGetImage streams a stored image.
func (h *PhotoHandler) HandleGetImage(c *fiber.Ctx) error {
	obj, err := h.images.Open(c.UserContext(), c.Params("name"))
	if err != nil {
		return respondError(c, h.log, err, "Failed to fetch image")
	}
	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.Send(obj.Data)
}
