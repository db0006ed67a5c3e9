package handlers

import (
	"errors"

	"photoshare/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Client errors echo the
// error text; server errors only say what failed.
func respondError(c *fiber.Ctx, log zerolog.Logger, err error, failure string) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg(failure)
		return c.Status(status).JSON(fiber.Map{
			"error": failure,
		})
	}
	log.Debug().Err(err).Str("path", c.Path()).Int("status", status).Msg(failure)
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
