package middleware

import (
	"strings"

	"photoshare/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Keys under which AuthRequired stores the caller's identity in fiber.Ctx.Locals.
const (
	LocalUserID   = "user_id"
	LocalUsername = "username"
	LocalRole     = "role"
)

// TokenValidator is satisfied by *services.AuthService.
type TokenValidator interface {
	ValidateToken(token string) (*services.Claims, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header format must be 'Bearer <token>'",
			})
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalUsername, claims.Username)
		c.Locals(LocalRole, claims.Role)

		return c.Next()
	}
}

// UserID returns the authenticated caller's id, or "" outside AuthRequired.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// Username returns the authenticated caller's username, or "" outside AuthRequired.
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(LocalUsername).(string)
	return name
}
