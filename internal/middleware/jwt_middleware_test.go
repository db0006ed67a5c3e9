package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"photoshare/internal/middleware"
	"photoshare/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator map[string]*services.Claims

func (s stubValidator) ValidateToken(token string) (*services.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func newApp() *fiber.App {
	app := fiber.New()
	v := stubValidator{"good": {UserID: "u1", Username: "ann", Role: "user"}}
	app.Get("/me", middleware.AuthRequired(v), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": middleware.UserID(c), "name": middleware.Username(c)})
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	app := newApp()

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
