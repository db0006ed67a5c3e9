package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports liveness and which backends the process runs on.
type HealthHandler struct {
	storageBackend string
	eventsEnabled  bool
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(storageBackend string, eventsEnabled bool) *HealthHandler {
	return &HealthHandler{
		storageBackend: storageBackend,
		eventsEnabled:  eventsEnabled,
	}
}

// RegisterRoutes registers "/" and "/health".
func (h *HealthHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/", h.HandleHealth)
	router.Get("/health", h.HandleHealth)
}

// HandleHealth answers with the service status.
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	events := "disabled"
	if h.eventsEnabled {
		events = "connected"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "healthy",
		"time":    time.Now().Format(time.RFC3339),
		"storage": h.storageBackend,
		"events":  events,
	})
}
