package server

import (
	"crypto/subtle"
	"os"

	"github.com/gofiber/fiber/v2"
)

// RegisterGameRoutes registers the per-mode round routes plus the
// operator-only override routes.
func (s *FiberServer) RegisterGameRoutes() {
	api := s.App.Group("/api/v1")

	gameGroup := api.Group("/game/:mode")
	gameGroup.Get("/state", s.getRoundStateHandler)
	gameGroup.Post("/bet", s.placeBetHandler)
	gameGroup.Get("/history", s.getRoundHistoryHandler)

	admin := api.Group("/admin", adminOnly)
	admin.Post("/game/:mode/override", s.setOverrideHandler)
	admin.Get("/game/:mode/override", s.getOverrideHandler)
}

// adminOnly gates the override routes behind a shared token. With no
// token configured the routes are disabled outright.
func adminOnly(c *fiber.Ctx) error {
	token := os.Getenv("WINGO_ADMIN_TOKEN")
	if token == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Admin routes are not configured",
		})
	}
	supplied := c.Get("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(supplied)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid admin token",
		})
	}
	return c.Next()
}
