package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type,X-Admin-Token",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	// Basic routes
	s.App.Get("/health", s.healthHandler)

	// Account routes
	api := s.App.Group("/api/v1")

	api.Post("/accounts", s.createAccountHandler)
	api.Get("/accounts/:accountId", s.getAccountHandler)
	api.Post("/accounts/:accountId/credit", s.creditAccountHandler)
	api.Get("/accounts/:accountId/bets", s.getAccountBetsHandler)
	api.Post("/accounts/:accountId/claim-level", s.claimLevelRewardHandler)
	api.Post("/accounts/:accountId/claim-monthly", s.claimMonthlyRewardHandler)
	api.Post("/accounts/:accountId/claim-commission", s.claimCommissionHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))

	s.RegisterGameRoutes()
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.gameHub.ClientCount(),
		},
	}
	return c.JSON(health)
}
