package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"wingo/internal/cache"
	"wingo/internal/database"
	"wingo/internal/game"
	"wingo/internal/progression"
	"wingo/internal/referral"
	"wingo/internal/store"
)

type FiberServer struct {
	*fiber.App

	db          database.Service
	cache       cache.Service
	store       *store.Store
	gameManager *game.Manager
	gameHub     *game.Hub
	progression *progression.Service
	referral    *referral.Service
}

func New() *FiberServer {
	// Initialize database
	db := database.New()

	// Initialize Redis cache
	redisService := cache.New()
	if redisService == nil {
		logrus.Fatal("[SERVER] Redis is required for round history")
	}

	st := store.New(db.Pool())
	history := cache.NewRoundHistory(redisService.GetClient())

	// Initialize game components
	hub := game.NewHub()
	progressionSvc := progression.NewService(st)
	referralSvc := referral.NewService(st)
	manager := game.NewManager(st, history, hub, progressionSvc, referralSvc)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "wingo",
			AppName:       "wingo",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:          db,
		cache:       redisService,
		store:       st,
		gameManager: manager,
		gameHub:     hub,
		progression: progressionSvc,
		referral:    referralSvc,
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	// Start game components
	go hub.Run()
	if err := manager.StartAll(context.Background()); err != nil {
		logrus.WithError(err).Fatal("[SERVER] failed to start round engines")
	}

	logrus.Info("[SERVER] round engines started")

	return server
}

// Shutdown gracefully stops the round engines and closes connections.
func (s *FiberServer) Shutdown() error {
	logrus.Info("[SERVER] shutting down")

	if s.gameManager != nil {
		if err := s.gameManager.StopAll(); err != nil {
			logrus.WithError(err).Error("[SERVER] error stopping round engines")
		}
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
