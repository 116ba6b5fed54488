package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"wingo/internal/server"
)

func gracefulShutdown(fiberServer *server.FiberServer, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logrus.Info("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fiberServer.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server forced to shutdown")
	}
	if err := fiberServer.Shutdown(); err != nil {
		logrus.WithError(err).Error("error closing game components")
	}

	logrus.Info("server exiting")
	done <- true
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	srv := server.New()
	srv.RegisterFiberRoutes()

	done := make(chan bool, 1)

	go func() {
		port, _ := strconv.Atoi(os.Getenv("PORT"))
		if port == 0 {
			port = 8080
		}
		if err := srv.Listen(fmt.Sprintf(":%d", port)); err != nil {
			logrus.WithError(err).Fatal("http server error")
		}
	}()

	go gracefulShutdown(srv, done)

	<-done
}
