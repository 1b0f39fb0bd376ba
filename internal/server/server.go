package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/info"
	"github.com/cyderes/dummy-etl/internal/logger"
	"github.com/cyderes/dummy-etl/internal/models"
)

const (
	loggerName = "dummy-etl:server"
)

var (
	ErrServerListen   = errors.New("server listen error")
	ErrServerShutdown = errors.New("server shutdown error")
)

// StatusProvider exposes the state of the latest pipeline run.
type StatusProvider interface {
	Status() models.RunStatus
}

// Server handles HTTP requests
type Server struct {
	config config.ServerConfig
	app    *fiber.App
}

// NewServer creates a new HTTP server
func NewServer(ctx context.Context, cfg config.ServerConfig, status StatusProvider) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	log := logger.FromContext(ctx)
	app.Use(logger.RequestMiddlewareLogger(log, []string{"/-/"}))

	statusRoutes(app, info.AppName, info.Version)
	app.Get("/status", handleRunStatus(status))

	return &Server{
		config: cfg,
		app:    app,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	if err := s.app.Listen(fmt.Sprintf(":%d", s.config.Port)); err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}
	return nil
}

// StartAsync starts the HTTP server in a goroutine, logging a listen failure.
func (s *Server) StartAsync(ctx context.Context) {
	log := logger.FromContext(ctx).WithName(loggerName)
	go func() {
		log.Info("starting HTTP server", "port", s.config.Port)
		if err := s.Start(); err != nil {
			log.Error(err.Error())
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrServerShutdown, err)
	}
	return nil
}
