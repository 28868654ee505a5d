package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/reconcile"
	"github.com/congo-pay/walletcore/internal/routes"
)

// Server wraps the Fiber application and the background workers wired alongside it.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	worker *reconcile.Worker
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler,
	})

	bg, err := routes.Setup(app, d)
	if err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{app: app, cfg: d.Cfg, worker: bg.Worker, logger: logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// RunWorkers starts background workers and returns once ctx is cancelled and they have stopped.
func (s *Server) RunWorkers(ctx context.Context) {
	if s.worker == nil {
		return
	}
	if err := s.worker.Run(ctx); err != nil {
		s.logger.Error("reconciliation worker exited", slog.Any("error", err))
	}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
