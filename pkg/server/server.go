package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/lexportal/claimshield/pkg/config"
	handlers "github.com/lexportal/claimshield/pkg/handlers/http"
	"github.com/lexportal/claimshield/pkg/infra/prometheus"
	"github.com/lexportal/claimshield/pkg/middleware"
)

type Server struct {
	app     *fiber.App
	metrics *http.Server
	cfg     *config.Config
	logger  *logrus.Logger
}

func NewServer(
	cfg *config.Config,
	logger *logrus.Logger,
	defense *middleware.DefenseMiddleware,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "claimshield",
		DisableStartupMessage: true,
	})

	app.Use(middleware.NewPanicRecoverMiddleware(logger).Middleware())

	registerRoutes(app, logger, defense)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", prometheus.Handler())

	return &Server{
		app: app,
		metrics: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler: metricsMux,
		},
		cfg:    cfg,
		logger: logger,
	}
}

func registerRoutes(app *fiber.App, logger *logrus.Logger, defense *middleware.DefenseMiddleware) {
	healthHandler := handlers.NewHealthHandler()
	loginHandler := handlers.NewLoginHandler(logger)
	submitClaimHandler := handlers.NewSubmitClaimHandler(logger)
	updateContentHandler := handlers.NewUpdateContentHandler(logger)

	skipReadOnly := middleware.WithSkip(func(c *fiber.Ctx) bool {
		return c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead
	})

	app.Get("/health",
		defense.ForOperation("api", skipReadOnly),
		healthHandler.Handle,
	)
	app.Post("/auth/login",
		defense.ForOperation("login"),
		loginHandler.Handle,
	)
	app.Post("/api/claims",
		defense.ForOperation("claim_submission"),
		submitClaimHandler.Handle,
	)
	app.Put("/admin/content",
		defense.ForOperation("content_mutation"),
		updateContentHandler.Handle,
	)
	app.Post("/api/requests",
		defense.ForOperation("api"),
		submitClaimHandler.Handle,
	)
}

func (s *Server) Run() error {
	go func() {
		s.logger.WithField("port", s.cfg.Server.MetricsPort).Info("metrics server listening")
		if err := s.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server stopped")
		}
	}()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.WithField("addr", addr).Info("portal server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.metrics.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("metrics server shutdown failed")
	}
	return s.app.ShutdownWithContext(ctx)
}
