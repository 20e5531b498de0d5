package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/information-sharing-networks/audiobook-license/app/internal/api"
	"github.com/information-sharing-networks/audiobook-license/app/internal/config"
	"github.com/information-sharing-networks/audiobook-license/app/internal/licensecheck"
	"github.com/information-sharing-networks/audiobook-license/app/internal/logger"
	"github.com/information-sharing-networks/audiobook-license/app/internal/metrics"
	"github.com/information-sharing-networks/audiobook-license/app/internal/server/handlers"
	appmiddleware "github.com/information-sharing-networks/audiobook-license/app/internal/server/middleware"
	"github.com/information-sharing-networks/audiobook-license/app/internal/services"
	"github.com/information-sharing-networks/audiobook-license/app/internal/version"
)

// requestTimeout bounds a license check request, including certificate and status fetches
const requestTimeout = 60 * time.Second

type Server struct {
	config       *config.Environment
	logger       *slog.Logger
	router       *chi.Mux
	services     *services.Services
	orchestrator *licensecheck.Orchestrator
	metrics      *metrics.Metrics
}

// NewServer creates the server and its services. The services (JWK cache) live until ctx is cancelled.
func NewServer(ctx context.Context, cfg *config.Environment, logger *slog.Logger) (*Server, error) {
	m := metrics.New()

	svc, err := services.NewServices(ctx, cfg, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("issuer registry loaded",
		slog.Int("issuers", svc.Registry.Len()),
		slog.String("path", cfg.IssuerRegistryPath))

	return New(cfg, logger, svc, svc.Orchestrator(nil)), nil
}

// New creates a server from already constructed services.
func New(cfg *config.Environment, logger *slog.Logger, svc *services.Services, orchestrator *licensecheck.Orchestrator) *Server {
	m := svc.Metrics
	if m == nil {
		m = metrics.New()
	}

	server := &Server{
		config:       cfg,
		logger:       logger,
		router:       chi.NewRouter(),
		services:     svc,
		orchestrator: orchestrator,
		metrics:      m,
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server
}

// Router returns the root handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logger.RequestLogging(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(appmiddleware.APIHeaders(s.config.Environment))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health/live", handlers.HandleHealth)
	s.router.Get("/version", handlers.HandleVersion(version.Get()))
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(appmiddleware.ClientRateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.ManifestBody(s.config.MaxRequestSize))
			r.Post("/license-checks", handlers.HandleLicenseChecks(s.orchestrator))
		})

		r.Get("/issuers", handlers.HandleListIssuers(s.services.Registry))
		r.Get("/issuers/keys", handlers.HandleIssuerKeySet(s.services.Registry, s.services.KeySets))
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.RespondWithErrorResponse(w, r, api.NewNotFoundError("no route for "+r.Method+" "+r.URL.Path))
	})
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr),
			slog.String("version", version.Get().Version))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}
