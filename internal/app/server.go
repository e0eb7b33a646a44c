package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Filora/internal/api/middlewares"
	"github.com/markdave123-py/Filora/internal/config"
)

const (
	minRequestTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Files  *handlers.FileHandler
	AI     *handlers.AIHandler
	Health *handlers.HealthHandler
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, h Handlers, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, h, logger),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}
}

// NewRouter returns the chi router on its own so tests can drive it.
func NewRouter(cfg *config.Config, h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	// uploads run OCR inline, so leave room for a full extraction
	r.Use(middleware.Timeout(max(minRequestTimeout, 2*cfg.ExtractTimeout)))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health.Health)

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware([]byte(cfg.JWTSecret)))

		api.Post("/files/upload", h.Files.Upload)
		api.Get("/files", h.Files.List)
		api.Get("/files/{id}", h.Files.Get)
		api.Delete("/files/{id}", h.Files.Delete)
		api.Get("/files/{id}/download", h.Files.Download)
		api.Get("/files/{id}/thumbnail", h.Files.Thumbnail)

		api.Post("/ai/ask", h.AI.Ask)
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
