// Package server wires the backend together: database, change feed, service,
// handlers, middleware and the cleanup scheduler.
//
// THE DEPENDENCY GRAPH (built in New):
//
//	changefeed.Hub ← metrics.Publisher ← sqlite.DB
//	sqlite.DB → service.WishlistService → handler.WishlistHandler
//	changefeed.Hub → handler.RealtimeHandler
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/wishlist/internal/auth"
	"github.com/sakif/wishlist/internal/changefeed"
	"github.com/sakif/wishlist/internal/config"
	"github.com/sakif/wishlist/internal/handler"
	"github.com/sakif/wishlist/internal/metrics"
	"github.com/sakif/wishlist/internal/middleware"
	sqliteRepo "github.com/sakif/wishlist/internal/repository/sqlite"
	"github.com/sakif/wishlist/internal/service"
)

// Server is the wishlist backend.
type Server struct {
	router  *chi.Mux
	config  config.Server
	logger  *slog.Logger
	db      *sqliteRepo.DB
	hub     *changefeed.Hub
	svc     *service.WishlistService
	metrics *metrics.Metrics
}

// New opens the database and builds the router. The caller owns the
// returned Server and must call Close (Start does so on exit).
func New(cfg config.Server, logger *slog.Logger) (*Server, error) {
	m := metrics.New()
	hub := changefeed.NewHub(64)
	m.TrackSubscribers(hub.Count)

	db, err := sqliteRepo.New(cfg.DBPath, sqliteRepo.WithPublisher(m.Publisher(hub)))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var keys *auth.KeyService
	if cfg.JWTSecret != "" {
		if keys, err = auth.NewKeyService(cfg.JWTSecret); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Warn("WISHLIST_JWT_SECRET not set: the API is open to anyone")
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		hub:     hub,
		svc:     service.NewWishlistService(db, logger),
		metrics: m,
	}
	s.setupRoutes(keys)
	return s, nil
}

func (s *Server) setupRoutes(keys *auth.KeyService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	rest := handler.NewWishlistHandler(s.svc, s.config.Retention, s.metrics.RecordCleanup, s.logger)
	realtime := handler.NewRealtimeHandler(s.hub, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(keys))
		r.Route("/rest/v1", rest.Routes)
		r.Get("/realtime/v1/websocket", realtime.HandleWebsocket)
	})
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP and runs the cleanup scheduler until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Start() error {
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: realtime websockets are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go s.svc.StartCleanupScheduler(ctx, s.config.CleanupInterval, s.config.Retention, s.metrics.RecordCleanup)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// EnsureDBDir creates the directory holding a file database.
func EnsureDBDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
