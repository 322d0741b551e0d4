// Package web serves the wishlist client as a local web UI.
//
// Every browser gets a session (cookie) with its own application controller.
// Pages are rendered server-side; user actions are form posts, and whatever
// the controller wants shown afterwards (re-rendered views, alerts,
// navigation) is pushed to the browser over a Datastar SSE stream.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/wishlist/internal/app"
	"github.com/sakif/wishlist/internal/i18n"
	"github.com/sakif/wishlist/internal/middleware"
	"github.com/sakif/wishlist/internal/realtime"
	"github.com/sakif/wishlist/internal/recent"
	"github.com/sakif/wishlist/internal/router"
	"github.com/sakif/wishlist/internal/theme"
)

//go:embed templates/*.html static/*
var assetsFS embed.FS

const (
	keepAliveInterval = 25 * time.Second
	sessionIdle       = time.Hour
	reapInterval      = 10 * time.Minute
)

// Config is the web UI's settings.
type Config struct {
	Addr string
	// Origin is the base URL used in share links. Defaults to http://<Addr>.
	Origin string
}

// Deps are the pieces shared by all sessions.
type Deps struct {
	Gateway app.Gateway
	// NewRealtime creates a realtime client per session.
	NewRealtime func() (app.Subscriber, error)
	Recent      *recent.Cache
	Language    *i18n.Service
	Theme       *theme.Service
	Copier      app.Copier
	Logger      *slog.Logger
}

// Server is the web UI.
type Server struct {
	cfg      Config
	deps     Deps
	tmpl     *template.Template
	router   *chi.Mux
	sessions *sessions
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the web UI server.
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("web: addr is empty")
	}
	if cfg.Origin == "" {
		cfg.Origin = "http://" + cfg.Addr
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	tmpl, err := template.New("web").ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parsing templates: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		tmpl:   tmpl,
		router: chi.NewRouter(),
		logger: deps.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.sessions = newSessions(s.newController, deps.Logger)
	s.setupRoutes()
	return s, nil
}

// newController builds the controller for a new session.
func (s *Server) newController(view app.View) *app.Controller {
	rt, err := s.deps.NewRealtime()
	if err != nil {
		s.logger.Warn("realtime disabled for session", slog.String("error", err.Error()))
		rt = noRealtime{}
	}
	return app.New(s.ctx, app.Deps{
		Gateway:  s.deps.Gateway,
		Realtime: rt,
		Recent:   s.deps.Recent,
		Language: s.deps.Language,
		Theme:    s.deps.Theme,
		Copier:   s.deps.Copier,
		History:  router.NewMemoryHistory("/"),
		View:     view,
		Logger:   s.logger,
		Origin:   s.cfg.Origin,
	})
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))

	static, _ := fs.Sub(assetsFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Get("/events", s.handleEvents)
	r.Get("/export", s.handleExport)
	r.Post("/import", s.handleImport)
	r.Post("/share", s.handleShare)
	r.Post("/prefs/theme", s.handleTheme)
	r.Post("/prefs/language", s.handleLanguage)
	r.Post("/nav/pop", s.handlePop)

	r.Route("/actions", func(r chi.Router) {
		r.Post("/create", s.handleCreate)
		r.Post("/recent", s.handleContinueRecent)
		r.Post("/home", s.handleHome)
		r.Post("/wishlist/rename", s.handleRenameWishlist)
		r.Post("/wishlist/delete", s.handleDeleteWishlist)
		r.Post("/sublists", s.handleAddSublist)
		r.Post("/sublists/rename", s.handleRenameSublist)
		r.Post("/sublists/delete", s.handleDeleteSublist)
		r.Post("/items", s.handleAddItem)
		r.Post("/items/edit", s.handleEditItem)
		r.Post("/items/delete", s.handleDeleteItem)
		r.Post("/items/claim", s.handleClaim)
	})

	r.Get("/", s.handlePage)
	r.Get("/index.html", s.handlePage)
	r.Get("/{path}", s.handlePage)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends every session.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.cancel()
	s.sessions.closeAll(ctx)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go s.reapSessions(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("web UI starting", slog.String("url", s.cfg.Origin))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		// Streams never finish on their own; end them first.
		s.cancel()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("web UI stopped")
	}
	return nil
}

func (s *Server) reapSessions(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.reap(ctx, sessionIdle); n > 0 {
				s.logger.Info("closed idle sessions", slog.Int("count", n))
			}
		}
	}
}

// noRealtime stands in when the realtime client cannot be created.
type noRealtime struct{}

func (noRealtime) Subscribe(context.Context, string, realtime.Callbacks) (string, error) {
	return "", errors.New("realtime unavailable")
}

func (noRealtime) UnsubscribeAll(context.Context) error { return nil }
