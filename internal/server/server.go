package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/classtrack/apiserver/config"
	"github.com/classtrack/apiserver/internal/db"
	"github.com/classtrack/apiserver/internal/handlers"
	"github.com/classtrack/apiserver/internal/mailer"
	"github.com/classtrack/apiserver/internal/mq"
	"github.com/classtrack/apiserver/internal/reaper"
	"github.com/classtrack/apiserver/internal/services"
	"github.com/classtrack/apiserver/internal/store"
	"github.com/classtrack/apiserver/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server, router and background jobs.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     mq.Backend
	reaper     *reaper.Reaper
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := mq.NewBackend(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	identities := store.NewIdentityStore(dbConn)
	resetTokens := store.NewResetTokenRepository(dbConn)
	counters := store.NewCounterRepository(dbConn)

	tokens := token.NewManager(cfg.JWT.Secret, cfg.JWT.SessionTTL)
	dispatcher := mailer.NewDispatcher(broker)

	authService := services.NewAuthService(
		identities,
		resetTokens,
		counters,
		tokens,
		dispatcher,
		cfg.AppBaseURL,
		cfg.JWT.ResetTTL,
	)

	tokenReaper, err := reaper.New(resetTokens, cfg.ReaperSpec)
	if err != nil {
		_ = broker.Close()
		_ = dbConn.Close()
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		reaper:     tokenReaper,
	}, nil
}

// Router exposes the chi router so collaborating modules can register their
// routes behind the auth middleware.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the background jobs and the HTTP server.
func (s *Server) Start() error {
	s.reaper.Start()
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	s.reaper.Stop()
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
