package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"moviesite/internal/config"
	"moviesite/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ReadinessChecker reports whether a backing store can serve requests.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Dependencies are the services the HTTP API is a thin layer over.
type Dependencies struct {
	Movies *service.MovieService
	Users  *service.UserService
	Queue  *service.QueueService
	Ready  ReadinessChecker

	// UploadsDir is served read-only under UploadsURL when both are set.
	UploadsDir string
	UploadsURL string
}

// HTTPServer exposes the movie, user and queue admin REST API.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Dependencies
	server  *http.Server
	limiter *rateLimiter
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Dependencies, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.recoverMiddleware, s.loggingMiddleware, s.limiter.middleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	// Movie routes
	movies := api.PathPrefix("/movies").Subrouter()
	movies.HandleFunc("/list", s.handleListMovies).Methods(http.MethodGet)
	movies.HandleFunc("/sorted", s.handleSortedMovies).Methods(http.MethodGet)
	movies.HandleFunc("/search", s.handleSearchMovies).Methods(http.MethodGet)
	movies.HandleFunc("/add", s.adminOnly(s.handleAddMovie)).Methods(http.MethodPost)
	movies.HandleFunc("/{id:[0-9]+}", s.handleGetMovie).Methods(http.MethodGet)
	movies.HandleFunc("/{id:[0-9]+}", s.adminOnly(s.handleUpdateMovie)).Methods(http.MethodPut)
	movies.HandleFunc("/{id:[0-9]+}", s.adminOnly(s.handleDeleteMovie)).Methods(http.MethodDelete)

	// User routes
	users := api.PathPrefix("/user").Subrouter()
	users.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	users.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	users.HandleFunc("/profile", s.authenticated(s.handleProfile)).Methods(http.MethodGet)
	users.HandleFunc("/list", s.adminOnly(s.handleListUsers)).Methods(http.MethodGet)
	users.HandleFunc("/search", s.adminOnly(s.handleSearchUsers)).Methods(http.MethodGet)
	users.HandleFunc("/add", s.adminOnly(s.handleAddUser)).Methods(http.MethodPost)
	users.HandleFunc("/{id:[0-9]+}", s.adminOnly(s.handleGetUser)).Methods(http.MethodGet)
	users.HandleFunc("/{id:[0-9]+}", s.adminOnly(s.handleUpdateUser)).Methods(http.MethodPut)
	users.HandleFunc("/{id:[0-9]+}", s.adminOnly(s.handleDeleteUser)).Methods(http.MethodDelete)

	// Queue admin routes
	q := api.PathPrefix("/admin/queue").Subrouter()
	q.HandleFunc("", s.adminOnly(s.handleListIntents)).Methods(http.MethodGet)
	q.HandleFunc("/failed", s.adminOnly(s.handleFailedIntents)).Methods(http.MethodGet)
	q.HandleFunc("/stats", s.adminOnly(s.handleQueueStats)).Methods(http.MethodGet)
	q.HandleFunc("/deadletters", s.adminOnly(s.handleDeadLetters)).Methods(http.MethodGet)
	q.HandleFunc("/export", s.adminOnly(s.handleExportQueue)).Methods(http.MethodGet)
	q.HandleFunc("/{id:[0-9]+}", s.adminOnly(s.handleGetIntent)).Methods(http.MethodGet)
	q.HandleFunc("/{id:[0-9]+}/requeue", s.adminOnly(s.handleRequeueIntent)).Methods(http.MethodPost)

	if s.deps.UploadsDir != "" && s.deps.UploadsURL != "" {
		prefix := strings.TrimRight(s.deps.UploadsURL, "/") + "/"
		router.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(s.deps.UploadsDir))))
	}

	return router
}

// Handler is the fully wired router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
