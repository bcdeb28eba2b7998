package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcus/scopes/internal/store"
	"github.com/marcus/scopes/internal/syncer"
)

// Config holds the HTTP server settings.
type Config struct {
	ListenAddr string

	// RateLimitGitHub caps requests per user per minute on endpoints that
	// call GitHub. Zero disables the limit.
	RateLimitGitHub int

	MaxBodyBytes int64

	CORSAllowedOrigins []string // empty = disabled
}

// Server is the HTTP API in front of the sync engine.
type Server struct {
	config      Config
	http        *http.Server
	store       *store.Store
	engine      *syncer.Engine
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
}

// NewServer creates a Server backed by st and engine.
func NewServer(cfg Config, st *store.Store, engine *syncer.Engine) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		config:      cfg,
		store:       st,
		engine:      engine,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.rateLimiter.Run(ctx, 5*time.Minute)

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Credentials and remote lookups
	mux.HandleFunc("PUT /v1/me/github-token", s.requireUser(s.withRateLimit(s.handleSetToken)))
	mux.HandleFunc("DELETE /v1/me/github-token", s.requireUser(s.handleClearToken))
	mux.HandleFunc("GET /v1/github/repos", s.requireUser(s.withRateLimit(s.handleListRepos)))
	mux.HandleFunc("GET /v1/github/repos/{owner}/{repo}/projects", s.requireUser(s.withRateLimit(s.handleListProjects)))
	mux.HandleFunc("GET /v1/github/repos/{owner}/{repo}/milestones", s.requireUser(s.withRateLimit(s.handleListMilestones)))
	mux.HandleFunc("POST /v1/github/refresh", s.requireUser(s.withRateLimit(s.handleRefresh)))

	// Scopes
	mux.HandleFunc("GET /v1/scopes/{id}/github", s.requireUser(s.handleGetScopeConfig))
	mux.HandleFunc("PUT /v1/scopes/{id}/github", s.requireUser(s.handlePutScopeConfig))

	// Tasks
	mux.HandleFunc("GET /v1/tasks/{id}/github", s.requireUser(s.handleGetTask))
	mux.HandleFunc("POST /v1/tasks/{id}/github/issue", s.requireUser(s.withRateLimit(s.handleCreateIssue)))
	mux.HandleFunc("POST /v1/tasks/{id}/github/sync", s.requireUser(s.withRateLimit(s.handleSyncTask)))
	mux.HandleFunc("POST /v1/tasks/{id}/github/labels", s.requireUser(s.withRateLimit(s.handlePushLabels)))
	mux.HandleFunc("PATCH /v1/tasks/{id}/github/milestone", s.requireUser(s.withRateLimit(s.handleUpdateMilestone)))
	mux.HandleFunc("POST /v1/tasks/{id}/toggle", s.requireUser(s.withRateLimit(s.handleToggle)))
	mux.HandleFunc("POST /v1/tasks/{id}/tags", s.requireUser(s.withRateLimit(s.handleAddTag)))
	mux.HandleFunc("DELETE /v1/tasks/{id}/tags/{name}", s.requireUser(s.withRateLimit(s.handleRemoveTag)))
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.requireUser(s.withRateLimit(s.handleDeleteTask)))
	mux.HandleFunc("GET /v1/tasks/{id}/sync-log", s.requireUser(s.handleSyncLog))

	// Entity dispatch
	mux.HandleFunc("GET /v1/entities/{kind}/{id}/github", s.requireUser(s.handleGetEntity))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, corsMiddleware(s.config.CORSAllowedOrigins), maxBytesMiddleware(s.config.MaxBodyBytes))
}

// handleHealth returns a health check response, pinging the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
