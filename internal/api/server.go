// Package api exposes the engine over HTTP: a JSON surface mirroring the
// virtual filesystem's source URLs, and a WebSocket terminal endpoint.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/editactf/engine/internal/config"
	"github.com/editactf/engine/internal/ctf"
	"github.com/editactf/engine/internal/shell"
	"github.com/editactf/engine/internal/storage"
)

// Server is the HTTP API server.
type Server struct {
	config  config.ServerConfig
	router  *chi.Mux
	service *ctf.Service
	repo    storage.Repository
	history shell.HistoryStore
	auth    *AuthMiddleware
}

// NewServer creates a new API server.
func NewServer(
	cfg config.ServerConfig,
	service *ctf.Service,
	repo storage.Repository,
	history shell.HistoryStore,
) *Server {
	s := &Server{
		config:  cfg,
		service: service,
		repo:    repo,
		history: history,
		auth:    NewAuthMiddleware(service),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// Terminal websocket. Auth happens in-band over the socket.
	r.Get("/ws/terminal", s.handleTerminalWS)

	r.Route("/api/v1", func(r chi.Router) {
		// A bearer token is attached when present but never required on
		// the read surface; the terminal works signed out.
		r.Use(s.auth.Attach)

		r.Get("/rules", s.handleRules)
		r.Get("/challenges", s.handleChallenges)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/teams", s.handleTeams)
		r.Get("/fs", s.handleFs)
		r.Get("/session/summary", s.handleSummary)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Mutating routes require a signed-in user.
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser)

			r.Post("/flag", s.handleSubmitFlag)
			r.Put("/profile/name", s.handleSetDisplayName)
			r.Post("/team", s.handleCreateTeam)
			r.Post("/team/join", s.handleJoinTeam)
			r.Post("/team/leave", s.handleLeaveTeam)
			r.Get("/export", s.handleExport)
			r.Post("/catalog/reload", s.handleReload)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
