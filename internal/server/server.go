// Package server wires the daemon's HTTP surface: passphrase login, the
// websocket sync endpoint, and a health check.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"chicklist/internal/docstore"
	"chicklist/internal/identity"
	"chicklist/internal/middleware"
	syncer "chicklist/internal/sync"
)

type Server struct {
	store       docstore.Store
	identity    *identity.Service
	hub         *syncer.Hub
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(store docstore.Store, idsvc *identity.Service, logger *slog.Logger) *Server {
	return &Server{
		store:       store,
		identity:    idsvc,
		hub:         syncer.NewHub(logger.With("component", "sync")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub returns the sync hub, for shutdown notices and cleanup tasks.
func (s *Server) Hub() *syncer.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("POST /auth/login", s.rateLimitedHandler(s.loginHandler))
	mux.HandleFunc("GET /health", s.healthHandler)

	// The sync endpoint requires a valid token
	authMiddleware := middleware.RequireAuth(s.identity)
	mux.Handle("GET /sync", authMiddleware(syncer.Handler(s.hub, s.store, s.logger.With("component", "sync"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

type loginRequest struct {
	UserID     string `json:"userId"`
	Passphrase string `json:"passphrase"`
}

type loginResponse struct {
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Error: "Requête invalide."})
		return
	}

	token, err := s.identity.Login(req.UserID, req.Passphrase)
	if err != nil {
		s.logger.Warn("login rejected", "user", req.UserID, "remote", middleware.RealIP(r))
		writeJSON(w, http.StatusUnauthorized, loginResponse{Error: identity.Message(err)})
		return
	}

	s.logger.Info("login", "user", req.UserID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.hub.SessionCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}
