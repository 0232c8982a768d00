// Package api is the HTTP control surface for the softphone. It exposes
// call control, call history, contacts, and admin auth under /api/v1, plus
// the Prometheus scrape endpoint at /metrics.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/sipdeck/sipdeck/internal/api/middleware"
	"github.com/sipdeck/sipdeck/internal/call"
	"github.com/sipdeck/sipdeck/internal/config"
	"github.com/sipdeck/sipdeck/internal/database"
)

// CallController is the call-control surface the handlers drive. Satisfied
// by *call.Controller; a fake stands in for it in handler tests.
type CallController interface {
	Dial(ctx context.Context, destination string) (string, error)
	Answer(ctx context.Context) error
	Hangup(ctx context.Context) error
	Hold(ctx context.Context) error
	Resume(ctx context.Context) error
	Mute(ctx context.Context) error
	Unmute(ctx context.Context) error
	SendDTMF(ctx context.Context, digits string) error
	Status() call.Snapshot
	Registered() bool
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config

	phone    CallController
	history  database.CallRepository
	contacts database.ContactRepository
	admins   database.AdminUserRepository

	sessions  *mw.SessionStore
	jwtSecret []byte

	// metrics is the Prometheus scrape handler, mounted at /metrics.
	// May be nil in tests.
	metrics http.Handler

	apiLimiter  *mw.IPRateLimiter
	authLimiter *mw.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(
	cfg *config.Config,
	phone CallController,
	history database.CallRepository,
	contacts database.ContactRepository,
	admins database.AdminUserRepository,
	jwtSecret []byte,
	metrics http.Handler,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		cfg:         cfg,
		phone:       phone,
		history:     history,
		contacts:    contacts,
		admins:      admins,
		sessions:    mw.NewSessionStore(),
		jwtSecret:   jwtSecret,
		metrics:     metrics,
		apiLimiter:  mw.NewIPRateLimiter(mw.DefaultRateLimitConfig()),
		authLimiter: mw.NewIPRateLimiter(mw.AuthRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions exposes the session store so main can run the expiry ticker.
func (s *Server) Sessions() *mw.SessionStore {
	return s.sessions
}

// Close stops the rate limiter cleanup goroutines.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.authLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.StructuredLogger)
	r.Use(mw.Recoverer)
	r.Use(mw.SecurityHeaders(false))
	r.Use(mw.CORS(mw.ParseCORSOrigins(s.cfg.CORSOrigins)))
	r.Use(mw.RateLimit(s.apiLimiter))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Credential endpoints get the stricter limiter.
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit(s.authLimiter))
			r.Post("/setup", s.handleSetup)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/token", s.handleToken)
		})

		// Everything below requires auth.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(s.sessions, s.jwtSecret))

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.Route("/call", func(r chi.Router) {
				r.Post("/make", s.handleMakeCall)
				r.Post("/answer", s.handleAnswer)
				r.Post("/hangup", s.handleHangup)
				r.Post("/hold", s.handleHold)
				r.Post("/resume", s.handleResume)
				r.Post("/mute", s.handleMute)
				r.Post("/unmute", s.handleUnmute)
				r.Post("/dtmf", s.handleDTMF)
				r.Get("/status", s.handleCallStatus)
			})

			r.Route("/history", func(r chi.Router) {
				r.Get("/", s.handleListHistory)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetHistory)
					r.Delete("/", s.handleDeleteHistory)
					r.Get("/recording", s.handleDownloadRecording)
				})
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", s.handleListContacts)
				r.Post("/", s.handleCreateContact)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetContact)
					r.Put("/", s.handleUpdateContact)
					r.Delete("/", s.handleDeleteContact)
				})
			})
		})
	})
}

// handleHealth returns basic health status including the SIP registration
// state. Unauthenticated so it can back liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	registered := false
	if s.phone != nil {
		registered = s.phone.Registered()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"sip_registered": registered,
	})
}
