// Package testserver is an in-process stand-in for the Miri agent service.
// It serves the same routes, auth schemes and wire formats so the SDK and
// CLI can be exercised end to end with httptest.
package testserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/maumercado/miri-go/internal/logger"
)

// RecordedRequest is what the server saw of one request.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	auth   *AuthConfig
	store  *Store
	hub    *Hub

	limiter *ClientRateLimiter

	mu       sync.Mutex
	requests []RecordedRequest
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit throttles each client address to limit requests per second
// with bursts of burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limiter = NewClientRateLimiter(limit, burst)
	}
}

// New creates a stub service with the given credentials.
func New(auth AuthConfig, opts ...Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		auth:   &auth,
		store:  NewStore(),
		hub:    NewHub(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.recordRequest)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	if s.limiter != nil {
		s.router.Use(RateLimit(s.limiter))
	}
}

func (s *Server) setupRoutes() {
	h := &handler{store: s.store, hub: s.hub}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(ServerKeyAuth(s.auth))

		r.Post("/prompt", h.Prompt)
		r.Get("/prompt/stream", h.PromptStream)
		r.Post("/interaction", h.Interaction)
		r.Post("/files/upload", h.UploadFile)
		r.Get("/files/*", h.DownloadFile)
	})

	s.router.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(AdminAuth(s.auth))

		r.Get("/health", h.Health)
		r.Get("/config", h.GetConfig)
		r.Post("/config", h.UpdateConfig)
		r.Get("/human", h.ListHumans)
		r.Post("/human", h.SaveHuman)

		r.Get("/skills", h.ListSkills)
		r.Get("/skills/{name}", h.GetSkill)
		r.Delete("/skills/{name}", h.RemoveSkill)

		r.Post("/channels", h.ChannelAction)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Get("/{id}", h.GetSession)
			r.Get("/{id}/history", h.SessionHistory)
			r.Get("/{id}/stats", h.SessionStats)
			r.Get("/{id}/skills", h.SessionSkills)
		})

		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
	})

	s.router.With(ServerKeyAuth(s.auth)).Get("/ws", h.ServeWS)
}

func (s *Server) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log := logger.ForRequest("testserver", r)
		log.Debug().
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

// Store exposes the server state for seeding and assertions.
func (s *Server) Store() *Store {
	return s.store
}

// Hub exposes the open WebSocket connections.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Requests returns every request seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request.
func (s *Server) LastRequest() (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends every open WebSocket connection.
func (s *Server) Close() {
	s.hub.CloseAll()
}
