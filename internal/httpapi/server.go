// Package httpapi exposes the intake funnel over HTTP: the streaming
// chat endpoint, the lead CRUD surface, capacity counters, and the
// email pre-check.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/intake-api/internal/chat"
	"github.com/sells-group/intake-api/internal/ratelimit"
	"github.com/sells-group/intake-api/internal/store"
	"github.com/sells-group/intake-api/internal/upload"
)

// Engine runs one chat turn. Satisfied by *chat.Engine.
type Engine interface {
	Turn(ctx context.Context, req chat.TurnRequest, sink chat.FrameSink) error
}

// Guard applies the rate/abuse policy. Satisfied by *ratelimit.Guard.
type Guard interface {
	Check(ctx context.Context, identity string) ratelimit.Result
}

// leadDomainCap is the fixed number of submissions allowed per email
// domain before check-email reports the domain as capped.
const leadDomainCap = 3

// Config tunes the HTTP surface.
type Config struct {
	AllowedOrigins []string
	DailyTotal     int
	MonthlyTotal   int
	MaxUploadBytes int64
	AllowedExts    []string
}

// Server wires the handlers to their collaborators.
type Server struct {
	cfg      Config
	store    store.Store
	engine   Engine
	guard    Guard
	uploader upload.Uploader
}

// NewServer creates a Server. uploader may be nil, which disables brief
// attachments on the MVP funnel.
func NewServer(cfg Config, st store.Store, engine Engine, guard Guard, uploader upload.Uploader) *Server {
	if cfg.DailyTotal <= 0 {
		cfg.DailyTotal = 10
	}
	if cfg.MonthlyTotal <= 0 {
		cfg.MonthlyTotal = 5
	}
	return &Server{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		guard:    guard,
		uploader: uploader,
	}
}

// Routes builds the router with middleware and all endpoints mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)

	r.Post("/leads", s.handleCreateLead)
	r.Patch("/leads", s.handlePatchLead)
	r.Post("/leads/mvp", s.handleCreateMVPLead)

	r.Get("/spots", s.handleGetDailySpots)
	r.Post("/spots/decrement", s.handleDecrementDailySpots)
	r.Get("/spots/mvp", s.handleGetMonthlySpots)
	r.Post("/spots/mvp/decrement", s.handleDecrementMonthlySpots)

	r.Post("/check-email", s.handleCheckEmail)

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
