package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/dialoguecast/internal/api/handlers"
	"github.com/nikhilbhutani/dialoguecast/internal/api/middleware"
	"github.com/nikhilbhutani/dialoguecast/internal/auth"
	"github.com/nikhilbhutani/dialoguecast/internal/config"
)

type Router struct {
	mux     *chi.Mux
	cfg     *config.Config
	jwt     *auth.JWTMiddleware
	queue   handlers.Enqueuer
	checks  map[string]handlers.Pinger
	metrics http.Handler
	limiter *middleware.RateLimiter
}

// NewRouter wires the API. metrics may be nil when no exporter is available.
func NewRouter(cfg *config.Config, q handlers.Enqueuer, checks map[string]handlers.Pinger, metrics http.Handler) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg,
		jwt:     auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		queue:   q,
		checks:  checks,
		metrics: metrics,
		limiter: middleware.NewRateLimiter(20, 40),
	}
}

// Limiter exposes the rate limiter so the server can sweep idle clients.
func (rt *Router) Limiter() *middleware.RateLimiter { return rt.limiter }

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: rt.cfg.Server.AllowedOrigins}))

	health := handlers.NewHealthHandler(rt.checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.limiter.Limit)
		r.Use(rt.jwt.Authenticate)

		renderH := handlers.NewRenderHandler(rt.queue)
		r.Post("/renders", renderH.Create)
	})

	return r
}
