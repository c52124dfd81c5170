package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dtroode/wingcoach-server/internal/api/http/handler"
	"github.com/dtroode/wingcoach-server/internal/api/http/middleware"
	"github.com/dtroode/wingcoach-server/internal/logger"
	"github.com/dtroode/wingcoach-server/internal/metrics"
	"github.com/dtroode/wingcoach-server/internal/model"
)

// Deps collects what the router wires into handlers and middleware.
type Deps struct {
	AuthService    handler.AuthService
	TokenService   middleware.TokenService
	ContextManager model.ContextManager
	RateLimiter    *middleware.RateLimiter
	Metrics        metrics.Recorder
	Gatherer       prometheus.Gatherer
	Logger         *logger.Logger
}

// Router builds the HTTP API.
type Router struct {
	deps Deps
}

func New(deps Deps) *Router {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Router{deps: deps}
}

// Register returns the root handler.
//
//	GET  /healthz
//	GET  /metrics          (when a gatherer is set)
//	POST /auth/register    rate limited
//	POST /auth/login       rate limited
//	POST /auth/google      rate limited
//	POST /auth/apple       rate limited
//	GET  /auth/me          bearer session required
func (r *Router) Register() http.Handler {
	mux := chi.NewRouter()

	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.NewLogging(r.deps.Logger, r.deps.Metrics).Handler)
	mux.Use(chimiddleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if r.deps.Gatherer != nil {
		mux.Handle("/metrics", metrics.Handler(r.deps.Gatherer))
	}

	authHandler := handler.NewAuth(r.deps.AuthService, r.deps.ContextManager, r.deps.Logger)
	authenticate := middleware.NewAuthenticate(r.deps.TokenService, r.deps.ContextManager, r.deps.Logger)

	mux.Route("/auth", func(ar chi.Router) {
		ar.Group(func(public chi.Router) {
			if r.deps.RateLimiter != nil {
				public.Use(r.deps.RateLimiter.Handler)
			}
			public.Post("/register", authHandler.Register)
			public.Post("/login", authHandler.Login)
			public.Post("/google", authHandler.Google)
			public.Post("/apple", authHandler.Apple)
		})

		ar.With(authenticate.Handler).Get("/me", authHandler.Me)
	})

	return mux
}
