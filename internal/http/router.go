package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/roomwatch/internal/api"
	"github.com/jw6ventures/roomwatch/internal/auth"
	"github.com/jw6ventures/roomwatch/internal/config"
	"github.com/jw6ventures/roomwatch/internal/http/csrf"
	"github.com/jw6ventures/roomwatch/internal/http/errors"
	"github.com/jw6ventures/roomwatch/internal/http/ratelimit"
	"github.com/jw6ventures/roomwatch/internal/metrics"
	"github.com/jw6ventures/roomwatch/internal/store"
)

// Deps are the services behind the routes. Store and Sessions are optional.
type Deps struct {
	Portal   api.Portal
	Store    *store.Store
	Sessions *auth.SessionManager
}

// NewRouter wires all HTTP routes. The returned func stops background
// cleanup of the rate limiter.
func NewRouter(cfg *config.Config, deps Deps) (http.Handler, func()) {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	health := func(w http.ResponseWriter, r *http.Request) {
		errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
	r.Get("/healthz", health)

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "disabled"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Store.HealthCheck(ctx); err != nil {
			errors.LogError(r, "readiness check", err)
			errors.WriteError(w, http.StatusServiceUnavailable, "unready")
			return
		}
		errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	h := api.NewHandler(deps.Portal, deps.Store)
	r.Route("/api", func(r chi.Router) {
		if deps.Sessions != nil {
			r.Use(deps.Sessions.Middleware)
		}
		if cfg.CSRFEnabled {
			r.Use(csrf.Middleware(cfg))
		}

		r.Get("/health", h.Health)

		r.Get("/rooms", h.ListRooms)
		r.Get("/rooms/lookup", h.LookupRoom)
		r.Get("/rooms/{roomID}/occupancy", h.GetOccupancy)
		r.Put("/rooms/{roomID}/occupancy", h.UpdateOccupancy)
		r.Post("/rooms/{roomID}/occupancy", h.UpdateOccupancy)

		r.Get("/schedule/{roomID}", h.Schedule)
		r.Get("/schedules", h.GetSchedules)

		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimiter.Middleware())
			r.Get("/status", h.AuthStatus)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		r.Get("/rewards", h.TopRewards)
		r.Get("/rewards/{username}", h.GetReward)
		r.Post("/rewards/{username}", h.AddReward)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r, authRateLimiter.Stop
}
