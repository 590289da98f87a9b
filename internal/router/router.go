package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/handlers"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/metrics"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
)

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handlers struct {
	Sessions      *handlers.SessionHandler
	Eligibility   *handlers.EligibilityHandler
	Credits       *handlers.CreditHandler
	Completions   *handlers.CompletionHandler
	Notifications *handlers.NotificationHandler
	Tiers         *handlers.TierHandler
	WebSocket     http.HandlerFunc
}

type Options struct {
	FrontendURL string
	AdminAPIKey string
	Health      map[string]Pinger
	Logger      *zap.Logger
}

func New(jwtAuth *middleware.JWTAuth, limiter *middleware.RateLimiter, h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{opts.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", healthHandler(opts.Health, opts.Logger))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Authenticates with the token query param.
		r.Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Route("/sessions", func(r chi.Router) {
				r.With(limiter.Middleware).Post("/exam", h.Sessions.CreateExam)
				r.With(limiter.Middleware).Post("/practice", h.Sessions.CreatePractice)
				r.Get("/", h.Sessions.List)
				r.Get("/{id}", h.Sessions.Get)
				r.With(limiter.Middleware).Post("/{id}/pause", h.Sessions.Pause)
				r.Post("/{id}/resume", h.Sessions.Resume)
				r.Post("/{id}/complete", h.Sessions.Complete)
				r.Post("/{id}/abandon", h.Sessions.Abandon)
				r.Post("/{id}/answers", h.Sessions.RecordAnswer)
				r.Patch("/{id}/timer", h.Sessions.UpdateTimer)
			})

			r.Get("/eligibility/exam", h.Eligibility.Exam)

			r.Route("/credits", func(r chi.Router) {
				r.Get("/", h.Credits.Balance)
				r.Post("/spend", h.Credits.Spend)
			})

			r.Post("/shared-posts/{id}/completions", h.Completions.Record)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.Notifications.List)
				r.Put("/{id}/read", h.Notifications.MarkRead)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminKey(opts.AdminAPIKey))
			r.Put("/admin/users/{id}/share-limits", h.Credits.OverrideShareLimits)
			r.Post("/admin/users/{id}/tier/refresh", h.Tiers.Refresh)
		})
	})

	return r
}

func healthHandler(deps map[string]Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
				checks[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		body := map[string]interface{}{"status": "ok", "checks": checks}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
