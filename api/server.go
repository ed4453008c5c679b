/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for admin tooling
  5. Token:      Bearer token on /api when a bot token is configured
  6. Community:  Restricts /api/communities to the configured guild

ROUTE GROUPS:
  /healthz                      Liveness
  /metrics                      Prometheus exposition
  /api/communities/{community}  Commands, views and roster sync
  /api/sweep                    Manual reset sweep

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/pointsbot/main.go: Server startup
*/
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures the router.
type Options struct {
	CORSOrigins []string
	Token       string       // empty disables authentication
	Community   string       // empty serves every community
	Metrics     http.Handler // optional
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(requireToken(opts.Token))

		r.Post("/sweep", h.TriggerSweep)

		r.Route("/communities/{community}", func(r chi.Router) {
			r.Use(onlyCommunity(opts.Community))

			r.Post("/commands", h.PostCommand)
			r.Post("/messages", h.PostMessage)
			r.Get("/leaderboard", h.GetLeaderboard)
			r.Get("/rank-ups", h.GetRankUps)
			r.Get("/audit", h.GetAudit)

			r.Route("/members/{member}", func(r chi.Router) {
				r.Put("/", h.PutMember)
				r.Delete("/", h.DeleteMember)
				r.Get("/balance", h.GetBalance)
			})
		})
	})

	return r
}

// requireToken rejects requests without "Authorization: Bearer <token>".
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "Missing or invalid token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// onlyCommunity answers 404 for communities the bot does not serve.
func onlyCommunity(id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if id == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "community") != id {
				writeError(w, http.StatusNotFound, "Community not served", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
